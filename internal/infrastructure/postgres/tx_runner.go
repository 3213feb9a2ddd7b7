package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/application/folio"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

var _ folio.TxRunner = (*TxRunner)(nil)
var _ billing.BillingTxRunner = (*TxRunner)(nil)

// TxRunner ejecuta callbacks dentro de una transacción PostgreSQL.
type TxRunner struct {
	pool *pgxpool.Pool
}

// NewTxRunner construye el runner con el pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunFolio inicia una transacción con los repositorios de folios atados a ella.
func (r *TxRunner) RunFolio(ctx context.Context, fn func(
	ranges repository.FolioRangeRepository,
	voids repository.FolioVoidRepository,
) error) error {
	return r.run(ctx, func(tx pgx.Tx) error {
		return fn(NewFolioRangeRepository(tx), NewFolioVoidRepository(tx))
	})
}

// RunBilling inicia una transacción con repos de folios y documentos (asignación + timbre, firma, anulación).
func (r *TxRunner) RunBilling(ctx context.Context, fn func(repos billing.TxRepos) error) error {
	return r.run(ctx, func(tx pgx.Tx) error {
		return fn(billing.TxRepos{
			Ranges:    NewFolioRangeRepository(tx),
			Voids:     NewFolioVoidRepository(tx),
			Documents: NewTaxDocumentRepository(tx),
			Envelopes: NewSignedEnvelopeRepository(tx),
		})
	})
}

// run hace Commit si fn no falla; en cualquier otro caso Rollback.
func (r *TxRunner) run(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
