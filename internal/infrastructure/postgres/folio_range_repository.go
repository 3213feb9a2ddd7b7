package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

var _ repository.FolioRangeRepository = (*FolioRangeRepo)(nil)

// FolioRangeRepo implementación de FolioRangeRepository (usable con pool o tx).
type FolioRangeRepo struct {
	q Querier
}

// NewFolioRangeRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFolioRangeRepository(q Querier) *FolioRangeRepo {
	return &FolioRangeRepo{q: q}
}

const folioRangeColumns = `id, tenant_id, document_type, range_start, range_end, next_available,
	issuer_rut, key_id, authorized_at, expires_at, caf_xml, caf_private_key, is_active, created_at, updated_at`

// Create persiste un rango CAF nuevo.
func (r *FolioRangeRepo) Create(ctx context.Context, fr *entity.FolioRange) error {
	if fr.ID == "" {
		fr.ID = uuid.New().String()
	}
	query := `
		INSERT INTO folio_ranges (` + folioRangeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err := r.q.Exec(ctx, query,
		fr.ID, fr.TenantID, int(fr.DocumentType), fr.Start, fr.End, fr.NextAvailable,
		fr.IssuerRUT, fr.KeyID, fr.AuthorizedAt, fr.ExpiresAt, fr.CAFXML, fr.CAFPrivateKeyPEM,
		fr.IsActive, fr.CreatedAt, fr.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: rango %d-%d ya registrado", domain.ErrDuplicate, fr.Start, fr.End)
		}
		return fmt.Errorf("insert folio range: %w", err)
	}
	return nil
}

// GetByID obtiene un rango del tenant.
func (r *FolioRangeRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.FolioRange, error) {
	query := `SELECT ` + folioRangeColumns + ` FROM folio_ranges WHERE tenant_id = $1 AND id = $2`
	fr, err := scanFolioRange(r.q.QueryRow(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: rango de folios %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get folio range: %w", err)
	}
	return fr, nil
}

// ListByTenant lista los rangos del tenant por tipo y rango.
func (r *FolioRangeRepo) ListByTenant(ctx context.Context, tenantID string) ([]*entity.FolioRange, error) {
	query := `SELECT ` + folioRangeColumns + ` FROM folio_ranges
		WHERE tenant_id = $1 ORDER BY document_type, range_start`
	return r.list(ctx, query, tenantID)
}

// LockForAllocation toma FOR UPDATE sobre todos los rangos del (tenant, tipo) en orden de inicio.
// Dos asignaciones concurrentes del mismo tipo se serializan aquí hasta el commit del primero.
func (r *FolioRangeRepo) LockForAllocation(ctx context.Context, tenantID string, docType entity.DocumentType) ([]*entity.FolioRange, error) {
	query := `SELECT ` + folioRangeColumns + ` FROM folio_ranges
		WHERE tenant_id = $1 AND document_type = $2
		ORDER BY range_start
		FOR UPDATE`
	return r.list(ctx, query, tenantID, int(docType))
}

// Advance avanza next_available solo si sigue valiendo expected.
func (r *FolioRangeRepo) Advance(ctx context.Context, rangeID string, expected int64) (bool, error) {
	query := `
		UPDATE folio_ranges
		SET next_available = next_available + 1, updated_at = now()
		WHERE id = $1 AND next_available = $2 AND next_available <= range_end`
	tag, err := r.q.Exec(ctx, query, rangeID, expected)
	if err != nil {
		return false, fmt.Errorf("advance folio range: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetActive activa o retira un rango.
func (r *FolioRangeRepo) SetActive(ctx context.Context, tenantID, id string, active bool) error {
	query := `UPDATE folio_ranges SET is_active = $3, updated_at = now() WHERE tenant_id = $1 AND id = $2`
	tag, err := r.q.Exec(ctx, query, tenantID, id, active)
	if err != nil {
		return fmt.Errorf("update folio range: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: rango de folios %s", domain.ErrNotFound, id)
	}
	return nil
}

func (r *FolioRangeRepo) list(ctx context.Context, query string, args ...any) ([]*entity.FolioRange, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query folio ranges: %w", err)
	}
	defer rows.Close()
	var out []*entity.FolioRange
	for rows.Next() {
		fr, err := scanFolioRange(rows)
		if err != nil {
			return nil, fmt.Errorf("scan folio range: %w", err)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

func scanFolioRange(s pgxScanner) (*entity.FolioRange, error) {
	var fr entity.FolioRange
	var docType int
	err := s.Scan(
		&fr.ID, &fr.TenantID, &docType, &fr.Start, &fr.End, &fr.NextAvailable,
		&fr.IssuerRUT, &fr.KeyID, &fr.AuthorizedAt, &fr.ExpiresAt, &fr.CAFXML, &fr.CAFPrivateKeyPEM,
		&fr.IsActive, &fr.CreatedAt, &fr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	fr.DocumentType = entity.DocumentType(docType)
	return &fr, nil
}
