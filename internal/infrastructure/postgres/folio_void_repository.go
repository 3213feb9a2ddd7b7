package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

var _ repository.FolioVoidRepository = (*FolioVoidRepo)(nil)

// FolioVoidRepo registro append-only de anulaciones.
type FolioVoidRepo struct {
	q Querier
}

// NewFolioVoidRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFolioVoidRepository(q Querier) *FolioVoidRepo {
	return &FolioVoidRepo{q: q}
}

// Create registra la anulación. Un folio se anula una sola vez.
func (r *FolioVoidRepo) Create(ctx context.Context, v *entity.FolioVoid) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	query := `
		INSERT INTO folio_voids (id, tenant_id, document_type, folio, document_id, reason, voided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(ctx, query,
		v.ID, v.TenantID, int(v.DocumentType), v.Folio, nullIfEmpty(v.DocumentID), v.Reason, v.VoidedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: folio %d ya anulado", domain.ErrDuplicate, v.Folio)
		}
		return fmt.Errorf("insert folio void: %w", err)
	}
	return nil
}

// ListByTenant lista anulaciones; docType 0 incluye todos los tipos.
func (r *FolioVoidRepo) ListByTenant(ctx context.Context, tenantID string, docType entity.DocumentType) ([]*entity.FolioVoid, error) {
	query := `
		SELECT id, tenant_id, document_type, folio, document_id, reason, voided_at
		FROM folio_voids
		WHERE tenant_id = $1 AND ($2 = 0 OR document_type = $2)
		ORDER BY document_type, folio`
	rows, err := r.q.Query(ctx, query, tenantID, int(docType))
	if err != nil {
		return nil, fmt.Errorf("query folio voids: %w", err)
	}
	defer rows.Close()
	var out []*entity.FolioVoid
	for rows.Next() {
		var v entity.FolioVoid
		var dt int
		var docID *string
		if err := rows.Scan(&v.ID, &v.TenantID, &dt, &v.Folio, &docID, &v.Reason, &v.VoidedAt); err != nil {
			return nil, fmt.Errorf("scan folio void: %w", err)
		}
		v.DocumentType = entity.DocumentType(dt)
		v.DocumentID = derefString(docID)
		out = append(out, &v)
	}
	return out, rows.Err()
}
