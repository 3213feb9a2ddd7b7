package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

var _ repository.TaxDocumentRepository = (*TaxDocumentRepo)(nil)

// TaxDocumentRepo implementación de TaxDocumentRepository (usable con pool o tx).
type TaxDocumentRepo struct {
	q Querier
}

// NewTaxDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTaxDocumentRepository(q Querier) *TaxDocumentRepo {
	return &TaxDocumentRepo{q: q}
}

const taxDocumentColumns = `id, tenant_id, document_type, external_ref, folio, folio_range_id, issue_date, currency,
	receiver_rut, receiver_name, receiver_activity, receiver_address, receiver_comuna,
	net_amount, exempt_amount, tax_rate, tax_amount, total_amount,
	status, track_id, rejection_reason, last_error, void_reason, ted_xml, stamped_at, created_at, updated_at`

// Create inserta cabecera, líneas y referencias en un solo batch (transacción implícita).
func (r *TaxDocumentRepo) Create(ctx context.Context, doc *entity.TaxDocument) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	var tedXML *string
	var stampedAt *time.Time
	if doc.Stamp != nil {
		tedXML, stampedAt = &doc.Stamp.TEDXML, &doc.Stamp.StampedAt
	}

	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO tax_documents (`+taxDocumentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
		        $19, $20, $21, $22, $23, $24, $25, $26, $27)`,
		doc.ID, doc.TenantID, int(doc.Type), nullIfEmpty(doc.ExternalRef), nullIfZero(doc.Folio),
		nullIfEmpty(doc.FolioRangeID), doc.IssueDate, doc.Currency,
		doc.Receiver.RUT, doc.Receiver.Name, doc.Receiver.Activity, doc.Receiver.Address, doc.Receiver.Comuna,
		doc.NetAmount, doc.ExemptAmount, doc.TaxRate, doc.TaxAmount, doc.TotalAmount,
		string(doc.Status), nullIfEmpty(doc.TrackID), doc.RejectionReason, doc.LastError, doc.VoidReason,
		tedXML, stampedAt, doc.CreatedAt, doc.UpdatedAt,
	)
	for _, l := range doc.Lines {
		b.Queue(`
			INSERT INTO tax_document_lines (document_id, line_no, description, quantity, unit_price, exempt, line_total)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			doc.ID, l.LineNo, l.Description, l.Quantity, l.UnitPrice, l.Exempt, l.LineTotal,
		)
	}
	for _, ref := range doc.References {
		var refDate *time.Time
		if !ref.Date.IsZero() {
			d := ref.Date
			refDate = &d
		}
		b.Queue(`
			INSERT INTO tax_document_references (document_id, line_no, document_type, folio, ref_date, code, reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			doc.ID, ref.LineNo, ref.DocumentType, ref.Folio, refDate, ref.Code, ref.Reason,
		)
	}

	br := r.q.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: documento con referencia %q", domain.ErrDuplicate, doc.ExternalRef)
			}
			return fmt.Errorf("insert tax document: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert tax document: %w", err)
	}
	return nil
}

// GetByID obtiene el documento con líneas y referencias.
func (r *TaxDocumentRepo) GetByID(ctx context.Context, tenantID, id string) (*entity.TaxDocument, error) {
	return r.getOne(ctx, `WHERE tenant_id = $1 AND id = $2`, tenantID, id)
}

// GetByExternalRef busca por la referencia del sistema origen.
func (r *TaxDocumentRepo) GetByExternalRef(ctx context.Context, tenantID, externalRef string) (*entity.TaxDocument, error) {
	return r.getOne(ctx, `WHERE tenant_id = $1 AND external_ref = $2`, tenantID, externalRef)
}

// GetByTrackID busca el documento asociado a un envío.
func (r *TaxDocumentRepo) GetByTrackID(ctx context.Context, tenantID, trackID string) (*entity.TaxDocument, error) {
	return r.getOne(ctx, `WHERE tenant_id = $1 AND track_id = $2`, tenantID, trackID)
}

// Update persiste la cabecera solo si el estado almacenado sigue siendo from.
// Las líneas y referencias no cambian después del borrador.
func (r *TaxDocumentRepo) Update(ctx context.Context, doc *entity.TaxDocument, from entity.DocumentStatus) error {
	var tedXML *string
	var stampedAt *time.Time
	if doc.Stamp != nil {
		tedXML, stampedAt = &doc.Stamp.TEDXML, &doc.Stamp.StampedAt
	}
	query := `
		UPDATE tax_documents
		SET folio            = $4,
		    folio_range_id   = $5,
		    status           = $6,
		    track_id         = $7,
		    rejection_reason = $8,
		    last_error       = $9,
		    void_reason      = $10,
		    ted_xml          = $11,
		    stamped_at       = $12,
		    updated_at       = $13
		WHERE tenant_id = $1 AND id = $2 AND status = $3`
	tag, err := r.q.Exec(ctx, query,
		doc.TenantID, doc.ID, string(from),
		nullIfZero(doc.Folio), nullIfEmpty(doc.FolioRangeID), string(doc.Status), nullIfEmpty(doc.TrackID),
		doc.RejectionReason, doc.LastError, doc.VoidReason, tedXML, stampedAt, doc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: folio %d ya usado por otro documento", domain.ErrDuplicate, doc.Folio)
		}
		return fmt.Errorf("update tax document: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.status(ctx, doc.TenantID, doc.ID); err != nil {
		return err
	}
	return fmt.Errorf("%w: el documento %s ya no está en estado %s", domain.ErrConflict, doc.ID, from)
}

// Resolve aplica el estado terminal solo si el documento del track sigue en submitted.
func (r *TaxDocumentRepo) Resolve(ctx context.Context, tenantID, trackID string, to entity.DocumentStatus, reason string) (bool, error) {
	if to != entity.StatusAccepted && to != entity.StatusRejected {
		return false, fmt.Errorf("%w: resolve a %s", domain.ErrInvalidTransition, to)
	}
	query := `
		UPDATE tax_documents
		SET status = $3, rejection_reason = $4, last_error = '', updated_at = now()
		WHERE tenant_id = $1 AND track_id = $2 AND status = 'submitted'`
	tag, err := r.q.Exec(ctx, query, tenantID, trackID, string(to), reason)
	if err != nil {
		return false, fmt.Errorf("resolve tax document: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListByStatus devuelve cabeceras (sin líneas) de cualquier tenant, las más antiguas primero.
func (r *TaxDocumentRepo) ListByStatus(ctx context.Context, status entity.DocumentStatus, limit int) ([]*entity.TaxDocument, error) {
	query := `SELECT ` + taxDocumentColumns + ` FROM tax_documents
		WHERE status = $1 ORDER BY updated_at LIMIT $2`
	rows, err := r.q.Query(ctx, query, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("query tax documents: %w", err)
	}
	defer rows.Close()
	var out []*entity.TaxDocument
	for rows.Next() {
		doc, err := scanTaxDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tax document: %w", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// DeleteDraft elimina un borrador; líneas y referencias caen en cascada.
func (r *TaxDocumentRepo) DeleteDraft(ctx context.Context, tenantID, id string) error {
	tag, err := r.q.Exec(ctx,
		`DELETE FROM tax_documents WHERE tenant_id = $1 AND id = $2 AND status = 'draft' AND folio IS NULL`,
		tenantID, id)
	if err != nil {
		return fmt.Errorf("delete tax document: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	status, err := r.status(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: documento en estado %s", domain.ErrInvalidTransition, status)
}

func (r *TaxDocumentRepo) status(ctx context.Context, tenantID, id string) (entity.DocumentStatus, error) {
	var s string
	err := r.q.QueryRow(ctx, `SELECT status FROM tax_documents WHERE tenant_id = $1 AND id = $2`, tenantID, id).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("%w: documento %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("get tax document status: %w", err)
	}
	return entity.DocumentStatus(s), nil
}

func (r *TaxDocumentRepo) getOne(ctx context.Context, where string, args ...any) (*entity.TaxDocument, error) {
	query := `SELECT ` + taxDocumentColumns + ` FROM tax_documents ` + where
	doc, err := scanTaxDocument(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: documento", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get tax document: %w", err)
	}
	if err := r.loadLines(ctx, doc); err != nil {
		return nil, err
	}
	if err := r.loadReferences(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *TaxDocumentRepo) loadLines(ctx context.Context, doc *entity.TaxDocument) error {
	rows, err := r.q.Query(ctx, `
		SELECT line_no, description, quantity, unit_price, exempt, line_total
		FROM tax_document_lines WHERE document_id = $1 ORDER BY line_no`, doc.ID)
	if err != nil {
		return fmt.Errorf("query tax document lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l entity.LineItem
		if err := rows.Scan(&l.LineNo, &l.Description, &l.Quantity, &l.UnitPrice, &l.Exempt, &l.LineTotal); err != nil {
			return fmt.Errorf("scan tax document line: %w", err)
		}
		doc.Lines = append(doc.Lines, l)
	}
	return rows.Err()
}

func (r *TaxDocumentRepo) loadReferences(ctx context.Context, doc *entity.TaxDocument) error {
	rows, err := r.q.Query(ctx, `
		SELECT line_no, document_type, folio, ref_date, code, reason
		FROM tax_document_references WHERE document_id = $1 ORDER BY line_no`, doc.ID)
	if err != nil {
		return fmt.Errorf("query tax document references: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ref entity.DocumentReference
		var refDate *time.Time
		if err := rows.Scan(&ref.LineNo, &ref.DocumentType, &ref.Folio, &refDate, &ref.Code, &ref.Reason); err != nil {
			return fmt.Errorf("scan tax document reference: %w", err)
		}
		if refDate != nil {
			ref.Date = *refDate
		}
		doc.References = append(doc.References, ref)
	}
	return rows.Err()
}

func scanTaxDocument(s pgxScanner) (*entity.TaxDocument, error) {
	var d entity.TaxDocument
	var docType int
	var status string
	var externalRef, rangeID, trackID, tedXML *string
	var folio *int64
	var stampedAt *time.Time
	err := s.Scan(
		&d.ID, &d.TenantID, &docType, &externalRef, &folio, &rangeID, &d.IssueDate, &d.Currency,
		&d.Receiver.RUT, &d.Receiver.Name, &d.Receiver.Activity, &d.Receiver.Address, &d.Receiver.Comuna,
		&d.NetAmount, &d.ExemptAmount, &d.TaxRate, &d.TaxAmount, &d.TotalAmount,
		&status, &trackID, &d.RejectionReason, &d.LastError, &d.VoidReason, &tedXML, &stampedAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Type = entity.DocumentType(docType)
	d.Status = entity.DocumentStatus(status)
	d.ExternalRef = derefString(externalRef)
	d.Folio = derefInt64(folio)
	d.FolioRangeID = derefString(rangeID)
	d.TrackID = derefString(trackID)
	if tedXML != nil {
		d.Stamp = &entity.Stamp{TEDXML: *tedXML}
		if stampedAt != nil {
			d.Stamp.StampedAt = *stampedAt
		}
	}
	return &d, nil
}
