package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

var _ repository.SignedEnvelopeRepository = (*SignedEnvelopeRepo)(nil)

// SignedEnvelopeRepo sobres firmados; la tabla rechaza UPDATE.
type SignedEnvelopeRepo struct {
	q Querier
}

// NewSignedEnvelopeRepository construye el adaptador. Pasar pool o tx (Querier).
func NewSignedEnvelopeRepository(q Querier) *SignedEnvelopeRepo {
	return &SignedEnvelopeRepo{q: q}
}

// Create guarda la firma del documento. Un documento se firma una sola vez.
func (r *SignedEnvelopeRepo) Create(ctx context.Context, env *entity.SignedEnvelope) error {
	query := `
		INSERT INTO signed_envelopes (document_id, tenant_id, canonical_xml, signature_xml, signed_xml, certificate_chain, digest_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.q.Exec(ctx, query,
		env.DocumentID, env.TenantID, env.CanonicalXML, env.SignatureXML, env.SignedXML,
		env.CertificateChain, env.DigestValue, env.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: el documento %s ya está firmado", domain.ErrDuplicate, env.DocumentID)
		}
		return fmt.Errorf("insert signed envelope: %w", err)
	}
	return nil
}

// GetByDocumentID obtiene la firma del documento.
func (r *SignedEnvelopeRepo) GetByDocumentID(ctx context.Context, tenantID, documentID string) (*entity.SignedEnvelope, error) {
	query := `
		SELECT document_id, tenant_id, canonical_xml, signature_xml, signed_xml, certificate_chain, digest_value, created_at
		FROM signed_envelopes WHERE tenant_id = $1 AND document_id = $2`
	var env entity.SignedEnvelope
	err := r.q.QueryRow(ctx, query, tenantID, documentID).Scan(
		&env.DocumentID, &env.TenantID, &env.CanonicalXML, &env.SignatureXML, &env.SignedXML,
		&env.CertificateChain, &env.DigestValue, &env.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: firma del documento %s", domain.ErrNotFound, documentID)
		}
		return nil, fmt.Errorf("get signed envelope: %w", err)
	}
	return &env, nil
}
