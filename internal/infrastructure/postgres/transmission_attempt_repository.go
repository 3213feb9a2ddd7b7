package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

var _ repository.TransmissionAttemptRepository = (*TransmissionAttemptRepo)(nil)

// TransmissionAttemptRepo log de auditoría de envíos y consultas.
type TransmissionAttemptRepo struct {
	q Querier
}

// NewTransmissionAttemptRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTransmissionAttemptRepository(q Querier) *TransmissionAttemptRepo {
	return &TransmissionAttemptRepo{q: q}
}

// Append inserta un intento.
func (r *TransmissionAttemptRepo) Append(ctx context.Context, a *entity.TransmissionAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	query := `
		INSERT INTO transmission_attempts (id, tenant_id, document_id, kind, attempt_no, attempted_at, duration_ms,
		                                   outcome, http_status, authority_code, track_id, raw_response_ref, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.q.Exec(ctx, query,
		a.ID, a.TenantID, a.DocumentID, string(a.Kind), a.AttemptNo, a.AttemptedAt, a.Duration.Milliseconds(),
		string(a.Outcome), a.HTTPStatus, a.AuthorityCode, a.TrackID, a.RawResponseRef, a.Error,
	)
	if err != nil {
		return fmt.Errorf("insert transmission attempt: %w", err)
	}
	return nil
}

// ListByDocument devuelve los intentos en orden cronológico.
func (r *TransmissionAttemptRepo) ListByDocument(ctx context.Context, tenantID, documentID string) ([]*entity.TransmissionAttempt, error) {
	query := `
		SELECT id, tenant_id, document_id, kind, attempt_no, attempted_at, duration_ms,
		       outcome, http_status, authority_code, track_id, raw_response_ref, error
		FROM transmission_attempts
		WHERE tenant_id = $1 AND document_id = $2
		ORDER BY attempted_at, attempt_no`
	rows, err := r.q.Query(ctx, query, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("query transmission attempts: %w", err)
	}
	defer rows.Close()
	var out []*entity.TransmissionAttempt
	for rows.Next() {
		var a entity.TransmissionAttempt
		var kind, outcome string
		var ms int64
		if err := rows.Scan(&a.ID, &a.TenantID, &a.DocumentID, &kind, &a.AttemptNo, &a.AttemptedAt, &ms,
			&outcome, &a.HTTPStatus, &a.AuthorityCode, &a.TrackID, &a.RawResponseRef, &a.Error); err != nil {
			return nil, fmt.Errorf("scan transmission attempt: %w", err)
		}
		a.Kind = entity.AttemptKind(kind)
		a.Outcome = entity.AttemptOutcome(outcome)
		a.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, &a)
	}
	return out, rows.Err()
}
