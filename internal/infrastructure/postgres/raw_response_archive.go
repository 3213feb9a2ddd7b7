package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/dte-sii/internal/domain"
)

// RawResponseArchive guarda las respuestas crudas del SII en la tabla raw_responses.
type RawResponseArchive struct {
	q Querier
}

// NewRawResponseArchive construye el archivo. Pasar pool (los intentos se registran fuera de tx).
func NewRawResponseArchive(q Querier) *RawResponseArchive {
	return &RawResponseArchive{q: q}
}

// Put guarda el cuerpo y devuelve la referencia "pg:<key>".
func (a *RawResponseArchive) Put(ctx context.Context, tenantID, key string, body []byte) (string, error) {
	_, err := a.q.Exec(ctx,
		`INSERT INTO raw_responses (key, tenant_id, body) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
		key, tenantID, body)
	if err != nil {
		return "", fmt.Errorf("insert raw response: %w", err)
	}
	return "pg:" + key, nil
}

// Get lee una respuesta archivada del tenant.
func (a *RawResponseArchive) Get(ctx context.Context, tenantID, key string) ([]byte, error) {
	var body []byte
	err := a.q.QueryRow(ctx, `SELECT body FROM raw_responses WHERE tenant_id = $1 AND key = $2`, tenantID, key).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: respuesta %s", domain.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get raw response: %w", err)
	}
	return body, nil
}
