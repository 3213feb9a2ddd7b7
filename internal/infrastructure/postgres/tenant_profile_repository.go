package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

var _ repository.TenantProfileRepository = (*TenantProfileRepo)(nil)

// TenantProfileRepo datos del emisor por tenant.
type TenantProfileRepo struct {
	q Querier
}

// NewTenantProfileRepository construye el adaptador. Pasar pool o tx (Querier).
func NewTenantProfileRepository(q Querier) *TenantProfileRepo {
	return &TenantProfileRepo{q: q}
}

// Get obtiene el perfil del tenant.
func (r *TenantProfileRepo) Get(ctx context.Context, tenantID string) (*entity.TenantProfile, error) {
	query := `
		SELECT tenant_id, rut, legal_name, activity, activity_code, address, comuna, city,
		       resolution_number, resolution_date, sender_rut, cert_path, cert_password_env, created_at, updated_at
		FROM tenant_profiles WHERE tenant_id = $1`
	var p entity.TenantProfile
	err := r.q.QueryRow(ctx, query, tenantID).Scan(
		&p.TenantID, &p.RUT, &p.LegalName, &p.Activity, &p.ActivityCode, &p.Address, &p.Comuna, &p.City,
		&p.ResolutionNumber, &p.ResolutionDate, &p.SenderRUT, &p.CertPath, &p.CertPasswordEnv, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: perfil del tenant %s", domain.ErrNotFound, tenantID)
		}
		return nil, fmt.Errorf("get tenant profile: %w", err)
	}
	return &p, nil
}

// Upsert crea o reemplaza el perfil.
func (r *TenantProfileRepo) Upsert(ctx context.Context, p *entity.TenantProfile) error {
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	query := `
		INSERT INTO tenant_profiles (tenant_id, rut, legal_name, activity, activity_code, address, comuna, city,
		                             resolution_number, resolution_date, sender_rut, cert_path, cert_password_env, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (tenant_id) DO UPDATE
		SET rut               = EXCLUDED.rut,
		    legal_name        = EXCLUDED.legal_name,
		    activity          = EXCLUDED.activity,
		    activity_code     = EXCLUDED.activity_code,
		    address           = EXCLUDED.address,
		    comuna            = EXCLUDED.comuna,
		    city              = EXCLUDED.city,
		    resolution_number = EXCLUDED.resolution_number,
		    resolution_date   = EXCLUDED.resolution_date,
		    sender_rut        = EXCLUDED.sender_rut,
		    cert_path         = EXCLUDED.cert_path,
		    cert_password_env = EXCLUDED.cert_password_env,
		    updated_at        = EXCLUDED.updated_at`
	_, err := r.q.Exec(ctx, query,
		p.TenantID, p.RUT, p.LegalName, p.Activity, p.ActivityCode, p.Address, p.Comuna, p.City,
		p.ResolutionNumber, p.ResolutionDate, p.SenderRUT, p.CertPath, p.CertPasswordEnv, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert tenant profile: %w", err)
	}
	return nil
}
