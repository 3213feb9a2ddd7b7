package signer

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/rs/zerolog"
)

// TenantCertificateProvider carga el certificado de firma del tenant en cada llamada.
// La contraseña se lee de la variable de entorno indicada en el perfil.
type TenantCertificateProvider struct {
	profiles repository.TenantProfileRepository
	getenv   func(string) string
	logger   zerolog.Logger
}

// NewTenantCertificateProvider crea el proveedor.
func NewTenantCertificateProvider(profiles repository.TenantProfileRepository, logger zerolog.Logger) *TenantCertificateProvider {
	return &TenantCertificateProvider{profiles: profiles, getenv: os.Getenv, logger: logger}
}

// Certificate implementa billing.CertificateProvider.
func (p *TenantCertificateProvider) Certificate(ctx context.Context, tenantID string) (tls.Certificate, error) {
	profile, err := p.profiles.Get(ctx, tenantID)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("perfil del tenant: %w", err)
	}
	if profile.CertPath == "" {
		return tls.Certificate{}, &domain.CertificateError{Reason: domain.CertMissing}
	}
	password := ""
	if profile.CertPasswordEnv != "" {
		password = p.getenv(profile.CertPasswordEnv)
	}

	var cert tls.Certificate
	switch strings.ToLower(filepath.Ext(profile.CertPath)) {
	case ".p12", ".pfx":
		cert, err = LoadFromP12(profile.CertPath, password)
	default:
		cert, err = LoadFromPEM(profile.CertPath, "")
	}
	if err != nil {
		return tls.Certificate{}, &domain.CertificateError{Reason: domain.CertMissing, Err: err}
	}
	if cert.Leaf != nil {
		p.logger.Debug().
			Str("tenant_id", tenantID).
			Str("subject", cert.Leaf.Subject.CommonName).
			Str("fingerprint", Fingerprint(cert.Leaf)).
			Time("not_after", cert.Leaf.NotAfter).
			Msg("certificado cargado")
	}
	return cert, nil
}

var _ billing.CertificateProvider = (*TenantCertificateProvider)(nil)
