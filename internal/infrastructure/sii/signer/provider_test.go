package signer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/testutil"
)

type profilesStub map[string]*entity.TenantProfile

func (p profilesStub) Get(_ context.Context, tenantID string) (*entity.TenantProfile, error) {
	if prof, ok := p[tenantID]; ok {
		return prof, nil
	}
	return nil, domain.ErrNotFound
}

func (p profilesStub) Upsert(_ context.Context, prof *entity.TenantProfile) error {
	p[prof.TenantID] = prof
	return nil
}

func TestTenantCertificateProvider_CargaPEM(t *testing.T) {
	cert, _ := testutil.ValidCertificate(t)
	data, err := EncodePEM(cert)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "t1.pem")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	p := NewTenantCertificateProvider(profilesStub{"t1": {TenantID: "t1", CertPath: path}}, zerolog.Nop())
	got, err := p.Certificate(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, cert.Certificate[0], got.Certificate[0])
}

func TestTenantCertificateProvider_SinCertificado(t *testing.T) {
	p := NewTenantCertificateProvider(profilesStub{"t1": {TenantID: "t1"}}, zerolog.Nop())
	_, err := p.Certificate(context.Background(), "t1")
	var ce *domain.CertificateError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.CertMissing, ce.Reason)
}

func TestTenantCertificateProvider_PasswordDesdeEntorno(t *testing.T) {
	p := NewTenantCertificateProvider(profilesStub{"t1": {TenantID: "t1", CertPath: "/no/existe.p12", CertPasswordEnv: "T1_CERT_PASS"}}, zerolog.Nop())
	var asked string
	p.getenv = func(k string) string { asked = k; return "secreto" }
	_, err := p.Certificate(context.Background(), "t1")
	assert.Error(t, err)
	assert.Equal(t, "T1_CERT_PASS", asked)
}
