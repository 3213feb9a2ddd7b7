package signer

import (
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/testutil"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

const dteSinFirma = `<DTE xmlns="http://www.sii.cl/SiiDte" version="1.0"><Documento ID="F7T33"><Encabezado><IdDoc><TipoDTE>33</TipoDTE><Folio>7</Folio></IdDoc></Encabezado><Detalle><NmbItem>Café &amp; té</NmbItem></Detalle></Documento></DTE>`

func canonical(t *testing.T, s string) []byte {
	t.Helper()
	out, err := sii.Canonicalize([]byte(s))
	require.NoError(t, err)
	return out
}

func certReason(t *testing.T, err error) string {
	t.Helper()
	var ce *domain.CertificateError
	require.True(t, errors.As(err, &ce), "se esperaba CertificateError, fue %v", err)
	assert.True(t, errors.Is(err, domain.ErrCertificateInvalid))
	return ce.Reason
}

func TestSign_FirmaYVerifica(t *testing.T) {
	cert, roots := testutil.ValidCertificate(t)
	svc := NewDigitalSignatureService(WithRoots(roots))

	env, err := svc.Sign(canonical(t, dteSinFirma), cert)
	require.NoError(t, err)
	assert.NotEmpty(t, env.DigestValue)
	assert.Len(t, env.CertificateChain, 2)
	assert.Contains(t, string(env.SignedXML), `<Reference URI="#F7T33">`)
	assert.Contains(t, string(env.SignatureXML), env.DigestValue)
	assert.True(t, strings.Index(string(env.SignedXML), "</Documento><Signature") > 0, "la firma va a continuación del Documento")

	require.NoError(t, svc.Verify(env.SignedXML))
}

func TestVerify_ContenidoAlterado(t *testing.T) {
	cert, roots := testutil.ValidCertificate(t)
	svc := NewDigitalSignatureService(WithRoots(roots))
	env, err := svc.Sign(canonical(t, dteSinFirma), cert)
	require.NoError(t, err)

	tampered := strings.Replace(string(env.SignedXML), "<Folio>7</Folio>", "<Folio>8</Folio>", 1)
	err = svc.Verify([]byte(tampered))
	assert.True(t, errors.Is(err, ErrSignatureInvalid))
}

func TestVerify_SinFirma(t *testing.T) {
	err := NewDigitalSignatureService().Verify([]byte(dteSinFirma))
	assert.True(t, errors.Is(err, ErrSignatureInvalid))
}

func TestSign_CertificadoVencido(t *testing.T) {
	now := time.Now()
	cert, roots := testutil.Certificate(t, now.AddDate(-2, 0, 0), now.AddDate(-1, 0, 0))
	_, err := NewDigitalSignatureService(WithRoots(roots)).Sign(canonical(t, dteSinFirma), cert)
	assert.Equal(t, domain.CertExpired, certReason(t, err))
}

func TestSign_CertificadoAunNoVigente(t *testing.T) {
	now := time.Now()
	cert, roots := testutil.Certificate(t, now.AddDate(0, 1, 0), now.AddDate(1, 0, 0))
	_, err := NewDigitalSignatureService(WithRoots(roots)).Sign(canonical(t, dteSinFirma), cert)
	assert.Equal(t, domain.CertNotYetValid, certReason(t, err))
}

func TestSign_CadenaNoConfiable(t *testing.T) {
	cert, _ := testutil.ValidCertificate(t)
	_, err := NewDigitalSignatureService(WithRoots(x509.NewCertPool())).Sign(canonical(t, dteSinFirma), cert)
	assert.Equal(t, domain.CertUntrusted, certReason(t, err))
}

func TestSign_LlaveNoCorresponde(t *testing.T) {
	cert, roots := testutil.ValidCertificate(t)
	cert.PrivateKey = testutil.Key(t, 2)
	_, err := NewDigitalSignatureService(WithRoots(roots)).Sign(canonical(t, dteSinFirma), cert)
	assert.Equal(t, domain.CertKeyMismatch, certReason(t, err))
}

func TestSign_SinCertificado(t *testing.T) {
	cert, _ := testutil.ValidCertificate(t)
	cert.Certificate = nil
	_, err := NewDigitalSignatureService().Sign(canonical(t, dteSinFirma), cert)
	assert.Equal(t, domain.CertMissing, certReason(t, err))
}

func TestSignSeed_Verifica(t *testing.T) {
	cert, roots := testutil.ValidCertificate(t)
	svc := NewDigitalSignatureService(WithRoots(roots))

	out, err := svc.SignSeed("000012345678", cert)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<Semilla>000012345678</Semilla>")
	assert.Contains(t, string(out), `<Reference URI="">`)
	require.NoError(t, svc.Verify(out))
}

func TestSignEnvelope_FirmaSetYConservaFirmaDelDTE(t *testing.T) {
	cert, roots := testutil.ValidCertificate(t)
	svc := NewDigitalSignatureService(WithRoots(roots))
	env, err := svc.Sign(canonical(t, dteSinFirma), cert)
	require.NoError(t, err)

	envio := `<EnvioDTE xmlns="http://www.sii.cl/SiiDte" version="1.0"><SetDTE ID="SetDoc"><Caratula version="1.0"><RutEmisor>76086428-5</RutEmisor></Caratula>` +
		string(env.SignedXML) + `</SetDTE></EnvioDTE>`
	out, err := svc.SignEnvelope([]byte(envio), cert)
	require.NoError(t, err)
	assert.Contains(t, string(out), `<Reference URI="#SetDoc">`)
	assert.Equal(t, 2, strings.Count(string(out), "<SignatureValue>"))
	require.NoError(t, svc.Verify(out))
}

func TestLoadFromPEM_ConCadena(t *testing.T) {
	cert, _ := testutil.ValidCertificate(t)
	data, err := EncodePEM(cert)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "firma.pem")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadFromPEM(path, "")
	require.NoError(t, err)
	require.NotNil(t, loaded.Leaf)
	assert.Len(t, loaded.Certificate, 2)
	assert.Equal(t, cert.Leaf.SerialNumber, loaded.Leaf.SerialNumber)
}

func TestLoadTrustRoots_RutaVacia(t *testing.T) {
	pool, err := LoadTrustRoots("")
	require.NoError(t, err)
	assert.Nil(t, pool)
}
