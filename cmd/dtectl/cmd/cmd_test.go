package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-sii/internal/testutil"
)

const dteCanonico = `<DTE version="1.0"><Documento ID="F7T33"><Encabezado><IdDoc><TipoDTE>33</TipoDTE><Folio>7</Folio></IdDoc></Encabezado></Documento></DTE>`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func signedFile(t *testing.T) string {
	t.Helper()
	cert, _ := testutil.ValidCertificate(t)
	env, err := signer.NewDigitalSignatureService().Sign([]byte(dteCanonico), cert)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "dte.xml")
	require.NoError(t, os.WriteFile(path, env.SignedXML, 0o600))
	return path
}

func TestVerify_FirmaValida(t *testing.T) {
	out, err := run(t, "verify", signedFile(t))
	require.NoError(t, err)
	assert.Contains(t, out, "firmas válidas")
}

func TestVerify_ContenidoAlterado(t *testing.T) {
	path := signedFile(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	altered := strings.Replace(string(data), "<Folio>7</Folio>", "<Folio>8</Folio>", 1)
	require.NoError(t, os.WriteFile(path, []byte(altered), 0o600))

	_, err = run(t, "verify", path)
	assert.Error(t, err)
}

func TestDocStatus_SinTenant(t *testing.T) {
	t.Setenv("DTE_TENANT", "")
	tenantID = ""
	_, err := run(t, "doc", "status", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--tenant")
}

func TestCheckedRUT(t *testing.T) {
	rut, err := checkedRUT("76.086.428-5")
	require.NoError(t, err)
	assert.Equal(t, "76086428-5", rut)

	_, err = checkedRUT("76086428-4")
	assert.Error(t, err, "dígito verificador incorrecto")
}
