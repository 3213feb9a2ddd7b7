package sii

import (
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-sii/internal/testutil"
)

func TestPackage_EnvioFirmadoVerificable(t *testing.T) {
	doc, profile := stamped(t, invoiceRecord())
	canonical, err := NewXMLSerializer().Serialize(doc, profile)
	require.NoError(t, err)

	cert, roots := testutil.ValidCertificate(t)
	svc := signer.NewDigitalSignatureService(signer.WithRoots(roots))
	env, err := svc.Sign(canonical, cert)
	require.NoError(t, err)
	env.DocumentID = doc.ID

	out, err := NewEnvioPackager(svc).Package(profile, []*entity.SignedEnvelope{env}, cert, stampAt)
	require.NoError(t, err)
	require.NoError(t, svc.Verify(out))

	tree := etree.NewDocument()
	require.NoError(t, tree.ReadFromBytes(out))
	car := tree.FindElement("/EnvioDTE/SetDTE/Caratula")
	require.NotNil(t, car)
	assert.Equal(t, "76086428-5", car.FindElement("RutEmisor").Text())
	assert.Equal(t, "11111111-1", car.FindElement("RutEnvia").Text())
	assert.Equal(t, "60803000-K", car.FindElement("RutReceptor").Text())
	assert.Equal(t, "33", car.FindElement("SubTotDTE/TpoDTE").Text())
	assert.Equal(t, "1", car.FindElement("SubTotDTE/NroDTE").Text())
	assert.Len(t, tree.FindElements("/EnvioDTE/SetDTE/DTE"), 1)
	assert.NotNil(t, tree.FindElement("/EnvioDTE/Signature"))
	assert.NoError(t, VerifyStamp(doc.Stamp.TEDXML))
}

func TestPackage_SinRUTDeEnvio(t *testing.T) {
	profile := testProfile()
	profile.SenderRUT = ""
	cert, _ := testutil.ValidCertificate(t)
	_, err := NewEnvioPackager(signer.NewDigitalSignatureService()).Package(profile, []*entity.SignedEnvelope{{SignedXML: []byte("<DTE/>")}}, cert, stampAt)
	assert.Error(t, err)
}

func TestPackage_NormalizaRUTDelPerfil(t *testing.T) {
	doc, profile := stamped(t, invoiceRecord())
	// perfil cargado con puntos
	profile.RUT = "76.086.428-5"
	profile.SenderRUT = "11.111.111-1"
	canonical, err := NewXMLSerializer().Serialize(doc, profile)
	require.NoError(t, err)

	cert, roots := testutil.ValidCertificate(t)
	svc := signer.NewDigitalSignatureService(signer.WithRoots(roots))
	env, err := svc.Sign(canonical, cert)
	require.NoError(t, err)
	env.DocumentID = doc.ID

	out, err := NewEnvioPackager(svc).Package(profile, []*entity.SignedEnvelope{env}, cert, stampAt)
	require.NoError(t, err)

	tree := etree.NewDocument()
	require.NoError(t, tree.ReadFromBytes(out))
	assert.Equal(t, "76086428-5", tree.FindElement("/EnvioDTE/SetDTE/Caratula/RutEmisor").Text())
	assert.Equal(t, "11111111-1", tree.FindElement("/EnvioDTE/SetDTE/Caratula/RutEnvia").Text())
	assert.Equal(t, "76086428-5", tree.FindElement("/EnvioDTE/SetDTE/DTE/Documento/Encabezado/Emisor/RUTEmisor").Text())
}

func TestPackage_RUTEmisorInvalido(t *testing.T) {
	profile := testProfile()
	profile.RUT = "K"
	cert, _ := testutil.ValidCertificate(t)
	_, err := NewEnvioPackager(signer.NewDigitalSignatureService()).Package(profile, []*entity.SignedEnvelope{{SignedXML: []byte("<DTE/>")}}, cert, stampAt)
	assert.ErrorContains(t, err, "RUT emisor")
}
