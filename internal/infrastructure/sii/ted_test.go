package sii

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStamp_FirmaVerificable(t *testing.T) {
	doc, _ := stamped(t, invoiceRecord())

	require.NoError(t, VerifyStamp(doc.Stamp.TEDXML))
	assert.Contains(t, doc.Stamp.TEDXML, `<TED version="1.0"><DD><RE>76086428-5</RE><TD>33</TD><F>1</F>`)
	assert.Contains(t, doc.Stamp.TEDXML, "<MNT>1487</MNT>")
	assert.Contains(t, doc.Stamp.TEDXML, "<IT1>Servicio de consultoría</IT1>")
	assert.Contains(t, doc.Stamp.TEDXML, `<FRMT algoritmo="SHA1withRSA">`)
	assert.Equal(t, stampAt, doc.Stamp.StampedAt)
}

func TestStamp_Determinista(t *testing.T) {
	a, _ := stamped(t, invoiceRecord())
	b, _ := stamped(t, invoiceRecord())
	assert.Equal(t, a.Stamp.TEDXML, b.Stamp.TEDXML)
}

func TestStamp_DDAlteradoNoVerifica(t *testing.T) {
	doc, _ := stamped(t, invoiceRecord())
	tampered := strings.Replace(doc.Stamp.TEDXML, "<MNT>1487</MNT>", "<MNT>1</MNT>", 1)
	assert.Error(t, VerifyStamp(tampered))
}

func TestStamp_FolioFueraDelCAF(t *testing.T) {
	doc, profile := stamped(t, invoiceRecord())
	doc.Folio = 500
	_, err := NewTEDStamper().Stamp(doc, profile, testRange(t, doc.Type), stampAt)
	assert.Error(t, err)
}

func TestStamp_NormalizaRUTEmisor(t *testing.T) {
	doc, profile := stamped(t, invoiceRecord())
	profile.RUT = "76.086.428-5"
	stamp, err := NewTEDStamper().Stamp(doc, profile, testRange(t, doc.Type), stampAt)
	require.NoError(t, err)
	assert.Contains(t, stamp.TEDXML, "<RE>76086428-5</RE>")
}

func TestStamp_TruncaRazonSocial(t *testing.T) {
	rec := invoiceRecord()
	rec.Counterparty.Name = strings.Repeat("Á", 60)
	doc, _ := stamped(t, rec)
	assert.Contains(t, doc.Stamp.TEDXML, "<RSR>"+strings.Repeat("Á", 40)+"</RSR>")
	require.NoError(t, VerifyStamp(doc.Stamp.TEDXML))
}
