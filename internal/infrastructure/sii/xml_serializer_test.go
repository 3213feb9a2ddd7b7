package sii

import (
	"errors"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

func TestSerialize_MismosBytes(t *testing.T) {
	doc, profile := stamped(t, invoiceRecord())
	s := NewXMLSerializer()

	a, err := s.Serialize(doc, profile)
	require.NoError(t, err)
	b, err := s.Serialize(doc, profile)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.False(t, strings.HasPrefix(string(a), "<?xml"))
}

func TestSerialize_Estructura(t *testing.T) {
	doc, profile := stamped(t, invoiceRecord())
	out, err := NewXMLSerializer().Serialize(doc, profile)
	require.NoError(t, err)

	tree := etree.NewDocument()
	require.NoError(t, tree.ReadFromBytes(out))
	root := tree.Root()
	assert.Equal(t, "DTE", root.Tag)
	assert.Equal(t, sii.NamespaceDTE, root.SelectAttrValue("xmlns", ""))
	assert.Equal(t, "F1T33", root.FindElement("Documento").SelectAttrValue("ID", ""))

	text := func(path string) string { return root.FindElement(path).Text() }
	assert.Equal(t, "2026-03-10", text("Documento/Encabezado/IdDoc/FchEmis"))
	assert.Equal(t, "77777777-7", text("Documento/Encabezado/Receptor/RUTRecep"))
	assert.Equal(t, "1250", text("Documento/Encabezado/Totales/MntNeto"))
	assert.Equal(t, "19", text("Documento/Encabezado/Totales/TasaIVA"))
	assert.Equal(t, "237", text("Documento/Encabezado/Totales/IVA"))
	assert.Equal(t, "1487", text("Documento/Encabezado/Totales/MntTotal"))
	assert.Nil(t, root.FindElement("Documento/Encabezado/Totales/MntExe"))

	lines := root.FindElements("Documento/Detalle")
	require.Len(t, lines, 2)
	assert.Equal(t, "2.5", lines[1].FindElement("QtyItem").Text())
	assert.Equal(t, "99.9", lines[1].FindElement("PrcItem").Text())
	assert.Equal(t, "250", lines[1].FindElement("MontoItem").Text())

	assert.NotNil(t, root.FindElement("Documento/TED/DD/CAF"))
	assert.Equal(t, "2026-03-10T15:04:05", text("Documento/TmstFirma"))
}

func TestSerialize_BoletaIncluyeIndServicio(t *testing.T) {
	rec := billing.SourceRecord{
		DocumentType: 39,
		ExternalRef:  "B-1",
		IssueDate:    stampAt,
		Lines:        []billing.SourceLine{{Description: "Café", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(1000)}},
	}
	doc, profile := stamped(t, rec)
	out, err := NewXMLSerializer().Serialize(doc, profile)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<IndServicio>3</IndServicio>")
	assert.Contains(t, string(out), "<RUTRecep>66666666-6</RUTRecep>")
	assert.Contains(t, string(out), "<MntNeto>840</MntNeto>")
	assert.Contains(t, string(out), "<MntTotal>1000</MntTotal>")
}

func TestSerialize_SinTimbre(t *testing.T) {
	doc, profile := stamped(t, invoiceRecord())
	doc.Stamp = nil
	_, err := NewXMLSerializer().Serialize(doc, profile)
	assert.True(t, errors.Is(err, domain.ErrSchemaViolation))
}

func TestValidateSchema_Violaciones(t *testing.T) {
	doc, profile := stamped(t, invoiceRecord())
	valid, err := NewXMLSerializer().Serialize(doc, profile)
	require.NoError(t, err)
	require.NoError(t, ValidateSchema(valid))

	cases := []struct {
		name string
		from string
		to   string
		path string
	}{
		{"RUT con DV incorrecto", "<RUTRecep>77777777-7</RUTRecep>", "<RUTRecep>77777777-8</RUTRecep>", "DTE/Documento/Encabezado/Receptor/RUTRecep"},
		{"receptor sin RUT", "<RUTRecep>77777777-7</RUTRecep>", "", "DTE/Documento/Encabezado/Receptor/RUTRecep"},
		{"monto no entero", "<MntTotal>1487</MntTotal>", "<MntTotal>14.87</MntTotal>", "DTE/Documento/Encabezado/Totales/MntTotal"},
		{"fecha inválida", "<FchEmis>2026-03-10</FchEmis>", "<FchEmis>10-03-2026</FchEmis>", "DTE/Documento/Encabezado/IdDoc/FchEmis"},
		{"elemento desconocido", "</Documento>", "<Extra>1</Extra></Documento>", "DTE/Documento/Extra"},
		{"orden alterado", "<TmstFirma>", "<Extra>1</Extra><TmstFirma>", "DTE/Documento/TmstFirma"},
		{"razón social demasiado larga", "<RznSoc>Empresa de Prueba SpA</RznSoc>", "<RznSoc>" + strings.Repeat("x", 101) + "</RznSoc>", "DTE/Documento/Encabezado/Emisor/RznSoc"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			broken := strings.Replace(string(valid), tc.from, tc.to, 1)
			require.NotEqual(t, string(valid), broken)
			err := ValidateSchema([]byte(broken))
			var sv *domain.SchemaViolationError
			require.True(t, errors.As(err, &sv), "se esperaba SchemaViolationError, fue %v", err)
			assert.Equal(t, tc.path, sv.Path)
		})
	}
}
