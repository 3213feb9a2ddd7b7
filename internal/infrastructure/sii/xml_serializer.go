// Construcción del XML del DTE (DTE/Documento) con etree y C14N.

package sii

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
)

// IndServicio para boletas: ventas y servicios.
const indServicioBoleta = "3"

// Largos que el SII trunca en lugar de rechazar.
const (
	maxGiroEmisLen  = 80
	maxGiroRecepLen = 40
)

// XMLSerializer produce el XML canónico del DTE y lo valida contra el schema antes de devolverlo.
type XMLSerializer struct{}

// NewXMLSerializer crea el serializador.
func NewXMLSerializer() *XMLSerializer {
	return &XMLSerializer{}
}

// Serialize construye el árbol en orden fijo, lo canonicaliza y valida el resultado.
// El mismo documento produce siempre los mismos bytes.
func (s *XMLSerializer) Serialize(doc *entity.TaxDocument, issuer *entity.TenantProfile) ([]byte, error) {
	if !doc.HasFolio() {
		return nil, &domain.SchemaViolationError{Path: "DTE/Documento/Encabezado/IdDoc/Folio", Message: "documento sin folio"}
	}
	if doc.Stamp == nil || doc.Stamp.TEDXML == "" {
		return nil, &domain.SchemaViolationError{Path: "DTE/Documento/TED", Message: "documento sin timbre"}
	}
	if issuer == nil {
		return nil, errors.New("sii: perfil del emisor requerido")
	}
	tree, err := buildTree(doc, issuer)
	if err != nil {
		return nil, err
	}
	raw, err := tree.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("sii: serializar DTE: %w", err)
	}
	canonical, err := sii.Canonicalize(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateSchema(canonical); err != nil {
		return nil, err
	}
	return canonical, nil
}

func buildTree(doc *entity.TaxDocument, issuer *entity.TenantProfile) (*etree.Document, error) {
	behavior, ok := doc.Type.Behavior()
	if !ok {
		return nil, &domain.SchemaViolationError{Path: "DTE/Documento/Encabezado/IdDoc/TipoDTE", Message: "tipo de DTE no soportado"}
	}
	rutEmisor, err := sii.NormalizeRUT(issuer.RUT)
	if err != nil {
		return nil, &domain.SchemaViolationError{Path: "DTE/Documento/Encabezado/Emisor/RUTEmisor", Message: err.Error()}
	}
	places := billing.CurrencyPlaces(doc.Currency)

	out := etree.NewDocument()
	out.WriteSettings.CanonicalText = true
	out.WriteSettings.CanonicalAttrVal = true
	dte := out.CreateElement("DTE")
	dte.CreateAttr("xmlns", sii.NamespaceDTE)
	dte.CreateAttr("version", sii.DTEVersion)
	documento := dte.CreateElement("Documento")
	documento.CreateAttr("ID", doc.ElementID())

	// ── Encabezado ──
	enc := documento.CreateElement("Encabezado")
	idDoc := enc.CreateElement("IdDoc")
	idDoc.CreateElement("TipoDTE").SetText(strconv.Itoa(int(doc.Type)))
	idDoc.CreateElement("Folio").SetText(strconv.FormatInt(doc.Folio, 10))
	idDoc.CreateElement("FchEmis").SetText(doc.IssueDate.Format(sii.DateLayout))
	if behavior.Kind == entity.KindReceipt {
		idDoc.CreateElement("IndServicio").SetText(indServicioBoleta)
	}

	emisor := enc.CreateElement("Emisor")
	emisor.CreateElement("RUTEmisor").SetText(rutEmisor)
	emisor.CreateElement("RznSoc").SetText(issuer.LegalName)
	emisor.CreateElement("GiroEmis").SetText(truncate(issuer.Activity, maxGiroEmisLen))
	if issuer.ActivityCode > 0 {
		emisor.CreateElement("Acteco").SetText(strconv.Itoa(issuer.ActivityCode))
	}
	optional(emisor, "DirOrigen", issuer.Address)
	optional(emisor, "CmnaOrigen", issuer.Comuna)
	optional(emisor, "CiudadOrigen", issuer.City)

	receptor := enc.CreateElement("Receptor")
	receptor.CreateElement("RUTRecep").SetText(doc.Receiver.RUT)
	optional(receptor, "RznSocRecep", doc.Receiver.Name)
	optional(receptor, "GiroRecep", truncate(doc.Receiver.Activity, maxGiroRecepLen))
	optional(receptor, "DirRecep", doc.Receiver.Address)
	optional(receptor, "CmnaRecep", doc.Receiver.Comuna)

	totales := enc.CreateElement("Totales")
	if behavior.AllowsTaxedLines {
		totales.CreateElement("MntNeto").SetText(amount(doc.NetAmount, places))
	}
	if doc.ExemptAmount.IsPositive() || !behavior.AllowsTaxedLines {
		totales.CreateElement("MntExe").SetText(amount(doc.ExemptAmount, places))
	}
	if behavior.AllowsTaxedLines {
		totales.CreateElement("TasaIVA").SetText(doc.TaxRate.String())
		totales.CreateElement("IVA").SetText(amount(doc.TaxAmount, places))
	}
	totales.CreateElement("MntTotal").SetText(amount(doc.TotalAmount, places))

	// ── Detalle ──
	for _, l := range doc.Lines {
		det := documento.CreateElement("Detalle")
		det.CreateElement("NroLinDet").SetText(strconv.Itoa(l.LineNo))
		if l.Exempt {
			det.CreateElement("IndExe").SetText("1")
		}
		det.CreateElement("NmbItem").SetText(l.Description)
		det.CreateElement("QtyItem").SetText(l.Quantity.Round(6).String())
		det.CreateElement("PrcItem").SetText(l.UnitPrice.Round(6).String())
		det.CreateElement("MontoItem").SetText(amount(l.LineTotal, places))
	}

	// ── Referencias ──
	for _, r := range doc.References {
		ref := documento.CreateElement("Referencia")
		ref.CreateElement("NroLinRef").SetText(strconv.Itoa(r.LineNo))
		ref.CreateElement("TpoDocRef").SetText(strconv.Itoa(r.DocumentType))
		ref.CreateElement("FolioRef").SetText(r.Folio)
		ref.CreateElement("FchRef").SetText(r.Date.Format(sii.DateLayout))
		if r.Code > 0 {
			ref.CreateElement("CodRef").SetText(strconv.Itoa(r.Code))
		}
		optional(ref, "RazonRef", r.Reason)
	}

	// ── TED ──
	ted := etree.NewDocument()
	if err := ted.ReadFromString(doc.Stamp.TEDXML); err != nil {
		return nil, fmt.Errorf("sii: parsear TED: %w", err)
	}
	if ted.Root() == nil {
		return nil, &domain.SchemaViolationError{Path: "DTE/Documento/TED", Message: "timbre vacío"}
	}
	documento.AddChild(ted.Root().Copy())
	documento.CreateElement("TmstFirma").SetText(doc.Stamp.StampedAt.Format(sii.TimestampLayout))
	return out, nil
}

func optional(parent *etree.Element, tag, value string) {
	if value != "" {
		parent.CreateElement(tag).SetText(value)
	}
}

func amount(d decimal.Decimal, places int32) string {
	return d.Round(places).StringFixed(places)
}

var _ billing.Serializer = (*XMLSerializer)(nil)
