package entity

import (
	"fmt"

	"github.com/jhoicas/dte-sii/pkg/sii"
)

// DocumentType es el tipo de DTE (código TipoDTE del SII). Conjunto cerrado: ver AllDocumentTypes.
type DocumentType int

const (
	DocTypeInvoice       DocumentType = sii.TipoFacturaElectronica
	DocTypeExemptInvoice DocumentType = sii.TipoFacturaExentaElectronica
	DocTypeReceipt       DocumentType = sii.TipoBoletaElectronica
	DocTypeExemptReceipt DocumentType = sii.TipoBoletaExentaElectronica
	DocTypeDebitNote     DocumentType = sii.TipoNotaDebitoElectronica
	DocTypeCreditNote    DocumentType = sii.TipoNotaCreditoElectronica
)

// DocumentKind agrupa los tipos según su naturaleza tributaria.
type DocumentKind string

const (
	KindInvoice    DocumentKind = "invoice"
	KindReceipt    DocumentKind = "receipt"
	KindDebitNote  DocumentKind = "debit_note"
	KindCreditNote DocumentKind = "credit_note"
)

// DocumentBehavior describe las reglas de negocio de cada tipo de DTE.
type DocumentBehavior struct {
	Kind              DocumentKind
	Name              string
	AllowsTaxedLines  bool // admite líneas afectas a IVA
	PricesIncludeTax  bool // precios unitarios incluyen IVA (boletas)
	RequiresReference bool // exige Referencia a un documento previo
	CAFExpires        bool // el CAF vence 6 meses después de autorizado
}

// AllDocumentTypes lista los tipos soportados.
func AllDocumentTypes() []DocumentType {
	return []DocumentType{
		DocTypeInvoice, DocTypeExemptInvoice,
		DocTypeReceipt, DocTypeExemptReceipt,
		DocTypeDebitNote, DocTypeCreditNote,
	}
}

// Behavior devuelve la tabla de comportamiento del tipo. ok=false si el tipo no es soportado.
func (t DocumentType) Behavior() (DocumentBehavior, bool) {
	switch t {
	case DocTypeInvoice:
		return DocumentBehavior{Kind: KindInvoice, Name: "Factura Electrónica", AllowsTaxedLines: true, CAFExpires: true}, true
	case DocTypeExemptInvoice:
		return DocumentBehavior{Kind: KindInvoice, Name: "Factura No Afecta o Exenta Electrónica", CAFExpires: true}, true
	case DocTypeReceipt:
		return DocumentBehavior{Kind: KindReceipt, Name: "Boleta Electrónica", AllowsTaxedLines: true, PricesIncludeTax: true}, true
	case DocTypeExemptReceipt:
		return DocumentBehavior{Kind: KindReceipt, Name: "Boleta Exenta Electrónica"}, true
	case DocTypeDebitNote:
		return DocumentBehavior{Kind: KindDebitNote, Name: "Nota de Débito Electrónica", AllowsTaxedLines: true, RequiresReference: true, CAFExpires: true}, true
	case DocTypeCreditNote:
		return DocumentBehavior{Kind: KindCreditNote, Name: "Nota de Crédito Electrónica", AllowsTaxedLines: true, RequiresReference: true, CAFExpires: true}, true
	}
	return DocumentBehavior{}, false
}

// Valid indica si el tipo pertenece al conjunto soportado.
func (t DocumentType) Valid() bool {
	_, ok := t.Behavior()
	return ok
}

func (t DocumentType) String() string {
	return fmt.Sprintf("%d", int(t))
}

// ParseDocumentType convierte un código TipoDTE en DocumentType.
func ParseDocumentType(code int) (DocumentType, error) {
	t := DocumentType(code)
	if !t.Valid() {
		return 0, fmt.Errorf("tipo de DTE no soportado: %d", code)
	}
	return t, nil
}
