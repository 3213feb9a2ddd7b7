package entity

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// DocumentStatus ciclo de vida del DTE.
type DocumentStatus string

const (
	StatusDraft         DocumentStatus = "draft"
	StatusFolioAssigned DocumentStatus = "folio_assigned"
	StatusSigned        DocumentStatus = "signed"
	StatusSubmitted     DocumentStatus = "submitted"
	StatusAccepted      DocumentStatus = "accepted"
	StatusRejected      DocumentStatus = "rejected"
	StatusVoided        DocumentStatus = "voided"
)

// IsTerminal indica que el documento ya no cambia de estado.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusAccepted || s == StatusRejected || s == StatusVoided
}

var transitions = map[DocumentStatus][]DocumentStatus{
	StatusDraft:         {StatusFolioAssigned},
	StatusFolioAssigned: {StatusSigned, StatusVoided},
	StatusSigned:        {StatusSubmitted, StatusVoided},
	StatusSubmitted:     {StatusAccepted, StatusRejected},
}

// CanTransition indica si from → to es un paso válido de la máquina de estados.
func CanTransition(from, to DocumentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Counterparty receptor del documento.
type Counterparty struct {
	RUT      string
	Name     string
	Activity string // giro
	Address  string
	Comuna   string
}

// LineItem línea de detalle; pertenece a un único TaxDocument.
type LineItem struct {
	LineNo      int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Exempt      bool
	LineTotal   decimal.Decimal // Quantity × UnitPrice, sin redondear
}

// DocumentReference referencia a otro documento (obligatoria en notas de crédito/débito).
type DocumentReference struct {
	LineNo       int
	DocumentType int
	Folio        string
	Date         time.Time
	Code         int // CodRef: 1 anula, 2 corrige texto, 3 corrige montos
	Reason       string
}

// Stamp timbre electrónico (TED) calculado con la llave del CAF.
type Stamp struct {
	TEDXML    string
	StampedAt time.Time
}

// TaxDocument documento tributario electrónico de un tenant.
type TaxDocument struct {
	ID              string
	TenantID        string
	Type            DocumentType
	ExternalRef     string // referencia del sistema que origina el documento (idempotencia)
	Folio           int64  // 0 mientras no se asigne
	FolioRangeID    string
	IssueDate       time.Time
	Currency        string
	Receiver        Counterparty
	Lines           []LineItem
	References      []DocumentReference
	NetAmount       decimal.Decimal // neto afecto
	ExemptAmount    decimal.Decimal
	TaxRate         decimal.Decimal // porcentaje (19)
	TaxAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
	Status          DocumentStatus
	TrackID         string
	RejectionReason string
	LastError       string
	VoidReason      string
	Stamp           *Stamp
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasFolio indica que el documento ya tiene número comprometido.
func (d *TaxDocument) HasFolio() bool {
	return d.Folio > 0
}

// ElementID identificador del nodo Documento (referenciado por la firma).
func (d *TaxDocument) ElementID() string {
	return "F" + strconv.FormatInt(d.Folio, 10) + "T" + strconv.Itoa(int(d.Type))
}
