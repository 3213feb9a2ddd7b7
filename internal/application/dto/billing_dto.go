package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

// VoidDocumentRequest body para POST /api/documents/:id/void.
type VoidDocumentRequest struct {
	Reason string `json:"reason"`
}

// DocumentLineResponse línea de detalle en la respuesta.
type DocumentLineResponse struct {
	LineNo      int             `json:"line_no"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Exempt      bool            `json:"exempt"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// DocumentReferenceResponse referencia a otro documento.
type DocumentReferenceResponse struct {
	DocumentType int    `json:"document_type"`
	Folio        string `json:"folio"`
	Date         string `json:"date,omitempty"`
	Code         int    `json:"code,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// DocumentResponse DTE para GET /api/documents/:id.
type DocumentResponse struct {
	ID              string                      `json:"id"`
	DocumentType    int                         `json:"document_type"`
	ExternalRef     string                      `json:"external_ref,omitempty"`
	Folio           int64                       `json:"folio,omitempty"`
	IssueDate       string                      `json:"issue_date"`
	Currency        string                      `json:"currency"`
	ReceiverRUT     string                      `json:"receiver_rut"`
	ReceiverName    string                      `json:"receiver_name,omitempty"`
	NetAmount       decimal.Decimal             `json:"net_amount"`
	ExemptAmount    decimal.Decimal             `json:"exempt_amount"`
	TaxRate         decimal.Decimal             `json:"tax_rate"`
	TaxAmount       decimal.Decimal             `json:"tax_amount"`
	TotalAmount     decimal.Decimal             `json:"total_amount"`
	Status          string                      `json:"status"`
	TrackID         string                      `json:"track_id,omitempty"`
	RejectionReason string                      `json:"rejection_reason,omitempty"`
	LastError       string                      `json:"last_error,omitempty"`
	VoidReason      string                      `json:"void_reason,omitempty"`
	Lines           []DocumentLineResponse      `json:"lines,omitempty"`
	References      []DocumentReferenceResponse `json:"references,omitempty"`
	CreatedAt       time.Time                   `json:"created_at"`
	UpdatedAt       time.Time                   `json:"updated_at"`
}

// DocumentStatusResponse estado actual del documento.
type DocumentStatusResponse struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	TrackID         string `json:"track_id,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	LastError       string `json:"last_error,omitempty"`
}

// AttemptResponse entrada del log de envíos.
type AttemptResponse struct {
	Kind           string    `json:"kind"`
	AttemptNo      int       `json:"attempt_no"`
	AttemptedAt    time.Time `json:"attempted_at"`
	DurationMS     int64     `json:"duration_ms"`
	Outcome        string    `json:"outcome"`
	HTTPStatus     int       `json:"http_status,omitempty"`
	AuthorityCode  string    `json:"authority_code,omitempty"`
	TrackID        string    `json:"track_id,omitempty"`
	RawResponseRef string    `json:"raw_response_ref,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// ValidationErrorResponse 422 con todas las violaciones del registro.
type ValidationErrorResponse struct {
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	Violations []domain.Violation `json:"violations"`
}

// DocumentErrorResponse error de un paso posterior al borrador: el documento ya existe en su último estado.
type DocumentErrorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Document *DocumentResponse `json:"document,omitempty"`
}

// NewDocumentResponse arma la respuesta desde la entidad.
func NewDocumentResponse(d *entity.TaxDocument) *DocumentResponse {
	out := &DocumentResponse{
		ID:              d.ID,
		DocumentType:    int(d.Type),
		ExternalRef:     d.ExternalRef,
		Folio:           d.Folio,
		IssueDate:       d.IssueDate.Format("2006-01-02"),
		Currency:        d.Currency,
		ReceiverRUT:     d.Receiver.RUT,
		ReceiverName:    d.Receiver.Name,
		NetAmount:       d.NetAmount,
		ExemptAmount:    d.ExemptAmount,
		TaxRate:         d.TaxRate,
		TaxAmount:       d.TaxAmount,
		TotalAmount:     d.TotalAmount,
		Status:          string(d.Status),
		TrackID:         d.TrackID,
		RejectionReason: d.RejectionReason,
		LastError:       d.LastError,
		VoidReason:      d.VoidReason,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
	for _, l := range d.Lines {
		out.Lines = append(out.Lines, DocumentLineResponse{
			LineNo: l.LineNo, Description: l.Description, Quantity: l.Quantity,
			UnitPrice: l.UnitPrice, Exempt: l.Exempt, LineTotal: l.LineTotal,
		})
	}
	for _, r := range d.References {
		ref := DocumentReferenceResponse{DocumentType: r.DocumentType, Folio: r.Folio, Code: r.Code, Reason: r.Reason}
		if !r.Date.IsZero() {
			ref.Date = r.Date.Format("2006-01-02")
		}
		out.References = append(out.References, ref)
	}
	return out
}

// NewAttemptResponses convierte el log de intentos.
func NewAttemptResponses(list []*entity.TransmissionAttempt) []AttemptResponse {
	out := make([]AttemptResponse, 0, len(list))
	for _, a := range list {
		out = append(out, AttemptResponse{
			Kind:           string(a.Kind),
			AttemptNo:      a.AttemptNo,
			AttemptedAt:    a.AttemptedAt,
			DurationMS:     a.Duration.Milliseconds(),
			Outcome:        string(a.Outcome),
			HTTPStatus:     a.HTTPStatus,
			AuthorityCode:  a.AuthorityCode,
			TrackID:        a.TrackID,
			RawResponseRef: a.RawResponseRef,
			Error:          a.Error,
		})
	}
	return out
}
