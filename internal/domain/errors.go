package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("recurso duplicado")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrConflict          = errors.New("conflicto con el estado actual")
	ErrInvalidTransition = errors.New("transición de estado no permitida")

	// Taxonomía del pipeline DTE.
	ErrInvalidDocument     = errors.New("documento inválido")
	ErrFolioRangeExhausted = errors.New("rango de folios agotado")
	ErrCertificateInvalid  = errors.New("certificado inválido")
	ErrSchemaViolation     = errors.New("XML no cumple el schema")
	ErrTransmissionFailed  = errors.New("envío al SII fallido")
)

// Violation es una restricción incumplida por el registro de origen.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// InvalidDocumentError lista todas las violaciones encontradas en una sola pasada.
type InvalidDocumentError struct {
	Violations []Violation
}

func (e *InvalidDocumentError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidDocument, strings.Join(parts, "; "))
}

func (e *InvalidDocumentError) Is(target error) bool { return target == ErrInvalidDocument }

// Motivos de rechazo de un certificado.
const (
	CertExpired     = "expired"
	CertNotYetValid = "not_yet_valid"
	CertUntrusted   = "chain_untrusted"
	CertKeyMismatch = "key_mismatch"
	CertUnsupported = "unsupported_key"
	CertMissing     = "missing"
)

// CertificateError indica que la firma no puede proceder con el certificado entregado.
type CertificateError struct {
	Reason string
	Err    error
}

func (e *CertificateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", ErrCertificateInvalid, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s (%s)", ErrCertificateInvalid, e.Reason)
}

func (e *CertificateError) Is(target error) bool { return target == ErrCertificateInvalid }
func (e *CertificateError) Unwrap() error { return e.Err }

// SchemaViolationError apunta al elemento que no cumple el schema.
type SchemaViolationError struct {
	Path    string
	Message string
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrSchemaViolation, e.Path, e.Message)
}

func (e *SchemaViolationError) Is(target error) bool { return target == ErrSchemaViolation }

// TransmissionError distingue fallas transitorias (reintentables) de permanentes.
type TransmissionError struct {
	Transient  bool
	StatusCode int    // HTTP status, 0 si no hubo respuesta
	Code       string // código del SII (STATUS del upload), si existe
	Err        error
}

func (e *TransmissionError) Error() string {
	kind := "permanente"
	if e.Transient {
		kind = "transitoria"
	}
	msg := fmt.Sprintf("%s (%s", ErrTransmissionFailed, kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(", http %d", e.StatusCode)
	}
	if e.Code != "" {
		msg += ", status " + e.Code
	}
	msg += ")"
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransmissionError) Is(target error) bool { return target == ErrTransmissionFailed }
func (e *TransmissionError) Unwrap() error { return e.Err }

// IsTransient indica si err es una falla de transmisión reintentable.
func IsTransient(err error) bool {
	var te *TransmissionError
	return errors.As(err, &te) && te.Transient
}
