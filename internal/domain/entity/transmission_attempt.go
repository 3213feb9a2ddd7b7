package entity

import "time"

// AttemptOutcome resultado de un intento de comunicación con el SII.
type AttemptOutcome string

const (
	OutcomeSuccess AttemptOutcome = "success"
	OutcomeTimeout AttemptOutcome = "timeout"
	OutcomeError   AttemptOutcome = "error"
)

// AttemptKind distingue envíos de consultas de estado.
type AttemptKind string

const (
	AttemptUpload AttemptKind = "upload"
	AttemptStatus AttemptKind = "status"
)

// TransmissionAttempt entrada del log de auditoría de envíos. Solo se inserta, nunca se modifica.
type TransmissionAttempt struct {
	ID             string
	TenantID       string
	DocumentID     string
	Kind           AttemptKind
	AttemptNo      int
	AttemptedAt    time.Time
	Duration       time.Duration
	Outcome        AttemptOutcome
	HTTPStatus     int    // 0 si no hubo respuesta HTTP
	AuthorityCode  string // STATUS de RECEPCIONDTE o ESTADO de getEstUp
	TrackID        string
	RawResponseRef string // clave en el archivo de respuestas crudas
	Error          string
}
