package repository

import (
	"context"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

// TaxDocumentRepository define el puerto de persistencia para TaxDocument, líneas y referencias.
type TaxDocumentRepository interface {
	// Create inserta cabecera, líneas y referencias. ErrDuplicate si (tenant, external_ref) ya existe.
	Create(ctx context.Context, doc *entity.TaxDocument) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.TaxDocument, error)
	GetByExternalRef(ctx context.Context, tenantID, externalRef string) (*entity.TaxDocument, error)
	GetByTrackID(ctx context.Context, tenantID, trackID string) (*entity.TaxDocument, error)

	// Update persiste la cabecera solo si el estado almacenado sigue siendo from (ErrConflict si no).
	Update(ctx context.Context, doc *entity.TaxDocument, from entity.DocumentStatus) error

	// Resolve es la única escritura de estados terminales accepted/rejected:
	// aplica solo si el documento con ese track id sigue en submitted. Devuelve false si no aplicó.
	Resolve(ctx context.Context, tenantID, trackID string, to entity.DocumentStatus, reason string) (bool, error)

	// ListByStatus lista documentos de cualquier tenant en el estado dado (para el poller).
	ListByStatus(ctx context.Context, status entity.DocumentStatus, limit int) ([]*entity.TaxDocument, error)

	// DeleteDraft elimina un borrador; ErrInvalidTransition si ya tiene folio.
	DeleteDraft(ctx context.Context, tenantID, id string) error
}

// SignedEnvelopeRepository almacena la firma de cada documento (inmutable).
type SignedEnvelopeRepository interface {
	Create(ctx context.Context, env *entity.SignedEnvelope) error
	GetByDocumentID(ctx context.Context, tenantID, documentID string) (*entity.SignedEnvelope, error)
}

// TransmissionAttemptRepository log append-only de intentos de envío y consulta.
type TransmissionAttemptRepository interface {
	Append(ctx context.Context, a *entity.TransmissionAttempt) error
	ListByDocument(ctx context.Context, tenantID, documentID string) ([]*entity.TransmissionAttempt, error)
}

// TenantProfileRepository datos del emisor por tenant.
type TenantProfileRepository interface {
	Get(ctx context.Context, tenantID string) (*entity.TenantProfile, error)
	Upsert(ctx context.Context, p *entity.TenantProfile) error
}
