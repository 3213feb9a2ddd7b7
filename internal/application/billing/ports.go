package billing

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/jhoicas/dte-sii/internal/application/folio"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

// TxRepos repositorios atados a una misma transacción.
type TxRepos struct {
	Ranges    repository.FolioRangeRepository
	Voids     repository.FolioVoidRepository
	Documents repository.TaxDocumentRepository
	Envelopes repository.SignedEnvelopeRepository
}

// BillingTxRunner ejecuta fn dentro de una transacción con los repos de emisión.
type BillingTxRunner interface {
	RunBilling(ctx context.Context, fn func(repos TxRepos) error) error
}

// FolioAllocator operaciones del asignador que corren en la transacción del caller.
type FolioAllocator interface {
	AllocateInTx(ctx context.Context, ranges repository.FolioRangeRepository, tenantID string, docType entity.DocumentType) (entity.Folio, error)
	VoidInTx(ctx context.Context, ranges repository.FolioRangeRepository, voids repository.FolioVoidRepository, req folio.VoidRequest) (*entity.FolioVoid, error)
}

// Stamper calcula el timbre electrónico (TED) con la llave del CAF.
type Stamper interface {
	Stamp(doc *entity.TaxDocument, issuer *entity.TenantProfile, caf *entity.FolioRange, at time.Time) (*entity.Stamp, error)
}

// Serializer produce el XML canónico del DTE, ya validado contra el schema.
type Serializer interface {
	Serialize(doc *entity.TaxDocument, issuer *entity.TenantProfile) ([]byte, error)
}

// Signer firma el XML canónico (XML-DSig enveloped).
type Signer interface {
	Sign(canonicalXML []byte, cert tls.Certificate) (*entity.SignedEnvelope, error)
}

// Packager arma y firma el EnvioDTE que se sube al SII.
type Packager interface {
	Package(issuer *entity.TenantProfile, envelopes []*entity.SignedEnvelope, cert tls.Certificate, at time.Time) ([]byte, error)
}

// CertificateProvider entrega el certificado del tenant. Nunca se comparte entre tenants.
type CertificateProvider interface {
	Certificate(ctx context.Context, tenantID string) (tls.Certificate, error)
}

// Submission un envío al SII.
type Submission struct {
	TenantID   string
	DocumentID string
	SenderRUT  string // RUT de quien envía (titular del certificado)
	CompanyRUT string // RUT del emisor
	FileName   string
	Payload    []byte // EnvioDTE firmado (UTF-8; el cliente lo codifica a ISO-8859-1)
	Cert       tls.Certificate
}

// SubmitResult respuesta del upload aceptado por el SII.
type SubmitResult struct {
	TrackID  string
	Attempts int
}

// StatusQuery consulta de estado de un envío.
type StatusQuery struct {
	TenantID   string
	DocumentID string
	CompanyRUT string
	TrackID    string
	Cert       tls.Certificate
}

// Transmitter cliente del webservice del SII.
type Transmitter interface {
	Submit(ctx context.Context, s *Submission) (*SubmitResult, error)
	// PollStatus devuelve la respuesta cruda de la consulta; es idempotente.
	PollStatus(ctx context.Context, q *StatusQuery) ([]byte, error)
}

// AuthorityResponse respuesta de estado del SII ya parseada.
type AuthorityResponse struct {
	TrackID  string
	State    string // ESTADO (EPR, RCT, REC, …)
	Glosa    string
	Informed int
	Accepted int
	Rejected int
	Repaired int
}

// ResponseParser interpreta la respuesta cruda (RESPUESTA suelta o envuelta en SOAP).
type ResponseParser interface {
	ParseStatus(raw []byte) (*AuthorityResponse, error)
}
