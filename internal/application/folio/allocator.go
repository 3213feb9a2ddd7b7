package folio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/jhoicas/dte-sii/pkg/metrics"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// Allocator entrega folios correlativos por (tenant, tipo) desde los rangos CAF autorizados.
// La exclusión mutua la da el bloqueo de fila de la base de datos, nunca un contador en memoria.
type Allocator struct {
	txRunner TxRunner
	ranges   repository.FolioRangeRepository
	profiles repository.TenantProfileRepository
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAllocator construye el asignador.
func NewAllocator(
	txRunner TxRunner,
	ranges repository.FolioRangeRepository,
	profiles repository.TenantProfileRepository,
	logger zerolog.Logger,
) *Allocator {
	return &Allocator{
		txRunner: txRunner,
		ranges:   ranges,
		profiles: profiles,
		logger:   logger.With().Str("component", "folio").Logger(),
		now:      time.Now,
	}
}

// Allocate asigna el siguiente folio en su propia transacción.
func (a *Allocator) Allocate(ctx context.Context, tenantID string, docType entity.DocumentType) (entity.Folio, error) {
	var f entity.Folio
	err := a.txRunner.RunFolio(ctx, func(ranges repository.FolioRangeRepository, _ repository.FolioVoidRepository) error {
		var err error
		f, err = a.AllocateInTx(ctx, ranges, tenantID, docType)
		return err
	})
	return f, err
}

// AllocateInTx asigna el siguiente folio usando el repositorio del caller (misma transacción).
// Si la transacción del caller hace rollback, el folio vuelve a quedar disponible: nunca hubo commit.
func (a *Allocator) AllocateInTx(ctx context.Context, ranges repository.FolioRangeRepository, tenantID string, docType entity.DocumentType) (entity.Folio, error) {
	if !docType.Valid() {
		return entity.Folio{}, fmt.Errorf("%w: tipo de DTE %d", domain.ErrInvalidInput, docType)
	}
	locked, err := ranges.LockForAllocation(ctx, tenantID, docType)
	if err != nil {
		metrics.FolioAllocated(int(docType), "error")
		return entity.Folio{}, fmt.Errorf("bloquear rangos de folio: %w", err)
	}
	now := a.now()
	for _, r := range locked {
		if !r.Usable(now) {
			continue
		}
		folio := r.NextAvailable
		ok, err := ranges.Advance(ctx, r.ID, folio)
		if err != nil {
			metrics.FolioAllocated(int(docType), "error")
			return entity.Folio{}, fmt.Errorf("avanzar rango %s: %w", r.ID, err)
		}
		if !ok {
			// Con FOR UPDATE no debería ocurrir; si ocurre, el caller reintenta la transacción completa.
			metrics.FolioAllocated(int(docType), "error")
			return entity.Folio{}, fmt.Errorf("%w: rango %s modificado concurrentemente", domain.ErrConflict, r.ID)
		}
		r.NextAvailable = folio + 1
		metrics.FolioAllocated(int(docType), "ok")
		if r.Remaining() < 10 {
			a.logger.Warn().Str("tenant_id", tenantID).Int("doc_type", int(docType)).
				Int64("remaining", r.Remaining()).Str("range_id", r.ID).Msg("rango de folios por agotarse")
		}
		return entity.Folio{Number: folio, RangeID: r.ID}, nil
	}
	metrics.FolioAllocated(int(docType), "exhausted")
	return entity.Folio{}, fmt.Errorf("%w: tenant %s tipo %d", domain.ErrFolioRangeExhausted, tenantID, docType)
}

// VoidRequest datos para anular un folio ya asignado.
type VoidRequest struct {
	TenantID     string
	DocumentType entity.DocumentType
	Folio        int64
	DocumentID   string
	Reason       string
}

// Void registra la anulación en su propia transacción.
func (a *Allocator) Void(ctx context.Context, req VoidRequest) (*entity.FolioVoid, error) {
	var v *entity.FolioVoid
	err := a.txRunner.RunFolio(ctx, func(ranges repository.FolioRangeRepository, voids repository.FolioVoidRepository) error {
		var err error
		v, err = a.VoidInTx(ctx, ranges, voids, req)
		return err
	})
	return v, err
}

// VoidInTx registra la anulación de un folio asignado. El folio nunca vuelve al pool.
func (a *Allocator) VoidInTx(ctx context.Context, ranges repository.FolioRangeRepository, voids repository.FolioVoidRepository, req VoidRequest) (*entity.FolioVoid, error) {
	if strings.TrimSpace(req.Reason) == "" {
		return nil, fmt.Errorf("%w: motivo de anulación requerido", domain.ErrInvalidInput)
	}
	locked, err := ranges.LockForAllocation(ctx, req.TenantID, req.DocumentType)
	if err != nil {
		return nil, fmt.Errorf("bloquear rangos de folio: %w", err)
	}
	var owner *entity.FolioRange
	for _, r := range locked {
		if r.Contains(req.Folio) {
			owner = r
			break
		}
	}
	if owner == nil {
		return nil, fmt.Errorf("%w: folio %d no pertenece a ningún rango", domain.ErrNotFound, req.Folio)
	}
	if req.Folio >= owner.NextAvailable {
		return nil, fmt.Errorf("%w: folio %d aún no ha sido asignado", domain.ErrInvalidTransition, req.Folio)
	}
	v := &entity.FolioVoid{
		ID:           uuid.New().String(),
		TenantID:     req.TenantID,
		DocumentType: req.DocumentType,
		Folio:        req.Folio,
		DocumentID:   req.DocumentID,
		Reason:       req.Reason,
		VoidedAt:     a.now(),
	}
	if err := voids.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("registrar anulación: %w", err)
	}
	a.logger.Info().Str("tenant_id", req.TenantID).Int("doc_type", int(req.DocumentType)).
		Int64("folio", req.Folio).Str("document_id", req.DocumentID).Msg("folio anulado")
	return v, nil
}

// ImportCAF registra un nuevo rango a partir del archivo CAF entregado por el SII.
func (a *Allocator) ImportCAF(ctx context.Context, tenantID string, raw []byte) (*entity.FolioRange, error) {
	caf, err := sii.ParseCAF(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	docType, err := entity.ParseDocumentType(caf.DocType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	profile, err := a.profiles.Get(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("perfil del emisor: %w", err)
	}
	issuer, _ := sii.NormalizeRUT(caf.IssuerRUT)
	own, _ := sii.NormalizeRUT(profile.RUT)
	if issuer != own {
		return nil, fmt.Errorf("%w: CAF emitido para %s, el emisor es %s", domain.ErrForbidden, issuer, own)
	}

	now := a.now()
	r := &entity.FolioRange{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		DocumentType:     docType,
		Start:            caf.From,
		End:              caf.To,
		NextAvailable:    caf.From,
		IssuerRUT:        issuer,
		KeyID:            caf.KeyID,
		AuthorizedAt:     caf.AuthorizedAt,
		CAFXML:           caf.XML,
		CAFPrivateKeyPEM: caf.PrivateKeyPEM,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if b, _ := docType.Behavior(); b.CAFExpires {
		exp := caf.AuthorizedAt.AddDate(0, sii.CAFValidMonths, 0)
		if !now.Before(exp) {
			return nil, fmt.Errorf("%w: CAF vencido el %s", domain.ErrInvalidInput, exp.Format(sii.DateLayout))
		}
		r.ExpiresAt = &exp
	}

	err = a.txRunner.RunFolio(ctx, func(ranges repository.FolioRangeRepository, _ repository.FolioVoidRepository) error {
		existing, err := ranges.LockForAllocation(ctx, tenantID, docType)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Overlaps(r) {
				return fmt.Errorf("%w: rango %d-%d se solapa con %d-%d", domain.ErrDuplicate, r.Start, r.End, e.Start, e.End)
			}
		}
		return ranges.Create(ctx, r)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("guardar rango CAF: %w", err)
	}
	a.logger.Info().Str("tenant_id", tenantID).Int("doc_type", int(docType)).
		Int64("from", r.Start).Int64("to", r.End).Msg("CAF importado")
	return r, nil
}

// ListRanges lista los rangos del tenant (sin la llave del CAF).
func (a *Allocator) ListRanges(ctx context.Context, tenantID string) ([]*entity.FolioRange, error) {
	list, err := a.ranges.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		r.CAFPrivateKeyPEM = ""
	}
	return list, nil
}

// Deactivate retira un rango del uso (p. ej. CAF revocado). Los folios ya asignados no cambian.
func (a *Allocator) Deactivate(ctx context.Context, tenantID, rangeID string) error {
	return a.ranges.SetActive(ctx, tenantID, rangeID, false)
}
