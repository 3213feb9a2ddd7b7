package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/jhoicas/dte-sii/pkg/metrics"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// ResponseProcessor es el único autorizado a sacar un documento del estado submitted.
type ResponseProcessor struct {
	docs   repository.TaxDocumentRepository
	parser ResponseParser
	logger zerolog.Logger
}

// NewResponseProcessor construye el procesador.
func NewResponseProcessor(docs repository.TaxDocumentRepository, parser ResponseParser, logger zerolog.Logger) *ResponseProcessor {
	return &ResponseProcessor{
		docs:   docs,
		parser: parser,
		logger: logger.With().Str("component", "response_processor").Logger(),
	}
}

// Process interpreta la respuesta del SII y aplica la transición, si corresponde.
// Procesar dos veces la misma respuesta no repite la transición: devuelve el estado terminal ya registrado.
func (p *ResponseProcessor) Process(ctx context.Context, tenantID string, raw []byte) (entity.DocumentStatus, error) {
	resp, err := p.parser.ParseStatus(raw)
	if err != nil {
		return "", fmt.Errorf("parsear respuesta del SII: %w", err)
	}
	if resp.TrackID == "" {
		return "", fmt.Errorf("%w: respuesta sin TRACKID", domain.ErrInvalidInput)
	}
	status, reason := MapAuthorityState(resp)
	log := p.logger.With().Str("tenant_id", tenantID).Str("track_id", resp.TrackID).Str("estado", resp.State).Logger()

	if status == entity.StatusSubmitted {
		log.Debug().Msg("envío aún en proceso en el SII")
		return entity.StatusSubmitted, nil
	}

	applied, err := p.docs.Resolve(ctx, tenantID, resp.TrackID, status, reason)
	if err != nil {
		return "", fmt.Errorf("aplicar estado %s: %w", status, err)
	}
	doc, err := p.docs.GetByTrackID(ctx, tenantID, resp.TrackID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: track id %s", domain.ErrNotFound, resp.TrackID)
		}
		return "", err
	}
	if !applied {
		log.Debug().Str("status", string(doc.Status)).Msg("respuesta ya procesada")
		return doc.Status, nil
	}

	metrics.StatusTransition(int(doc.Type), string(status))
	ev := log.Info()
	if status == entity.StatusRejected {
		ev = log.Warn().Str("reason", reason)
	}
	ev.Str("document_id", doc.ID).Int64("folio", doc.Folio).Str("status", string(status)).Msg("estado final del SII")
	return status, nil
}

// MapAuthorityState traduce el ESTADO del SII a la taxonomía interna.
// submitted significa "aún en proceso".
func MapAuthorityState(r *AuthorityResponse) (entity.DocumentStatus, string) {
	switch r.State {
	case sii.EstadoProcesado:
		if r.Rejected > 0 {
			return entity.StatusRejected, rejectionReason(r)
		}
		return entity.StatusAccepted, ""
	case sii.EstadoAceptadoReparo:
		return entity.StatusAccepted, ""
	case sii.EstadoRechCaratula, sii.EstadoRechFirma, sii.EstadoRechSchema, sii.EstadoRechContenido,
		sii.EstadoRechazado, sii.EstadoRechDuplicado, sii.EstadoRechLeyenda, sii.EstadoRechRepetido,
		sii.EstadoRechCAF, sii.EstadoFolioNoValido:
		return entity.StatusRejected, rejectionReason(r)
	}
	return entity.StatusSubmitted, ""
}

func rejectionReason(r *AuthorityResponse) string {
	if r.Glosa == "" {
		return r.State
	}
	return r.State + ": " + r.Glosa
}
