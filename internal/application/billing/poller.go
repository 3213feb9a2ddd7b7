package billing

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

// Lease exclusión entre instancias para consultar un mismo track id.
type Lease interface {
	// Acquire devuelve ok=false si otra instancia ya tiene la clave.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Poller consulta periódicamente el estado de los documentos enviados.
type Poller struct {
	pipeline *Pipeline
	docs     repository.TaxDocumentRepository
	lease    Lease
	interval time.Duration
	batch    int
	logger   zerolog.Logger
}

// NewPoller construye el poller. lease puede ser nil si corre una sola instancia.
func NewPoller(pipeline *Pipeline, docs repository.TaxDocumentRepository, lease Lease, interval time.Duration, batch int, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 50
	}
	return &Poller{
		pipeline: pipeline,
		docs:     docs,
		lease:    lease,
		interval: interval,
		batch:    batch,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Run consulta cada interval hasta que ctx se cancele.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.PollOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PollOnce procesa un lote de documentos submitted y devuelve cuántos llegaron a estado terminal.
func (p *Poller) PollOnce(ctx context.Context) int {
	docs, err := p.docs.ListByStatus(ctx, entity.StatusSubmitted, p.batch)
	if err != nil {
		p.logger.Error().Err(err).Msg("listar documentos enviados")
		return 0
	}
	resolved := 0
	for _, d := range docs {
		if ctx.Err() != nil {
			break
		}
		release := func() {}
		if p.lease != nil {
			rel, ok, err := p.lease.Acquire(ctx, "dte:poll:"+d.TenantID+":"+d.TrackID, 2*p.interval)
			if err != nil {
				p.logger.Warn().Err(err).Str("track_id", d.TrackID).Msg("no se pudo tomar el lease")
				continue
			}
			if !ok {
				continue
			}
			release = rel
		}
		status, err := p.pipeline.RefreshStatus(ctx, d.TenantID, d.ID)
		release()
		if err != nil {
			p.logger.Warn().Err(err).Str("tenant_id", d.TenantID).Str("document_id", d.ID).
				Int64("folio", d.Folio).Str("track_id", d.TrackID).Msg("consulta de estado fallida")
			continue
		}
		if status.IsTerminal() {
			resolved++
		}
	}
	return resolved
}
