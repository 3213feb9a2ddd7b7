package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jhoicas/dte-sii/internal/application/folio"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/jhoicas/dte-sii/pkg/metrics"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// PipelineDeps dependencias del orquestador.
type PipelineDeps struct {
	Builder     *Builder
	TxRunner    BillingTxRunner
	Allocator   FolioAllocator
	Documents   repository.TaxDocumentRepository
	Envelopes   repository.SignedEnvelopeRepository
	Attempts    repository.TransmissionAttemptRepository
	Profiles    repository.TenantProfileRepository
	Stamper     Stamper
	Serializer  Serializer
	Signer      Signer
	Packager    Packager
	Certs       CertificateProvider
	Transmitter Transmitter
	Processor   *ResponseProcessor
	// Lease reserva cada documento mientras avanza. nil usa un lease en memoria.
	Lease Lease
}

// PipelineConfig parámetros del pool de trabajo asíncrono.
type PipelineConfig struct {
	Workers    int           // trabajos simultáneos en IssueAsync
	JobTimeout time.Duration // plazo de cada trabajo asíncrono
}

// Pipeline orquesta el ciclo completo de un DTE:
//
//	borrador → folio + TED → XML canónico → firma → EnvioDTE → upload → (async) respuesta SII
//
// Cada paso deja el documento en el último estado alcanzado; una falla solo registra LastError.
type Pipeline struct {
	deps       PipelineDeps
	logger     zerolog.Logger
	tracer     trace.Tracer
	sem        chan struct{}
	wg         sync.WaitGroup
	jobTimeout time.Duration
	now        func() time.Time
}

// NewPipeline construye el orquestador.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig, logger zerolog.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	if deps.Builder == nil {
		deps.Builder = NewBuilder()
	}
	if deps.Lease == nil {
		deps.Lease = NewMemoryLease()
	}
	return &Pipeline{
		deps:       deps,
		logger:     logger.With().Str("component", "pipeline").Logger(),
		tracer:     otel.Tracer("github.com/jhoicas/dte-sii/billing"),
		sem:        make(chan struct{}, cfg.Workers),
		jobTimeout: cfg.JobTimeout,
		now:        time.Now,
	}
}

// Issue construye, numera, firma y envía el documento. Devuelve el documento en su último
// estado alcanzado (submitted si todo salió bien) y el error del paso que falló, si lo hubo.
// Es idempotente por (tenant, ExternalRef): una segunda llamada retoma el documento existente.
func (p *Pipeline) Issue(ctx context.Context, tenantID string, in SourceRecord) (*entity.TaxDocument, error) {
	doc, err := p.Draft(ctx, tenantID, in)
	if err != nil {
		return nil, err
	}
	return p.advance(ctx, doc)
}

// IssueAsync valida y guarda el borrador de forma síncrona y encola el resto del ciclo
// en el pool de workers. El contexto del trabajo es independiente del request.
func (p *Pipeline) IssueAsync(ctx context.Context, tenantID string, in SourceRecord) (*entity.TaxDocument, error) {
	doc, err := p.Draft(ctx, tenantID, in)
	if err != nil {
		return nil, err
	}
	if doc.Status == entity.StatusSubmitted || doc.Status.IsTerminal() {
		return doc, nil
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return doc, ctx.Err()
	}
	job := *doc
	p.wg.Add(1)
	metrics.InFlight(1)
	go func() {
		defer func() {
			<-p.sem
			metrics.InFlight(-1)
			p.wg.Done()
		}()
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.jobTimeout)
		defer cancel()
		_, _ = p.advance(jobCtx, &job)
	}()
	return doc, nil
}

// Wait espera a que terminen los trabajos asíncronos en curso.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Draft valida el registro y persiste el borrador. Abandonar un borrador no tiene costo.
func (p *Pipeline) Draft(ctx context.Context, tenantID string, in SourceRecord) (*entity.TaxDocument, error) {
	if ref := strings.TrimSpace(in.ExternalRef); ref != "" {
		existing, err := p.deps.Documents.GetByExternalRef(ctx, tenantID, ref)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("buscar documento por referencia: %w", err)
		}
	}
	doc, err := p.deps.Builder.Build(tenantID, in)
	if err != nil {
		return nil, err
	}
	if err := p.deps.Documents.Create(ctx, doc); err != nil {
		if errors.Is(err, domain.ErrDuplicate) && doc.ExternalRef != "" {
			return p.deps.Documents.GetByExternalRef(ctx, tenantID, doc.ExternalRef)
		}
		return nil, fmt.Errorf("guardar borrador: %w", err)
	}
	metrics.StatusTransition(int(doc.Type), string(doc.Status))
	return doc, nil
}

// Resume retoma un documento desde su último estado alcanzado (p. ej. signed tras agotar reintentos).
func (p *Pipeline) Resume(ctx context.Context, tenantID, documentID string) (*entity.TaxDocument, error) {
	doc, err := p.deps.Documents.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	switch doc.Status {
	case entity.StatusDraft, entity.StatusFolioAssigned, entity.StatusSigned:
		return p.advance(ctx, doc)
	case entity.StatusVoided:
		return doc, fmt.Errorf("%w: documento anulado", domain.ErrInvalidTransition)
	}
	return doc, nil
}

// Void anula explícitamente un documento con folio asignado que no se enviará.
// El folio queda registrado como anulado y nunca se reutiliza.
func (p *Pipeline) Void(ctx context.Context, tenantID, documentID, reason string) (*entity.TaxDocument, error) {
	release, err := p.claim(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	defer release()
	doc, err := p.deps.Documents.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if !entity.CanTransition(doc.Status, entity.StatusVoided) {
		return doc, fmt.Errorf("%w: no se puede anular un documento en estado %s", domain.ErrInvalidTransition, doc.Status)
	}
	from := doc.Status
	next := *doc
	err = p.deps.TxRunner.RunBilling(ctx, func(repos TxRepos) error {
		if _, err := p.deps.Allocator.VoidInTx(ctx, repos.Ranges, repos.Voids, folio.VoidRequest{
			TenantID:     tenantID,
			DocumentType: doc.Type,
			Folio:        doc.Folio,
			DocumentID:   doc.ID,
			Reason:       reason,
		}); err != nil {
			return err
		}
		next.Status = entity.StatusVoided
		next.VoidReason = strings.TrimSpace(reason)
		next.UpdatedAt = p.now()
		return repos.Documents.Update(ctx, &next, from)
	})
	if err != nil {
		return doc, err
	}
	*doc = next
	p.transitioned(doc)
	return doc, nil
}

// Discard elimina un borrador sin folio.
func (p *Pipeline) Discard(ctx context.Context, tenantID, documentID string) error {
	doc, err := p.deps.Documents.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return err
	}
	if doc.Status != entity.StatusDraft {
		return fmt.Errorf("%w: solo se descartan borradores; use anulación", domain.ErrInvalidTransition)
	}
	return p.deps.Documents.DeleteDraft(ctx, tenantID, documentID)
}

// RefreshStatus consulta al SII el estado del envío y lo procesa. Idempotente.
func (p *Pipeline) RefreshStatus(ctx context.Context, tenantID, documentID string) (entity.DocumentStatus, error) {
	ctx, span := p.tracer.Start(ctx, "dte.refresh_status", trace.WithAttributes(
		attribute.String("tenant_id", tenantID), attribute.String("document_id", documentID)))
	defer span.End()

	doc, err := p.deps.Documents.GetByID(ctx, tenantID, documentID)
	if err != nil {
		return "", err
	}
	if doc.Status.IsTerminal() {
		return doc.Status, nil
	}
	if doc.Status != entity.StatusSubmitted || doc.TrackID == "" {
		return doc.Status, fmt.Errorf("%w: el documento no ha sido enviado", domain.ErrInvalidTransition)
	}
	profile, err := p.deps.Profiles.Get(ctx, tenantID)
	if err != nil {
		return doc.Status, fmt.Errorf("perfil del emisor: %w", err)
	}
	cert, err := p.deps.Certs.Certificate(ctx, tenantID)
	if err != nil {
		return doc.Status, err
	}
	companyRUT, _ := sii.NormalizeRUT(profile.RUT)
	raw, err := p.deps.Transmitter.PollStatus(ctx, &StatusQuery{
		TenantID:   tenantID,
		DocumentID: doc.ID,
		CompanyRUT: companyRUT,
		TrackID:    doc.TrackID,
		Cert:       cert,
	})
	if err != nil {
		span.RecordError(err)
		return doc.Status, err
	}
	return p.deps.Processor.Process(ctx, tenantID, raw)
}

// WaitForStatus consulta cada interval hasta obtener un estado terminal o hasta que ctx expire.
func (p *Pipeline) WaitForStatus(ctx context.Context, tenantID, documentID string, interval time.Duration) (entity.DocumentStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		status, err := p.RefreshStatus(ctx, tenantID, documentID)
		if err != nil && !domain.IsTransient(err) {
			return status, err
		}
		if status.IsTerminal() {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Attempts devuelve el log de intentos de envío del documento.
func (p *Pipeline) Attempts(ctx context.Context, tenantID, documentID string) ([]*entity.TransmissionAttempt, error) {
	if _, err := p.deps.Documents.GetByID(ctx, tenantID, documentID); err != nil {
		return nil, err
	}
	return p.deps.Attempts.ListByDocument(ctx, tenantID, documentID)
}

// SignedXML devuelve el DTE firmado.
func (p *Pipeline) SignedXML(ctx context.Context, tenantID, documentID string) ([]byte, error) {
	env, err := p.deps.Envelopes.GetByDocumentID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	return env.SignedXML, nil
}

// Get devuelve el documento.
func (p *Pipeline) Get(ctx context.Context, tenantID, documentID string) (*entity.TaxDocument, error) {
	return p.deps.Documents.GetByID(ctx, tenantID, documentID)
}

// claim reserva el documento para un único trabajo. Quien no la obtiene recibe ErrConflict.
func (p *Pipeline) claim(ctx context.Context, tenantID, documentID string) (func(), error) {
	release, ok, err := p.deps.Lease.Acquire(ctx, "dte:doc:"+tenantID+":"+documentID, p.jobTimeout)
	if err != nil {
		return nil, fmt.Errorf("reservar documento: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: el documento %s ya se está procesando", domain.ErrConflict, documentID)
	}
	return release, nil
}

// advance ejecuta los pasos pendientes hasta submitted o hasta el primer error.
func (p *Pipeline) advance(ctx context.Context, doc *entity.TaxDocument) (*entity.TaxDocument, error) {
	ctx, span := p.tracer.Start(ctx, "dte.advance", trace.WithAttributes(
		attribute.String("tenant_id", doc.TenantID),
		attribute.String("document_id", doc.ID),
		attribute.Int("doc_type", int(doc.Type))))
	defer span.End()

	release, err := p.claim(ctx, doc.TenantID, doc.ID)
	if err != nil {
		return doc, err
	}
	defer release()
	// Con la reserva tomada se relee: otro trabajo pudo haber avanzado el documento.
	fresh, err := p.deps.Documents.GetByID(ctx, doc.TenantID, doc.ID)
	if err != nil {
		return doc, err
	}
	*doc = *fresh

	profile, err := p.deps.Profiles.Get(ctx, doc.TenantID)
	if err != nil {
		err = fmt.Errorf("perfil del emisor: %w", err)
		p.markError(ctx, doc, "profile", err)
		return doc, err
	}
	for {
		var step string
		switch doc.Status {
		case entity.StatusDraft:
			step, err = "assign_folio", p.assignFolio(ctx, doc, profile)
		case entity.StatusFolioAssigned:
			step, err = "sign", p.sign(ctx, doc, profile)
		case entity.StatusSigned:
			step, err = "submit", p.submit(ctx, doc, profile)
		default:
			return doc, nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, step)
			p.markError(ctx, doc, step, err)
			return doc, err
		}
	}
}

// assignFolio asigna folio, timbra y persiste en una sola transacción: si algo falla, el folio no se consume.
func (p *Pipeline) assignFolio(ctx context.Context, doc *entity.TaxDocument, profile *entity.TenantProfile) error {
	ctx, span := p.tracer.Start(ctx, "dte.assign_folio")
	defer span.End()

	next := *doc
	err := p.deps.TxRunner.RunBilling(ctx, func(repos TxRepos) error {
		f, err := p.deps.Allocator.AllocateInTx(ctx, repos.Ranges, doc.TenantID, doc.Type)
		if err != nil {
			return err
		}
		caf, err := repos.Ranges.GetByID(ctx, doc.TenantID, f.RangeID)
		if err != nil {
			return fmt.Errorf("leer rango CAF: %w", err)
		}
		next.Folio = f.Number
		next.FolioRangeID = f.RangeID
		stamp, err := p.deps.Stamper.Stamp(&next, profile, caf, p.now())
		if err != nil {
			return fmt.Errorf("timbrar documento: %w", err)
		}
		next.Stamp = stamp
		next.Status = entity.StatusFolioAssigned
		next.LastError = ""
		next.UpdatedAt = p.now()
		return repos.Documents.Update(ctx, &next, entity.StatusDraft)
	})
	if err != nil {
		return err
	}
	*doc = next
	p.transitioned(doc)
	return nil
}

// sign serializa y firma; el sobre firmado y el cambio de estado se guardan juntos.
func (p *Pipeline) sign(ctx context.Context, doc *entity.TaxDocument, profile *entity.TenantProfile) error {
	ctx, span := p.tracer.Start(ctx, "dte.sign")
	defer span.End()

	cert, err := p.deps.Certs.Certificate(ctx, doc.TenantID)
	if err != nil {
		return err
	}
	canonical, err := p.deps.Serializer.Serialize(doc, profile)
	if err != nil {
		return err
	}
	env, err := p.deps.Signer.Sign(canonical, cert)
	if err != nil {
		return err
	}
	env.DocumentID = doc.ID
	env.TenantID = doc.TenantID
	env.CreatedAt = p.now()

	next := *doc
	next.Status = entity.StatusSigned
	next.LastError = ""
	next.UpdatedAt = p.now()
	err = p.deps.TxRunner.RunBilling(ctx, func(repos TxRepos) error {
		if err := repos.Envelopes.Create(ctx, env); err != nil {
			return fmt.Errorf("guardar firma: %w", err)
		}
		return repos.Documents.Update(ctx, &next, entity.StatusFolioAssigned)
	})
	if err != nil {
		return err
	}
	*doc = next
	p.transitioned(doc)
	return nil
}

// submit empaqueta y envía. Solo pasa a submitted tras un upload aceptado;
// si los reintentos se agotan el documento queda signed y re-enviable.
func (p *Pipeline) submit(ctx context.Context, doc *entity.TaxDocument, profile *entity.TenantProfile) error {
	ctx, span := p.tracer.Start(ctx, "dte.submit")
	defer span.End()

	env, err := p.deps.Envelopes.GetByDocumentID(ctx, doc.TenantID, doc.ID)
	if err != nil {
		return fmt.Errorf("leer firma: %w", err)
	}
	cert, err := p.deps.Certs.Certificate(ctx, doc.TenantID)
	if err != nil {
		return err
	}
	payload, err := p.deps.Packager.Package(profile, []*entity.SignedEnvelope{env}, cert, p.now())
	if err != nil {
		return fmt.Errorf("armar EnvioDTE: %w", err)
	}
	companyRUT, _ := sii.NormalizeRUT(profile.RUT)
	res, err := p.deps.Transmitter.Submit(ctx, &Submission{
		TenantID:   doc.TenantID,
		DocumentID: doc.ID,
		SenderRUT:  profile.SenderRUT,
		CompanyRUT: companyRUT,
		FileName:   fmt.Sprintf("DTE_%s_T%dF%d.xml", companyRUT, int(doc.Type), doc.Folio),
		Payload:    payload,
		Cert:       cert,
	})
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("track_id", res.TrackID))

	next := *doc
	next.Status = entity.StatusSubmitted
	next.TrackID = res.TrackID
	next.LastError = ""
	next.UpdatedAt = p.now()
	if err := p.deps.Documents.Update(ctx, &next, entity.StatusSigned); err != nil {
		p.logger.Error().Err(err).Str("document_id", doc.ID).Int64("folio", doc.Folio).
			Str("track_id", res.TrackID).Msg("envío aceptado por el SII pero no se pudo registrar el track id")
		return fmt.Errorf("registrar track id %s: %w", res.TrackID, err)
	}
	*doc = next
	p.transitioned(doc)
	return nil
}

// markError registra el error del paso sin revertir el estado alcanzado.
func (p *Pipeline) markError(ctx context.Context, doc *entity.TaxDocument, step string, stepErr error) {
	ev := p.logger.Error()
	if errors.Is(stepErr, domain.ErrInvalidDocument) {
		ev = p.logger.Warn()
	}
	ev.Err(stepErr).Str("step", step).Str("tenant_id", doc.TenantID).Str("document_id", doc.ID).
		Int64("folio", doc.Folio).Str("track_id", doc.TrackID).Str("status", string(doc.Status)).
		Msg("paso del pipeline fallido")

	doc.LastError = step + ": " + stepErr.Error()
	doc.UpdatedAt = p.now()
	if err := p.deps.Documents.Update(context.WithoutCancel(ctx), doc, doc.Status); err != nil {
		p.logger.Error().Err(err).Str("document_id", doc.ID).Msg("no se pudo registrar el error del documento")
	}
}

func (p *Pipeline) transitioned(doc *entity.TaxDocument) {
	metrics.StatusTransition(int(doc.Type), string(doc.Status))
	p.logger.Info().Str("tenant_id", doc.TenantID).Str("document_id", doc.ID).Int64("folio", doc.Folio).
		Str("track_id", doc.TrackID).Str("status", string(doc.Status)).Msg("documento avanzó de estado")
}
