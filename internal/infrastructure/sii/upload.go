// Cliente de transmisión: upload del EnvioDTE con reintentos y consulta de estado.

package sii

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/jhoicas/dte-sii/pkg/metrics"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

const xmlDeclLatin1 = `<?xml version="1.0" encoding="ISO-8859-1"?>` + "\n"

// RawArchive guarda cuerpos de respuesta crudos y devuelve una referencia.
type RawArchive interface {
	Put(ctx context.Context, tenantID, key string, body []byte) (string, error)
}

// ClientConfig parámetros de transmisión.
type ClientConfig struct {
	RequestTimeout time.Duration // por intento, independiente del backoff
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	RatePerSec     float64
	Burst          int
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

// Client implementa billing.Transmitter.
type Client struct {
	cfg      ClientConfig
	soap     *SOAPClient
	tokens   *TokenManager
	parser   *ResponseParser
	attempts repository.TransmissionAttemptRepository
	archive  RawArchive
	limiter  *rate.Limiter
	logger   zerolog.Logger
	now      func() time.Time
}

// NewClient crea el cliente. archive puede ser nil.
func NewClient(cfg ClientConfig, soap *SOAPClient, tokens *TokenManager, attempts repository.TransmissionAttemptRepository, archive RawArchive, logger zerolog.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		soap:     soap,
		tokens:   tokens,
		parser:   NewResponseParser(),
		attempts: attempts,
		archive:  archive,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		logger:   logger.With().Str("component", "sii_client").Logger(),
		now:      time.Now,
	}
}

// Submit sube el EnvioDTE. Reintenta fallas transitorias con backoff exponencial hasta
// MaxAttempts; cada intento queda en el log de intentos.
func (c *Client) Submit(ctx context.Context, s *billing.Submission) (*billing.SubmitResult, error) {
	senderBody, senderDV, err := sii.SplitRUT(s.SenderRUT)
	if err != nil {
		return nil, &domain.TransmissionError{Err: fmt.Errorf("RUT de envío: %w", err)}
	}
	companyBody, companyDV, err := sii.SplitRUT(s.CompanyRUT)
	if err != nil {
		return nil, &domain.TransmissionError{Err: fmt.Errorf("RUT emisor: %w", err)}
	}
	latin, err := sii.EncodeLatin1(s.Payload)
	if err != nil {
		return nil, &domain.TransmissionError{Err: fmt.Errorf("codificar ISO-8859-1: %w", err)}
	}
	form := UploadForm{
		RutSender:  senderBody,
		DvSender:   senderDV,
		RutCompany: companyBody,
		DvCompany:  companyDV,
		FileName:   s.FileName,
		Payload:    append([]byte(xmlDeclLatin1), latin...),
	}

	log := c.logger.With().Str("tenant_id", s.TenantID).Str("document_id", s.DocumentID).Logger()
	var (
		attemptNo int
		trackID   string
	)
	op := func() error {
		attemptNo++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(&domain.TransmissionError{Err: err})
		}
		token, err := c.tokens.Token(ctx, s.TenantID, s.Cert)
		if err != nil {
			c.record(ctx, &entity.TransmissionAttempt{
				TenantID: s.TenantID, DocumentID: s.DocumentID, Kind: entity.AttemptUpload,
				AttemptNo: attemptNo, AttemptedAt: c.now(), Outcome: entity.OutcomeError,
				Error: "token: " + err.Error(),
			})
			if domain.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		actx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		start := c.now()
		status, raw, err := c.soap.Upload(actx, token, form)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		a := &entity.TransmissionAttempt{
			TenantID: s.TenantID, DocumentID: s.DocumentID, Kind: entity.AttemptUpload,
			AttemptNo: attemptNo, AttemptedAt: start, Duration: c.now().Sub(start), HTTPStatus: status,
		}
		a.RawResponseRef = c.archiveRaw(ctx, s.TenantID, s.DocumentID, entity.AttemptUpload, attemptNo, raw)
		result := c.classifyUpload(ctx, s.TenantID, status, raw, err)
		switch {
		case result == nil:
			a.Outcome = entity.OutcomeSuccess
		case timedOut:
			a.Outcome = entity.OutcomeTimeout
		default:
			a.Outcome = entity.OutcomeError
		}
		var up *UploadResponse
		if result == nil || status < 400 {
			up, _ = ParseUpload(raw)
		}
		if up != nil {
			a.AuthorityCode = strconv.Itoa(up.Status)
			a.TrackID = up.TrackID
		}
		if result != nil {
			a.Error = result.Error()
		}
		c.record(ctx, a)
		metrics.TransmissionAttempt(string(entity.AttemptUpload), string(a.Outcome), a.Duration.Seconds())

		if result != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(result)
			}
			if domain.IsTransient(result) {
				return result
			}
			return backoff.Permanent(result)
		}
		trackID = up.TrackID
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BackoffInitial
	b.MaxInterval = c.cfg.BackoffMax
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxAttempts-1)), ctx)
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Int("attempt", attemptNo).Dur("retry_in", wait).Msg("upload al SII fallido, reintentando")
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		var te *domain.TransmissionError
		if errors.As(err, &te) && te.Transient {
			// Reintentos agotados: se entrega como permanente para el llamador.
			return nil, &domain.TransmissionError{
				StatusCode: te.StatusCode,
				Code:       te.Code,
				Err:        fmt.Errorf("%d intentos agotados: %w", attemptNo, te.Err),
			}
		}
		if te != nil {
			return nil, te
		}
		return nil, &domain.TransmissionError{Err: err}
	}
	log.Info().Str("track_id", trackID).Int("attempts", attemptNo).Msg("EnvioDTE recibido por el SII")
	return &billing.SubmitResult{TrackID: trackID, Attempts: attemptNo}, nil
}

// classifyUpload decide si el intento fue exitoso, transitorio o permanente.
func (c *Client) classifyUpload(ctx context.Context, tenantID string, status int, raw []byte, err error) error {
	if err != nil {
		return err
	}
	if err := classifyHTTP(status); err != nil {
		return err
	}
	up, err := ParseUpload(raw)
	if err != nil {
		return &domain.TransmissionError{Transient: true, StatusCode: status, Err: err}
	}
	switch up.Status {
	case sii.UploadStatusOK:
		if up.TrackID == "" {
			return &domain.TransmissionError{Transient: true, StatusCode: status, Code: "0", Err: errors.New("STATUS 0 sin TRACKID")}
		}
		return nil
	case sii.UploadStatusNotAuth:
		// Token vencido: se descarta y el próximo intento pide uno nuevo.
		c.tokens.Invalidate(ctx, tenantID)
		return &domain.TransmissionError{Transient: true, StatusCode: status, Code: strconv.Itoa(up.Status), Err: errors.New("token no autorizado")}
	case sii.UploadStatusSystemLocked, sii.UploadStatusInternalError:
		return &domain.TransmissionError{Transient: true, StatusCode: status, Code: strconv.Itoa(up.Status), Err: errors.New(uploadStatusText(up))}
	default:
		return &domain.TransmissionError{StatusCode: status, Code: strconv.Itoa(up.Status), Err: errors.New(uploadStatusText(up))}
	}
}

func uploadStatusText(up *UploadResponse) string {
	msg := "upload rechazado con STATUS " + strconv.Itoa(up.Status)
	if up.Detail != "" {
		msg += ": " + up.Detail
	}
	return msg
}

// PollStatus consulta el estado del envío. Solo lee: repetirla no tiene efectos en el SII.
func (c *Client) PollStatus(ctx context.Context, q *billing.StatusQuery) ([]byte, error) {
	body, dv, err := sii.SplitRUT(q.CompanyRUT)
	if err != nil {
		return nil, &domain.TransmissionError{Err: fmt.Errorf("RUT emisor: %w", err)}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &domain.TransmissionError{Transient: true, Err: err}
	}
	token, err := c.tokens.Token(ctx, q.TenantID, q.Cert)
	if err != nil {
		return nil, err
	}

	actx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	start := c.now()
	raw, err := c.soap.GetEstUp(actx, body, dv, q.TrackID, token)
	timedOut := errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
	cancel()

	a := &entity.TransmissionAttempt{
		TenantID: q.TenantID, DocumentID: q.DocumentID, Kind: entity.AttemptStatus,
		AttemptNo: 1, AttemptedAt: start, Duration: c.now().Sub(start), TrackID: q.TrackID,
		Outcome: entity.OutcomeSuccess,
	}
	a.RawResponseRef = c.archiveRaw(ctx, q.TenantID, q.DocumentID, entity.AttemptStatus, 1, raw)
	if err == nil {
		if r, perr := c.parser.ParseStatus(raw); perr == nil {
			a.AuthorityCode = r.State
			if IsTokenError(r) {
				c.tokens.Invalidate(ctx, q.TenantID)
				err = &domain.TransmissionError{Transient: true, Code: r.State, Err: errors.New("token no válido en consulta de estado")}
			}
		}
	}
	if err != nil {
		a.Outcome = entity.OutcomeError
		if timedOut {
			a.Outcome = entity.OutcomeTimeout
		}
		a.Error = err.Error()
		var te *domain.TransmissionError
		if errors.As(err, &te) {
			a.HTTPStatus = te.StatusCode
		}
	}
	c.record(ctx, a)
	metrics.TransmissionAttempt(string(entity.AttemptStatus), string(a.Outcome), a.Duration.Seconds())
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) record(ctx context.Context, a *entity.TransmissionAttempt) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if err := c.attempts.Append(ctx, a); err != nil {
		c.logger.Error().Err(err).Str("document_id", a.DocumentID).Int("attempt", a.AttemptNo).Msg("no se pudo registrar intento")
	}
}

func (c *Client) archiveRaw(ctx context.Context, tenantID, documentID string, kind entity.AttemptKind, n int, raw []byte) string {
	if c.archive == nil || len(raw) == 0 {
		return ""
	}
	key := fmt.Sprintf("%s/%s-%d-%d.xml", documentID, kind, n, c.now().UnixNano())
	ref, err := c.archive.Put(ctx, tenantID, key, Redact(raw))
	if err != nil {
		c.logger.Warn().Err(err).Str("document_id", documentID).Msg("no se pudo archivar respuesta")
		return ""
	}
	return ref
}

var _ billing.Transmitter = (*Client)(nil)
