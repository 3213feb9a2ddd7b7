package sii

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-sii/internal/testutil"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

const envioMinimo = `<EnvioDTE xmlns="http://www.sii.cl/SiiDte" version="1.0"><SetDTE ID="SetDoc"><DTE version="1.0"></DTE></SetDTE></EnvioDTE>`

// scriptedAuthority delega en el simulador pero responde el upload N con el status HTTP indicado.
type scriptedAuthority struct {
	sim      *Simulator
	statuses []int
	delay    time.Duration // demora del primer upload
	uploads  int32
	seeds    int32
}

func (a *scriptedAuthority) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case sii.PathSeed:
		atomic.AddInt32(&a.seeds, 1)
	case sii.PathUpload:
		n := int(atomic.AddInt32(&a.uploads, 1)) - 1
		if n == 0 && a.delay > 0 {
			select {
			case <-time.After(a.delay):
			case <-r.Context().Done():
				return
			}
		}
		if n < len(a.statuses) && a.statuses[n] != http.StatusOK {
			w.WriteHeader(a.statuses[n])
			return
		}
	}
	a.sim.ServeHTTP(w, r)
}

type clientFixture struct {
	client    *Client
	authority *scriptedAuthority
	attempts  *memAttempts
	archive   *memArchive
	tokens    *TokenManager
	signer    *signer.DigitalSignatureService
}

func newClientFixture(t *testing.T, statuses ...int) (*clientFixture, *billing.Submission) {
	t.Helper()
	cert, roots := testutil.ValidCertificate(t)
	svc := signer.NewDigitalSignatureService(signer.WithRoots(roots))
	auth := &scriptedAuthority{sim: NewSimulator(svc), statuses: statuses}
	srv := httptest.NewServer(auth)
	t.Cleanup(srv.Close)

	soap := NewSOAPClient(srv.URL, srv.Client())
	tokens := NewTokenManager(soap, svc, NewMemoryTokenCache(), nil, time.Hour, zerolog.Nop())
	attempts := &memAttempts{}
	archive := &memArchive{}
	client := NewClient(ClientConfig{
		RequestTimeout: 2 * time.Second,
		MaxAttempts:    3,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		RatePerSec:     1000,
		Burst:          10,
	}, soap, tokens, attempts, archive, zerolog.Nop())

	sub := &billing.Submission{
		TenantID:   "t1",
		DocumentID: "doc-1",
		SenderRUT:  "11111111-1",
		CompanyRUT: "76086428-5",
		FileName:   "DTE_76086428-5_T33F1.xml",
		Payload:    []byte(envioMinimo),
		Cert:       cert,
	}
	return &clientFixture{client: client, authority: auth, attempts: attempts, archive: archive, tokens: tokens, signer: svc}, sub
}

func TestSubmit_ReintentaTrasErroresDelServidor(t *testing.T) {
	f, sub := newClientFixture(t, http.StatusInternalServerError, http.StatusBadGateway)

	res, err := f.client.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.NotEmpty(t, res.TrackID)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []entity.AttemptOutcome{entity.OutcomeError, entity.OutcomeError, entity.OutcomeSuccess}, f.attempts.outcomes())

	last := f.attempts.list[2]
	assert.Equal(t, 3, last.AttemptNo)
	assert.Equal(t, "0", last.AuthorityCode)
	assert.Equal(t, res.TrackID, last.TrackID)
	assert.NotEmpty(t, last.RawResponseRef)
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.authority.seeds), "el token se reutiliza entre intentos")
}

func TestSubmit_4xxEsPermanente(t *testing.T) {
	f, sub := newClientFixture(t, http.StatusBadRequest)

	_, err := f.client.Submit(context.Background(), sub)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransmissionFailed))
	assert.False(t, domain.IsTransient(err))
	var te *domain.TransmissionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadRequest, te.StatusCode)
	assert.Len(t, f.attempts.list, 1)
}

func TestSubmit_ReintentosAgotados(t *testing.T) {
	f, sub := newClientFixture(t, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusServiceUnavailable, http.StatusServiceUnavailable)

	_, err := f.client.Submit(context.Background(), sub)
	require.Error(t, err)
	assert.False(t, domain.IsTransient(err), "agotados los reintentos el error es permanente")
	assert.Len(t, f.attempts.list, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(&f.authority.uploads))
}

func TestSubmit_TokenVencidoSeRenueva(t *testing.T) {
	f, sub := newClientFixture(t)
	_, err := f.tokens.Token(context.Background(), "t1", sub.Cert)
	require.NoError(t, err)
	// El SII olvida el token: el upload responde STATUS 5.
	f.authority.sim.mu.Lock()
	f.authority.sim.tokens = map[string]bool{}
	f.authority.sim.mu.Unlock()

	res, err := f.client.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, "5", f.attempts.list[0].AuthorityCode)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.authority.seeds))
}

func TestSubmit_TimeoutPorIntento(t *testing.T) {
	f, sub := newClientFixture(t)
	f.authority.delay = 500 * time.Millisecond
	f.client.cfg.RequestTimeout = 50 * time.Millisecond

	res, err := f.client.Submit(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []entity.AttemptOutcome{entity.OutcomeTimeout, entity.OutcomeSuccess}, f.attempts.outcomes())
}

func TestPollStatus_EnvioProcesado(t *testing.T) {
	f, sub := newClientFixture(t)
	signed, err := f.signer.SignEnvelope([]byte(envioMinimo), sub.Cert)
	require.NoError(t, err)
	sub.Payload = signed
	res, err := f.client.Submit(context.Background(), sub)
	require.NoError(t, err)

	raw, err := f.client.PollStatus(context.Background(), &billing.StatusQuery{
		TenantID: "t1", DocumentID: "doc-1", CompanyRUT: "76086428-5", TrackID: res.TrackID, Cert: sub.Cert,
	})
	require.NoError(t, err)
	r, err := NewResponseParser().ParseStatus(raw)
	require.NoError(t, err)
	assert.Equal(t, sii.EstadoProcesado, r.State)
	assert.Equal(t, 1, r.Accepted)
	assert.Equal(t, 0, r.Rejected)

	status := f.attempts.list[len(f.attempts.list)-1]
	assert.Equal(t, entity.AttemptStatus, status.Kind)
	assert.Equal(t, "EPR", status.AuthorityCode)
}

func TestPollStatus_FirmaInvalidaEsRechazo(t *testing.T) {
	f, sub := newClientFixture(t)
	// envioMinimo no trae <Signature>: el simulador lo rechaza por firma.
	res, err := f.client.Submit(context.Background(), sub)
	require.NoError(t, err)

	raw, err := f.client.PollStatus(context.Background(), &billing.StatusQuery{
		TenantID: "t1", DocumentID: "doc-1", CompanyRUT: "76086428-5", TrackID: res.TrackID, Cert: sub.Cert,
	})
	require.NoError(t, err)
	r, err := NewResponseParser().ParseStatus(raw)
	require.NoError(t, err)
	assert.Equal(t, sii.EstadoRechFirma, r.State)
}
