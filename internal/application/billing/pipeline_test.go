package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-sii/internal/application/folio"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

type pipelineFixture struct {
	db          *memDB
	pipeline    *Pipeline
	stamper     *fakeStamper
	certs       *fakeCerts
	transmitter *fakeTransmitter
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	db := newMemDB()
	db.ranges["r1"] = &entity.FolioRange{
		ID: "r1", TenantID: "t1", DocumentType: entity.DocTypeInvoice,
		Start: 1, End: 10, NextAvailable: 1, IsActive: true,
	}
	profiles := memProfiles{"t1": {TenantID: "t1", RUT: "76086428-5", SenderRUT: "11111111-1", LegalName: "Emisor SpA"}}
	f := &pipelineFixture{
		db:          db,
		stamper:     &fakeStamper{},
		certs:       &fakeCerts{},
		transmitter: &fakeTransmitter{},
	}
	docs := &memDocs{db}
	f.pipeline = NewPipeline(PipelineDeps{
		TxRunner:    db,
		Allocator:   folio.NewAllocator(nil, &memRanges{db}, profiles, zerolog.Nop()),
		Documents:   docs,
		Envelopes:   &memEnvelopes{db},
		Attempts:    &memAttempts{db},
		Profiles:    profiles,
		Stamper:     f.stamper,
		Serializer:  fakeSerializer{},
		Signer:      fakeSigner{},
		Packager:    fakePackager{},
		Certs:       f.certs,
		Transmitter: f.transmitter,
		Processor:   NewResponseProcessor(docs, fakeParser{}, zerolog.Nop()),
	}, PipelineConfig{Workers: 2, JobTimeout: 5 * time.Second}, zerolog.Nop())
	return f
}

func (f *pipelineFixture) stored(t *testing.T, id string) *entity.TaxDocument {
	t.Helper()
	d, err := (&memDocs{f.db}).GetByID(context.Background(), "t1", id)
	require.NoError(t, err)
	return d
}

func TestIssue_CicloCompleto(t *testing.T) {
	f := newPipelineFixture(t)
	doc, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	require.NoError(t, err)

	assert.Equal(t, entity.StatusSubmitted, doc.Status)
	assert.Equal(t, int64(1), doc.Folio)
	assert.Equal(t, "T-1", doc.TrackID)
	require.NotNil(t, doc.Stamp)
	assert.Contains(t, string(f.transmitter.payload), `ID="F1T33"`)

	stored := f.stored(t, doc.ID)
	assert.Equal(t, entity.StatusSubmitted, stored.Status)
	assert.Empty(t, stored.LastError)
	assert.Contains(t, f.db.envelopes, doc.ID)
	assert.Equal(t, int64(2), f.db.ranges["r1"].NextAvailable)
}

func TestIssue_IdempotentePorReferenciaExterna(t *testing.T) {
	f := newPipelineFixture(t)
	first, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	require.NoError(t, err)
	second, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.transmitter.calls)
	assert.Equal(t, int64(2), f.db.ranges["r1"].NextAvailable)
}

func TestIssue_DocumentoInvalidoNoSePersiste(t *testing.T) {
	f := newPipelineFixture(t)
	in := facturaBase()
	in.Lines = nil
	_, err := f.pipeline.Issue(context.Background(), "t1", in)
	assert.ErrorIs(t, err, domain.ErrInvalidDocument)
	assert.Empty(t, f.db.docs)
}

func TestIssue_FallaDeEnvioQuedaFirmadoYSeRetoma(t *testing.T) {
	f := newPipelineFixture(t)
	f.transmitter.err = &domain.TransmissionError{Transient: false, StatusCode: 400}

	doc, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransmissionFailed)
	assert.Equal(t, entity.StatusSigned, doc.Status)

	stored := f.stored(t, doc.ID)
	assert.Equal(t, entity.StatusSigned, stored.Status)
	assert.Contains(t, stored.LastError, "submit")
	assert.Equal(t, int64(1), stored.Folio)

	f.transmitter.err = nil
	doc, err = f.pipeline.Resume(context.Background(), "t1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, doc.Status)
	assert.Equal(t, int64(1), doc.Folio, "el reenvío usa el mismo folio")
	assert.Empty(t, f.stored(t, doc.ID).LastError)
}

func TestResume_ConcurrenteUnSoloEnvio(t *testing.T) {
	f := newPipelineFixture(t)
	f.transmitter.err = &domain.TransmissionError{Transient: false, StatusCode: 400}
	doc, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	require.Error(t, err)
	require.Equal(t, entity.StatusSigned, f.stored(t, doc.ID).Status)

	f.transmitter.mu.Lock()
	f.transmitter.err = nil
	f.transmitter.calls = 0
	f.transmitter.delay = 100 * time.Millisecond
	f.transmitter.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.pipeline.Resume(context.Background(), "t1", doc.ID)
		}(i)
	}
	wg.Wait()

	// el segundo recibe conflicto o encuentra el documento ya enviado
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrConflict)
		}
	}
	assert.Equal(t, 1, f.transmitter.submitCalls())
	got := f.stored(t, doc.ID)
	assert.Equal(t, entity.StatusSubmitted, got.Status)
	assert.Equal(t, "T-1", got.TrackID)
	assert.Empty(t, got.LastError)
}

func TestResume_DocumentoReservadoDevuelveConflicto(t *testing.T) {
	f := newPipelineFixture(t)
	doc, err := f.pipeline.Draft(context.Background(), "t1", facturaBase())
	require.NoError(t, err)

	release, ok, err := f.pipeline.deps.Lease.Acquire(context.Background(), "dte:doc:t1:"+doc.ID, time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.pipeline.Resume(context.Background(), "t1", doc.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = f.pipeline.Void(context.Background(), "t1", doc.ID, "x")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 0, f.transmitter.submitCalls())
	assert.Empty(t, f.stored(t, doc.ID).LastError, "el conflicto no se registra como error del documento")

	release()
	got, err := f.pipeline.Resume(context.Background(), "t1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, got.Status)
}

func TestIssueAsync_ReintentoMismaReferenciaUnSoloEnvio(t *testing.T) {
	f := newPipelineFixture(t)
	f.transmitter.delay = 100 * time.Millisecond

	first, err := f.pipeline.IssueAsync(context.Background(), "t1", facturaBase())
	require.NoError(t, err)
	second, err := f.pipeline.IssueAsync(context.Background(), "t1", facturaBase())
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	f.pipeline.Wait()

	assert.Equal(t, 1, f.transmitter.submitCalls())
	got := f.stored(t, first.ID)
	assert.Equal(t, entity.StatusSubmitted, got.Status)
	assert.Equal(t, int64(1), got.Folio)
	assert.Equal(t, int64(2), f.db.ranges["r1"].NextAvailable)
}

func TestIssue_FallaDeTimbreNoConsumeFolio(t *testing.T) {
	f := newPipelineFixture(t)
	f.stamper.err = errors.New("llave CAF corrupta")

	doc, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	require.Error(t, err)
	assert.Equal(t, entity.StatusDraft, doc.Status)
	assert.False(t, f.stored(t, doc.ID).HasFolio())
	assert.Equal(t, int64(1), f.db.ranges["r1"].NextAvailable)
}

func TestIssue_RangoAgotado(t *testing.T) {
	f := newPipelineFixture(t)
	f.db.ranges["r1"].NextAvailable = 11

	doc, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	assert.ErrorIs(t, err, domain.ErrFolioRangeExhausted)
	assert.Equal(t, entity.StatusDraft, f.stored(t, doc.ID).Status)
}

func TestIssue_CertificadoInvalidoYAnulacion(t *testing.T) {
	f := newPipelineFixture(t)
	f.certs.err = &domain.CertificateError{Reason: domain.CertExpired}

	doc, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	assert.ErrorIs(t, err, domain.ErrCertificateInvalid)
	assert.Equal(t, entity.StatusFolioAssigned, f.stored(t, doc.ID).Status)

	voided, err := f.pipeline.Void(context.Background(), "t1", doc.ID, "certificado vencido")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusVoided, voided.Status)
	require.Len(t, f.db.voids, 1)
	assert.Equal(t, int64(1), f.db.voids[0].Folio)
	assert.Equal(t, int64(2), f.db.ranges["r1"].NextAvailable, "el folio anulado no vuelve al pool")

	_, err = f.pipeline.Resume(context.Background(), "t1", doc.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestVoid_DocumentoEnviadoNoSeAnula(t *testing.T) {
	f := newPipelineFixture(t)
	doc, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	require.NoError(t, err)
	_, err = f.pipeline.Void(context.Background(), "t1", doc.ID, "tarde")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestDiscard_SoloBorradores(t *testing.T) {
	f := newPipelineFixture(t)
	draft, err := f.pipeline.Draft(context.Background(), "t1", facturaBase())
	require.NoError(t, err)
	require.NoError(t, f.pipeline.Discard(context.Background(), "t1", draft.ID))
	assert.Empty(t, f.db.docs)

	in := facturaBase()
	in.ExternalRef = "INV-2"
	doc, err := f.pipeline.Issue(context.Background(), "t1", in)
	require.NoError(t, err)
	assert.ErrorIs(t, f.pipeline.Discard(context.Background(), "t1", doc.ID), domain.ErrInvalidTransition)
}

func TestRefreshStatus_Aceptado(t *testing.T) {
	f := newPipelineFixture(t)
	doc, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	require.NoError(t, err)

	status, err := f.pipeline.RefreshStatus(context.Background(), "t1", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, status)

	status, err = f.pipeline.WaitForStatus(context.Background(), "t1", doc.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, status)
	assert.Equal(t, 1, f.db.resolved)
}

func TestWaitForStatus_TimeoutMientrasProcesa(t *testing.T) {
	f := newPipelineFixture(t)
	f.transmitter.status = []byte("T-1|REC|0")
	doc, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	status, err := f.pipeline.WaitForStatus(ctx, "t1", doc.ID, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, entity.StatusSubmitted, status)
}

func TestIssueAsync(t *testing.T) {
	f := newPipelineFixture(t)
	var ids []string
	for _, ref := range []string{"A", "B", "C"} {
		in := facturaBase()
		in.ExternalRef = ref
		doc, err := f.pipeline.IssueAsync(context.Background(), "t1", in)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusDraft, doc.Status)
		ids = append(ids, doc.ID)
	}
	f.pipeline.Wait()

	folios := map[int64]bool{}
	for _, id := range ids {
		d := f.stored(t, id)
		assert.Equal(t, entity.StatusSubmitted, d.Status)
		folios[d.Folio] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true, 3: true}, folios)
}

func TestPoller_PollOnce(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.pipeline.Issue(context.Background(), "t1", facturaBase())
	require.NoError(t, err)

	p := NewPoller(f.pipeline, &memDocs{f.db}, nil, time.Second, 10, zerolog.Nop())
	assert.Equal(t, 1, p.PollOnce(context.Background()))
	assert.Equal(t, 0, p.PollOnce(context.Background()))
}
