package billing

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

// memDB base en memoria para los repos del pipeline; RunBilling restaura el estado si fn falla.
type memDB struct {
	tx        sync.Mutex // serializa transacciones, como el FOR UPDATE
	mu        sync.Mutex
	docs      map[string]*entity.TaxDocument
	ranges    map[string]*entity.FolioRange
	voids     []*entity.FolioVoid
	envelopes map[string]*entity.SignedEnvelope
	attempts  []*entity.TransmissionAttempt
	resolved  int
}

func newMemDB() *memDB {
	return &memDB{
		docs:      map[string]*entity.TaxDocument{},
		ranges:    map[string]*entity.FolioRange{},
		envelopes: map[string]*entity.SignedEnvelope{},
	}
}

func (db *memDB) RunBilling(ctx context.Context, fn func(TxRepos) error) error {
	db.tx.Lock()
	defer db.tx.Unlock()
	db.mu.Lock()
	docs := map[string]entity.TaxDocument{}
	for k, v := range db.docs {
		docs[k] = *v
	}
	ranges := map[string]entity.FolioRange{}
	for k, v := range db.ranges {
		ranges[k] = *v
	}
	envs := map[string]*entity.SignedEnvelope{}
	for k, v := range db.envelopes {
		envs[k] = v
	}
	nVoids := len(db.voids)
	db.mu.Unlock()

	err := fn(TxRepos{
		Ranges:    &memRanges{db},
		Voids:     &memVoids{db},
		Documents: &memDocs{db},
		Envelopes: &memEnvelopes{db},
	})
	if err != nil {
		db.mu.Lock()
		db.docs = map[string]*entity.TaxDocument{}
		for k, v := range docs {
			v := v
			db.docs[k] = &v
		}
		db.ranges = map[string]*entity.FolioRange{}
		for k, v := range ranges {
			v := v
			db.ranges[k] = &v
		}
		db.envelopes = envs
		db.voids = db.voids[:nVoids]
		db.mu.Unlock()
	}
	return err
}

type memDocs struct{ db *memDB }

func (m *memDocs) Create(_ context.Context, d *entity.TaxDocument) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, e := range m.db.docs {
		if d.ExternalRef != "" && e.TenantID == d.TenantID && e.ExternalRef == d.ExternalRef {
			return domain.ErrDuplicate
		}
	}
	cp := *d
	m.db.docs[d.ID] = &cp
	return nil
}

func (m *memDocs) get(pred func(*entity.TaxDocument) bool) (*entity.TaxDocument, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, d := range m.db.docs {
		if pred(d) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memDocs) GetByID(_ context.Context, tenantID, id string) (*entity.TaxDocument, error) {
	return m.get(func(d *entity.TaxDocument) bool { return d.TenantID == tenantID && d.ID == id })
}

func (m *memDocs) GetByExternalRef(_ context.Context, tenantID, ref string) (*entity.TaxDocument, error) {
	return m.get(func(d *entity.TaxDocument) bool { return d.TenantID == tenantID && d.ExternalRef == ref })
}

func (m *memDocs) GetByTrackID(_ context.Context, tenantID, trackID string) (*entity.TaxDocument, error) {
	return m.get(func(d *entity.TaxDocument) bool { return d.TenantID == tenantID && d.TrackID == trackID })
}

func (m *memDocs) Update(_ context.Context, d *entity.TaxDocument, from entity.DocumentStatus) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cur, ok := m.db.docs[d.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != from {
		return domain.ErrConflict
	}
	cp := *d
	m.db.docs[d.ID] = &cp
	return nil
}

func (m *memDocs) Resolve(_ context.Context, tenantID, trackID string, to entity.DocumentStatus, reason string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, d := range m.db.docs {
		if d.TenantID == tenantID && d.TrackID == trackID && d.Status == entity.StatusSubmitted {
			d.Status = to
			d.RejectionReason = reason
			m.db.resolved++
			return true, nil
		}
	}
	return false, nil
}

func (m *memDocs) ListByStatus(_ context.Context, status entity.DocumentStatus, limit int) ([]*entity.TaxDocument, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*entity.TaxDocument
	for _, d := range m.db.docs {
		if d.Status == status && len(out) < limit {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDocs) DeleteDraft(_ context.Context, tenantID, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	d, ok := m.db.docs[id]
	if !ok || d.TenantID != tenantID {
		return domain.ErrNotFound
	}
	if d.Status != entity.StatusDraft {
		return domain.ErrInvalidTransition
	}
	delete(m.db.docs, id)
	return nil
}

type memRanges struct{ db *memDB }

func (m *memRanges) Create(_ context.Context, r *entity.FolioRange) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	cp := *r
	m.db.ranges[r.ID] = &cp
	return nil
}

func (m *memRanges) GetByID(_ context.Context, tenantID, id string) (*entity.FolioRange, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.ranges[id]
	if !ok || r.TenantID != tenantID {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memRanges) ListByTenant(_ context.Context, tenantID string) ([]*entity.FolioRange, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*entity.FolioRange
	for _, r := range m.db.ranges {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRanges) LockForAllocation(ctx context.Context, tenantID string, dt entity.DocumentType) ([]*entity.FolioRange, error) {
	all, _ := m.ListByTenant(ctx, tenantID)
	var out []*entity.FolioRange
	for _, r := range all {
		if r.DocumentType == dt {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRanges) Advance(_ context.Context, id string, expected int64) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r := m.db.ranges[id]
	if r == nil || r.NextAvailable != expected {
		return false, nil
	}
	r.NextAvailable++
	return true, nil
}

func (m *memRanges) SetActive(_ context.Context, _, id string, active bool) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.ranges[id].IsActive = active
	return nil
}

type memVoids struct{ db *memDB }

func (m *memVoids) Create(_ context.Context, v *entity.FolioVoid) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.voids = append(m.db.voids, v)
	return nil
}

func (m *memVoids) ListByTenant(_ context.Context, _ string, _ entity.DocumentType) ([]*entity.FolioVoid, error) {
	return m.db.voids, nil
}

type memEnvelopes struct{ db *memDB }

func (m *memEnvelopes) Create(_ context.Context, e *entity.SignedEnvelope) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.envelopes[e.DocumentID]; ok {
		return domain.ErrDuplicate
	}
	m.db.envelopes[e.DocumentID] = e
	return nil
}

func (m *memEnvelopes) GetByDocumentID(_ context.Context, _, documentID string) (*entity.SignedEnvelope, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	e, ok := m.db.envelopes[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

type memAttempts struct{ db *memDB }

func (m *memAttempts) Append(_ context.Context, a *entity.TransmissionAttempt) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.attempts = append(m.db.attempts, a)
	return nil
}

func (m *memAttempts) ListByDocument(_ context.Context, _, documentID string) ([]*entity.TransmissionAttempt, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []*entity.TransmissionAttempt
	for _, a := range m.db.attempts {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memProfiles map[string]*entity.TenantProfile

func (m memProfiles) Get(_ context.Context, tenantID string) (*entity.TenantProfile, error) {
	if p, ok := m[tenantID]; ok {
		return p, nil
	}
	return nil, domain.ErrNotFound
}

func (m memProfiles) Upsert(_ context.Context, p *entity.TenantProfile) error {
	m[p.TenantID] = p
	return nil
}

// ── colaboradores falsos ──────────────────────────────────────────────────────

type fakeStamper struct{ err error }

func (f *fakeStamper) Stamp(doc *entity.TaxDocument, _ *entity.TenantProfile, caf *entity.FolioRange, at time.Time) (*entity.Stamp, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &entity.Stamp{TEDXML: fmt.Sprintf("<TED><F>%d</F><CAF>%s</CAF></TED>", doc.Folio, caf.ID), StampedAt: at}, nil
}

type fakeSerializer struct{}

func (fakeSerializer) Serialize(doc *entity.TaxDocument, _ *entity.TenantProfile) ([]byte, error) {
	return []byte(fmt.Sprintf(`<DTE><Documento ID="%s"></Documento></DTE>`, doc.ElementID())), nil
}

type fakeSigner struct{}

func (fakeSigner) Sign(xml []byte, _ tls.Certificate) (*entity.SignedEnvelope, error) {
	return &entity.SignedEnvelope{CanonicalXML: xml, SignedXML: append(append([]byte{}, xml...), "<Signature/>"...), DigestValue: "abc"}, nil
}

type fakePackager struct{}

func (fakePackager) Package(_ *entity.TenantProfile, envs []*entity.SignedEnvelope, _ tls.Certificate, _ time.Time) ([]byte, error) {
	return append([]byte("<EnvioDTE>"), envs[0].SignedXML...), nil
}

type fakeCerts struct{ err error }

func (f *fakeCerts) Certificate(_ context.Context, _ string) (tls.Certificate, error) {
	return tls.Certificate{}, f.err
}

type fakeTransmitter struct {
	mu      sync.Mutex
	err     error
	calls   int
	delay   time.Duration // simula la latencia del upload
	payload []byte
	status  []byte
}

func (f *fakeTransmitter) Submit(_ context.Context, s *Submission) (*SubmitResult, error) {
	f.mu.Lock()
	delay := f.delay
	f.mu.Unlock()
	time.Sleep(delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.payload = s.Payload
	if f.err != nil {
		return nil, f.err
	}
	return &SubmitResult{TrackID: fmt.Sprintf("T-%d", f.calls), Attempts: 1}, nil
}

func (f *fakeTransmitter) submitCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeTransmitter) PollStatus(_ context.Context, q *StatusQuery) ([]byte, error) {
	if f.status != nil {
		return f.status, nil
	}
	return []byte(q.TrackID + "|EPR|0"), nil
}

// fakeParser interpreta "track|estado|rechazados".
type fakeParser struct{}

func (fakeParser) ParseStatus(raw []byte) (*AuthorityResponse, error) {
	parts := strings.Split(string(raw), "|")
	if len(parts) != 3 {
		return nil, fmt.Errorf("respuesta inválida %q", raw)
	}
	rejected, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, err
	}
	return &AuthorityResponse{TrackID: parts[0], State: parts[1], Rejected: rejected, Glosa: "glosa"}, nil
}

var _ BillingTxRunner = (*memDB)(nil)
var _ repository.TaxDocumentRepository = (*memDocs)(nil)
var _ repository.FolioRangeRepository = (*memRanges)(nil)
