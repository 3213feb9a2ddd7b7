package sii

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/testutil"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

var stampAt = time.Date(2026, 3, 10, 15, 4, 5, 0, time.UTC)

func testProfile() *entity.TenantProfile {
	return &entity.TenantProfile{
		TenantID:         "t1",
		RUT:              "76086428-5",
		LegalName:        "Empresa de Prueba SpA",
		Activity:         "Servicios informáticos",
		ActivityCode:     620200,
		Address:          "Av. Providencia 1234",
		Comuna:           "Providencia",
		City:             "Santiago",
		ResolutionNumber: 0,
		ResolutionDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		SenderRUT:        "11111111-1",
	}
}

func testRange(t *testing.T, docType entity.DocumentType) *entity.FolioRange {
	t.Helper()
	raw, _ := testutil.CAF(t, "76086428-5", int(docType), 1, 100, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC))
	caf, err := sii.ParseCAF(raw)
	require.NoError(t, err)
	return &entity.FolioRange{
		ID:               "r1",
		TenantID:         "t1",
		DocumentType:     docType,
		Start:            1,
		End:              100,
		NextAvailable:    2,
		IssuerRUT:        caf.IssuerRUT,
		KeyID:            caf.KeyID,
		AuthorizedAt:     caf.AuthorizedAt,
		CAFXML:           caf.XML,
		CAFPrivateKeyPEM: caf.PrivateKeyPEM,
		IsActive:         true,
	}
}

func invoiceRecord() billing.SourceRecord {
	return billing.SourceRecord{
		DocumentType: 33,
		ExternalRef:  "INV-1",
		IssueDate:    stampAt,
		Currency:     "CLP",
		Counterparty: billing.Counterparty{RUT: "77.777.777-7", Name: "Cliente Ltda", Activity: "Comercio al por menor", Address: "Av. Siempre Viva 123", Comuna: "Ñuñoa"},
		Lines: []billing.SourceLine{
			{Description: "Servicio de consultoría", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("1000")},
			{Description: "Licencia", Quantity: decimal.RequireFromString("2.5"), UnitPrice: decimal.RequireFromString("99.9")},
		},
	}
}

// stamped construye, asigna folio 1 y timbra el documento.
func stamped(t *testing.T, rec billing.SourceRecord) (*entity.TaxDocument, *entity.TenantProfile) {
	t.Helper()
	doc, err := billing.NewBuilder().Build("t1", rec)
	require.NoError(t, err)
	doc.ID = "doc-1"
	doc.Folio = 1
	doc.FolioRangeID = "r1"
	profile := testProfile()
	stamp, err := NewTEDStamper().Stamp(doc, profile, testRange(t, doc.Type), stampAt)
	require.NoError(t, err)
	doc.Stamp = stamp
	return doc, profile
}

// memAttempts log de intentos en memoria.
type memAttempts struct {
	mu   sync.Mutex
	list []*entity.TransmissionAttempt
}

func (m *memAttempts) Append(_ context.Context, a *entity.TransmissionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.list = append(m.list, &cp)
	return nil
}

func (m *memAttempts) ListByDocument(_ context.Context, tenantID, documentID string) ([]*entity.TransmissionAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TransmissionAttempt
	for _, a := range m.list {
		if a.TenantID == tenantID && a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAttempts) outcomes() []entity.AttemptOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.AttemptOutcome, len(m.list))
	for i, a := range m.list {
		out[i] = a.Outcome
	}
	return out
}

// memArchive archivo de respuestas crudas en memoria.
type memArchive struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (m *memArchive) Put(_ context.Context, tenantID, key string, body []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string][]byte{}
	}
	ref := tenantID + "/" + key
	m.items[ref] = body
	return ref, nil
}
