package billing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

func submittedDoc(db *memDB, id, track string) {
	db.docs[id] = &entity.TaxDocument{ID: id, TenantID: "t1", Type: entity.DocTypeInvoice, Folio: 7, TrackID: track, Status: entity.StatusSubmitted}
}

func TestProcess_MismaRespuestaDosVecesUnaSolaTransicion(t *testing.T) {
	db := newMemDB()
	submittedDoc(db, "d1", "100")
	p := NewResponseProcessor(&memDocs{db}, fakeParser{}, zerolog.Nop())

	status, err := p.Process(context.Background(), "t1", []byte("100|EPR|0"))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, status)

	status, err = p.Process(context.Background(), "t1", []byte("100|EPR|0"))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, status)
	assert.Equal(t, 1, db.resolved)
}

func TestProcess_RechazoConMotivo(t *testing.T) {
	db := newMemDB()
	submittedDoc(db, "d1", "200")
	p := NewResponseProcessor(&memDocs{db}, fakeParser{}, zerolog.Nop())

	status, err := p.Process(context.Background(), "t1", []byte("200|RCT|0"))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, status)
	assert.Equal(t, "RCT: glosa", db.docs["d1"].RejectionReason)

	// una respuesta posterior distinta no cambia el estado terminal
	status, err = p.Process(context.Background(), "t1", []byte("200|EPR|0"))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRejected, status)
}

func TestProcess_EnProcesoNoCambiaEstado(t *testing.T) {
	db := newMemDB()
	submittedDoc(db, "d1", "300")
	p := NewResponseProcessor(&memDocs{db}, fakeParser{}, zerolog.Nop())

	status, err := p.Process(context.Background(), "t1", []byte("300|SOK|0"))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, status)
	assert.Equal(t, 0, db.resolved)
}

func TestProcess_TrackDesconocido(t *testing.T) {
	p := NewResponseProcessor(&memDocs{newMemDB()}, fakeParser{}, zerolog.Nop())
	_, err := p.Process(context.Background(), "t1", []byte("999|EPR|0"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMapAuthorityState(t *testing.T) {
	cases := []struct {
		state    string
		rejected int
		want     entity.DocumentStatus
	}{
		{"EPR", 0, entity.StatusAccepted},
		{"EPR", 1, entity.StatusRejected},
		{"RPR", 0, entity.StatusAccepted},
		{"RCT", 0, entity.StatusRejected},
		{"RFR", 0, entity.StatusRejected},
		{"RSC", 0, entity.StatusRejected},
		{"RCO", 0, entity.StatusRejected},
		{"RCH", 0, entity.StatusRejected},
		{"RDH", 0, entity.StatusRejected},
		{"RLV", 0, entity.StatusRejected},
		{"RPT", 0, entity.StatusRejected},
		{"RCR", 0, entity.StatusRejected},
		{"VOF", 0, entity.StatusRejected},
		{"REC", 0, entity.StatusSubmitted},
		{"SOK", 0, entity.StatusSubmitted},
		{"CRT", 0, entity.StatusSubmitted},
		{"FOK", 0, entity.StatusSubmitted},
		{"PRD", 0, entity.StatusSubmitted},
		{"-11", 0, entity.StatusSubmitted},
		{"XYZ", 0, entity.StatusSubmitted},
	}
	for _, c := range cases {
		got, _ := MapAuthorityState(&AuthorityResponse{State: c.state, Rejected: c.rejected})
		assert.Equal(t, c.want, got, c.state)
	}
}
