package dto

import (
	"time"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

// ImportCAFRequest body JSON alternativo al multipart para POST /api/folio-ranges.
type ImportCAFRequest struct {
	CAFXML string `json:"caf_xml"`
}

// FolioRangeResponse rango CAF sin la llave privada.
type FolioRangeResponse struct {
	ID            string     `json:"id"`
	DocumentType  int        `json:"document_type"`
	Start         int64      `json:"start"`
	End           int64      `json:"end"`
	NextAvailable int64      `json:"next_available"`
	Remaining     int64      `json:"remaining"`
	AuthorizedAt  string     `json:"authorized_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	IsActive      bool       `json:"is_active"`
}

// NewFolioRangeResponse arma la respuesta; nunca incluye el CAF ni su llave.
func NewFolioRangeResponse(r *entity.FolioRange) FolioRangeResponse {
	return FolioRangeResponse{
		ID:            r.ID,
		DocumentType:  int(r.DocumentType),
		Start:         r.Start,
		End:           r.End,
		NextAvailable: r.NextAvailable,
		Remaining:     r.Remaining(),
		AuthorizedAt:  r.AuthorizedAt.Format("2006-01-02"),
		ExpiresAt:     r.ExpiresAt,
		IsActive:      r.IsActive,
	}
}
