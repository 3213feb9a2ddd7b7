package entity

import "time"

// FolioRange es un rango de folios autorizado por el SII mediante un CAF.
// NextAvailable es monótono; NextAvailable == End+1 marca el rango como agotado.
type FolioRange struct {
	ID               string
	TenantID         string
	DocumentType     DocumentType
	Start            int64
	End              int64
	NextAvailable    int64
	IssuerRUT        string     // RE del CAF
	KeyID            int64      // IDK del CAF
	AuthorizedAt     time.Time  // FA del CAF
	ExpiresAt        *time.Time // nil si el tipo no vence (boletas)
	CAFXML           string     // nodo <CAF> tal como lo entregó el SII (va dentro del TED)
	CAFPrivateKeyPEM string     // RSASK: solo para timbrar el TED
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Exhausted indica que ya no quedan folios por asignar.
func (r *FolioRange) Exhausted() bool {
	return r.NextAvailable > r.End
}

// Remaining cantidad de folios aún disponibles.
func (r *FolioRange) Remaining() int64 {
	if r.Exhausted() {
		return 0
	}
	return r.End - r.NextAvailable + 1
}

// Expired indica si el CAF venció a la fecha now.
func (r *FolioRange) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Usable indica si el rango puede entregar un folio ahora.
func (r *FolioRange) Usable(now time.Time) bool {
	return r.IsActive && !r.Exhausted() && !r.Expired(now)
}

// Contains indica si el folio pertenece al rango.
func (r *FolioRange) Contains(folio int64) bool {
	return folio >= r.Start && folio <= r.End
}

// Overlaps indica si dos rangos del mismo tipo comparten folios.
func (r *FolioRange) Overlaps(o *FolioRange) bool {
	return r.DocumentType == o.DocumentType && r.Start <= o.End && o.Start <= r.End
}

// Folio es un número asignado, junto al rango que lo emitió.
type Folio struct {
	Number  int64
	RangeID string
}

// FolioVoid registra la anulación explícita de un folio ya asignado (nunca se reutiliza).
type FolioVoid struct {
	ID           string
	TenantID     string
	DocumentType DocumentType
	Folio        int64
	DocumentID   string
	Reason       string
	VoidedAt     time.Time
}
