package entity

import "time"

// TenantProfile datos del emisor exigidos por el XML del DTE y la Carátula del envío.
// El certificado se referencia por ruta; la contraseña vive en la variable de entorno indicada.
type TenantProfile struct {
	TenantID         string
	RUT              string // RUT emisor
	LegalName        string // RznSoc
	Activity         string // GiroEmis
	ActivityCode     int    // Acteco
	Address          string
	Comuna           string
	City             string
	ResolutionNumber int       // NroResol
	ResolutionDate   time.Time // FchResol
	SenderRUT        string    // RUT de quien firma y envía (RutEnvia)
	CertPath         string
	CertPasswordEnv  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
