// Package sii contiene catálogos, RUT y contratos alineados al formato DTE del
// Servicio de Impuestos Internos (Chile).
package sii

// =============================================================================
// Tipos de DTE (campo TipoDTE)
// =============================================================================

const (
	TipoFacturaElectronica       = 33
	TipoFacturaExentaElectronica = 34
	TipoBoletaElectronica        = 39
	TipoBoletaExentaElectronica  = 41
	TipoNotaDebitoElectronica    = 56
	TipoNotaCreditoElectronica   = 61
)

// Tasa de IVA vigente (porcentaje).
const TasaIVA = 19

// Códigos de referencia (CodRef) para notas de crédito/débito.
const (
	CodRefAnula         = 1 // Anula documento de referencia
	CodRefCorrigeTexto  = 2 // Corrige texto
	CodRefCorrigeMontos = 3 // Corrige montos
)

// =============================================================================
// Estados del upload (RECEPCIONDTE/STATUS)
// =============================================================================

const (
	UploadStatusOK            = 0
	UploadStatusSenderNoAuth  = 1
	UploadStatusFileSizeError = 2
	UploadStatusIncomplete    = 3
	UploadStatusNotAuth       = 5 // token inválido o expirado
	UploadStatusCompanyNoAuth = 6
	UploadStatusSchemaError   = 7
	UploadStatusSignError     = 8
	UploadStatusSystemLocked  = 9
	UploadStatusInternalError = 99
)

// =============================================================================
// Estados de envío (QueryEstUp / ESTADO)
// =============================================================================

const (
	EstadoRecibido       = "REC" // Envío recibido
	EstadoSchemaOK       = "SOK" // Schema validado
	EstadoCaratulaOK     = "CRT" // Carátula OK
	EstadoFirmaOK        = "FOK" // Firma de envío validada
	EstadoEnProceso      = "PRD" // Envío en proceso
	EstadoProcesado      = "EPR" // Envío procesado
	EstadoAceptadoReparo = "RPR" // Aceptado con reparos
	EstadoRechCaratula   = "RCT" // Rechazado por error en carátula
	EstadoRechFirma      = "RFR" // Rechazado por error en firma
	EstadoRechSchema     = "RSC" // Rechazado por error en schema
	EstadoRechContenido  = "RCO" // Rechazado por consistencia
	EstadoRechazado      = "RCH" // DTE rechazado
	EstadoRechDuplicado  = "RDH" // Rechazado, folio duplicado
	EstadoRechLeyenda    = "RLV" // Rechazado con leyenda
	EstadoRechRepetido   = "RPT" // Rechazado por repetido
	EstadoRechCAF        = "RCR" // Rechazado por CAF
	EstadoFolioNoValido  = "VOF" // Folio no autorizado
	EstadoPendiente      = "-11" // Aún no procesado (código numérico del WS)
)

// =============================================================================
// Endpoints por ambiente
// =============================================================================

// Hosts del SII: maullin = certificación, palena = producción.
const (
	HostCertification = "https://maullin.sii.cl"
	HostProduction    = "https://palena.sii.cl"
)

// Rutas relativas de los servicios usados por el cliente.
const (
	PathSeed       = "/DTEWS/CrSeed.jws"
	PathToken      = "/DTEWS/GetTokenFromSeed.jws"
	PathUpload     = "/cgi_dte/UPL/DTEUpload"
	PathQueryEstUp = "/DTEWS/QueryEstUp.jws"
)

// =============================================================================
// Formatos y namespaces
// =============================================================================

const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02T15:04:05"

	NamespaceDTE   = "http://www.sii.cl/SiiDte"
	NamespaceDSig  = "http://www.w3.org/2000/09/xmldsig#"
	NamespaceXSI   = "http://www.w3.org/2001/XMLSchema-instance"
	DTEVersion     = "1.0"
	EnvioVersion   = "1.0"
	SetDTEID       = "SetDoc"
	CAFValidMonths = 6
)
