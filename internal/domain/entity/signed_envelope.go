package entity

import "time"

// SignedEnvelope resultado inmutable de la firma de un DTE (1:1 con TaxDocument).
type SignedEnvelope struct {
	DocumentID       string
	TenantID         string
	CanonicalXML     []byte   // bytes exactos sobre los que se calculó el digest
	SignatureXML     []byte   // bloque <Signature> canonicalizado
	SignedXML        []byte   // DTE completo con la firma inyectada
	CertificateChain [][]byte // DER, hoja primero
	DigestValue      string
	CreatedAt        time.Time
}
