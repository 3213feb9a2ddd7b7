// Package testutil genera material criptográfico y archivos CAF para pruebas.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"
)

var (
	keyOnce sync.Once
	keys    []*rsa.PrivateKey
)

// Key devuelve una llave RSA de prueba. Las llaves se generan una vez por proceso.
func Key(t testing.TB, i int) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		for n := 0; n < 4; n++ {
			k, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
			keys = append(keys, k)
		}
	})
	return keys[i%len(keys)]
}

// CAF construye un archivo de autorización de folios como el que entrega el SII.
func CAF(t testing.TB, issuerRUT string, docType int, from, to int64, authorized time.Time) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key := Key(t, 3)
	m := base64.StdEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.StdEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())
	priv := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pub, _ := x509.MarshalPKIXPublicKey(&key.PublicKey)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub})

	xml := fmt.Sprintf(`<?xml version="1.0"?>
<AUTORIZACION>
<CAF version="1.0">
<DA>
<RE>%s</RE>
<RS>EMPRESA DE PRUEBA SPA</RS>
<TD>%d</TD>
<RNG><D>%d</D><H>%d</H></RNG>
<FA>%s</FA>
<RSAPK><M>%s</M><E>%s</E></RSAPK>
<IDK>100</IDK>
</DA>
<FRMA algoritmo="SHA1withRSA">ZmlybWEtZGVsLXNpaQ==</FRMA>
</CAF>
<RSASK>%s</RSASK>
<RSAPUBK>%s</RSAPUBK>
</AUTORIZACION>
`, issuerRUT, docType, from, to, authorized.Format("2006-01-02"), m, e, priv, pubPEM)
	return []byte(xml), key
}

// Certificate emite un certificado de firma firmado por una CA de prueba.
// Devuelve el certificado con su cadena y un pool con la CA como raíz.
func Certificate(t testing.TB, notBefore, notAfter time.Time) (tls.Certificate, *x509.CertPool) {
	t.Helper()
	caKey, leafKey := Key(t, 0), Key(t, 1)

	caTpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "CA Prueba", Organization: []string{"Autoridad Certificadora de Prueba"}},
		NotBefore:             notBefore.Add(-24 * time.Hour),
		NotAfter:              notAfter.Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTpl, caTpl, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("crear CA: %v", err)
	}
	ca, _ := x509.ParseCertificate(caDER)

	leafTpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Firmante Prueba", SerialNumber: "11111111-1"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTpl, ca, &leafKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("crear certificado: %v", err)
	}
	leaf, _ := x509.ParseCertificate(leafDER)

	pool := x509.NewCertPool()
	pool.AddCert(ca)
	return tls.Certificate{
		Certificate: [][]byte{leafDER, caDER},
		PrivateKey:  leafKey,
		Leaf:        leaf,
	}, pool
}

// ValidCertificate certificado vigente hoy.
func ValidCertificate(t testing.TB) (tls.Certificate, *x509.CertPool) {
	now := time.Now()
	return Certificate(t, now.Add(-time.Hour), now.AddDate(1, 0, 0))
}
