// Carga de certificado desde .p12 (PKCS#12) o par PEM, y validación previa a firmar.

package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain"
	"golang.org/x/crypto/pkcs12"
)

// LoadFromP12 carga certificado, cadena y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("leer p12: %w", err)
	}
	return ParseP12(data, password)
}

// ParseP12 decodifica un PKCS#12 en memoria. A diferencia de pkcs12.Decode acepta
// archivos con la cadena completa; la hoja queda primero.
func ParseP12(data []byte, password string) (tls.Certificate, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decodificar p12: %w", err)
	}
	var (
		key   crypto.PrivateKey
		certs []*x509.Certificate
	)
	for _, b := range blocks {
		switch b.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(b.Bytes)
			if err != nil {
				return tls.Certificate{}, fmt.Errorf("parsear certificado del p12: %w", err)
			}
			certs = append(certs, c)
		case "PRIVATE KEY":
			if key, err = parsePrivateKey(b.Bytes); err != nil {
				return tls.Certificate{}, err
			}
		}
	}
	if key == nil || len(certs) == 0 {
		return tls.Certificate{}, errors.New("p12 sin llave o sin certificado")
	}
	return assemble(key, certs), nil
}

// LoadFromPEM carga certificado y llave desde archivos PEM (certificado y llave por separado, o combinados).
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if keyPath == "" {
		keyPath = certPath
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("cargar PEM: %w", err)
	}
	if cert.Leaf == nil {
		cert.Leaf, _ = x509.ParseCertificate(cert.Certificate[0])
	}
	return cert, nil
}

// LoadTrustRoots lee un bundle PEM con las CA aceptadas. Ruta vacía → nil (sin verificación de cadena).
func LoadTrustRoots(path string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer raíces de confianza: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("raíces de confianza: %s no contiene certificados PEM", path)
	}
	return pool, nil
}

// CheckCertificate valida vigencia, llave y cadena. Cualquier falla es *domain.CertificateError.
func CheckCertificate(cert tls.Certificate, roots *x509.CertPool, now time.Time) (*x509.Certificate, *rsa.PrivateKey, error) {
	if len(cert.Certificate) == 0 || cert.PrivateKey == nil {
		return nil, nil, &domain.CertificateError{Reason: domain.CertMissing}
	}
	leaf := cert.Leaf
	if leaf == nil {
		var err error
		if leaf, err = x509.ParseCertificate(cert.Certificate[0]); err != nil {
			return nil, nil, &domain.CertificateError{Reason: domain.CertMissing, Err: err}
		}
	}
	if now.Before(leaf.NotBefore) {
		return nil, nil, &domain.CertificateError{Reason: domain.CertNotYetValid}
	}
	if now.After(leaf.NotAfter) {
		return nil, nil, &domain.CertificateError{Reason: domain.CertExpired}
	}
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, &domain.CertificateError{Reason: domain.CertUnsupported}
	}
	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok || !priv.PublicKey.Equal(pub) {
		return nil, nil, &domain.CertificateError{Reason: domain.CertKeyMismatch}
	}
	if roots != nil {
		inter := x509.NewCertPool()
		for _, der := range cert.Certificate[1:] {
			if c, err := x509.ParseCertificate(der); err == nil {
				inter.AddCert(c)
			}
		}
		_, err := leaf.Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: inter,
			CurrentTime:   now,
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		})
		if err != nil {
			return nil, nil, &domain.CertificateError{Reason: domain.CertUntrusted, Err: err}
		}
	}
	return leaf, priv, nil
}

// Fingerprint SHA-1 del certificado en base64, para logs (nunca la llave).
func Fingerprint(cert *x509.Certificate) string {
	h := sha1.Sum(cert.Raw)
	return base64.StdEncoding.EncodeToString(h[:])
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("llave privada no soportada: %w", err)
	}
	return k, nil
}

// assemble arma el tls.Certificate con la hoja (la que corresponde a la llave) primero.
func assemble(key crypto.PrivateKey, certs []*x509.Certificate) tls.Certificate {
	leafIdx := 0
	if signer, ok := key.(crypto.Signer); ok {
		type equaler interface{ Equal(crypto.PublicKey) bool }
		if pub, ok := signer.Public().(equaler); ok {
			for i, c := range certs {
				if pub.Equal(c.PublicKey) {
					leafIdx = i
					break
				}
			}
		}
	}
	out := tls.Certificate{PrivateKey: key, Leaf: certs[leafIdx]}
	out.Certificate = append(out.Certificate, certs[leafIdx].Raw)
	for i, c := range certs {
		if i != leafIdx {
			out.Certificate = append(out.Certificate, c.Raw)
		}
	}
	return out
}

// EncodePEM serializa el certificado y la llave a PEM (usado por el CLI al convertir p12).
func EncodePEM(cert tls.Certificate) ([]byte, error) {
	var out []byte
	for _, der := range cert.Certificate {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}
	der, err := x509.MarshalPKCS8PrivateKey(cert.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("serializar llave: %w", err)
	}
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})...)
	return out, nil
}
