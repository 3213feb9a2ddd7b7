package sii

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// CAF Código de Autorización de Folios entregado por el SII.
type CAF struct {
	IssuerRUT     string // RE
	IssuerName    string // RS
	DocType       int    // TD
	From          int64  // RNG/D
	To            int64  // RNG/H
	AuthorizedAt  time.Time
	KeyID         int64 // IDK
	PublicKey     *rsa.PublicKey
	PrivateKeyPEM string // RSASK
	XML           string // nodo <CAF> compacto, se incrusta tal cual en el TED
}

// ParseCAF lee el archivo de autorización (<AUTORIZACION><CAF>…</CAF><RSASK>…</RSASK></AUTORIZACION>).
func ParseCAF(raw []byte) (*CAF, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = CharsetReader
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("sii: parsear CAF: %w", err)
	}
	cafEl := doc.FindElement("//CAF")
	if cafEl == nil {
		return nil, fmt.Errorf("sii: archivo sin nodo CAF")
	}
	da := cafEl.SelectElement("DA")
	if da == nil {
		return nil, fmt.Errorf("sii: CAF sin nodo DA")
	}

	c := &CAF{
		IssuerRUT:  childText(da, "RE"),
		IssuerName: childText(da, "RS"),
	}
	var errs []string
	var err error
	if c.DocType, err = strconv.Atoi(childText(da, "TD")); err != nil {
		errs = append(errs, "TD inválido")
	}
	if c.From, err = strconv.ParseInt(textAt(da, "RNG/D"), 10, 64); err != nil {
		errs = append(errs, "RNG/D inválido")
	}
	if c.To, err = strconv.ParseInt(textAt(da, "RNG/H"), 10, 64); err != nil {
		errs = append(errs, "RNG/H inválido")
	}
	if c.AuthorizedAt, err = time.Parse(DateLayout, childText(da, "FA")); err != nil {
		errs = append(errs, "FA inválida")
	}
	if c.KeyID, err = strconv.ParseInt(childText(da, "IDK"), 10, 64); err != nil {
		errs = append(errs, "IDK inválido")
	}
	if c.PublicKey, err = parseRSAPK(da.SelectElement("RSAPK")); err != nil {
		errs = append(errs, err.Error())
	}
	if err := ValidateRUT(c.IssuerRUT); err != nil {
		errs = append(errs, "RE: "+err.Error())
	}
	if c.From <= 0 || c.To < c.From {
		errs = append(errs, "rango de folios inválido")
	}
	if rsask := doc.FindElement("//RSASK"); rsask != nil {
		c.PrivateKeyPEM = strings.TrimSpace(rsask.Text())
	} else {
		errs = append(errs, "falta RSASK")
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("sii: CAF inválido: %s", strings.Join(errs, "; "))
	}

	key, err := c.PrivateKey()
	if err != nil {
		return nil, err
	}
	if key.PublicKey.N.Cmp(c.PublicKey.N) != 0 || key.PublicKey.E != c.PublicKey.E {
		return nil, fmt.Errorf("sii: RSASK no corresponde a RSAPK del CAF")
	}

	out := etree.NewDocument()
	out.SetRoot(cafEl.Copy())
	out.Indent(etree.NoIndent) // el TED se firma sobre el DD sin espacios entre elementos
	out.WriteSettings.CanonicalEndTags = true
	if c.XML, err = out.WriteToString(); err != nil {
		return nil, fmt.Errorf("sii: serializar CAF: %w", err)
	}
	return c, nil
}

// PrivateKey decodifica la llave RSASK (PKCS#1 o PKCS#8).
func (c *CAF) PrivateKey() (*rsa.PrivateKey, error) {
	return ParseRSAPrivateKeyPEM(c.PrivateKeyPEM)
}

// ParseRSAPrivateKeyPEM decodifica una llave RSA en PEM.
func ParseRSAPrivateKeyPEM(s string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("sii: llave privada sin bloque PEM")
	}
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return k, nil
	}
	k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("sii: parsear llave privada: %w", err)
	}
	rk, ok := k.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("sii: la llave privada no es RSA")
	}
	return rk, nil
}

// CAFPublicKey extrae la llave pública (RSAPK) de un nodo <CAF> serializado.
func CAFPublicKey(cafXML string) (*rsa.PublicKey, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(cafXML); err != nil {
		return nil, fmt.Errorf("sii: parsear CAF: %w", err)
	}
	pk, err := parseRSAPK(doc.FindElement("//DA/RSAPK"))
	if err != nil {
		return nil, fmt.Errorf("sii: %w", err)
	}
	return pk, nil
}

func parseRSAPK(el *etree.Element) (*rsa.PublicKey, error) {
	if el == nil {
		return nil, fmt.Errorf("falta RSAPK")
	}
	m, err := base64.StdEncoding.DecodeString(strings.TrimSpace(childText(el, "M")))
	if err != nil || len(m) == 0 {
		return nil, fmt.Errorf("RSAPK/M inválido")
	}
	e, err := base64.StdEncoding.DecodeString(strings.TrimSpace(childText(el, "E")))
	if err != nil || len(e) == 0 {
		return nil, fmt.Errorf("RSAPK/E inválido")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(m),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}

func childText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func textAt(el *etree.Element, path string) string {
	if c := el.FindElement(path); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}
