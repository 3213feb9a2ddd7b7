// Firma XML-DSig enveloped para DTE, EnvioDTE y semilla de autenticación del SII.

package signer

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// ErrSignatureInvalid la firma no corresponde al contenido o a la llave declarada.
var ErrSignatureInvalid = errors.New("firma XML inválida")

// Option configura el servicio.
type Option func(*DigitalSignatureService)

// WithRoots fija las CA contra las que se valida la cadena del certificado.
func WithRoots(roots *x509.CertPool) Option {
	return func(s *DigitalSignatureService) { s.roots = roots }
}

// WithClock reemplaza el reloj usado para la vigencia del certificado.
func WithClock(now func() time.Time) Option {
	return func(s *DigitalSignatureService) { s.now = now }
}

// DigitalSignatureService firma con RSA-SHA1 e inyecta <Signature> junto al elemento referenciado.
type DigitalSignatureService struct {
	roots *x509.CertPool
	now   func() time.Time
}

// NewDigitalSignatureService crea el servicio.
func NewDigitalSignatureService(opts ...Option) *DigitalSignatureService {
	s := &DigitalSignatureService{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CheckCertificate valida el certificado con las raíces y el reloj del servicio.
func (s *DigitalSignatureService) CheckCertificate(cert tls.Certificate) (*x509.Certificate, error) {
	leaf, _, err := CheckCertificate(cert, s.roots, s.now())
	return leaf, err
}

// Sign firma el DTE canónico. La Reference apunta al Documento (#F{folio}T{tipo})
// y la firma queda como hermana del Documento dentro de <DTE>.
func (s *DigitalSignatureService) Sign(canonicalXML []byte, cert tls.Certificate) (*entity.SignedEnvelope, error) {
	if len(canonicalXML) == 0 {
		return nil, errors.New("sii: XML vacío")
	}
	leaf, priv, err := CheckCertificate(cert, s.roots, s.now())
	if err != nil {
		return nil, err
	}
	doc, err := readDocument(canonicalXML)
	if err != nil {
		return nil, err
	}
	target := doc.FindElement("//*[@ID]")
	if target == nil {
		return nil, errors.New("sii: el DTE no tiene elemento con atributo ID")
	}
	sig, digest, err := s.signElement(target, leaf, priv, cert.Certificate)
	if err != nil {
		return nil, err
	}
	signed, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("sii: serializar DTE firmado: %w", err)
	}
	sigXML, err := canonicalSubset(sig)
	if err != nil {
		return nil, err
	}
	chain := make([][]byte, len(cert.Certificate))
	copy(chain, cert.Certificate)
	return &entity.SignedEnvelope{
		CanonicalXML:     canonicalXML,
		SignatureXML:     sigXML,
		SignedXML:        signed,
		CertificateChain: chain,
		DigestValue:      digest,
	}, nil
}

// SignEnvelope firma el SetDTE (ID SetDoc) de un EnvioDTE ya armado.
func (s *DigitalSignatureService) SignEnvelope(envio []byte, cert tls.Certificate) ([]byte, error) {
	return s.SignElementByID(envio, sii.SetDTEID, cert)
}

// SignElementByID firma el elemento con el ID dado e inserta la firma en su padre.
func (s *DigitalSignatureService) SignElementByID(data []byte, id string, cert tls.Certificate) ([]byte, error) {
	leaf, priv, err := CheckCertificate(cert, s.roots, s.now())
	if err != nil {
		return nil, err
	}
	doc, err := readDocument(data)
	if err != nil {
		return nil, err
	}
	target := doc.FindElement(fmt.Sprintf("//*[@ID='%s']", id))
	if target == nil {
		return nil, fmt.Errorf("sii: no existe elemento con ID %s", id)
	}
	if _, _, err := s.signElement(target, leaf, priv, cert.Certificate); err != nil {
		return nil, err
	}
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("sii: serializar XML firmado: %w", err)
	}
	return out, nil
}

// SignSeed arma y firma el getToken con la semilla (Reference URI="").
func (s *DigitalSignatureService) SignSeed(seed string, cert tls.Certificate) ([]byte, error) {
	leaf, priv, err := CheckCertificate(cert, s.roots, s.now())
	if err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalText = true
	root := doc.CreateElement("getToken")
	root.CreateElement("item").CreateElement("Semilla").SetText(seed)

	canonical, err := canonicalSubset(root)
	if err != nil {
		return nil, err
	}
	digest := sha1Base64(canonical)
	sig, err := buildSignature("", digest, true, leaf, priv, cert.Certificate)
	if err != nil {
		return nil, err
	}
	root.AddChild(sig)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("sii: serializar semilla firmada: %w", err)
	}
	return out, nil
}

// Verify recalcula el digest de cada <Signature> del documento y valida SignatureValue
// con la llave del certificado incluido.
func (s *DigitalSignatureService) Verify(signedXML []byte) error {
	doc, err := readDocument(signedXML)
	if err != nil {
		return err
	}
	sigs := doc.FindElements("//Signature")
	if len(sigs) == 0 {
		return fmt.Errorf("%w: documento sin Signature", ErrSignatureInvalid)
	}
	for _, sig := range sigs {
		if err := verifySignature(doc, sig); err != nil {
			return err
		}
	}
	return nil
}

// ── internos ──

func (s *DigitalSignatureService) signElement(target *etree.Element, leaf *x509.Certificate, priv *rsa.PrivateKey, chain [][]byte) (*etree.Element, string, error) {
	id := target.SelectAttrValue("ID", "")
	canonical, err := canonicalSubset(target)
	if err != nil {
		return nil, "", err
	}
	digest := sha1Base64(canonical)
	sig, err := buildSignature("#"+id, digest, false, leaf, priv, chain)
	if err != nil {
		return nil, "", err
	}
	parent := target.Parent()
	if parent == nil || parent.Tag == "" {
		return nil, "", errors.New("sii: el elemento firmado no puede ser la raíz")
	}
	parent.InsertChildAt(target.Index()+1, sig)
	return sig, digest, nil
}

func signedInfo(uri, digest string, enveloped bool, withNS bool) string {
	var sb strings.Builder
	if withNS {
		sb.WriteString(`<SignedInfo xmlns="` + NamespaceDS + `">`)
	} else {
		sb.WriteString(`<SignedInfo>`)
	}
	sb.WriteString(`<CanonicalizationMethod Algorithm="` + AlgC14N + `"></CanonicalizationMethod>`)
	sb.WriteString(`<SignatureMethod Algorithm="` + AlgRSASHA1 + `"></SignatureMethod>`)
	sb.WriteString(`<Reference URI="` + uri + `">`)
	if enveloped {
		sb.WriteString(`<Transforms><Transform Algorithm="` + TransformEnveloped + `"></Transform></Transforms>`)
	} else {
		sb.WriteString(`<Transforms><Transform Algorithm="` + AlgC14N + `"></Transform></Transforms>`)
	}
	sb.WriteString(`<DigestMethod Algorithm="` + AlgSHA1 + `"></DigestMethod>`)
	sb.WriteString(`<DigestValue>` + digest + `</DigestValue>`)
	sb.WriteString(`</Reference>`)
	sb.WriteString(`</SignedInfo>`)
	return sb.String()
}

func buildSignature(uri, digest string, enveloped bool, leaf *x509.Certificate, priv *rsa.PrivateKey, chain [][]byte) (*etree.Element, error) {
	canonicalSI, err := sii.Canonicalize([]byte(signedInfo(uri, digest, enveloped, true)))
	if err != nil {
		return nil, err
	}
	h := sha1.Sum(canonicalSI)
	value, err := rsa.SignPKCS1v15(nil, priv, crypto.SHA1, h[:])
	if err != nil {
		return nil, fmt.Errorf("sii: firmar SignedInfo: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(`<Signature xmlns="` + NamespaceDS + `">`)
	sb.WriteString(signedInfo(uri, digest, enveloped, false))
	sb.WriteString(`<SignatureValue>` + base64.StdEncoding.EncodeToString(value) + `</SignatureValue>`)
	sb.WriteString(`<KeyInfo><KeyValue><RSAKeyValue>`)
	sb.WriteString(`<Modulus>` + base64.StdEncoding.EncodeToString(priv.PublicKey.N.Bytes()) + `</Modulus>`)
	sb.WriteString(`<Exponent>` + base64.StdEncoding.EncodeToString(big.NewInt(int64(priv.PublicKey.E)).Bytes()) + `</Exponent>`)
	sb.WriteString(`</RSAKeyValue></KeyValue><X509Data>`)
	if len(chain) == 0 {
		chain = [][]byte{leaf.Raw}
	}
	for _, der := range chain {
		sb.WriteString(`<X509Certificate>` + base64.StdEncoding.EncodeToString(der) + `</X509Certificate>`)
	}
	sb.WriteString(`</X509Data></KeyInfo></Signature>`)

	sigDoc := etree.NewDocument()
	if err := sigDoc.ReadFromString(sb.String()); err != nil {
		return nil, fmt.Errorf("sii: parsear Signature: %w", err)
	}
	return sigDoc.Root(), nil
}

func verifySignature(doc *etree.Document, sig *etree.Element) error {
	si := sig.SelectElement("SignedInfo")
	if si == nil {
		return fmt.Errorf("%w: sin SignedInfo", ErrSignatureInvalid)
	}
	ref := si.SelectElement("Reference")
	if ref == nil {
		return fmt.Errorf("%w: sin Reference", ErrSignatureInvalid)
	}
	uri := ref.SelectAttrValue("URI", "")

	var target *etree.Element
	if uri == "" {
		target = doc.Root().Copy()
		for _, own := range target.SelectElements("Signature") {
			target.RemoveChild(own)
		}
	} else {
		target = doc.FindElement(fmt.Sprintf("//*[@ID='%s']", strings.TrimPrefix(uri, "#")))
		if target == nil {
			return fmt.Errorf("%w: referencia %s no encontrada", ErrSignatureInvalid, uri)
		}
	}
	canonical, err := canonicalSubset(target)
	if err != nil {
		return err
	}
	if got, want := sha1Base64(canonical), strings.TrimSpace(elementText(ref, "DigestValue")); got != want {
		return fmt.Errorf("%w: digest de %s no coincide", ErrSignatureInvalid, uri)
	}

	canonicalSI, err := canonicalSubset(si)
	if err != nil {
		return err
	}
	value, err := base64.StdEncoding.DecodeString(stripSpaces(elementText(sig, "SignatureValue")))
	if err != nil {
		return fmt.Errorf("%w: SignatureValue no es base64", ErrSignatureInvalid)
	}
	pub, err := publicKey(sig)
	if err != nil {
		return err
	}
	h := sha1.Sum(canonicalSI)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, h[:], value); err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return nil
}

// publicKey toma la llave del primer X509Certificate o, si no hay, de RSAKeyValue.
func publicKey(sig *etree.Element) (*rsa.PublicKey, error) {
	if certEl := sig.FindElement("KeyInfo/X509Data/X509Certificate"); certEl != nil {
		der, err := base64.StdEncoding.DecodeString(stripSpaces(certEl.Text()))
		if err != nil {
			return nil, fmt.Errorf("%w: X509Certificate no es base64", ErrSignatureInvalid)
		}
		c, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		pub, ok := c.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: el certificado no es RSA", ErrSignatureInvalid)
		}
		return pub, nil
	}
	kv := sig.FindElement("KeyInfo/KeyValue/RSAKeyValue")
	if kv == nil {
		return nil, fmt.Errorf("%w: sin KeyInfo", ErrSignatureInvalid)
	}
	m, err1 := base64.StdEncoding.DecodeString(stripSpaces(elementText(kv, "Modulus")))
	e, err2 := base64.StdEncoding.DecodeString(stripSpaces(elementText(kv, "Exponent")))
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("%w: RSAKeyValue inválido", ErrSignatureInvalid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(m), E: int(new(big.Int).SetBytes(e).Int64())}, nil
}

// canonicalSubset canonicaliza el elemento como subconjunto del documento: declara en la
// copia los namespaces heredados de sus ancestros.
func canonicalSubset(el *etree.Element) ([]byte, error) {
	c := el.Copy()
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if a.Space != "xmlns" && !(a.Space == "" && a.Key == "xmlns") {
				continue
			}
			if c.SelectAttr(a.FullKey()) == nil {
				c.CreateAttr(a.FullKey(), a.Value)
			}
		}
	}
	d := etree.NewDocument()
	d.WriteSettings.CanonicalText = true
	d.WriteSettings.CanonicalAttrVal = true
	d.SetRoot(c)
	raw, err := d.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("sii: serializar %s: %w", el.Tag, err)
	}
	return sii.Canonicalize(raw)
}

func readDocument(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = sii.CharsetReader
	doc.WriteSettings.CanonicalText = true
	doc.WriteSettings.CanonicalAttrVal = true
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("sii: parsear XML: %w", err)
	}
	if doc.Root() == nil {
		return nil, errors.New("sii: documento sin raíz")
	}
	return doc, nil
}

func elementText(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return c.Text()
	}
	return ""
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func sha1Base64(b []byte) string {
	h := sha1.Sum(b)
	return base64.StdEncoding.EncodeToString(h[:])
}

var _ billing.Signer = (*DigitalSignatureService)(nil)
