// Timbre electrónico (TED): DD firmado con la llave privada del CAF.

package sii

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// Largos máximos de los campos de texto del DD.
const (
	maxRSRLen = 40
	maxIT1Len = 40
)

// AlgTED algoritmo declarado en FRMT.
const AlgTED = "SHA1withRSA"

// TEDStamper calcula el TED. No guarda estado: el mismo documento produce el mismo timbre.
type TEDStamper struct{}

// NewTEDStamper crea el stamper.
func NewTEDStamper() *TEDStamper {
	return &TEDStamper{}
}

// Stamp arma el DD, lo firma con la llave del CAF y devuelve el TED serializado.
func (s *TEDStamper) Stamp(doc *entity.TaxDocument, issuer *entity.TenantProfile, caf *entity.FolioRange, at time.Time) (*entity.Stamp, error) {
	if !doc.HasFolio() {
		return nil, errors.New("sii: timbre sin folio asignado")
	}
	if caf == nil || caf.DocumentType != doc.Type || !caf.Contains(doc.Folio) {
		return nil, fmt.Errorf("sii: folio %d fuera del CAF", doc.Folio)
	}
	rutEmisor, err := sii.NormalizeRUT(issuer.RUT)
	if err != nil {
		return nil, fmt.Errorf("sii: RUT emisor: %w", err)
	}
	key, err := sii.ParseRSAPrivateKeyPEM(caf.CAFPrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("sii: llave del CAF: %w", err)
	}
	cafDoc := etree.NewDocument()
	cafDoc.ReadSettings.CharsetReader = sii.CharsetReader
	if err := cafDoc.ReadFromString(caf.CAFXML); err != nil {
		return nil, fmt.Errorf("sii: parsear CAF: %w", err)
	}
	cafEl := cafDoc.Root()
	if cafEl == nil || cafEl.Tag != "CAF" {
		return nil, errors.New("sii: el rango no trae nodo CAF")
	}

	dd := etree.NewElement("DD")
	dd.CreateElement("RE").SetText(rutEmisor)
	dd.CreateElement("TD").SetText(strconv.Itoa(int(doc.Type)))
	dd.CreateElement("F").SetText(strconv.FormatInt(doc.Folio, 10))
	dd.CreateElement("FE").SetText(doc.IssueDate.Format(sii.DateLayout))
	dd.CreateElement("RR").SetText(doc.Receiver.RUT)
	dd.CreateElement("RSR").SetText(truncate(doc.Receiver.Name, maxRSRLen))
	dd.CreateElement("MNT").SetText(doc.TotalAmount.Round(0).String())
	item := ""
	if len(doc.Lines) > 0 {
		item = doc.Lines[0].Description
	}
	dd.CreateElement("IT1").SetText(truncate(item, maxIT1Len))
	dd.AddChild(cafEl.Copy())
	dd.CreateElement("TSTED").SetText(at.Format(sii.TimestampLayout))

	ddBytes, err := compact(dd)
	if err != nil {
		return nil, err
	}
	// El SII verifica el DD en ISO-8859-1.
	latin, err := sii.EncodeLatin1(ddBytes)
	if err != nil {
		return nil, fmt.Errorf("sii: codificar DD: %w", err)
	}
	h := sha1.Sum(latin)
	sig, err := rsa.SignPKCS1v15(nil, key, crypto.SHA1, h[:])
	if err != nil {
		return nil, fmt.Errorf("sii: firmar DD: %w", err)
	}

	ted := etree.NewElement("TED")
	ted.CreateAttr("version", "1.0")
	ted.AddChild(dd)
	frmt := ted.CreateElement("FRMT")
	frmt.CreateAttr("algoritmo", AlgTED)
	frmt.SetText(base64.StdEncoding.EncodeToString(sig))
	out, err := compact(ted)
	if err != nil {
		return nil, err
	}
	return &entity.Stamp{TEDXML: string(out), StampedAt: at}, nil
}

// VerifyStamp comprueba FRMT contra la llave pública incluida en el CAF del propio TED.
func VerifyStamp(tedXML string) error {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(tedXML); err != nil {
		return fmt.Errorf("sii: parsear TED: %w", err)
	}
	dd := doc.FindElement("/TED/DD")
	frmt := doc.FindElement("/TED/FRMT")
	if dd == nil || frmt == nil {
		return errors.New("sii: TED incompleto")
	}
	cafEl := dd.SelectElement("CAF")
	if cafEl == nil {
		return errors.New("sii: TED sin CAF")
	}
	cafXML, err := compact(cafEl)
	if err != nil {
		return err
	}
	pub, err := sii.CAFPublicKey(string(cafXML))
	if err != nil {
		return err
	}
	ddBytes, err := compact(dd)
	if err != nil {
		return err
	}
	latin, err := sii.EncodeLatin1(ddBytes)
	if err != nil {
		return fmt.Errorf("sii: codificar DD: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(frmt.Text())
	if err != nil {
		return fmt.Errorf("sii: FRMT no es base64: %w", err)
	}
	h := sha1.Sum(latin)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA1, h[:], sig); err != nil {
		return fmt.Errorf("sii: FRMT no corresponde al DD: %w", err)
	}
	return nil
}

// compact serializa el elemento sin espacios entre nodos.
func compact(el *etree.Element) ([]byte, error) {
	d := etree.NewDocument()
	d.WriteSettings.CanonicalText = true
	d.WriteSettings.CanonicalAttrVal = true
	d.SetRoot(el.Copy())
	d.Indent(etree.NoIndent)
	out, err := d.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("sii: serializar %s: %w", el.Tag, err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var _ billing.Stamper = (*TEDStamper)(nil)
