// EnvioDTE: carátula + DTE firmados, con la firma del SetDTE.

package sii

import (
	"crypto/tls"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// EnvelopeSigner firma el SetDTE del envío.
type EnvelopeSigner interface {
	SignEnvelope(envio []byte, cert tls.Certificate) ([]byte, error)
}

// EnvioPackager arma el EnvioDTE que se sube al SII.
type EnvioPackager struct {
	signer EnvelopeSigner
}

// NewEnvioPackager crea el packager.
func NewEnvioPackager(signer EnvelopeSigner) *EnvioPackager {
	return &EnvioPackager{signer: signer}
}

// Package incluye los DTE firmados tal cual (sin re-serializar su contenido) y firma el set.
// Devuelve UTF-8 sin declaración; el cliente agrega la declaración ISO-8859-1 al codificar.
func (p *EnvioPackager) Package(issuer *entity.TenantProfile, envelopes []*entity.SignedEnvelope, cert tls.Certificate, at time.Time) ([]byte, error) {
	if len(envelopes) == 0 {
		return nil, errors.New("sii: envío sin documentos")
	}
	if issuer.SenderRUT == "" {
		return nil, errors.New("sii: perfil sin RUT de envío")
	}
	rutEmisor, err := sii.NormalizeRUT(issuer.RUT)
	if err != nil {
		return nil, fmt.Errorf("sii: RUT emisor: %w", err)
	}
	rutEnvia, err := sii.NormalizeRUT(issuer.SenderRUT)
	if err != nil {
		return nil, fmt.Errorf("sii: RUT de envío: %w", err)
	}

	out := etree.NewDocument()
	out.WriteSettings.CanonicalText = true
	out.WriteSettings.CanonicalAttrVal = true
	envio := out.CreateElement("EnvioDTE")
	envio.CreateAttr("xmlns", sii.NamespaceDTE)
	envio.CreateAttr("version", sii.EnvioVersion)
	set := envio.CreateElement("SetDTE")
	set.CreateAttr("ID", sii.SetDTEID)

	dtes := make([]*etree.Element, 0, len(envelopes))
	counts := map[int]int{}
	for _, env := range envelopes {
		d := etree.NewDocument()
		if err := d.ReadFromBytes(env.SignedXML); err != nil {
			return nil, fmt.Errorf("sii: parsear DTE firmado %s: %w", env.DocumentID, err)
		}
		root := d.Root()
		if root == nil || root.Tag != "DTE" {
			return nil, fmt.Errorf("sii: envelope %s no contiene un DTE", env.DocumentID)
		}
		tipoEl := root.FindElement("Documento/Encabezado/IdDoc/TipoDTE")
		if tipoEl == nil {
			return nil, fmt.Errorf("sii: envelope %s sin TipoDTE", env.DocumentID)
		}
		tipo, err := strconv.Atoi(tipoEl.Text())
		if err != nil {
			return nil, fmt.Errorf("sii: TipoDTE del envelope %s: %w", env.DocumentID, err)
		}
		counts[tipo]++
		dtes = append(dtes, root.Copy())
	}

	car := set.CreateElement("Caratula")
	car.CreateAttr("version", sii.EnvioVersion)
	car.CreateElement("RutEmisor").SetText(rutEmisor)
	car.CreateElement("RutEnvia").SetText(rutEnvia)
	car.CreateElement("RutReceptor").SetText(sii.RUTSII)
	car.CreateElement("FchResol").SetText(issuer.ResolutionDate.Format(sii.DateLayout))
	car.CreateElement("NroResol").SetText(strconv.Itoa(issuer.ResolutionNumber))
	car.CreateElement("TmstFirmaEnv").SetText(at.Format(sii.TimestampLayout))
	types := make([]int, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Ints(types)
	for _, t := range types {
		sub := car.CreateElement("SubTotDTE")
		sub.CreateElement("TpoDTE").SetText(strconv.Itoa(t))
		sub.CreateElement("NroDTE").SetText(strconv.Itoa(counts[t]))
	}
	for _, d := range dtes {
		set.AddChild(d)
	}

	raw, err := out.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("sii: serializar EnvioDTE: %w", err)
	}
	return p.signer.SignEnvelope(raw, cert)
}

var _ billing.Packager = (*EnvioPackager)(nil)
