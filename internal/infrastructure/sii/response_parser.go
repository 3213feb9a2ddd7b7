// Lectura de las respuestas del SII: RESPUESTA (CrSeed, GetToken, QueryEstUp),
// envuelta o no en SOAP, y RECEPCIONDTE del upload.

package sii

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// Estados de RESP_HDR en seed/token.
const (
	estadoOK = "00"
)

// tokenStates ESTADO de getEstUp que indican token inexistente o vencido.
var tokenStates = map[string]bool{"001": true, "002": true, "003": true}

// UploadResponse respuesta de DTEUpload.
type UploadResponse struct {
	Status  int
	TrackID string
	File    string
	Detail  string
}

// ResponseParser implementa billing.ResponseParser.
type ResponseParser struct{}

// NewResponseParser crea el parser.
func NewResponseParser() *ResponseParser {
	return &ResponseParser{}
}

// ParseStatus interpreta una RESPUESTA de QueryEstUp.
func (p *ResponseParser) ParseStatus(raw []byte) (*billing.AuthorityResponse, error) {
	resp, err := readRespuesta(raw)
	if err != nil {
		return nil, err
	}
	out := &billing.AuthorityResponse{
		TrackID: textAt(resp, "RESP_HDR/TRACKID"),
		State:   textAt(resp, "RESP_HDR/ESTADO"),
		Glosa:   textAt(resp, "RESP_HDR/GLOSA"),
	}
	if out.State == "" {
		return nil, fmt.Errorf("%w: RESPUESTA sin ESTADO", domain.ErrInvalidInput)
	}
	counters := []struct {
		tag string
		dst *int
	}{
		{"INFORMADOS", &out.Informed},
		{"ACEPTADOS", &out.Accepted},
		{"RECHAZADOS", &out.Rejected},
		{"REPAROS", &out.Repaired},
	}
	for _, c := range counters {
		v := textAt(resp, "RESP_BODY/"+c.tag)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q no es numérico", domain.ErrInvalidInput, c.tag, v)
		}
		*c.dst = n
	}
	return out, nil
}

// IsTokenError indica que la consulta falló por token inválido o vencido.
func IsTokenError(r *billing.AuthorityResponse) bool {
	return r != nil && tokenStates[r.State]
}

// ParseSeed extrae SEMILLA de la respuesta de CrSeed.
func ParseSeed(raw []byte) (string, error) {
	resp, err := readRespuesta(raw)
	if err != nil {
		return "", err
	}
	if estado := textAt(resp, "RESP_HDR/ESTADO"); estado != estadoOK {
		return "", &domain.TransmissionError{Transient: true, Code: estado, Err: errors.New("el SII no entregó semilla")}
	}
	seed := textAt(resp, "RESP_BODY/SEMILLA")
	if seed == "" {
		return "", &domain.TransmissionError{Transient: true, Err: errors.New("respuesta sin SEMILLA")}
	}
	return seed, nil
}

// ParseToken extrae TOKEN de la respuesta de GetTokenFromSeed.
func ParseToken(raw []byte) (string, error) {
	resp, err := readRespuesta(raw)
	if err != nil {
		return "", err
	}
	if estado := textAt(resp, "RESP_HDR/ESTADO"); estado != estadoOK {
		glosa := textAt(resp, "RESP_HDR/GLOSA")
		return "", &domain.TransmissionError{Transient: false, Code: estado, Err: fmt.Errorf("token rechazado: %s", glosa)}
	}
	token := textAt(resp, "RESP_BODY/TOKEN")
	if token == "" {
		return "", &domain.TransmissionError{Transient: true, Err: errors.New("respuesta sin TOKEN")}
	}
	return token, nil
}

// ParseUpload lee RECEPCIONDTE.
func ParseUpload(raw []byte) (*UploadResponse, error) {
	doc, err := readXML(raw)
	if err != nil {
		return nil, err
	}
	rec := doc.FindElement("//RECEPCIONDTE")
	if rec == nil {
		return nil, fmt.Errorf("%w: respuesta de upload sin RECEPCIONDTE", domain.ErrInvalidInput)
	}
	status, err := strconv.Atoi(textAt(rec, "STATUS"))
	if err != nil {
		return nil, fmt.Errorf("%w: STATUS inválido", domain.ErrInvalidInput)
	}
	out := &UploadResponse{
		Status:  status,
		TrackID: textAt(rec, "TRACKID"),
		File:    textAt(rec, "FILE"),
	}
	var detail []string
	for _, e := range rec.FindElements("DETAIL/ERROR") {
		detail = append(detail, strings.TrimSpace(e.Text()))
	}
	out.Detail = strings.Join(detail, "; ")
	return out, nil
}

// readRespuesta devuelve el nodo RESPUESTA. Si viene en SOAP, el XML interno llega
// escapado dentro de <…Return>.
func readRespuesta(raw []byte) (*etree.Element, error) {
	doc, err := readXML(raw)
	if err != nil {
		return nil, err
	}
	if resp := doc.FindElement("//RESPUESTA"); resp != nil {
		return resp, nil
	}
	if fault := doc.FindElement("//Fault"); fault != nil {
		return nil, &domain.TransmissionError{Transient: true, Code: textAt(fault, "faultcode"), Err: errors.New(textAt(fault, "faultstring"))}
	}
	for _, el := range doc.FindElements("//Body//*") {
		if !strings.HasSuffix(el.Tag, "Return") {
			continue
		}
		inner, err := readXML([]byte(strings.TrimSpace(el.Text())))
		if err != nil {
			return nil, err
		}
		if resp := inner.FindElement("//RESPUESTA"); resp != nil {
			return resp, nil
		}
	}
	return nil, fmt.Errorf("%w: respuesta sin RESPUESTA", domain.ErrInvalidInput)
}

func readXML(raw []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = sii.CharsetReader
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromBytes(bytes.TrimSpace(raw)); err != nil {
		return nil, fmt.Errorf("%w: XML ilegible: %v", domain.ErrInvalidInput, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: respuesta vacía", domain.ErrInvalidInput)
	}
	return doc, nil
}

func textAt(el *etree.Element, path string) string {
	if c := el.FindElement(path); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

var _ billing.ResponseParser = (*ResponseParser)(nil)
