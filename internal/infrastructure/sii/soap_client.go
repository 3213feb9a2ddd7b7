package sii

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// ── Constantes de entorno ──────────────────────────────────────────────────────

const (
	// EnvCertification ambiente de certificación (maullin).
	EnvCertification = "certification"
	// EnvProduction ambiente de producción (palena).
	EnvProduction = "production"
	// EnvDev ambiente local: autoridad simulada en proceso, sin red.
	EnvDev = "dev"

	// DevBaseURL host ficticio atendido por el simulador.
	DevBaseURL = "http://sii.simulado"

	soapNS = "http://schemas.xmlsoap.org/soap/envelope/"

	// El upload del SII rechaza clientes sin este User-Agent.
	uploadUserAgent = "Mozilla/4.0 (compatible; PROG 1.0; Windows NT 5.0; YComp 5.0.2.4)"

	maxResponseBytes = 1 << 20
)

// BaseURL devuelve el host del SII para el ambiente.
func BaseURL(env string) (string, error) {
	switch env {
	case EnvCertification:
		return sii.HostCertification, nil
	case EnvProduction:
		return sii.HostProduction, nil
	case EnvDev:
		return DevBaseURL, nil
	default:
		return "", fmt.Errorf("sii: ambiente desconocido %q (usar dev, certification o production)", env)
	}
}

// ── Cliente SOAP / HTTP ────────────────────────────────────────────────────────

// SOAPClient transporte hacia los webservices del SII. No reintenta: eso lo decide el llamador.
type SOAPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewSOAPClient crea el cliente. httpClient nil → cliente por defecto con timeout de 60 s.
func NewSOAPClient(baseURL string, httpClient *http.Client) *SOAPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &SOAPClient{baseURL: baseURL, httpClient: httpClient}
}

// ── Estructuras SOAP ──────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	XmlnsS  string   `xml:"xmlns:soapenv,attr"`
	Body    soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type getSeedBody struct {
	XMLName xml.Name `xml:"getSeed"`
}

type getTokenBody struct {
	XMLName xml.Name `xml:"getToken"`
	PszXML  string   `xml:"pszXml"`
}

type getEstUpBody struct {
	XMLName     xml.Name `xml:"getEstUp"`
	RutCompania string   `xml:"RutCompania"`
	DvCompania  string   `xml:"DvCompania"`
	TrackID     string   `xml:"TrackId"`
	Token       string   `xml:"Token"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// GetSeed solicita una semilla (CrSeed.jws).
func (c *SOAPClient) GetSeed(ctx context.Context) (string, error) {
	raw, err := c.call(ctx, sii.PathSeed, &getSeedBody{})
	if err != nil {
		return "", err
	}
	return ParseSeed(raw)
}

// GetToken canjea la semilla firmada por un token de sesión (GetTokenFromSeed.jws).
func (c *SOAPClient) GetToken(ctx context.Context, signedSeed []byte) (string, error) {
	raw, err := c.call(ctx, sii.PathToken, &getTokenBody{PszXML: string(signedSeed)})
	if err != nil {
		return "", err
	}
	return ParseToken(raw)
}

// GetEstUp consulta el estado de un envío (QueryEstUp.jws). Devuelve la respuesta SOAP cruda.
func (c *SOAPClient) GetEstUp(ctx context.Context, rutBody, rutDV, trackID, token string) ([]byte, error) {
	return c.call(ctx, sii.PathQueryEstUp, &getEstUpBody{
		RutCompania: rutBody,
		DvCompania:  rutDV,
		TrackID:     trackID,
		Token:       token,
	})
}

// UploadForm campos del formulario de DTEUpload.
type UploadForm struct {
	RutSender  string
	DvSender   string
	RutCompany string
	DvCompany  string
	FileName   string
	Payload    []byte // EnvioDTE ya codificado en ISO-8859-1
}

// Upload envía el EnvioDTE como multipart con la cookie TOKEN. Devuelve el status HTTP y el cuerpo.
func (c *SOAPClient) Upload(ctx context.Context, token string, form UploadForm) (int, []byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, f := range [][2]string{
		{"rutSender", form.RutSender},
		{"dvSender", form.DvSender},
		{"rutCompany", form.RutCompany},
		{"dvCompany", form.DvCompany},
	} {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return 0, nil, fmt.Errorf("upload: armar formulario: %w", err)
		}
	}
	part, err := w.CreateFormFile("archivo", form.FileName)
	if err != nil {
		return 0, nil, fmt.Errorf("upload: armar formulario: %w", err)
	}
	if _, err := part.Write(form.Payload); err != nil {
		return 0, nil, fmt.Errorf("upload: armar formulario: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, nil, fmt.Errorf("upload: armar formulario: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sii.PathUpload, &buf)
	if err != nil {
		return 0, nil, fmt.Errorf("upload: crear request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("User-Agent", uploadUserAgent)
	req.Header.Set("Cookie", "TOKEN="+token)
	return c.do(req)
}

// call serializa el envelope SOAP, lo envía y clasifica el status HTTP.
func (c *SOAPClient) call(ctx context.Context, path string, body interface{}) ([]byte, error) {
	payload, err := xml.Marshal(soapEnvelope{XmlnsS: soapNS, Body: soapBody{Content: body}})
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")

	status, raw, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if err := classifyHTTP(status); err != nil {
		return raw, err
	}
	return raw, nil
}

// do ejecuta el request. Los errores de red son transitorios.
func (c *SOAPClient) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return 0, nil, &domain.TransmissionError{Transient: true, Err: fmt.Errorf("timeout o cancelación: %w", ctxErr)}
		}
		return 0, nil, &domain.TransmissionError{Transient: true, Err: fmt.Errorf("llamada HTTP fallida: %w", err)}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, &domain.TransmissionError{Transient: true, StatusCode: resp.StatusCode, Err: fmt.Errorf("leer respuesta: %w", err)}
	}
	return resp.StatusCode, raw, nil
}

// classifyHTTP: 5xx transitorio, 4xx permanente.
func classifyHTTP(status int) error {
	switch {
	case status >= 500:
		return &domain.TransmissionError{Transient: true, StatusCode: status, Err: errors.New(http.StatusText(status))}
	case status >= 400:
		return &domain.TransmissionError{Transient: false, StatusCode: status, Err: errors.New(http.StatusText(status))}
	}
	return nil
}
