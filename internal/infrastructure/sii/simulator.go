// Autoridad simulada para SII_ENV=dev: atiende semilla, token, upload y consulta de estado
// en proceso, sin red.

package sii

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// Verifier valida las firmas del EnvioDTE recibido.
type Verifier interface {
	Verify(signedXML []byte) error
}

type simTrack struct {
	state    string
	glosa    string
	informed int
	rejected int
}

// Simulator imita los webservices del SII. Con verifier nil acepta todo envío bien formado.
type Simulator struct {
	verifier Verifier

	mu        sync.Mutex
	seq       int64
	seeds     map[string]bool
	tokens    map[string]bool
	tracks    map[string]simTrack
	nextTrack int64
}

// NewSimulator crea el simulador.
func NewSimulator(verifier Verifier) *Simulator {
	return &Simulator{
		verifier:  verifier,
		seeds:     make(map[string]bool),
		tokens:    make(map[string]bool),
		tracks:    make(map[string]simTrack),
		nextTrack: 1000,
	}
}

// Transport RoundTripper que despacha los requests al simulador sin abrir sockets.
func (s *Simulator) Transport() http.RoundTripper {
	return simTransport{h: s}
}

type simTransport struct{ h http.Handler }

func (t simTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	t.h.ServeHTTP(rec, req)
	resp := rec.Result()
	resp.Request = req
	return resp, nil
}

// ServeHTTP implementa http.Handler.
func (s *Simulator) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case sii.PathSeed:
		s.seed(w)
	case sii.PathToken:
		s.token(w, r)
	case sii.PathUpload:
		s.upload(w, r)
	case sii.PathQueryEstUp:
		s.estUp(w, r)
	default:
		http.NotFound(w, r)
	}
}

// Reject fuerza el estado de un envío (útil para probar rechazos en dev).
func (s *Simulator) Reject(trackID, state, glosa string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracks[trackID] = simTrack{state: state, glosa: glosa, informed: 1, rejected: 1}
}

func (s *Simulator) seed(w http.ResponseWriter) {
	s.mu.Lock()
	s.seq++
	seed := fmt.Sprintf("%012d", s.seq)
	s.seeds[seed] = true
	s.mu.Unlock()
	writeSOAP(w, "getSeed", `<SII:RESP_BODY><SEMILLA>`+seed+`</SEMILLA></SII:RESP_BODY><SII:RESP_HDR><ESTADO>00</ESTADO></SII:RESP_HDR>`)
}

func (s *Simulator) token(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	psz := doc.FindElement("//pszXml")
	if psz == nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	signed := []byte(psz.Text())
	inner := etree.NewDocument()
	if err := inner.ReadFromBytes(signed); err != nil {
		writeSOAP(w, "getToken", `<SII:RESP_HDR><ESTADO>10</ESTADO><GLOSA>Error Interno</GLOSA></SII:RESP_HDR>`)
		return
	}
	seed := ""
	if el := inner.FindElement("//Semilla"); el != nil {
		seed = strings.TrimSpace(el.Text())
	}
	s.mu.Lock()
	known := s.seeds[seed]
	delete(s.seeds, seed)
	s.mu.Unlock()
	if !known {
		writeSOAP(w, "getToken", `<SII:RESP_HDR><ESTADO>-07</ESTADO><GLOSA>Semilla no existe</GLOSA></SII:RESP_HDR>`)
		return
	}
	if s.verifier != nil {
		if err := s.verifier.Verify(signed); err != nil {
			writeSOAP(w, "getToken", `<SII:RESP_HDR><ESTADO>-03</ESTADO><GLOSA>Firma invalida</GLOSA></SII:RESP_HDR>`)
			return
		}
	}
	tok := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:13]
	s.mu.Lock()
	s.tokens[tok] = true
	s.mu.Unlock()
	writeSOAP(w, "getToken", `<SII:RESP_BODY><TOKEN>`+tok+`</TOKEN></SII:RESP_BODY><SII:RESP_HDR><ESTADO>00</ESTADO><GLOSA>Token Creado</GLOSA></SII:RESP_HDR>`)
}

func (s *Simulator) upload(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("TOKEN")
	s.mu.Lock()
	authorized := err == nil && s.tokens[cookie.Value]
	s.mu.Unlock()
	if !authorized {
		writeRecepcion(w, sii.UploadStatusNotAuth, "")
		return
	}
	file, _, err := r.FormFile("archivo")
	if err != nil {
		writeRecepcion(w, sii.UploadStatusIncomplete, "")
		return
	}
	defer file.Close()
	raw, _ := io.ReadAll(file)
	payload, err := sii.DecodeLatin1(stripDecl(raw))
	if err != nil {
		writeRecepcion(w, sii.UploadStatusSchemaError, "")
		return
	}

	track := simTrack{state: sii.EstadoProcesado, glosa: "Envio Procesado"}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(payload); err != nil || doc.FindElement("//SetDTE") == nil {
		writeRecepcion(w, sii.UploadStatusSchemaError, "")
		return
	}
	track.informed = len(doc.FindElements("//SetDTE/DTE"))
	if s.verifier != nil {
		if err := s.verifier.Verify(payload); err != nil {
			track = simTrack{state: sii.EstadoRechFirma, glosa: "Rechazado por Error en Firma", informed: track.informed, rejected: track.informed}
		}
	}

	s.mu.Lock()
	s.nextTrack++
	trackID := strconv.FormatInt(s.nextTrack, 10)
	s.tracks[trackID] = track
	s.mu.Unlock()
	writeRecepcion(w, sii.UploadStatusOK, trackID)
}

func (s *Simulator) estUp(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req struct {
		Body struct {
			Q struct {
				TrackID string `xml:"TrackId"`
				Token   string `xml:"Token"`
			} `xml:"getEstUp"`
		} `xml:"Body"`
	}
	if err := xml.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	authorized := s.tokens[req.Body.Q.Token]
	t, ok := s.tracks[req.Body.Q.TrackID]
	s.mu.Unlock()
	if !authorized {
		writeSOAP(w, "getEstUp", `<SII:RESP_HDR><ESTADO>001</ESTADO><GLOSA>Token invalido</GLOSA></SII:RESP_HDR>`)
		return
	}
	if !ok {
		writeSOAP(w, "getEstUp", `<SII:RESP_HDR><TRACKID>`+req.Body.Q.TrackID+`</TRACKID><ESTADO>-11</ESTADO><GLOSA>TrackId no existe</GLOSA></SII:RESP_HDR>`)
		return
	}
	accepted := t.informed - t.rejected
	writeSOAP(w, "getEstUp", fmt.Sprintf(
		`<SII:RESP_HDR><TRACKID>%s</TRACKID><ESTADO>%s</ESTADO><GLOSA>%s</GLOSA></SII:RESP_HDR>`+
			`<SII:RESP_BODY><INFORMADOS>%d</INFORMADOS><ACEPTADOS>%d</ACEPTADOS><RECHAZADOS>%d</RECHAZADOS><REPAROS>0</REPAROS></SII:RESP_BODY>`,
		req.Body.Q.TrackID, t.state, t.glosa, t.informed, accepted, t.rejected))
}

// writeSOAP responde como los .jws del SII: la RESPUESTA va escapada dentro de <opReturn>.
func writeSOAP(w http.ResponseWriter, op, inner string) {
	respuesta := `<?xml version="1.0" encoding="UTF-8"?><SII:RESPUESTA xmlns:SII="http://www.sii.cl/XMLSchema">` + inner + `</SII:RESPUESTA>`
	var esc bytes.Buffer
	_ = xml.EscapeText(&esc, []byte(respuesta))
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><soapenv:Envelope xmlns:soapenv="%s"><soapenv:Body><ns1:%sResponse xmlns:ns1="http://DefaultNamespace"><%sReturn>%s</%sReturn></ns1:%sResponse></soapenv:Body></soapenv:Envelope>`,
		soapNS, op, op, esc.String(), op, op)
}

func writeRecepcion(w http.ResponseWriter, status int, trackID string) {
	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, `<?xml version="1.0"?><RECEPCIONDTE><RUTSENDER>0</RUTSENDER><RUTCOMPANY>0</RUTCOMPANY><FILE>envio.xml</FILE><TIMESTAMP>0</TIMESTAMP><STATUS>%d</STATUS>`, status)
	if trackID != "" {
		fmt.Fprintf(w, `<TRACKID>%s</TRACKID>`, trackID)
	}
	fmt.Fprint(w, `</RECEPCIONDTE>`)
}

func stripDecl(raw []byte) []byte {
	raw = bytes.TrimSpace(raw)
	if bytes.HasPrefix(raw, []byte("<?xml")) {
		if i := bytes.Index(raw, []byte("?>")); i >= 0 {
			return bytes.TrimSpace(raw[i+2:])
		}
	}
	return raw
}
