package sii

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// CharsetReader permite leer XML declarado como ISO-8859-1 (CAF, respuestas del SII).
func CharsetReader(charset string, input io.Reader) (io.Reader, error) {
	switch strings.ToUpper(charset) {
	case "ISO-8859-1", "ISO8859-1", "LATIN1":
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	case "", "UTF-8", "UTF8":
		return input, nil
	}
	return nil, fmt.Errorf("sii: charset no soportado: %s", charset)
}

// EncodeLatin1 convierte UTF-8 a ISO-8859-1, el encoding que exige el upload de DTE.
func EncodeLatin1(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := transform.NewWriter(&buf, charmap.ISO8859_1.NewEncoder())
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("sii: codificar ISO-8859-1: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("sii: codificar ISO-8859-1: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeLatin1 convierte ISO-8859-1 a UTF-8.
func DecodeLatin1(data []byte) ([]byte, error) {
	out, _, err := transform.Bytes(charmap.ISO8859_1.NewDecoder(), data)
	if err != nil {
		return nil, fmt.Errorf("sii: decodificar ISO-8859-1: %w", err)
	}
	return out, nil
}
