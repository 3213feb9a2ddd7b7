package sii

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/ucarion/c14n"
)

// Canonicalize aplica C14N 1.0 inclusivo. La salida es UTF-8 y no lleva declaración XML.
func Canonicalize(data []byte) ([]byte, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Entity = map[string]string{}
	dec.CharsetReader = CharsetReader
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("sii: canonicalizar XML: %w", err)
	}
	return out, nil
}
