package docs

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swaggo/swag"
)

type swaggerDoc struct {
	Paths       map[string]json.RawMessage `json:"paths"`
	Definitions map[string]json.RawMessage `json:"definitions"`
}

func TestSwagger_RutasRegistradas(t *testing.T) {
	raw, err := swag.ReadDoc()
	require.NoError(t, err)
	var doc swaggerDoc
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))

	for _, path := range []string{
		"/api/documents",
		"/api/documents/{id}",
		"/api/documents/{id}/status",
		"/api/documents/{id}/resume",
		"/api/documents/{id}/void",
		"/api/folio-ranges",
	} {
		assert.Contains(t, doc.Paths, path)
	}
	assert.Contains(t, doc.Definitions, "billing.SourceRecord")
}

// el JSON que sirve la UI debe coincidir con el registrado
func TestSwagger_ArchivoSincronizado(t *testing.T) {
	raw, err := swag.ReadDoc()
	require.NoError(t, err)
	var registered, served swaggerDoc
	require.NoError(t, json.Unmarshal([]byte(raw), &registered))

	file, err := os.ReadFile("swagger.json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(file, &served))

	assert.Equal(t, len(registered.Paths), len(served.Paths))
	for path, op := range registered.Paths {
		assert.JSONEq(t, string(op), string(served.Paths[path]), path)
	}
	assert.Equal(t, len(registered.Definitions), len(served.Definitions))
}
