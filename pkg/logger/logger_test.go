package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_EscribeArchivoRotado(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dte.log")
	l := New(Config{Env: "production", Level: "debug", File: path, MaxSizeMB: 1})

	l.Info().Str("tenant_id", "t1").Int64("folio", 42).Msg("documento avanzó de estado")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tenant_id":"t1"`)
	assert.Contains(t, string(data), `"folio":42`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("ruido"))
}
