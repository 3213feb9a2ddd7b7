package sii

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRUT(t *testing.T) {
	validos := []string{"76.086.428-5", "60803000-K", "60803000-k", "11111111-1", "66666666-6", "1-9"}
	for _, r := range validos {
		assert.NoError(t, ValidateRUT(r), r)
	}
	invalidos := []string{"76086428-4", "", "-", "123456789-0", "1K-1"}
	for _, r := range invalidos {
		assert.Error(t, ValidateRUT(r), r)
	}
}

func TestNormalizeRUT(t *testing.T) {
	n, err := NormalizeRUT("60.803.000-k")
	require.NoError(t, err)
	assert.Equal(t, "60803000-K", n)

	n, err = NormalizeRUT("0076086428 5")
	require.NoError(t, err)
	assert.Equal(t, "76086428-5", n)
}

func TestComputeRUTVerificationDigit(t *testing.T) {
	dv, err := ComputeRUTVerificationDigit("60803000")
	require.NoError(t, err)
	assert.Equal(t, byte('K'), dv)

	dv, err = ComputeRUTVerificationDigit("76086428")
	require.NoError(t, err)
	assert.Equal(t, byte('5'), dv)
}
