package codegen

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateShape(t *testing.T) {
	g, err := New(DefaultLength)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		require.Len(t, code, DefaultLength)
		require.True(t, g.Valid(code), "code %q", code)
		assert.NotContains(t, code, "0")
		assert.NotContains(t, code, "O")
		assert.NotContains(t, code, "1")
		assert.NotContains(t, code, "I")
	}
}

func TestGenerateUsesWholeAlphabet(t *testing.T) {
	g, err := New(len(Alphabet))
	require.NoError(t, err)

	seq := make([]byte, len(Alphabet))
	for i := range seq {
		seq[i] = byte(i + 64) // wraps modulo 32
	}
	g.rand = func(p []byte) (int, error) { return copy(p, seq), nil }

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, Alphabet, code)
}

func TestGenerateRandomFailure(t *testing.T) {
	g, err := New(6)
	require.NoError(t, err)
	g.rand = func(p []byte) (int, error) { return 0, bytes.ErrTooLarge }

	_, err = g.Generate()
	require.ErrorIs(t, err, bytes.ErrTooLarge)
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"abc234":      "ABC234",
		"  ab c2 34 ": "ABC234",
		"ABC-234":     "ABC234",
		"\tx7y9z2\n":  "X7Y9Z2",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestValid(t *testing.T) {
	g, err := New(6)
	require.NoError(t, err)

	assert.True(t, g.Valid("ABC234"))
	assert.False(t, g.Valid("ABC23"))
	assert.False(t, g.Valid("ABC2340"))
	assert.False(t, g.Valid("ABCO34"))
	assert.False(t, g.Valid("abc234"))
}

func TestNewRejectsBadLength(t *testing.T) {
	_, err := New(0)
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestNewFromReader(t *testing.T) {
	g, err := NewFromReader(6, bytes.NewReader([]byte{0, 1, 2, 3, 4, 5, 31, 30}))
	require.NoError(t, err)

	code, err := g.Generate()
	require.NoError(t, err)
	assert.Equal(t, "234567", code)

	_, err = g.Generate()
	require.Error(t, err, "reader ran dry")
}
