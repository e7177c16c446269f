// Package codegen mints short referral codes meant to be read aloud and typed
// by a cashier. The alphabet drops 0, O, 1 and I.
package codegen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// Alphabet has 32 symbols so one random byte maps to a symbol without bias
const Alphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const DefaultLength = 6

var ErrInvalidLength = errors.New("code length must be positive")

// Generator produces random fixed-length codes
type Generator struct {
	length int
	rand   func([]byte) (int, error)
}

// New creates a generator for codes of the given length
func New(length int) (*Generator, error) {
	if length <= 0 {
		return nil, ErrInvalidLength
	}
	return &Generator{length: length, rand: rand.Read}, nil
}

// NewFromReader creates a generator that draws its randomness from r
func NewFromReader(length int, r io.Reader) (*Generator, error) {
	g, err := New(length)
	if err != nil {
		return nil, err
	}
	g.rand = func(b []byte) (int, error) {
		return io.ReadFull(r, b)
	}
	return g, nil
}

// Length returns the number of symbols per code
func (g *Generator) Length() int {
	return g.length
}

// Generate returns a new random code
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := g.rand(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	out := make([]byte, g.length)
	for i, b := range buf {
		out[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(out), nil
}

// Normalize upper-cases a typed code and strips whitespace and dashes
func Normalize(code string) string {
	var sb strings.Builder
	sb.Grow(len(code))
	for _, r := range code {
		if unicode.IsSpace(r) || r == '-' {
			continue
		}
		sb.WriteRune(unicode.ToUpper(r))
	}
	return sb.String()
}

// Valid reports whether a normalized code has the expected shape
func (g *Generator) Valid(code string) bool {
	if len(code) != g.length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
