package registry

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// DefaultCodeAlphabet is upper-case base36, so codes survive case folding.
	DefaultCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	DefaultCodeLength   = 6
	maxCodeLength       = 32
)

// CodeGenerator produces join-code candidates of the requested length.
type CodeGenerator interface {
	Generate(length int) (string, error)
}

// NanoIDCodeGenerator generates join codes from a fixed alphabet.
type NanoIDCodeGenerator struct {
	alphabet string
}

// NewNanoIDCodeGenerator creates a generator. The alphabet must be upper case
// since lookups fold the query to upper case.
func NewNanoIDCodeGenerator(alphabet string) (*NanoIDCodeGenerator, error) {
	if len(alphabet) < 2 {
		return nil, fmt.Errorf("code alphabet must have at least 2 characters, got %d", len(alphabet))
	}
	if strings.ToUpper(alphabet) != alphabet {
		return nil, fmt.Errorf("code alphabet must be upper case")
	}
	return &NanoIDCodeGenerator{alphabet: alphabet}, nil
}

func (g *NanoIDCodeGenerator) Generate(length int) (string, error) {
	if length < 1 || length > maxCodeLength {
		return "", fmt.Errorf("code length must be between 1 and %d, got %d", maxCodeLength, length)
	}
	code, err := gonanoid.Generate(g.alphabet, length)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return code, nil
}

// Validate reports whether code could have come from this generator.
func (g *NanoIDCodeGenerator) Validate(code string) bool {
	if code == "" || len(code) > maxCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(g.alphabet, c) {
			return false
		}
	}
	return true
}

// NormalizeCode folds a user-supplied code to its canonical form.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
