package mailbox

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

// ErrInvalidPrefix is returned when a user-supplied local part fails validation.
var ErrInvalidPrefix = errors.New("prefix must be 6-12 letters or digits")

const (
	prefixMinLen = 6
	prefixMaxLen = 12

	localPartChars = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Generator mints disposable addresses under a fixed provider domain.
type Generator struct {
	domain string
}

func NewGenerator(domain string) *Generator {
	if domain == "" {
		domain = DefaultDomain
	}
	return &Generator{domain: domain}
}

func (g *Generator) Domain() string { return g.domain }

// Random returns a fresh address with a random lowercase alphanumeric
// local part of length in [6,12].
func (g *Generator) Random() (string, error) {
	n, err := randInt(prefixMaxLen - prefixMinLen + 1)
	if err != nil {
		return "", err
	}
	length := prefixMinLen + n

	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		k, err := randInt(len(localPartChars))
		if err != nil {
			return "", err
		}
		b.WriteByte(localPartChars[k])
	}
	return b.String() + "@" + g.domain, nil
}

// FromPrefix validates prefix and returns prefix@domain.
func (g *Generator) FromPrefix(prefix string) (string, error) {
	if err := ValidatePrefix(prefix); err != nil {
		return "", err
	}
	return strings.ToLower(prefix) + "@" + g.domain, nil
}

// ValidatePrefix accepts 6 to 12 ASCII letters or digits, nothing else.
func ValidatePrefix(prefix string) error {
	if len(prefix) < prefixMinLen || len(prefix) > prefixMaxLen {
		return ErrInvalidPrefix
	}
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return ErrInvalidPrefix
		}
	}
	return nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
