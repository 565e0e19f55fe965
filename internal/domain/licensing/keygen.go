package licensing

import (
	"crypto/rand"
	"strings"

	"github.com/licensehub/backend/internal/domain/shared"
)

const (
	base62Alphabet     = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	licenseKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// DefaultProductKeyLength is the length of the random suffix of a product key
	DefaultProductKeyLength = 32
	// DefaultMaxAttempts bounds the check-then-insert loop of key issuance
	DefaultMaxAttempts = 10
)

// KeyGenerator produces candidate credentials. Implementations cannot
// guarantee global uniqueness; callers must check against the store.
type KeyGenerator interface {
	ProductKey(p Product) (string, error)
	LicenseKey() (LicenseKey, error)
}

// RandomKeyGenerator draws key material from crypto/rand
type RandomKeyGenerator struct {
	suffixLength int
}

// NewRandomKeyGenerator creates a generator producing product keys of the form
// <tag>_<suffixLength base62 characters>.
func NewRandomKeyGenerator(suffixLength int) *RandomKeyGenerator {
	if suffixLength <= 0 {
		suffixLength = DefaultProductKeyLength
	}
	return &RandomKeyGenerator{suffixLength: suffixLength}
}

// ProductKey returns a candidate key for p
func (g *RandomKeyGenerator) ProductKey(p Product) (string, error) {
	tag := p.Tag()
	if tag == "" {
		return "", ErrUnknownProduct.WithMessage("Unknown product: " + string(p))
	}
	suffix, err := randomString(base62Alphabet, g.suffixLength)
	if err != nil {
		return "", err
	}
	return tag + "_" + suffix, nil
}

// LicenseKey returns a candidate license key, XXXX-XXXX-XXXX-XXXX
func (g *RandomKeyGenerator) LicenseKey() (LicenseKey, error) {
	raw, err := randomString(licenseKeyAlphabet, 16)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i := 0; i < 4; i++ {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(raw[i*4 : i*4+4])
	}
	return LicenseKey(b.String()), nil
}

// randomString draws n characters uniformly from alphabet, rejecting bytes
// that would bias the distribution.
func randomString(alphabet string, n int) (string, error) {
	size := len(alphabet)
	limit := 256 - (256 % size)
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", shared.NewDomainError("KEYGEN_FAILED", "Random source failed").WithCause(err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%size])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
