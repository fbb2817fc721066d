// Package keygen generates and validates license key codes.
//
// Keys use the format XXXX-XXXX-XXXX-XXXX over a 32-symbol alphabet
// that excludes the visually ambiguous characters I, O, 0 and 1.
package keygen

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Alphabet is the 32-symbol key alphabet. Its size divides 256 evenly,
// so indexing it with a masked random byte is uniform.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	groupCount = 4
	groupLen   = 4
	// MaxGenerateAttempts bounds GenerateUnique. The key space is ~10^24,
	// so hitting this bound means the existence check is broken, not that
	// the space is exhausted.
	MaxGenerateAttempts = 10
)

// ErrGenerationExhausted is returned when GenerateUnique cannot produce
// a non-colliding key within MaxGenerateAttempts.
var ErrGenerationExhausted = errors.New("key generation exhausted: could not produce a unique key")

var keyFormat = regexp.MustCompile(`(?i)^[A-HJ-NP-Z2-9]{4}(-[A-HJ-NP-Z2-9]{4}){3}$`)

// Generate produces a new random key code.
func Generate() (string, error) {
	raw := make([]byte, groupCount*groupLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	var b strings.Builder
	b.Grow(groupCount*groupLen + groupCount - 1)
	for i, r := range raw {
		if i > 0 && i%groupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(Alphabet[r&0x1f])
	}
	return b.String(), nil
}

// ExistsFunc reports whether a candidate key code is already taken.
type ExistsFunc func(ctx context.Context, keyCode string) (bool, error)

// GenerateUnique produces a key code that existsFn does not know,
// retrying up to MaxGenerateAttempts times.
func GenerateUnique(ctx context.Context, existsFn ExistsFunc) (string, error) {
	for attempt := 0; attempt < MaxGenerateAttempts; attempt++ {
		candidate, err := Generate()
		if err != nil {
			return "", err
		}
		exists, err := existsFn(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check key existence: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrGenerationExhausted
}

// IsValidFormat reports whether s is lexically a key code: four groups
// of four alphabet characters joined by hyphens, case-insensitive.
func IsValidFormat(s string) bool {
	return keyFormat.MatchString(s)
}

// Normalize canonicalizes user-supplied key input: trims, uppercases
// and strips internal whitespace. All key lookups must normalize first.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)
	return strings.ToUpper(s)
}
