package licensing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashHWID normalizes a raw hardware identifier and returns its SHA-256
// hex digest. Raw identifiers are never persisted or logged; the digest
// is deterministic so equality lookups keep working.
func HashHWID(raw string) string {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
