// Package crypto provides deterministic fingerprinting for gateway artifacts:
// tool call arguments (audit fingerprints) and session tokens (revocation
// fingerprints).
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Hasher produces a stable hex digest for an arbitrary value.
type Hasher interface {
	Hash(v interface{}) (string, error)
}

// CanonicalHasher implements RFC 8785 (JSON Canonicalization Scheme) hashing
// so that argument maps hash identically regardless of key order.
type CanonicalHasher struct{}

func NewCanonicalHasher() *CanonicalHasher {
	return &CanonicalHasher{}
}

// Hash serializes v to JSON, canonicalizes it per RFC 8785, and returns the
// hex-encoded SHA-256 digest, prefixed so callers can tell fingerprints from
// other hex strings at a glance.
func (h *CanonicalHasher) Hash(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("crypto: marshal for canonicalization: %w", err)
	}

	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("crypto: jcs transform: %w", err)
	}

	sum := sha256.Sum256(canon)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// Fingerprint is a package-level convenience around the default hasher, used
// by the Supervisor for audit fingerprints and by pkg/auth for session-token
// fingerprints.
func Fingerprint(v interface{}) (string, error) {
	return NewCanonicalHasher().Hash(v)
}
