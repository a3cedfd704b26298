// Package idgen generates identifiers for events and requests.
package idgen

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewGUID returns a random (version 4) UUID string for a payment event.
func NewGUID() string {
	return uuid.NewString()
}

// IsGUID reports whether s parses as a UUID.
func IsGUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// WithPrefix generates a random ID with a prefix (e.g. "req_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}
