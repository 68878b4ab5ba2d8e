// Package auth contains API key hashing and comparison helpers.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashKey returns a SHA-256 hash of the key.
func HashKey(key string) string {
	key = strings.TrimSpace(key)

	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Equal compares a presented key against the expected key in constant time.
// Both sides are hashed first so the comparison length is fixed.
func Equal(presented, expected string) bool {
	a := HashKey(presented)
	b := HashKey(expected)
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
