// Package helpers provides the small set of byte-level utilities the
// session handshake needs: secure random generation for the auth
// challenge, and a constant-time comparison for checking the client's
// response to it.
package helpers

import (
	"crypto/rand"
	"crypto/subtle"
)

// GenerateSecureRandom generates n cryptographically secure random bytes.
func GenerateSecureRandom(n int) ([]byte, error) {
	bytes := make([]byte, n)
	if _, err := rand.Read(bytes); err != nil {
		return nil, err
	}
	return bytes, nil
}

// ConstantTimeCompare compares two byte slices in constant time.
// Returns true if they are equal, false otherwise.
// This is safe against timing attacks.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
