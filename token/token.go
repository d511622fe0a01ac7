// Package token generates the opaque random tokens used for email
// verification and password reset links, together with the one-way
// hashed form that is the only representation ever persisted.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// rawSize is the entropy of an opaque token in bytes. 32 bytes keeps a
// comfortable margin over the 160-bit floor for unguessable links.
const rawSize = 32

// Hash is the SHA-256 digest of a raw token. Stores persist only this.
type Hash [32]byte

// New returns a fresh opaque token as the base64url string handed to the
// user and the Hash to persist. The raw value must never be stored.
func New() (string, Hash, error) {
	var raw [rawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", Hash{}, err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), sha256.Sum256(raw[:]), nil
}

// HashCandidate hashes an incoming raw token so it can be compared
// against the persisted Hash. Malformed candidates return an error so
// lookups can fail fast without touching the store.
func HashCandidate(raw string) (Hash, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return Hash{}, errors.New("malformed token")
	}
	if len(decoded) != rawSize {
		return Hash{}, errors.New("invalid token size")
	}
	return sha256.Sum256(decoded), nil
}

// Equal compares two hashes in constant time.
func Equal(a, b Hash) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
