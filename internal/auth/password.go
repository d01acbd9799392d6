// ABOUTME: Salted adaptive hashing for login secrets and refresh secrets using bcrypt
// ABOUTME: Also generates the high-entropy raw refresh secrets handed to callers

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// maxSecretBytes is bcrypt's input limit.
const maxSecretBytes = 72

// refreshSecretBytes of entropy encode to 43 URL-safe characters.
const refreshSecretBytes = 32

var (
	ErrEmptySecret   = errors.New("secret must not be empty")
	ErrSecretTooLong = errors.New("secret exceeds 72 bytes")
)

// dummyHash is compared against when a principal does not exist so that unknown
// identifiers cost the same as wrong secrets.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Hasher hashes and verifies secrets with bcrypt at a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using cost. Zero selects bcrypt.DefaultCost.
func NewHasher(cost int) (*Hasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &Hasher{cost: cost}, nil
}

// Cost returns the configured bcrypt cost.
func (h *Hasher) Cost() int {
	return h.cost
}

// Hash returns an encoded digest carrying algorithm, cost and a fresh random salt.
func (h *Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) > maxSecretBytes {
		return "", ErrSecretTooLong
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hashing secret: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether secret matches digest. Malformed or empty digests never match.
func (h *Hasher) Verify(secret, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}

var defaultHasher = &Hasher{cost: bcrypt.DefaultCost}

// HashSecret hashes secret at bcrypt.DefaultCost.
func HashSecret(secret string) (string, error) {
	return defaultHasher.Hash(secret)
}

// VerifySecret reports whether secret matches digest.
func VerifySecret(secret, digest string) bool {
	return defaultHasher.Verify(secret, digest)
}

// NewRefreshSecret returns a random URL-safe refresh secret.
func NewRefreshSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
