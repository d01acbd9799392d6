// ABOUTME: Unit tests for secret hashing and refresh secret generation
// ABOUTME: Tests salt uniqueness, verification and input limits

package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewHasher() error = %v", err)
	}
	return h
}

func TestHasher_SaltedAndVerifiable(t *testing.T) {
	h := newTestHasher(t)

	for _, secret := range []string{"hunter2", "correct horse battery staple", "ünïcödé"} {
		d1, err := h.Hash(secret)
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}
		d2, err := h.Hash(secret)
		if err != nil {
			t.Fatalf("Hash() error = %v", err)
		}

		if d1 == d2 {
			t.Errorf("Hash(%q) returned identical digests", secret)
		}
		if !h.Verify(secret, d1) || !h.Verify(secret, d2) {
			t.Errorf("Verify(%q) = false, want true", secret)
		}
		if h.Verify(secret+"x", d1) {
			t.Errorf("Verify(%q+x) = true, want false", secret)
		}
	}
}

func TestHasher_MalformedDigest(t *testing.T) {
	h := newTestHasher(t)

	for _, digest := range []string{"", "plaintext", "$2a$10$short", "$argon2id$v=19$m=65536"} {
		if h.Verify("secret", digest) {
			t.Errorf("Verify() with digest %q = true, want false", digest)
		}
	}
}

func TestHasher_InputLimits(t *testing.T) {
	h := newTestHasher(t)

	if _, err := h.Hash(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("Hash(\"\") error = %v, want ErrEmptySecret", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 73)); !errors.Is(err, ErrSecretTooLong) {
		t.Errorf("Hash(73 bytes) error = %v, want ErrSecretTooLong", err)
	}
	if _, err := h.Hash(strings.Repeat("a", 72)); err != nil {
		t.Errorf("Hash(72 bytes) error = %v", err)
	}
}

func TestNewHasher_Cost(t *testing.T) {
	h, err := NewHasher(0)
	if err != nil {
		t.Fatalf("NewHasher(0) error = %v", err)
	}
	if h.Cost() != bcrypt.DefaultCost {
		t.Errorf("Cost() = %d, want %d", h.Cost(), bcrypt.DefaultCost)
	}

	if _, err := NewHasher(bcrypt.MaxCost + 1); err == nil {
		t.Error("NewHasher(MaxCost+1) should fail")
	}
	if _, err := NewHasher(1); err == nil {
		t.Error("NewHasher(1) should fail")
	}
}

func TestHashSecret_Default(t *testing.T) {
	d, err := HashSecret("s3cret")
	if err != nil {
		t.Fatalf("HashSecret() error = %v", err)
	}
	if !VerifySecret("s3cret", d) {
		t.Error("VerifySecret() = false, want true")
	}
	if cost, _ := bcrypt.Cost([]byte(d)); cost != bcrypt.DefaultCost {
		t.Errorf("cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}

func TestNewRefreshSecret(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		s, err := NewRefreshSecret()
		if err != nil {
			t.Fatalf("NewRefreshSecret() error = %v", err)
		}
		if len(s) != 43 {
			t.Errorf("len = %d, want 43", len(s))
		}
		if seen[s] {
			t.Fatalf("duplicate refresh secret %q", s)
		}
		seen[s] = true
	}
}

func TestDummyHashIsWellFormed(t *testing.T) {
	if _, err := bcrypt.Cost([]byte(dummyHash)); err != nil {
		t.Errorf("dummyHash is not a bcrypt digest: %v", err)
	}
}
