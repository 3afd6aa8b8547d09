// Package password provides one-way password hashing as an explicit,
// separately testable step. Hashing is never a side effect of persistence;
// callers hash before handing the value to the repository.
package password

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher defines the minimal hashing interface (abstract so we can swap to
// argon2 later without touching the auth flows).
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// Bcrypt hashes with a fixed work factor. The zero value uses DefaultCost;
// production wiring sets Cost to 12.
type Bcrypt struct {
	Cost int
}

// NewBcrypt returns a hasher at work factor 12.
func NewBcrypt() Bcrypt { return Bcrypt{Cost: 12} }

// Hash produces a fresh salted hash. Two calls for the same plaintext yield
// different strings that both verify.
func (b Bcrypt) Hash(plaintext string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Verify returns false for any mismatch, including a malformed or truncated
// hash. It never raises; timing beyond bcrypt's own guarantee is not leaked.
func (b Bcrypt) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
