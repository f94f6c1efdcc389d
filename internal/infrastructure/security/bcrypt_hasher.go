// Package security provides the password hasher and token service used by
// the identity core.
package security

import (
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"

	"github.com/milsabores/identity-service/internal/core/ports"
)

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using bcrypt.DefaultCost.
func NewBcryptHasher() ports.PasswordHasher {
	return &bcryptHasher{cost: bcrypt.DefaultCost}
}

// NewBcryptHasherWithCost returns a hasher using cost, clamped to bcrypt's
// accepted range.
func NewBcryptHasherWithCost(cost int) ports.PasswordHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &bcryptHasher{cost: cost}
}

// Hash returns a salted bcrypt hash. bcrypt embeds the salt and cost in the
// returned string. Passwords are digested first so inputs longer than
// bcrypt's 72-byte limit hash without error and without truncation.
func (h *bcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword(prehash(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Check compares password against hash in constant time.
func (h *bcryptHasher) Check(password, hash string) bool {
	if password == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), prehash(password)) == nil
}

// prehash maps any password to 44 bytes of base64 SHA-256, well under the
// bcrypt input limit and free of NUL bytes.
func prehash(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum[:])
	return out
}
