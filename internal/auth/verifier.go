package auth

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Verifier decides whether a submitted secret opens a gate. The PIN lock and
// the owner password are both Verifiers, so either can move from a plain
// value to a bcrypt hash through configuration alone.
type Verifier interface {
	Verify(secret string) bool
}

// StaticSecret compares against a plain value in constant time.
type StaticSecret string

func (s StaticSecret) Verify(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(s), []byte(secret)) == 1
}

// BcryptHash compares against a bcrypt hash.
type BcryptHash string

func (h BcryptHash) Verify(secret string) bool {
	return CheckPassword(string(h), secret)
}

// NewVerifier prefers hash when set and falls back to the plain value.
func NewVerifier(plain, hash string) Verifier {
	if hash != "" {
		return BcryptHash(hash)
	}
	return StaticSecret(plain)
}

func HashPassword(password string, cost int) (string, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
