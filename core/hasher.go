package core

import "golang.org/x/crypto/bcrypt"

// PasswordHasher is the one-way hashing contract used by the auth service.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// BcryptHasher hashes passwords with bcrypt. The cost factor bounds the CPU
// spent per hash so concurrent requests are not starved.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: bcrypt.DefaultCost}
}

// Hash produces a salted digest. It fails only on infrastructure problems
// (e.g. the 72-byte bcrypt input limit), never as a typed credential error.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether plaintext matches digest. Mismatches and malformed
// digests both return false; no error is ever surfaced to the caller.
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
