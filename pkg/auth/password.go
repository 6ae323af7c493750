package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Iterations meets spec.md §4.5's floor of 200k rounds.
const pbkdf2Iterations = 210000
const pbkdf2KeyLen = 32
const saltLen = 16

// hashPassword derives a PBKDF2-HMAC-SHA256 digest for password under a
// freshly generated salt.
func hashPassword(password string) (hash, salt []byte, err error) {
	salt = make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("auth: generate salt: %w", err)
	}
	hash = pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return hash, salt, nil
}

// verifyPassword recomputes the digest under the stored salt and compares in
// constant time.
func verifyPassword(password string, hash, salt []byte) bool {
	candidate := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}
