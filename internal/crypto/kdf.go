package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB
	argonThreads = 4
	keyLen       = 32 // 256 bits
	saltLen      = 32
)

// DeriveKey derives a 32-byte key from a password and salt using Argon2id.
func DeriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keyLen)
}

// DeriveKeyWithLen is DeriveKey with a caller-chosen output length, used to
// derive an XOR keystream of arbitrary size.
func DeriveKeyWithLen(password string, salt []byte, length uint32) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, length)
}

// GenerateSalt returns 32 random bytes suitable for use as an Argon2 salt.
func GenerateSalt() []byte {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return salt
}
