package registry

import (
	"crypto/rand"
	"fmt"

	ncrypto "github.com/ssd-technologies/nocturne-fleet/internal/crypto"
)

// obfuscationPepper is a process-wide constant, not a secret. Obfuscation
// here is reversible by design (§3: "not a confidentiality claim") — it
// exists to keep a password out of plain sight in the registry file, not to
// withstand an attacker who can read that file.
const obfuscationPepper = "nocturne-fleet-registry-obfuscation-v1"

const obfuscateSaltLen = 16

// Obfuscate reversibly scrambles a password with a keystream derived from a
// random per-call salt. The salt is prepended to the output so Deobfuscate
// needs only the pepper baked into the binary, never a stored secret.
func Obfuscate(password []byte) ([]byte, error) {
	salt := make([]byte, obfuscateSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate obfuscation salt: %w", err)
	}
	out := make([]byte, obfuscateSaltLen+len(password))
	copy(out, salt)
	if len(password) == 0 {
		return out, nil
	}
	keystream := ncrypto.DeriveKeyWithLen(obfuscationPepper, salt, uint32(len(password)))
	for i, b := range password {
		out[obfuscateSaltLen+i] = b ^ keystream[i]
	}
	return out, nil
}

// Deobfuscate reverses Obfuscate. XOR is its own inverse given the same
// keystream, so this re-derives the keystream from the embedded salt and
// applies it again.
func Deobfuscate(obfuscated []byte) ([]byte, error) {
	if len(obfuscated) < obfuscateSaltLen {
		return nil, fmt.Errorf("obfuscated password too short")
	}
	salt := obfuscated[:obfuscateSaltLen]
	cipher := obfuscated[obfuscateSaltLen:]
	if len(cipher) == 0 {
		return []byte{}, nil
	}
	keystream := ncrypto.DeriveKeyWithLen(obfuscationPepper, salt, uint32(len(cipher)))

	out := make([]byte, len(cipher))
	for i, b := range cipher {
		out[i] = b ^ keystream[i]
	}
	return out, nil
}
