package deploy

import (
	"encoding/hex"
	"os"

	"golang.org/x/crypto/sha3"
)

// ChecksumFile digests a local file's content for the idempotence check
// (§8 scenario 6): full_deploy skips re-uploading a file whose checksum
// already matches what was last recorded for that target.
func ChecksumFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return ChecksumBytes(data), nil
}

// ChecksumBytes digests raw content directly.
func ChecksumBytes(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
