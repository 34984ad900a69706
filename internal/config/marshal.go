package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

func marshalIndent(f *Family) ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// Hash returns the first 8 bytes of the SHA-256 digest of f's canonical JSON
// encoding, hex-encoded. Used by the admin /status handler as a cheap config
// fingerprint, in the teacher's config.go Hash() style.
func (f *Family) Hash() (string, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}
