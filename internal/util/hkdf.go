package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const HKDFKeyLength = 32

// subkeySalt is fixed so the same master secret always yields the same subkeys.
var subkeySalt = []byte("doorman:subkey:v1")

func HKDF(seed []byte, salt []byte, info []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, seed, salt, info)
	k := make([]byte, HKDFKeyLength)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}

// DeriveSubkey derives a 32-byte key for one purpose (e.g. "tokens",
// "users") from the service master secret.
func DeriveSubkey(master []byte, purpose string) ([]byte, error) {
	if len(master) < 32 {
		return nil, fmt.Errorf("master secret must be at least 32 bytes, got %d", len(master))
	}
	return HKDF(master, subkeySalt, []byte("doorman:"+purpose))
}
