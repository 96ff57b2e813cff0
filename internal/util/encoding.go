package util

import (
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the NFKD form of s so that visually identical passwords
// typed on different platforms hash the same.
func Normalize(s string) string {
	return norm.NFKD.String(s)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
