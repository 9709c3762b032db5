package util

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// NewBase62 returns a random base62 identifier of the given length.
// Entity identifiers use fixed lengths: projects 10, tags 12, threads 14,
// messages 15, review sections 16.
func NewBase62(length int) string {
	max := big.NewInt(int64(len(base62Alphabet)))
	id := make([]byte, length)
	for i := range id {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken
			panic(err)
		}
		id[i] = base62Alphabet[n.Int64()]
	}
	return string(id)
}

// IsBase62 reports whether value consists solely of base62 characters
// and has exactly the given length.
func IsBase62(value string, length int) bool {
	if len(value) != length {
		return false
	}
	for _, ch := range value {
		if (ch < '0' || ch > '9') && (ch < 'A' || ch > 'Z') && (ch < 'a' || ch > 'z') {
			return false
		}
	}
	return true
}

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
