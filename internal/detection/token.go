package detection

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenGenerator produces opaque verification tokens
type TokenGenerator func() (string, error)

const tokenBytes = 32

// RandomToken 32 random bytes, hex encoded
func RandomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
