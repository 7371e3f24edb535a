package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.NewString()
}

// NewToken returns a random hex token of 2*size characters.
func NewToken(size int) string {
	bytes := make([]byte, size)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func IsUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
