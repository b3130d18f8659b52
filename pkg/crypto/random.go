package crypto

import (
	"crypto/rand"
	"encoding/hex"
)

// GenerateRandomString generates a random hex string decoding length
// random bytes. Used by the orchestrator to suffix payment references.
func GenerateRandomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
