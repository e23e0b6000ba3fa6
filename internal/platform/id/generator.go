package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// idEntropyBytes yields 32 hex characters per id.
const idEntropyBytes = 16

// Generator mints opaque identifiers for records that leave the process,
// such as ingestion events.
type Generator interface {
	NewID() (string, error)
}

// RandomGenerator draws ids from crypto/rand.
type RandomGenerator struct{}

func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{}
}

func (g *RandomGenerator) NewID() (string, error) {
	var buf [idEntropyBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate id entropy: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
