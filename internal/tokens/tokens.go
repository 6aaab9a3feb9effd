// Package tokens generates opaque bearer secrets and derives the digests under
// which they are stored.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// SecretSize is the number of random bytes behind every opaque token.
	SecretSize = 32
	// DigestSize is the length of a stored digest.
	DigestSize = 32

	encodedLen     = 43 // base64url of SecretSize bytes, unpadded
	minPepperBytes = 16
	minMemoryKB    = 1024
)

// Config tunes the digest. Pepper is a server-side secret that keys every
// digest, so a leaked table cannot be matched against guessed tokens.
type Config struct {
	Pepper []byte
	Memory uint32
	Time   uint32
}

// DefaultConfig returns digest costs suitable for per-request use. The input is
// 256 bits of entropy, so the cost only needs to make bulk offline matching
// of a leaked table expensive.
func DefaultConfig(pepper []byte) Config {
	return Config{Pepper: pepper, Memory: 4 * 1024, Time: 1}
}

// Generator mints opaque tokens. It is immutable and safe for concurrent use.
type Generator struct {
	pepper []byte
	memory uint32
	time   uint32
}

// New validates cfg and returns a Generator.
func New(cfg Config) (*Generator, error) {
	if len(cfg.Pepper) < minPepperBytes {
		return nil, fmt.Errorf("tokens: pepper must be at least %d bytes", minPepperBytes)
	}
	if cfg.Memory < minMemoryKB {
		return nil, fmt.Errorf("tokens: memory must be >= %d KB", minMemoryKB)
	}
	if cfg.Time < 1 {
		return nil, errors.New("tokens: time must be >= 1")
	}

	pepper := make([]byte, len(cfg.Pepper))
	copy(pepper, cfg.Pepper)
	return &Generator{pepper: pepper, memory: cfg.Memory, time: cfg.Time}, nil
}

// Generate returns a fresh URL-safe plaintext and its digest. The plaintext
// must be handed to its recipient once and never stored.
func (g *Generator) Generate() (string, []byte, error) {
	var secret [SecretSize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return "", nil, fmt.Errorf("tokens: read random: %w", err)
	}

	plaintext := base64.RawURLEncoding.EncodeToString(secret[:])
	return plaintext, g.Digest(plaintext), nil
}

// Digest derives the deterministic lookup digest for plaintext.
func (g *Generator) Digest(plaintext string) []byte {
	return argon2.IDKey([]byte(plaintext), g.pepper, g.time, g.memory, 1, DigestSize)
}

// Valid reports whether plaintext has the shape of a generated token.
func Valid(plaintext string) bool {
	if len(plaintext) != encodedLen {
		return false
	}
	raw, err := base64.RawURLEncoding.Strict().DecodeString(plaintext)
	return err == nil && len(raw) == SecretSize
}
