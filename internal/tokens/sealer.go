package tokens

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const sealerInfo = "authcore upstream refresh secret"

// Sealer encrypts secrets that must be kept server-side but read back later,
// such as refresh tokens issued by an upstream authority. It is immutable and
// safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives an AES-256-GCM key from pepper.
func NewSealer(pepper []byte) (*Sealer, error) {
	if len(pepper) < minPepperBytes {
		return nil, fmt.Errorf("tokens: pepper must be at least %d bytes", minPepperBytes)
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, pepper, nil, []byte(sealerInfo)), key); err != nil {
		return nil, fmt.Errorf("tokens: derive sealing key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("tokens: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("tokens: new gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts value and returns nonce || ciphertext in raw base64.
func (s *Sealer) Seal(value string) (string, error) {
	if s == nil || s.aead == nil {
		return "", errors.New("tokens: sealer is not configured")
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("tokens: read nonce: %w", err)
	}
	payload := s.aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.RawStdEncoding.EncodeToString(payload), nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	if s == nil || s.aead == nil {
		return "", errors.New("tokens: sealer is not configured")
	}
	payload, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("tokens: decode sealed value: %w", err)
	}
	n := s.aead.NonceSize()
	if len(payload) < n {
		return "", errors.New("tokens: sealed value is too short")
	}
	plaintext, err := s.aead.Open(nil, payload[:n], payload[n:], nil)
	if err != nil {
		return "", fmt.Errorf("tokens: open sealed value: %w", err)
	}
	return string(plaintext), nil
}
