// Package crypto seals values stored outside the process, such as sessions
// kept in Redis.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var (
	ErrMissingKey         = errors.New("encryption key is required")
	ErrInvalidKey         = errors.New("encryption key must be 32 bytes for AES-256")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Sealer encrypts payloads bound to a label. A payload sealed under one label
// cannot be opened under another, so a value copied between keys is rejected.
type Sealer interface {
	Seal(plaintext []byte, label string) (string, error)
	Open(sealed string, label string) ([]byte, error)
}

type aesGCMSealer struct {
	aead cipher.AEAD
}

// NewSealer creates an AES-256-GCM sealer from a 32-byte key.
func NewSealer(key string) (Sealer, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &aesGCMSealer{aead: aead}, nil
}

func (s *aesGCMSealer) Seal(plaintext []byte, label string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, []byte(label))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *aesGCMSealer) Open(sealed string, label string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(data) < nonceSize+s.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := s.aead.Open(nil, data[:nonceSize], data[nonceSize:], []byte(label))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
