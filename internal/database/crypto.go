package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// encryptedPrefix marks a column value sealed with AES-256-GCM
const encryptedPrefix = "enc:v1:"

// sealer encrypts marketplace tokens before they reach the users table.
// A nil sealer stores values unchanged.
type sealer struct {
	gcm cipher.AEAD
}

func newSealer(key []byte) (*sealer, error) {
	if key == nil {
		return nil, nil
	}
	// Verify key length (must be 32 bytes for AES-256)
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid encryption key length: got %d bytes, expected 32 bytes for AES-256", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext. Output format: prefix + base64([nonce][ciphertext+tag]).
func (s *sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" {
		return plaintext, nil
	}

	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values written without a key are returned as is.
func (s *sealer) Open(stored string) (string, error) {
	encoded, ok := strings.CutPrefix(stored, encryptedPrefix)
	if !ok {
		return stored, nil
	}
	if s == nil {
		return "", errors.New("stored token is encrypted but no ENCRYPTION_KEY is configured")
	}

	data, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode encrypted token: %w", err)
	}

	nonceSize := s.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("encrypted data too short - missing nonce")
	}

	plaintext, err := s.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decryption failed (authentication tag verification failed): %w", err)
	}
	return string(plaintext), nil
}
