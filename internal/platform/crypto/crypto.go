// Package crypto seals setting values at rest with AES-256-GCM.
//
// Every ciphertext is bound to the setting key it was written under, so a
// value copied to another row fails to open.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const prefix = "gcm1:"

var ErrMalformed = errors.New("malformed ciphertext")

type Service interface {
	Encrypt(plaintext, boundTo string) (string, error)
	Decrypt(ciphertext, boundTo string) (string, error)
}

type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM expects 64 hex characters (a 32 byte key).
func NewAESGCM(hexKey string) (*AESGCM, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

// Encrypt returns "gcm1:" followed by base64(nonce || ciphertext || tag).
func (c *AESGCM) Encrypt(plaintext, boundTo string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), []byte(boundTo))
	return prefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

func (c *AESGCM) Decrypt(ciphertext, boundTo string) (string, error) {
	encoded, ok := strings.CutPrefix(ciphertext, prefix)
	if !ok {
		return "", fmt.Errorf("%w: missing %q prefix", ErrMalformed, prefix)
	}
	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(raw) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", fmt.Errorf("%w: too short", ErrMalformed)
	}

	nonce, body := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, body, []byte(boundTo))
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}
