// Package cryptoutil seals source-control access tokens at rest.
package cryptoutil

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

// sealedPrefix marks a value produced by AESGCM.Seal. The version allows key or algorithm
// rotation without rewriting rows.
const sealedPrefix = "v1:"

// ErrNoKey is returned when a sealed token is read without a configured key.
var ErrNoKey = errors.New("token is encrypted but no encryption key is configured")

// TokenCipher seals and opens stored access tokens.
type TokenCipher interface {
	Seal(token string) (string, error)
	Open(stored string) (string, error)
}

// IsSealed reports whether stored was produced by Seal.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}

// AESGCM implements TokenCipher with AES-256-GCM.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM builds an AESGCM cipher. key must be 32 bytes.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-gcm key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

// Seal encrypts token under a random nonce and returns "v1:" + base64(nonce||ciphertext).
func (c *AESGCM) Seal(token string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	out := c.aead.Seal(nonce, nonce, []byte(token), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decrypts a sealed value. Unsealed values are tokens written before encryption was
// enabled and are returned unchanged.
func (c *AESGCM) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored[len(sealedPrefix):])
	if err != nil {
		return "", fmt.Errorf("decode sealed token: %w", err)
	}
	n := c.aead.NonceSize()
	if len(raw) < n {
		return "", errors.New("sealed token too short")
	}
	pt, err := c.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed token: %w", err)
	}
	return string(pt), nil
}

// Plaintext stores tokens as-is. It is used when no key is configured.
type Plaintext struct{}

func (Plaintext) Seal(token string) (string, error) { return token, nil }

// Open returns stored unchanged, refusing sealed values it cannot read.
func (Plaintext) Open(stored string) (string, error) {
	if IsSealed(stored) {
		return "", ErrNoKey
	}
	return stored, nil
}
