// Package vault provides encryption-at-rest for provider credentials.
// The ingestion core only sees the Vault interface; the secretbox
// implementation is the default and a plaintext double exists for tests.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// Vault encrypts and decrypts opaque credential strings.
type Vault interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// ErrBadKey is returned when the configured key is missing or malformed.
var ErrBadKey = errors.New("vault: key must be 32 bytes, base64-encoded")

const nonceSize = 24

// SecretBox is a Vault backed by nacl/secretbox with a random nonce
// prepended to each ciphertext.
type SecretBox struct {
	key [32]byte
}

// NewSecretBox builds a vault from a base64-encoded 32-byte key.
func NewSecretBox(encodedKey string) (*SecretBox, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrBadKey
	}
	v := &SecretBox{}
	copy(v.key[:], raw)
	return v, nil
}

// GenerateKey returns a fresh base64-encoded vault key.
func GenerateKey() (string, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}

// Encrypt seals the plaintext and returns base64(nonce || box).
func (v *SecretBox) Encrypt(plaintext string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt.
func (v *SecretBox) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("vault: decode ciphertext: %w", err)
	}
	if len(raw) < nonceSize {
		return "", errors.New("vault: ciphertext too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &v.key)
	if !ok {
		return "", errors.New("vault: decryption failed")
	}
	return string(opened), nil
}

// Plaintext is a no-op Vault for tests.
type Plaintext struct{}

func (Plaintext) Encrypt(s string) (string, error) { return s, nil }
func (Plaintext) Decrypt(s string) (string, error) { return s, nil }
