package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// sealedPrefix marks values written by FieldCipher so rows stored before
// encryption was enabled can still be read.
const sealedPrefix = "enc:v1:"

// FieldCipher encrypts person-context notes at rest with AES-GCM and a random
// nonce per value.
type FieldCipher struct {
	gcm cipher.AEAD
}

// NewFieldCipher takes a 16, 24 or 32 byte key (AES-128/192/256).
func NewFieldCipher(key string) (*FieldCipher, error) {
	k := []byte(key)
	n := len(k)
	if n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", n)
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &FieldCipher{gcm: gcm}, nil
}

// Seal returns enc:v1:base64(nonce || ciphertext). Empty stays empty.
func (c *FieldCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal. Values without the prefix are returned unchanged.
func (c *FieldCipher) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	ns := c.gcm.NonceSize()
	if len(data) < ns {
		return "", fmt.Errorf("ciphertext too short")
	}
	nonce, ct := data[:ns], data[ns:]
	pt, err := c.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}
