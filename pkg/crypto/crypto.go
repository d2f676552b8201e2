// Package crypto provides symmetric encryption for credentials at rest.
// A 32-byte key is derived from the configured password with PBKDF2-SHA256;
// values are sealed with AES-256-GCM and encoded base64url.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength  = 32
	iterations = 100_000
)

// The salt is fixed so every process derives the same key from the same
// password; uniqueness comes from the per-value GCM nonce.
var keySalt = []byte("crypto_trading_salt")

var ErrInvalidCiphertext = errors.New("invalid ciphertext")

// Encryptor seals and opens credential strings with a key derived from a
// single password. Safe for concurrent use.
type Encryptor struct {
	aead cipher.AEAD
}

func NewEncryptor(password string) (*Encryptor, error) {
	if password == "" {
		return nil, errors.New("encryption password is required")
	}
	key := pbkdf2.Key([]byte(password), keySalt, iterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext. The empty string maps to the empty string, so that
// optional credentials (an absent passphrase) stay absent.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt. Decrypt(Encrypt(s)) == s for all
// valid s, including the empty string.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) < e.aead.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, sealed := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	return string(plaintext), nil
}
