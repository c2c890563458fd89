// Package secrets encrypts user-supplied provider API keys before they
// reach the database. Keys exist in plaintext only transiently, inside a
// single request.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptionFailed is returned when stored ciphertext cannot be
// decrypted: malformed payload, unknown version, or a rotated key.
// Callers must treat the credential as unusable, not retry.
var ErrDecryptionFailed = errors.New("decryption failed")

// versionPrefix tags every ciphertext with the key version so stored
// credentials survive a future key rotation scheme.
const versionPrefix = "v1:"

// KeySize is the required symmetric key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Codec seals and opens credentials with a process-wide symmetric key.
type Codec struct {
	key []byte
}

// NewCodec creates a codec from a 32-byte key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("credential key must be %d bytes, got %d", KeySize, len(key))
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &Codec{key: k}, nil
}

// Encrypt seals plaintext and returns a versioned, base64-encoded
// ciphertext safe to store in a text column.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return versionPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (c *Codec) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, versionPrefix) {
		return "", fmt.Errorf("%w: unknown ciphertext version", ErrDecryptionFailed)
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, versionPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecryptionFailed)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}

	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	return string(plaintext), nil
}
