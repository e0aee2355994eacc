// Package encryption seals personal fields (contact phone numbers, emails)
// before they reach the database. Values are AES-256-GCM encrypted, bound to
// a context string such as "contact:<id>:phone", and stored as text.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
)

// Prefix marks stored values produced by this package
const Prefix = "enc:v1:"

// Common errors
var (
	ErrInvalidKeySize    = errors.New("encryption key must be 32 bytes")
	ErrDecryptionFailed  = errors.New("decryption failed")
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// Metrics counts operations for the monitor endpoint
type Metrics struct {
	Encrypted uint64 `json:"encrypted"`
	Decrypted uint64 `json:"decrypted"`
	Failures  uint64 `json:"failures"`
}

// EncryptionService provides AES-256-GCM field encryption. It is safe for
// concurrent use.
type EncryptionService struct {
	gcm cipher.AEAD

	encrypted atomic.Uint64
	decrypted atomic.Uint64
	failures  atomic.Uint64
}

// NewEncryptionService creates a service from a base64-encoded 32-byte key.
// Any other non-empty string is treated as a passphrase and hashed with
// SHA-256.
func NewEncryptionService(key string) (*EncryptionService, error) {
	if key == "" {
		return nil, ErrInvalidKeySize
	}

	keyBytes, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(keyBytes) != 32 {
		hash := sha256.Sum256([]byte(key))
		keyBytes = hash[:]
	}

	return NewEncryptionServiceWithBytes(keyBytes)
}

// NewEncryptionServiceWithBytes creates a service with raw key bytes
func NewEncryptionServiceWithBytes(key []byte) (*EncryptionService, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &EncryptionService{gcm: gcm}, nil
}

// Encrypt seals plaintext without a context
func (es *EncryptionService) Encrypt(plaintext string) (string, error) {
	return es.EncryptField(plaintext, "")
}

// Decrypt opens a value sealed by Encrypt
func (es *EncryptionService) Decrypt(ciphertext string) (string, error) {
	return es.DecryptField(ciphertext, "")
}

// EncryptField seals plaintext bound to context. The same context must be
// given to DecryptField, so a value copied to another row or column fails to
// open. Empty plaintext stays empty.
func (es *EncryptionService) EncryptField(plaintext, context string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	// Generate a new nonce for each encryption
	nonce := make([]byte, es.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		es.failures.Add(1)
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends the ciphertext to the nonce
	sealed := es.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(context))
	es.encrypted.Add(1)

	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField opens a value sealed by EncryptField with the same context
func (es *EncryptionService) DecryptField(ciphertext, context string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	if !strings.HasPrefix(ciphertext, Prefix) {
		es.failures.Add(1)
		return "", fmt.Errorf("%w: missing prefix", ErrInvalidCiphertext)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, Prefix))
	if err != nil {
		es.failures.Add(1)
		return "", fmt.Errorf("%w: invalid base64", ErrInvalidCiphertext)
	}

	nonceSize := es.gcm.NonceSize()
	if len(data) < nonceSize+es.gcm.Overhead() {
		es.failures.Add(1)
		return "", fmt.Errorf("%w: too short", ErrInvalidCiphertext)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := es.gcm.Open(nil, nonce, sealed, []byte(context))
	if err != nil {
		es.failures.Add(1)
		return "", ErrDecryptionFailed
	}

	es.decrypted.Add(1)
	return string(plaintext), nil
}

// GetMetrics returns operation counters
func (es *EncryptionService) GetMetrics() Metrics {
	return Metrics{
		Encrypted: es.encrypted.Load(),
		Decrypted: es.decrypted.Load(),
		Failures:  es.failures.Load(),
	}
}

// IsEncrypted reports whether a stored value carries the package prefix and
// a payload long enough to hold a nonce and a tag
func IsEncrypted(data string) bool {
	if !strings.HasPrefix(data, Prefix) {
		return false
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(data, Prefix))
	if err != nil {
		return false
	}
	// 12-byte GCM nonce plus 16-byte tag
	return len(decoded) >= 28
}

// GenerateKey generates a secure 32-byte key for AES-256
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateKeyString generates a base64-encoded key suitable for
// [security] encryption_key
func GenerateKeyString() (string, error) {
	key, err := GenerateKey()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
