package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

// DecryptionSentinel is the visible placeholder substituted for a protected
// field that failed authenticated decryption. Listings stay non-fatal;
// callers requiring strict correctness check for it explicitly.
const DecryptionSentinel = "[DECRYPTION_ERROR]"

// ErrDecryptionFailure marks a corrupted, tampered or wrongly-keyed blob.
var ErrDecryptionFailure = errors.New("vault: decryption failure")

// Cipher performs AES-256-GCM field-level encryption. Each call uses a
// fresh random nonce prefixed to the ciphertext, so encrypting the same
// plaintext twice yields different blobs.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from the base64 encoding of a 32-byte key.
func NewCipher(base64Key string) (*Cipher, error) {
	key, err := base64.StdEncoding.DecodeString(base64Key)
	if err != nil {
		return nil, fmt.Errorf("vault: decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext into a base64 blob of nonce||ciphertext. The
// empty string passes through untouched.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. The empty string passes through
// untouched; any defect fails with ErrDecryptionFailure.
func (c *Cipher) Decrypt(blob string) (string, error) {
	if blob == "" {
		return "", nil
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrDecryptionFailure
	}
	if len(raw) < c.aead.NonceSize() {
		return "", ErrDecryptionFailure
	}
	nonce, ciphertext := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailure
	}
	return string(plaintext), nil
}
