// Package cipher implements field-level encryption for credentials at
// rest and envelope decryption of operator-supplied account batches.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/depotvault/depotvault/internal/domain/model"
	"github.com/depotvault/depotvault/internal/domain/port/driven"
)

// hkdfInfo binds derived keys to this use so the same operator secret
// cannot be reused for an unrelated purpose without producing a
// different key.
const hkdfInfo = "depotvault/account-field-v1"

// Cipher encrypts and decrypts sensitive account fields with AES-256-GCM.
// The 32-byte key is derived once from the operator secret via
// HKDF-SHA256. A Cipher constructed from an empty secret is disabled:
// all field operations return driven.ErrKeyNotSet.
type Cipher struct {
	key []byte
}

// New derives the field-encryption key from the operator secret. An
// empty secret yields a disabled Cipher rather than an error so callers
// can defer the failure to the first credential operation.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return &Cipher{}, nil
	}

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, model.NewCryptoError("derive key", err)
	}
	return &Cipher{key: key}, nil
}

// Enabled reports whether a key is configured.
func (c *Cipher) Enabled() bool { return c.key != nil }

// EncryptField encrypts plaintext with AES-256-GCM and returns a
// base64-encoded string containing the random nonce prepended to the
// ciphertext. Repeated encryption of identical plaintext produces
// distinct output.
func (c *Cipher) EncryptField(plaintext string) (string, error) {
	if c.key == nil {
		return "", driven.ErrKeyNotSet
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", model.NewCryptoError("new cipher", err)
	}
	gcm, err := gocipher.NewGCM(block)
	if err != nil {
		return "", model.NewCryptoError("new gcm", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", model.NewCryptoError("nonce", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField decrypts a base64-encoded AES-256-GCM ciphertext produced
// by EncryptField.
func (c *Cipher) DecryptField(encoded string) (string, error) {
	if c.key == nil {
		return "", driven.ErrKeyNotSet
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", model.NewCryptoError("base64 decode", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", model.NewCryptoError("new cipher", err)
	}
	gcm, err := gocipher.NewGCM(block)
	if err != nil {
		return "", model.NewCryptoError("new gcm", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", model.NewCryptoError("decrypt", errors.New("ciphertext too short"))
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", model.NewCryptoError("decrypt", fmt.Errorf("gcm open: %w", err))
	}
	return string(plaintext), nil
}
