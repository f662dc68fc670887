package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	dErrors "shopstream/pkg/domain-errors"
)

// Cipher encrypts and decrypts tenant credentials at rest with AES-256-GCM.
// Plaintext tokens exist only in memory, just-in-time; the store only ever
// sees ciphertext.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a 256-bit key from the configured key material.
// The key material is hashed so operators can supply keys of any length.
func NewCipher(keyMaterial string) (*Cipher, error) {
	if keyMaterial == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "encryption key cannot be empty")
	}
	key := sha256.Sum256([]byte(keyMaterial))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not initialize cipher")
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals the plaintext and returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate nonce")
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered or foreign ciphertext surfaces as an
// invalid-token condition, never as a panic or partial plaintext.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidToken, "failed to decrypt token")
	}
	if len(raw) < c.aead.NonceSize() {
		return "", dErrors.New(dErrors.CodeInvalidToken, "failed to decrypt token")
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidToken, "failed to decrypt token")
	}
	return string(plaintext), nil
}
