package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/swiftportal/payments-portal/internal/core/domain"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
	separator = ":"
)

var hexKey = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// FieldCipher is AES-256-GCM with a fresh random nonce per call. Blobs are
// encoded as hex(nonce):hex(tag):hex(ciphertext).
type FieldCipher struct {
	aead     cipher.AEAD
	indexKey []byte
	rand     io.Reader
}

// DeriveKey turns the configured secret into a 32-byte key. A 64 character
// hex string is decoded as-is; anything else is hashed with SHA-256.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("field cipher: %w", domain.ErrMissingKey)
	}
	if hexKey.MatchString(secret) {
		return hex.DecodeString(secret)
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:], nil
}

// NewFieldCipher derives the key once; the returned cipher is immutable and
// safe for concurrent use.
func NewFieldCipher(secret string) (*FieldCipher, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("field cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("field cipher: %w", err)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("blind-index"))

	return &FieldCipher{aead: aead, indexKey: mac.Sum(nil), rand: rand.Reader}, nil
}

// Encrypt seals plaintext under a new random nonce.
func (c *FieldCipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return "", fmt.Errorf("field cipher: nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return hex.EncodeToString(nonce) + separator +
		hex.EncodeToString(tag) + separator +
		hex.EncodeToString(ct), nil
}

// Decrypt verifies the tag and returns the plaintext. Any malformed or
// tampered blob yields domain.ErrIntegrity.
func (c *FieldCipher) Decrypt(blob string) ([]byte, error) {
	parts := strings.Split(blob, separator)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", domain.ErrIntegrity, len(parts))
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return nil, fmt.Errorf("%w: bad nonce", domain.ErrIntegrity)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return nil, fmt.Errorf("%w: bad tag", domain.ErrIntegrity)
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", domain.ErrIntegrity)
	}

	plain, err := c.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", domain.ErrIntegrity)
	}
	return plain, nil
}

// BlindIndex is HMAC-SHA256 of plaintext under a key derived from the cipher
// key. Equal inputs give equal digests, so the store can enforce uniqueness.
func (c *FieldCipher) BlindIndex(plaintext string) string {
	mac := hmac.New(sha256.New, c.indexKey)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}
