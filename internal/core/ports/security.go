package ports

import (
	"context"
	"time"

	"github.com/swiftportal/payments-portal/internal/core/domain"
)

// FieldCipher encrypts personal data before it reaches the store.
type FieldCipher interface {
	Encrypt(plaintext []byte) (string, error)
	// Decrypt fails with domain.ErrIntegrity on any tampered or malformed blob.
	Decrypt(blob string) ([]byte, error)
	// BlindIndex returns a keyed, deterministic digest usable for equality lookups.
	BlindIndex(plaintext string) string
}

// SecretHasher is a slow one-way password hash.
type SecretHasher interface {
	Hash(ctx context.Context, secret string) (string, error)
	Verify(ctx context.Context, secret, hash string) (bool, error)
}

// TokenManager issues and verifies bearer tokens.
type TokenManager interface {
	Issue(claims domain.TokenClaims) (string, time.Time, error)
	// Verify fails with domain.ErrTokenExpired or domain.ErrTokenInvalid.
	Verify(token string) (*domain.TokenClaims, error)
}
