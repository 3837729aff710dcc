package security

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/swiftportal/payments-portal/internal/core/domain"
)

// DefaultBcryptCost is used when no cost is configured.
const DefaultBcryptCost = 12

// BcryptHasher hashes secrets with bcrypt. Hashing blocks on purpose; the
// work runs off the caller's goroutine so a deadline can abandon it.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher validates cost against bcrypt's accepted range. Zero
// selects DefaultBcryptCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d outside [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int { return h.cost }

// Hash returns the bcrypt encoding of secret.
func (h *BcryptHasher) Hash(ctx context.Context, secret string) (string, error) {
	type result struct {
		hash []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		b, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
		done <- result{b, err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("hash secret: %w: %w", domain.ErrTransient, ctx.Err())
	case r := <-done:
		if errors.Is(r.err, bcrypt.ErrPasswordTooLong) {
			ve := &domain.ValidationError{}
			ve.Add("password", "password must be at most 72 bytes")
			return "", ve
		}
		if r.err != nil {
			return "", fmt.Errorf("hash secret: %w", r.err)
		}
		return string(r.hash), nil
	}
}

// Verify compares secret with hash using bcrypt's own constant-time check.
// A mismatch is (false, nil); a malformed hash is an error.
func (h *BcryptHasher) Verify(ctx context.Context, secret, hash string) (bool, error) {
	done := make(chan error, 1)
	go func() {
		done <- bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	}()

	select {
	case <-ctx.Done():
		return false, fmt.Errorf("verify secret: %w: %w", domain.ErrTransient, ctx.Err())
	case err := <-done:
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("verify secret: %w", err)
		}
	}
}
