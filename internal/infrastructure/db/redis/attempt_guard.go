package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swiftportal/payments-portal/internal/core/domain"
)

const defaultGuardTTL = 15 * time.Minute

// AttemptGuard remembers which login attempts already recorded a failure so a
// retried request does not consume a second lockout tick.
// Key format: login-attempt:<kind>:<identity_id>:<attempt_key>
type AttemptGuard struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewAttemptGuard creates an AttemptGuard; keys expire after ttl.
func NewAttemptGuard(client redis.Cmdable, ttl time.Duration) *AttemptGuard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &AttemptGuard{client: client, ttl: ttl}
}

// MarkFirst reports whether key is seen for the first time, claiming it.
func (g *AttemptGuard) MarkFirst(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(key), "1", g.ttl).Result()
	if err != nil {
		return false, guardErr("attempt guard mark", err)
	}
	return ok, nil
}

// Release drops a claim whose failure could not be recorded.
func (g *AttemptGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, g.key(key)).Err(); err != nil {
		return guardErr("attempt guard release", err)
	}
	return nil
}

func (g *AttemptGuard) key(k string) string {
	return fmt.Sprintf("login-attempt:%s", k)
}

func guardErr(op string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTransient, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
