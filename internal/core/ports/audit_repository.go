package ports

import (
	"context"

	"github.com/swiftportal/payments-portal/internal/core/domain"
)

// AuditRepository persists the security audit trail.
type AuditRepository interface {
	InsertEvent(ctx context.Context, event *domain.AuthEvent) error
}

// AuditRecorder accepts audit events without blocking the request path.
type AuditRecorder interface {
	Record(event domain.AuthEvent)
}

// AttemptGuard makes failure recording idempotent per request. MarkFirst
// returns true only for the first call with a given key; Release forgets a
// key whose recording did not complete.
type AttemptGuard interface {
	MarkFirst(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
