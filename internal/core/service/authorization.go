package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/swiftportal/payments-portal/internal/core/domain"
	"github.com/swiftportal/payments-portal/internal/core/ports"
)

// Gate is the authorization gate. Authentication establishes who the caller
// is; the gate decides what the caller may do.
type Gate struct {
	identities ports.IdentityRepository
	audit      ports.AuditRecorder
	now        func() time.Time
	log        zerolog.Logger
}

// NewGate builds a Gate. audit may be nil.
func NewGate(identities ports.IdentityRepository, audit ports.AuditRecorder, log zerolog.Logger) *Gate {
	if audit == nil {
		audit = noopRecorder{}
	}
	return &Gate{identities: identities, audit: audit, now: time.Now, log: log}
}

// Require checks req against p. An identity and role already attached to p
// are reused; otherwise they are loaded in one composed read and attached.
// Store failures are returned as errors, never as a decision.
func (g *Gate) Require(ctx context.Context, p *ports.Principal, req ports.Requirement) (domain.Decision, error) {
	if p == nil || p.Claims == nil || p.Claims.SubjectID == "" {
		return domain.Deny(domain.DenyUnauthenticated), nil
	}
	if req.Kind != "" && p.Claims.AccountKind != req.Kind {
		return g.deny(p, req, domain.Deny(domain.DenyWrongAccountKind)), nil
	}

	if p.Identity == nil || p.Identity.ID != p.Claims.SubjectID {
		ident, role, err := g.identities.GetIdentityWithRole(ctx, p.Claims.Ref())
		switch {
		case errors.Is(err, domain.ErrIdentityNotFound):
			return g.deny(p, req, domain.Deny(domain.DenyNotFound)), nil
		case errors.Is(err, domain.ErrRoleNotFound):
			p.Identity, p.Role = ident, nil
		case err != nil:
			return domain.Decision{}, fmt.Errorf("authorize: %w", err)
		default:
			p.Identity, p.Role = ident, role
		}
	}

	if !p.Identity.IsActive {
		return g.deny(p, req, domain.Deny(domain.DenyInactive)), nil
	}
	if now := g.now(); p.Identity.Lockout.LockedAt(now) {
		d := domain.Deny(domain.DenyLocked)
		d.LockRemaining = p.Identity.Lockout.Remaining(now)
		return g.deny(p, req, d), nil
	}
	if req.Permission != "" && !p.Role.Has(req.Permission) {
		return g.deny(p, req, domain.Deny(domain.DenyForbidden)), nil
	}
	return domain.Allow(), nil
}

func (g *Gate) deny(p *ports.Principal, req ports.Requirement, d domain.Decision) domain.Decision {
	g.log.Info().
		Str("identity_id", p.Claims.SubjectID).
		Str("kind", string(p.Claims.AccountKind)).
		Str("permission", string(req.Permission)).
		Str("reason", string(d.Reason)).
		Msg("access denied")
	g.audit.Record(domain.AuthEvent{
		Type:       domain.EventAccessDenied,
		Kind:       p.Claims.AccountKind,
		IdentityID: p.Claims.SubjectID,
		Username:   p.Claims.Username,
		Reason:     string(d.Reason) + ":" + string(req.Permission),
		OccurredAt: g.now().UTC(),
	})
	return d
}

type noopRecorder struct{}

func (noopRecorder) Record(domain.AuthEvent) {}
