package domain

import "time"

// LoginOutcome enumerates every business result of a login attempt.
// Infrastructure failures are reported as errors instead.
type LoginOutcome string

const (
	OutcomeSuccess            LoginOutcome = "success"
	OutcomeInvalidCredentials LoginOutcome = "invalid_credentials"
	OutcomeLocked             LoginOutcome = "locked"
	OutcomeDeactivated        LoginOutcome = "deactivated"
)

// LoginVerdict carries an outcome together with the lockout details the
// caller may disclose.
type LoginVerdict struct {
	Outcome LoginOutcome
	// RemainingAttempts is set for InvalidCredentials after a recorded failure.
	RemainingAttempts *uint
	// LockRemaining is set for Locked.
	LockRemaining time.Duration
	// JustLocked is set when this very attempt triggered the lock.
	JustLocked bool
}

// Err converts a non-success verdict into the matching domain error.
func (v LoginVerdict) Err() error {
	switch v.Outcome {
	case OutcomeSuccess:
		return nil
	case OutcomeLocked:
		return &LockedError{Remaining: v.LockRemaining}
	case OutcomeDeactivated:
		return ErrDeactivated
	default:
		return &CredentialsError{RemainingAttempts: v.RemainingAttempts}
	}
}

// DenyReason explains why the authorization gate refused a request.
type DenyReason string

const (
	DenyUnauthenticated  DenyReason = "unauthenticated"
	DenyWrongAccountKind DenyReason = "wrong_account_kind"
	DenyNotFound         DenyReason = "not_found"
	DenyInactive         DenyReason = "inactive"
	DenyLocked           DenyReason = "locked"
	DenyForbidden        DenyReason = "forbidden"
)

// Decision is the result of an authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	// LockRemaining is set when Reason is DenyLocked.
	LockRemaining time.Duration
}

// Allow is the positive decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny builds a negative decision.
func Deny(reason DenyReason) Decision { return Decision{Reason: reason} }

// Err converts a deny decision into the matching domain error.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case DenyUnauthenticated:
		return ErrUnauthenticated
	case DenyWrongAccountKind:
		return ErrWrongAccountKind
	case DenyNotFound:
		return ErrIdentityNotFound
	case DenyInactive:
		return ErrDeactivated
	case DenyLocked:
		return &LockedError{Remaining: d.LockRemaining}
	default:
		return ErrForbidden
	}
}
