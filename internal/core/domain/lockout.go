package domain

import (
	"math"
	"time"
)

const (
	DefaultMaxAttempts  = 5
	DefaultLockDuration = 30 * time.Minute
)

// LockoutPolicy holds the brute-force parameters.
type LockoutPolicy struct {
	MaxAttempts  uint
	LockDuration time.Duration
}

// DefaultLockoutPolicy returns 5 attempts / 30 minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: DefaultMaxAttempts, LockDuration: DefaultLockDuration}
}

// LockoutState is the persisted brute-force counter of one identity.
// Version is bumped on every write and used for compare-and-swap updates.
type LockoutState struct {
	FailedAttempts uint       `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	Version        int64      `json:"-"`
}

// LockedAt reports whether the state is Locked at instant now.
func (s LockoutState) LockedAt(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// Remaining returns how long the lock still holds at now, or zero.
func (s LockoutState) Remaining(now time.Time) time.Duration {
	if !s.LockedAt(now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// RemainingMinutes rounds d up to whole minutes.
func RemainingMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

// Settle moves an expired lock back to Unlocked(0). The second return value
// reports whether the state changed and therefore needs persisting.
func (p LockoutPolicy) Settle(s LockoutState, now time.Time) (LockoutState, bool) {
	if s.LockedUntil == nil || now.Before(*s.LockedUntil) {
		return s, false
	}
	return LockoutState{Version: s.Version}, true
}

// LockoutTransition is the result of applying one attempt to a state.
type LockoutTransition struct {
	Next LockoutState
	// Rejected is set when the identity was already locked; Next equals the
	// input and no attempt was consumed.
	Rejected bool
	// JustLocked is set when this attempt crossed the threshold.
	JustLocked        bool
	RemainingAttempts uint
	LockRemaining     time.Duration
}

// Changed reports whether Next differs from the state the transition started from.
func (t LockoutTransition) Changed() bool {
	return !t.Rejected
}

// Apply runs one authentication attempt through the state machine.
//
//	Locked(until), now <  until      -> rejected, unchanged
//	Locked(until), now >= until      -> Unlocked(0), then as below
//	Unlocked(n) + success            -> Unlocked(0)
//	Unlocked(n) + failure, n+1 < max -> Unlocked(n+1)
//	Unlocked(n) + failure, n+1 >= max-> Locked(now + duration)
func (p LockoutPolicy) Apply(s LockoutState, success bool, now time.Time) LockoutTransition {
	if s.LockedAt(now) {
		return LockoutTransition{
			Next:          s,
			Rejected:      true,
			LockRemaining: s.Remaining(now),
		}
	}
	s, _ = p.Settle(s, now)

	if success {
		return LockoutTransition{
			Next:              LockoutState{Version: s.Version},
			RemainingAttempts: p.MaxAttempts,
		}
	}

	failed := s.FailedAttempts + 1
	if failed >= p.MaxAttempts {
		until := now.Add(p.LockDuration)
		return LockoutTransition{
			Next:          LockoutState{FailedAttempts: failed, LockedUntil: &until, Version: s.Version},
			JustLocked:    true,
			LockRemaining: p.LockDuration,
		}
	}
	return LockoutTransition{
		Next:              LockoutState{FailedAttempts: failed, Version: s.Version},
		RemainingAttempts: p.MaxAttempts - failed,
	}
}
