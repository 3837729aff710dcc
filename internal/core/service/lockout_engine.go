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

const maxSwapRetries = 5

// LockoutEngine applies the lockout policy and persists every transition
// before returning. Writes for one identity are serialized in-process by a
// striped mutex and across processes by the store's compare-and-swap.
type LockoutEngine struct {
	store  ports.LockoutStore
	policy domain.LockoutPolicy
	locks  *stripedMutex
	now    func() time.Time
	log    zerolog.Logger
}

// NewLockoutEngine falls back to the default policy for zero values.
func NewLockoutEngine(store ports.LockoutStore, policy domain.LockoutPolicy, log zerolog.Logger) *LockoutEngine {
	def := domain.DefaultLockoutPolicy()
	if policy.MaxAttempts == 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.LockDuration <= 0 {
		policy.LockDuration = def.LockDuration
	}
	return &LockoutEngine{
		store:  store,
		policy: policy,
		locks:  newStripedMutex(defaultStripes),
		now:    time.Now,
		log:    log,
	}
}

// Policy returns the effective policy.
func (e *LockoutEngine) Policy() domain.LockoutPolicy { return e.policy }

// Check is consulted before any secret is verified. It returns the remaining
// lock time when state is Locked; an expired lock is persisted back to
// Unlocked(0) first.
func (e *LockoutEngine) Check(ctx context.Context, ref domain.IdentityRef, state domain.LockoutState) (time.Duration, error) {
	now := e.now()
	if state.LockedAt(now) {
		return state.Remaining(now), nil
	}
	if _, expired := e.policy.Settle(state, now); !expired {
		return 0, nil
	}

	unlock := e.locks.Lock(ref.String())
	defer unlock()

	for i := 0; i < maxSwapRetries; i++ {
		cur, err := e.store.LoadLockout(ctx, ref)
		if err != nil {
			return 0, fmt.Errorf("check lockout: %w", err)
		}
		if cur.LockedAt(now) {
			return cur.Remaining(now), nil
		}
		next, changed := e.policy.Settle(cur, now)
		if !changed {
			return 0, nil
		}
		err = e.store.SwapLockout(ctx, ref, cur.Version, next, nil)
		if errors.Is(err, domain.ErrLockoutConflict) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("check lockout: %w", err)
		}
		e.log.Info().Str("identity", ref.String()).Msg("lock expired, counter reset")
		return 0, nil
	}
	return 0, fmt.Errorf("check lockout: %w: %w", domain.ErrTransient, domain.ErrLockoutConflict)
}

// Record runs one attempt through the state machine and persists the result.
// A rejected transition (identity locked meanwhile) is returned without a write.
func (e *LockoutEngine) Record(ctx context.Context, ref domain.IdentityRef, success bool) (domain.LockoutTransition, error) {
	unlock := e.locks.Lock(ref.String())
	defer unlock()

	for i := 0; i < maxSwapRetries; i++ {
		cur, err := e.store.LoadLockout(ctx, ref)
		if err != nil {
			return domain.LockoutTransition{}, fmt.Errorf("record attempt: %w", err)
		}

		now := e.now()
		tr := e.policy.Apply(cur, success, now)
		if tr.Rejected {
			return tr, nil
		}

		var lastLogin *time.Time
		if success {
			lastLogin = &now
		}
		err = e.store.SwapLockout(ctx, ref, cur.Version, tr.Next, lastLogin)
		if errors.Is(err, domain.ErrLockoutConflict) {
			continue
		}
		if err != nil {
			return domain.LockoutTransition{}, fmt.Errorf("record attempt: %w", err)
		}
		tr.Next.Version = cur.Version + 1

		if tr.JustLocked {
			e.log.Warn().
				Str("identity", ref.String()).
				Dur("lock_duration", e.policy.LockDuration).
				Msg("account locked after repeated failures")
		}
		return tr, nil
	}
	return domain.LockoutTransition{}, fmt.Errorf("record attempt: %w: %w", domain.ErrTransient, domain.ErrLockoutConflict)
}

// Current loads the stored state, used when a retried request must not
// record a second failure.
func (e *LockoutEngine) Current(ctx context.Context, ref domain.IdentityRef) (domain.LockoutState, error) {
	s, err := e.store.LoadLockout(ctx, ref)
	if err != nil {
		return domain.LockoutState{}, fmt.Errorf("load lockout: %w", err)
	}
	return s, nil
}
