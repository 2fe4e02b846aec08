package authcore

import (
	"context"
	"time"
)

// lockoutPolicy enforces the failed-attempt account lock on top of the
// caller's AccountStore. Locks expire lazily: nothing unlocks an account
// until the next login attempt observes that LockedUntil has passed.
type lockoutPolicy struct {
	store     AccountStore
	threshold int
	duration  time.Duration
	clock     Clock
}

// isLocked reports whether acct is currently locked, clearing an expired
// lock in passing. The cleared state is reflected back into acct so the
// caller can proceed without a re-fetch.
func (p *lockoutPolicy) isLocked(ctx context.Context, acct *Account) (bool, error) {
	if acct.LockedUntil == nil {
		return false, nil
	}
	if p.clock.Now().Before(*acct.LockedUntil) {
		return true, nil
	}

	if err := p.store.ClearLock(ctx, acct.ID); err != nil {
		return true, backendErr(err)
	}
	acct.LockedUntil = nil
	acct.FailedAttempts = 0
	if acct.Status == StatusLocked {
		acct.Status = StatusActive
	}
	return false, nil
}

// registerFailure records one failed attempt and engages the lock at the
// threshold. It reports whether this failure locked the account. The
// increment is atomic in the store, so concurrent wrong passwords cannot
// undercount their way past the threshold.
func (p *lockoutPolicy) registerFailure(ctx context.Context, accountID string) (bool, error) {
	attempts, err := p.store.IncrementFailedAttempts(ctx, accountID)
	if err != nil {
		return false, backendErr(err)
	}
	if attempts < p.threshold {
		return false, nil
	}

	until := p.clock.Now().Add(p.duration)
	if err := p.store.SetLock(ctx, accountID, until); err != nil {
		return false, backendErr(err)
	}
	return true, nil
}

// registerSuccess resets the failure state after a completed login.
func (p *lockoutPolicy) registerSuccess(ctx context.Context, accountID string) error {
	if err := p.store.RecordLoginSuccess(ctx, accountID, p.clock.Now()); err != nil {
		return backendErr(err)
	}
	return nil
}
