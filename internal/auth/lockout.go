package auth

import "time"

// LockoutPolicy decides when repeated failures suspend password checking.
// It is a pure value: all state lives on the identity row.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// DefaultLockoutPolicy matches the documented product defaults.
var DefaultLockoutPolicy = LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute}

// Locked reports whether the account is currently suspended.
func (p LockoutPolicy) Locked(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// Remaining returns how long the suspension still holds; zero when not locked.
func (p LockoutPolicy) Remaining(lockedUntil *time.Time, now time.Time) time.Duration {
	if !p.Locked(lockedUntil, now) {
		return 0
	}
	return lockedUntil.Sub(now)
}

// ApplyFailure increments the failure counter and returns the new count
// together with the lock expiry to set, or nil when the threshold has not
// been reached. The expiry is always strictly in the future.
func (p LockoutPolicy) ApplyFailure(failedAttempts int, now time.Time) (int, *time.Time) {
	count := failedAttempts + 1
	if count >= p.Threshold {
		until := now.Add(p.Duration)
		return count, &until
	}
	return count, nil
}
