package auth

import "time"

// LockoutPolicy is the per-account failed-attempt state machine. The
// transition functions are pure; storage applies them atomically (the
// Postgres repository mirrors OnFailure in a single UPDATE so concurrent
// failures cannot under-count past the threshold).
type LockoutPolicy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// DefaultLockoutPolicy matches the configured defaults: five strikes,
// fifteen-minute window.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 5, LockDuration: 15 * time.Minute}
}

// OnFailure computes the post-failure lockout state. An expired lock means
// this failure starts a new window: the counter restarts at 1 and the stale
// lock is cleared. Otherwise the counter advances and, on reaching the
// threshold while unlocked, the lock opens at now+LockDuration.
func (p LockoutPolicy) OnFailure(attempts int, lockedUntil *time.Time, now time.Time) (int, *time.Time) {
	if lockedUntil != nil && !lockedUntil.After(now) {
		return 1, nil
	}
	next := attempts + 1
	if next >= p.MaxAttempts && lockedUntil == nil {
		until := now.Add(p.LockDuration)
		return next, &until
	}
	return next, lockedUntil
}

// Locked reports whether the window is still open at the given time.
func (p LockoutPolicy) Locked(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}
