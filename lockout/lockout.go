// Package lockout implements the per-account failed-login state machine:
//
//	Unlocked --(Threshold consecutive failures)--> Locked(until = now + Window)
//	Locked   --(Window elapsed)-------------------> Unlocked
//
// Any successful authentication resets the counter and clears the lock. The
// package is pure; persistence and atomicity belong to the caller's store.
package lockout

import (
	"errors"
	"time"
)

// Policy holds the lockout threshold and window. A zero Threshold disables
// lockout.
type Policy struct {
	Threshold int
	Window    time.Duration
}

// DefaultPolicy locks an account for one hour after ten consecutive failures.
func DefaultPolicy() Policy {
	return Policy{Threshold: 10, Window: time.Hour}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.Threshold < 0 {
		return errors.New("lockout threshold must be >= 0")
	}
	if p.Threshold > 0 && p.Window <= 0 {
		return errors.New("lockout window must be > 0 when lockout is enabled")
	}
	return nil
}

// State is the lockout-relevant part of an account.
type State struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// Locked reports whether s is locked at now and until when.
func (p Policy) Locked(s State, now time.Time) (time.Time, bool) {
	if s.LockedUntil == nil || !now.Before(*s.LockedUntil) {
		return time.Time{}, false
	}
	return *s.LockedUntil, true
}

// RecordFailure applies one failed attempt at now. The boolean is true when
// this failure moved the account into Locked.
func (p Policy) RecordFailure(s State, now time.Time) (State, bool) {
	if p.Threshold <= 0 {
		return s, false
	}
	if _, locked := p.Locked(s, now); locked {
		return s, false
	}
	if s.LockedUntil != nil {
		// lock expired; start a fresh count
		s = State{}
	}

	s.FailedAttempts++
	if s.FailedAttempts < p.Threshold {
		return s, false
	}

	until := now.Add(p.Window).UTC()
	s.LockedUntil = &until
	return s, true
}

// RecordSuccess returns the state after a successful authentication.
func (p Policy) RecordSuccess(State) State {
	return State{}
}
