// Package retry drives provider attempts across a credential pool as an
// explicit state machine instead of exception-style control flow: an attempt
// is trying on one credential until it succeeds, rotates, or the pool is
// exhausted.
package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"shortvid-pipeline/faults"
	"shortvid-pipeline/keyring"
)

// Class is the retry classification of one failed attempt.
type Class int

const (
	// ClassFatal errors surface immediately.
	ClassFatal Class = iota
	// ClassRateLimited advances to the next credential with no backoff.
	ClassRateLimited
	// ClassTransient retries the same credential after a fixed pause.
	ClassTransient
)

// Classify maps an error to its retry class. Adapters tag provider-specific
// signals by wrapping faults.ErrRateLimited / faults.ErrTransient; plain
// network errors count as transient too.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassFatal
	case errors.Is(err, faults.ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, faults.ErrTransient):
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	return ClassFatal
}

// Spec tunes the attempt loop for one adapter.
type Spec struct {
	Provider       string
	TransientTries int           // attempts per credential for transient errors (min 1)
	TransientPause time.Duration // pause between transient attempts
}

type phase int

const (
	trying phase = iota
	succeeded
	exhausted
)

// Do runs fn once per credential in the pool (once with an empty key when rot
// is nil), following the classification rules. Exhausting the pool returns
// faults.AllCredentialsExhaustedError carrying the last failure.
func Do[T any](ctx context.Context, rot *keyring.Rotator, spec Spec, fn func(ctx context.Context, key string) (T, error)) (T, error) {
	var zero T

	credentials := 1
	if rot != nil {
		credentials = rot.Size()
	}
	tries := spec.TransientTries
	if tries < 1 {
		tries = 1
	}

	var lastErr error
	state := trying
	for attempt := 0; state == trying; attempt++ {
		if attempt >= credentials {
			state = exhausted
			break
		}
		key := ""
		if rot != nil {
			key = rot.Next()
		}

		for try := 0; try < tries; try++ {
			if err := ctx.Err(); err != nil {
				return zero, err
			}
			out, err := fn(ctx, key)
			if err == nil {
				state = succeeded
				return out, nil
			}
			lastErr = err

			switch Classify(err) {
			case ClassRateLimited:
				// Rotate immediately; the next outer attempt gets a new key.
				try = tries
			case ClassTransient:
				if try < tries-1 {
					if err := sleep(ctx, spec.TransientPause); err != nil {
						return zero, err
					}
				}
			default:
				return zero, err
			}
		}
	}

	return zero, &faults.AllCredentialsExhaustedError{Provider: spec.Provider, Last: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
