// Package retry implements the exponential-backoff retry policy shared by
// every provider-facing call (telephony adapters, AI pipeline stages,
// notification channels): base 200ms, factor 2, max 3 attempts, ±20%
// jitter, per the error-handling design's "Provider Transient" kind.
//
// The shape is generalized from the teacher's own Postgres connection
// retry loop (internal/db.NewDatabaseWithRetry in order-service), which
// hand-rolls the same backoff-with-jitter idea for connection bring-up.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

const (
	DefaultBase       = 200 * time.Millisecond
	DefaultFactor     = 2.0
	DefaultMaxAttempts = 3
	DefaultJitter     = 0.2
)

// Policy configures a retry loop.
type Policy struct {
	Base        time.Duration
	Factor      float64
	MaxAttempts int
	Jitter      float64
}

func DefaultPolicy() Policy {
	return Policy{Base: DefaultBase, Factor: DefaultFactor, MaxAttempts: DefaultMaxAttempts, Jitter: DefaultJitter}
}

// Retryable is implemented by errors that know whether a retry may help.
type Retryable interface {
	Retryable() bool
}

// Do runs fn up to p.MaxAttempts times, sleeping with exponential backoff
// and jitter between attempts. It stops early if ctx is cancelled, or if
// fn's error does not implement Retryable (or implements it but returns
// false) — validation and fatal provider errors are never retried.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	var lastErr error
	delay := p.Base
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		var r Retryable
		if !errors.As(err, &r) || !r.Retryable() {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		jittered := applyJitter(delay, p.Jitter)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
		delay = time.Duration(float64(delay) * p.Factor)
	}
	return lastErr
}

func applyJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	offset := (rand.Float64()*2 - 1) * delta
	return time.Duration(float64(d) + offset)
}
