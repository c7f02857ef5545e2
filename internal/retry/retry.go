// Package retry runs an operation with exponential backoff, retrying only the
// errors a classifier accepts.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

type Policy struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// Classifier returns true when err is worth another attempt.
type Classifier func(err error) bool

type Outcome string

const (
	Succeeded    Outcome = "succeeded"
	Exhausted    Outcome = "exhausted"
	NotRetryable Outcome = "not_retryable"
	Canceled     Outcome = "canceled"
)

type Result struct {
	Outcome  Outcome
	Attempts int
	Err      error
}

func (r Result) OK() bool { return r.Outcome == Succeeded }

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.InitialDelay < 0 {
		p.InitialDelay = 0
	}
	return p
}

// Delay returns the wait before attempt n+1 after n failed attempts.
func (p Policy) Delay(n int) time.Duration {
	p = p.normalized()
	if n <= 0 || p.InitialDelay == 0 {
		return 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// sleep is swapped in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Do calls fn until it succeeds, returns an error the classifier rejects, or
// the attempt budget runs out.
func Do[T any](ctx context.Context, p Policy, retryable Classifier, fn func(ctx context.Context) (T, error)) (T, Result) {
	p = p.normalized()
	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, Result{Outcome: Canceled, Attempts: attempt - 1, Err: errors.Join(err, lastErr)}
		}
		v, err := fn(ctx)
		if err == nil {
			return v, Result{Outcome: Succeeded, Attempts: attempt}
		}
		lastErr = err
		// A failure after the caller gave up is cancellation, whatever the
		// classifier would say about it.
		if cerr := ctx.Err(); cerr != nil {
			return zero, Result{Outcome: Canceled, Attempts: attempt, Err: errors.Join(cerr, err)}
		}
		if retryable == nil || !retryable(err) {
			return zero, Result{Outcome: NotRetryable, Attempts: attempt, Err: err}
		}
		if attempt == p.MaxAttempts {
			break
		}
		if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
			return zero, Result{Outcome: Canceled, Attempts: attempt, Err: errors.Join(serr, lastErr)}
		}
	}
	return zero, Result{Outcome: Exhausted, Attempts: p.MaxAttempts, Err: lastErr}
}
