package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/gookit/slog"
)

// Policy bounds how often a statement is attempted.
type Policy struct {
	// MaxRetries is the total number of attempts, including the first one.
	MaxRetries int           `mapstructure:"max_retries" json:"max_retries" yaml:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay" json:"base_delay" yaml:"base_delay"`
}

// DefaultPolicy is used when a job does not configure retries.
var DefaultPolicy = Policy{MaxRetries: 3, BaseDelay: time.Second}

// Delay returns the pause after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt)
}

func (p Policy) attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// ExhaustedError is returned when a transient error survived every attempt.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do runs fn until it succeeds, returns a non-transient error, or the policy
// is used up. Only errors accepted by isTransient are retried.
func Do[T any](ctx context.Context, p Policy, isTransient func(error) bool, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	max := p.attempts()

	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}
		if !isTransient(err) {
			return zero, err
		}
		if attempt >= max {
			return zero, &ExhaustedError{Op: op, Attempts: attempt, Err: err}
		}

		delay := p.Delay(attempt)
		slog.Warnf("%s: transient error (attempt %d/%d), retrying in %s: %v", op, attempt, max, delay, err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
}
