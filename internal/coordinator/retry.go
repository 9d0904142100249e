package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mazda-bridge-backend/internal/mazda"
)

// APIUnavailableError is reported when every retry attempt failed
// transiently. It carries the last underlying failure.
type APIUnavailableError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *APIUnavailableError) Error() string {
	return fmt.Sprintf("%s: api unavailable after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *APIUnavailableError) Unwrap() error { return e.Err }

// Retrier is the one retry policy shared by every upstream call site.
// Transient failures are retried with exponential backoff; authentication,
// validation and command-rejection failures return immediately.
type Retrier struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxBackoff   time.Duration
}

// Execute invokes call up to MaxAttempts times, waiting
// InitialDelay * 2^(attempt-1) (capped at MaxBackoff) between attempts.
func (r *Retrier) Execute(ctx context.Context, op string, call func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.InitialDelay
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = r.MaxBackoff
	bo.MaxElapsedTime = 0

	var maxRetries uint64
	if r.MaxAttempts > 1 {
		maxRetries = uint64(r.MaxAttempts - 1)
	}

	attempts := 0
	var lastErr error
	operation := func() error {
		attempts++
		err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
	if err == nil {
		return nil
	}
	if !retryable(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &APIUnavailableError{Op: op, Attempts: attempts, Err: lastErr}
}

// retryable distinguishes transient failures from the kinds that must
// surface immediately.
func retryable(err error) bool {
	var authErr *mazda.AuthError
	var valErr *mazda.ValidationError
	var rejErr *mazda.CommandRejectedError
	if errors.As(err, &authErr) || errors.As(err, &valErr) || errors.As(err, &rejErr) {
		return false
	}
	return true
}
