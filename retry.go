package main

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// RetryExhaustedError reports a retry budget spent without success. It wraps
// the error from the final attempt.
type RetryExhaustedError struct {
	Label    string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Label, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// permanentError marks a failure that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so Retryer.Do returns it immediately instead of
// burning further attempts on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retryer runs operations with a bounded attempt count and exponential
// backoff between attempts. The zero value retries nothing useful; build
// one with NewRetryer.
type Retryer struct {
	MaxAttempts int
	BaseDelay   time.Duration

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

// NewRetryer returns a Retryer that sleeps for real.
func NewRetryer(maxAttempts int, baseDelay time.Duration) Retryer {
	return Retryer{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		sleep:       time.Sleep,
	}
}

// Do invokes op until it succeeds or MaxAttempts is spent. The delay after
// failed attempt n is BaseDelay doubled n-1 times (1s, 2s, 4s, ...); there
// is no delay after the final attempt. Errors wrapped with Permanent stop
// the loop immediately. Exhaustion returns a *RetryExhaustedError wrapping
// the last attempt's error.
func (r Retryer) Do(label string, op func(attempt int) error) error {
	maxAttempts := r.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := r.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := op(attempt)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err

		if attempt < maxAttempts {
			delay := r.BaseDelay << uint(attempt-1)
			log.Printf("  ↻ %s attempt %d/%d failed, retrying in %s: %v", label, attempt, maxAttempts, delay, err)
			sleep(delay)
		}
	}

	return &RetryExhaustedError{Label: label, Attempts: maxAttempts, Last: lastErr}
}
