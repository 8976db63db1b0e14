// Package poller turns a submit-then-poll job API into a single awaited outcome.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSubmitFailed is returned when the job could not be started.
	ErrSubmitFailed = errors.New("job submit failed")
	// ErrTimedOut is returned when no terminal status was seen before the deadline.
	ErrTimedOut = errors.New("job polling timed out")
	// ErrUnknownStatus is wrapped by checks that see a status outside the known set.
	ErrUnknownStatus = errors.New("unknown job status")
)

// FailedError carries the failure message reported by the backend.
type FailedError struct {
	Message string
}

func (e *FailedError) Error() string {
	return "job failed: " + e.Message
}

// State is what a single status check observed.
type State int

const (
	InProgress State = iota
	Succeeded
	Failed
)

// Result is returned by a CheckFunc. Message is only read for Failed.
type Result[T any] struct {
	State   State
	Value   T
	Message string
}

// CheckFunc performs one status check. A non-nil error aborts polling.
type CheckFunc[T any] func(ctx context.Context) (Result[T], error)

// SubmitFunc starts a job and returns its id.
type SubmitFunc func(ctx context.Context) (string, error)

type Config struct {
	Interval    time.Duration
	Timeout     time.Duration
	MaxAttempts int // 0 derives the cap from Timeout/Interval
}

func (c Config) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	if c.Interval <= 0 || c.Timeout <= 0 {
		return 1
	}
	return int(c.Timeout/c.Interval) + 1
}

// Wait calls check until it reports a terminal state, the attempt cap is hit,
// or cfg.Timeout elapses. The deadline is independent of any transport timeout
// and also bounds the context handed to check.
func Wait[T any](ctx context.Context, cfg Config, check CheckFunc[T]) (T, error) {
	var zero T

	pollCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	limit := cfg.maxAttempts()
	for attempt := 1; ; attempt++ {
		res, err := check(pollCtx)
		if err != nil {
			if ctxErr := deadlineErr(ctx, pollCtx); ctxErr != nil {
				return zero, ctxErr
			}
			return zero, err
		}

		switch res.State {
		case Succeeded:
			return res.Value, nil
		case Failed:
			return zero, &FailedError{Message: res.Message}
		case InProgress:
		default:
			return zero, fmt.Errorf("%w: state %d", ErrUnknownStatus, res.State)
		}

		if attempt >= limit {
			return zero, fmt.Errorf("%w after %d attempts", ErrTimedOut, attempt)
		}

		timer := time.NewTimer(cfg.Interval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return zero, deadlineErr(ctx, pollCtx)
		case <-timer.C:
		}
	}
}

// Run submits a job and waits for it. Submit errors and empty ids surface as
// ErrSubmitFailed.
func Run[T any](ctx context.Context, cfg Config, submit SubmitFunc, check func(ctx context.Context, jobID string) (Result[T], error)) (string, T, error) {
	var zero T

	jobID, err := submit(ctx)
	if err != nil {
		return "", zero, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	if jobID == "" {
		return "", zero, fmt.Errorf("%w: empty job id", ErrSubmitFailed)
	}

	value, err := Wait(ctx, cfg, func(ctx context.Context) (Result[T], error) {
		return check(ctx, jobID)
	})
	return jobID, value, err
}

// deadlineErr distinguishes our own deadline from cancellation by the caller.
func deadlineErr(parent, pollCtx context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		return ErrTimedOut
	}
	return nil
}

// Outcome names the class of a polling result for callers that report it.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeSubmitFailed Outcome = "submit_failed"
	OutcomeFailed       Outcome = "failed"
	OutcomeTimedOut     Outcome = "timed_out"
	OutcomeCancelled    Outcome = "cancelled"
	OutcomeTransport    Outcome = "transport_error"
)

// Classify maps an error returned by Wait or Run to its Outcome.
func Classify(err error) Outcome {
	var failed *FailedError
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled):
		// a submit aborted by the caller is a cancel, not a backend failure
		return OutcomeCancelled
	case errors.Is(err, ErrSubmitFailed):
		return OutcomeSubmitFailed
	case errors.Is(err, ErrTimedOut):
		return OutcomeTimedOut
	case errors.As(err, &failed), errors.Is(err, ErrUnknownStatus):
		return OutcomeFailed
	default:
		return OutcomeTransport
	}
}
