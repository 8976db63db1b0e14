package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scripted(states ...Result[string]) (CheckFunc[string], *int) {
	calls := 0
	return func(ctx context.Context) (Result[string], error) {
		i := calls
		calls++
		if i >= len(states) {
			return Result[string]{State: InProgress}, nil
		}
		return states[i], nil
	}, &calls
}

func TestWaitSucceedsAfterProgress(t *testing.T) {
	check, calls := scripted(
		Result[string]{State: InProgress},
		Result[string]{State: InProgress},
		Result[string]{State: Succeeded, Value: "done"},
	)

	value, err := Wait(context.Background(), Config{Interval: time.Millisecond, Timeout: time.Second}, check)

	require.NoError(t, err)
	assert.Equal(t, "done", value)
	assert.Equal(t, 3, *calls)
}

func TestWaitReportsBackendFailure(t *testing.T) {
	check, _ := scripted(Result[string]{State: Failed, Message: "clone failed"})

	_, err := Wait(context.Background(), Config{Interval: time.Millisecond, Timeout: time.Second}, check)

	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "clone failed", failed.Message)
	assert.Equal(t, OutcomeFailed, Classify(err))
}

func TestWaitTimesOutOnDeadline(t *testing.T) {
	check, _ := scripted()

	start := time.Now()
	_, err := Wait(context.Background(), Config{Interval: 5 * time.Millisecond, Timeout: 30 * time.Millisecond, MaxAttempts: 1000}, check)

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, OutcomeTimedOut, Classify(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitTimesOutOnAttemptCap(t *testing.T) {
	check, calls := scripted()

	_, err := Wait(context.Background(), Config{Interval: time.Millisecond, Timeout: time.Minute, MaxAttempts: 4}, check)

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, 4, *calls)
}

func TestWaitStopsOnCheckError(t *testing.T) {
	boom := errors.New("connection refused")
	calls := 0
	_, err := Wait(context.Background(), Config{Interval: time.Millisecond, Timeout: time.Second}, func(ctx context.Context) (Result[int], error) {
		calls++
		return Result[int]{}, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Equal(t, OutcomeTransport, Classify(err))
}

func TestWaitUnknownStatusIsNotRetried(t *testing.T) {
	calls := 0
	_, err := Wait(context.Background(), Config{Interval: time.Millisecond, Timeout: time.Second}, func(ctx context.Context) (Result[int], error) {
		calls++
		return Result[int]{}, errors.Join(ErrUnknownStatus, errors.New("status \"exploded\""))
	})

	assert.ErrorIs(t, err, ErrUnknownStatus)
	assert.Equal(t, 1, calls)
	assert.Equal(t, OutcomeFailed, Classify(err))
}

func TestWaitHonoursCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	check, _ := scripted()

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Wait(ctx, Config{Interval: 5 * time.Millisecond, Timeout: time.Minute}, check)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCancelled, Classify(err))
}

func TestRunSubmitFailures(t *testing.T) {
	neverCalled := func(ctx context.Context, jobID string) (Result[string], error) {
		t.Fatal("check must not run when submit fails")
		return Result[string]{}, nil
	}
	cfg := Config{Interval: time.Millisecond, Timeout: time.Second}

	_, _, err := Run(context.Background(), cfg, func(ctx context.Context) (string, error) {
		return "", errors.New("503")
	}, neverCalled)
	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.Equal(t, OutcomeSubmitFailed, Classify(err))

	_, _, err = Run(context.Background(), cfg, func(ctx context.Context) (string, error) {
		return "", nil
	}, neverCalled)
	assert.ErrorIs(t, err, ErrSubmitFailed)
}

func TestRunPassesJobID(t *testing.T) {
	jobID, value, err := Run(context.Background(), Config{Interval: time.Millisecond, Timeout: time.Second},
		func(ctx context.Context) (string, error) { return "J1", nil },
		func(ctx context.Context, id string) (Result[string], error) {
			return Result[string]{State: Succeeded, Value: "result-of-" + id}, nil
		},
	)

	require.NoError(t, err)
	assert.Equal(t, "J1", jobID)
	assert.Equal(t, "result-of-J1", value)
}

func TestRunSubmitAbortedByCallerIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, _, err := Run(ctx, Config{Interval: time.Millisecond, Timeout: time.Second},
		func(ctx context.Context) (string, error) {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		},
		func(ctx context.Context, id string) (Result[string], error) {
			t.Fatal("check must not run when submit fails")
			return Result[string]{}, nil
		},
	)

	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, OutcomeCancelled, Classify(err))
}
