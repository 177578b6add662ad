package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")

func fastPolicy(attempts int) Policy {
	return Policy{Attempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestDo_StopsAfterAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastPolicy(3), nil, func() error {
		calls++
		return errTransient
	}, nil)

	if !errors.Is(err, errTransient) {
		t.Fatalf("want errTransient, got %v", err)
	}
	if calls != 3 {
		t.Errorf("want 3 calls, got %d", calls)
	}
}

func TestDo_SucceedsAfterRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	notified := 0
	err := Do(context.Background(), fastPolicy(3), nil, func() error {
		calls++
		if calls < 2 {
			return errTransient
		}
		return nil
	}, func(error, time.Duration) { notified++ })

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 || notified != 1 {
		t.Errorf("want 2 calls and 1 notify, got %d and %d", calls, notified)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	t.Parallel()

	permanent := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(err error) bool {
		return !errors.Is(err, permanent)
	}, func() error {
		calls++
		return permanent
	}, nil)

	if !errors.Is(err, permanent) {
		t.Fatalf("want permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("want 1 call, got %d", calls)
	}
}

func TestDo_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastPolicy(5), nil, func() error {
		calls++
		cancel()
		return errTransient
	}, nil)

	if err == nil {
		t.Fatal("want an error after cancellation")
	}
	if calls != 1 {
		t.Errorf("want 1 call after cancellation, got %d", calls)
	}
}
