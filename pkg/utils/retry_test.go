package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	got, err := WithRetry(context.Background(), fastRetry(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got != "ok" {
		t.Fatalf("expected ok, got %q", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_FirstAttemptSuccessCallsOnce(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), fastRetry(3), func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("expected single call, got calls=%d err=%v", calls, err)
	}
}

type opError struct{ n int }

func (e *opError) Error() string { return "op failed" }

func TestWithRetry_ReturnsLastErrorAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), fastRetry(4), func(ctx context.Context) (int, error) {
		calls++
		return 0, &opError{n: calls}
	})
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
	var oe *opError
	if !errors.As(err, &oe) {
		t.Fatalf("expected *opError, got %T %v", err, err)
	}
	if oe.n != 4 {
		t.Fatalf("expected last error (attempt 4), got attempt %d", oe.n)
	}
}

func TestWithRetry_SingleAttempt(t *testing.T) {
	calls := 0
	_, err := WithRetry(context.Background(), fastRetry(1), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("nope")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one failing call, got calls=%d err=%v", calls, err)
	}
}

func TestWithRetry_DelaysDouble(t *testing.T) {
	var delays []time.Duration
	cfg := RetryConfig{
		MaxAttempts:  4,
		InitialDelay: time.Millisecond,
		OnRetry: func(attempt int, err error, next time.Duration) {
			delays = append(delays, next)
		},
	}
	_, _ = WithRetry(context.Background(), cfg, func(ctx context.Context) (int, error) {
		return 0, errors.New("x")
	})
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("expected %d retries, got %d", len(want), len(delays))
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}
}

func TestWithRetry_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := WithRetry(ctx, RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("x")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
