package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wesleyorama2/rhino/internal/simerr"
)

func TestDo_ExhaustsAfterRetries(t *testing.T) {
	attempts := 0
	policy := Policy[int]{
		Retriable: func(int) bool { return true },
		Retries:   3,
		Cause:     func(v int) error { return fmt.Errorf("status %d", v) },
	}

	result, err := Do(context.Background(), policy, func(_ context.Context, attempt int) (int, error) {
		attempts++
		return 500 + attempt, nil
	})

	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
	var exhausted *simerr.RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Do() error = %v, want RetryExhaustedError", err)
	}
	if exhausted.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", exhausted.Attempts)
	}
	if exhausted.Cause == nil || exhausted.Cause.Error() != "status 504" {
		t.Errorf("Cause = %v, want status 504", exhausted.Cause)
	}
	if result != 504 {
		t.Errorf("result = %d, want last attempt's 504", result)
	}
}

func TestDo_StopsWhenResultNotRetriable(t *testing.T) {
	attempts := 0
	policy := Policy[string]{
		Retriable: func(v string) bool { return v == "busy" },
		Retries:   3,
	}

	result, err := Do(context.Background(), policy, func(_ context.Context, attempt int) (string, error) {
		attempts++
		if attempt == 1 {
			return "busy", nil
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if result != "ok" {
		t.Errorf("result = %q, want ok", result)
	}
}

func TestDo_ErrorIsNotRetried(t *testing.T) {
	attempts := 0
	boom := errors.New("connection refused")
	policy := Policy[int]{Retriable: func(int) bool { return true }, Retries: 5}

	_, err := Do(context.Background(), policy, func(context.Context, int) (int, error) {
		attempts++
		return 0, boom
	})

	if !errors.Is(err, boom) {
		t.Errorf("Do() error = %v, want %v", err, boom)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDo_ZeroRetries(t *testing.T) {
	attempts := 0
	policy := Policy[int]{Retriable: func(int) bool { return true }}

	_, err := Do(context.Background(), policy, func(context.Context, int) (int, error) {
		attempts++
		return 0, nil
	})

	var exhausted *simerr.RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Do() error = %v, want RetryExhaustedError", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if !errors.Is(err, simerr.ErrUnexpectedStatus) {
		t.Errorf("default cause should wrap ErrUnexpectedStatus, got %v", err)
	}
}

func TestDo_OnRetryAndCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var retried []int
	policy := Policy[int]{Retriable: func(int) bool { return true }, Retries: 10}

	_, err := Do(ctx, policy, func(_ context.Context, attempt int) (int, error) {
		if attempt == 3 {
			cancel()
		}
		return attempt, nil
	}, OnRetry(func(attempt int, _ error) {
		retried = append(retried, attempt)
	}))

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if len(retried) != 2 || retried[0] != 2 || retried[1] != 3 {
		t.Errorf("OnRetry attempts = %v, want [2 3]", retried)
	}
}
