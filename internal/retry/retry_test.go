package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/MorseWayne/stock_guard/internal/domain"
)

var errTransient = errors.New("connection reset")

// failThenSucceed returns a fn that fails the first n calls
func failThenSucceed(n int, value string) (func(context.Context) (string, error), *int) {
	calls := new(int)
	return func(context.Context) (string, error) {
		*calls++
		if *calls <= n {
			return "", errTransient
		}
		return value, nil
	}, calls
}

func testConfig() Config {
	return Config{MaxAttempts: 3, Delay: time.Millisecond}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	fn, calls := failThenSucceed(0, "ok")
	got, err := Do(context.Background(), zap.NewNop(), testConfig(), "op", fn)
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if got != "ok" || *calls != 1 {
		t.Errorf("Do() = %q after %d calls, want %q after 1", got, *calls, "ok")
	}
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	fn, calls := failThenSucceed(2, "ok")
	got, err := Do(context.Background(), zap.NewNop(), testConfig(), "op", fn)
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	if got != "ok" || *calls != 3 {
		t.Errorf("Do() = %q after %d calls, want %q after 3", got, *calls, "ok")
	}
}

func TestDo_ExhaustionWrapsLastCause(t *testing.T) {
	fn, calls := failThenSucceed(10, "never")
	_, err := Do(context.Background(), zap.NewNop(), testConfig(), "op", fn)
	if err == nil {
		t.Fatal("Do() expected error after exhaustion")
	}
	if *calls != 3 {
		t.Errorf("Do() made %d calls, want 3", *calls)
	}
	if domain.CodeOf(err) != domain.CodeInventory {
		t.Errorf("Do() error code = %v, want %v", domain.CodeOf(err), domain.CodeInventory)
	}
	if !errors.Is(err, errTransient) {
		t.Errorf("Do() error chain lost the original cause: %v", err)
	}
}

func TestDo_BusinessErrorsNotRetried(t *testing.T) {
	reject := domain.NewInsufficientStock(1, 0, 5)
	calls := 0
	_, err := Do(context.Background(), zap.NewNop(), testConfig(), "op",
		func(context.Context) (int, error) {
			calls++
			return 0, reject
		})
	if calls != 1 {
		t.Errorf("Do() made %d calls, want 1 for a deterministic rejection", calls)
	}
	// Passed through untouched, not wrapped as an inventory error
	if !errors.Is(err, reject) {
		t.Errorf("Do() error = %v, want the original rejection", err)
	}
	if domain.CodeOf(err) != domain.CodeInsufficientStock {
		t.Errorf("Do() error code = %v, want %v", domain.CodeOf(err), domain.CodeInsufficientStock)
	}
}

func TestDo_ContextCancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Do(ctx, zap.NewNop(), Config{MaxAttempts: 3, Delay: time.Minute}, "op",
		func(context.Context) (int, error) {
			calls++
			return 0, errTransient
		})
	if err == nil {
		t.Fatal("Do() expected error when cancelled during backoff")
	}
	if calls != 1 {
		t.Errorf("Do() made %d calls, want 1 (cancelled before retry)", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error chain missing context.Canceled: %v", err)
	}
}

func TestDo_ZeroAttemptsNormalized(t *testing.T) {
	fn, calls := failThenSucceed(0, "ok")
	got, err := Do(context.Background(), zap.NewNop(), Config{MaxAttempts: 0, Delay: time.Millisecond}, "op", fn)
	if err != nil || got != "ok" {
		t.Fatalf("Do() = %q, %v; want ok, nil", got, err)
	}
	if *calls != 1 {
		t.Errorf("Do() made %d calls, want 1", *calls)
	}
}

func TestDo_LinearBackoffDelays(t *testing.T) {
	delay := 20 * time.Millisecond
	start := time.Now()
	fn, _ := failThenSucceed(2, "ok")
	_, err := Do(context.Background(), zap.NewNop(), Config{MaxAttempts: 3, Delay: delay}, "op", fn)
	if err != nil {
		t.Fatalf("Do() unexpected error: %v", err)
	}
	// Waits are Delay*1 then Delay*2
	if elapsed := time.Since(start); elapsed < 3*delay {
		t.Errorf("Do() elapsed = %v, want at least %v (linear backoff)", elapsed, 3*delay)
	}
}
