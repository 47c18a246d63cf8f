package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := &Backoff{
		MaxAttempts:  10,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2,
	}

	d1, ok := b.Next(1)
	if !ok || d1 != 100*time.Millisecond {
		t.Fatalf("attempt 1 = %v, %v", d1, ok)
	}
	d3, _ := b.Next(3)
	if d3 != 400*time.Millisecond {
		t.Fatalf("attempt 3 = %v", d3)
	}
	d8, _ := b.Next(8)
	if d8 != time.Second {
		t.Fatalf("attempt 8 = %v, want the cap", d8)
	}
	if _, ok := b.Next(11); ok {
		t.Fatal("attempts past the limit should stop")
	}
}

func TestBackoffFullJitterStaysUnderCap(t *testing.T) {
	b := Connection()
	for attempt := 1; attempt < 20; attempt++ {
		d, ok := b.Next(attempt)
		if !ok {
			t.Fatalf("connection backoff should never exhaust, attempt %d", attempt)
		}
		if d <= 0 || d > 30*time.Second {
			t.Fatalf("attempt %d: delay %v outside (0, 30s]", attempt, d)
		}
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	b := &Backoff{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	var calls int
	err := Do(context.Background(), b, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestDoRespectsContext(t *testing.T) {
	b := &Backoff{MaxAttempts: 100, InitialDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Do(ctx, b, func(ctx context.Context) error {
		return errors.New("always")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestCircuitBreakerTransitions(t *testing.T) {
	cb := NewCircuitBreaker(2, 50*time.Millisecond)

	if !cb.Allow() {
		t.Fatal("closed breaker should allow")
	}
	cb.RecordFailure()
	cb.RecordFailure()
	if cb.CurrentState() != Open {
		t.Fatalf("state = %v, want open", cb.CurrentState())
	}
	if cb.Allow() {
		t.Fatal("open breaker should reject")
	}

	time.Sleep(60 * time.Millisecond)
	if !cb.Allow() {
		t.Fatal("breaker should half-open after the reset timeout")
	}
	cb.RecordSuccess()
	if cb.CurrentState() != Closed {
		t.Fatalf("state = %v, want closed", cb.CurrentState())
	}
}
