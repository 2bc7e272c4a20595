package services

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterMaxFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", 3, time.Hour)
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := cb.Call(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: expected the wrapped error, got %v", i, err)
		}
	}
	if !cb.IsOpen() {
		t.Fatalf("breaker should open after 3 failures")
	}

	if err := cb.Call(func() error { return nil }); err == nil {
		t.Fatalf("open breaker must reject calls")
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	if err := cb.Call(func() error { return errors.New("fail") }); err == nil {
		t.Fatalf("expected failure")
	}
	if !cb.IsOpen() {
		t.Fatalf("breaker should be open")
	}

	time.Sleep(20 * time.Millisecond)

	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("half-open probe should run, got %v", err)
	}
	if cb.IsOpen() {
		t.Fatalf("breaker should close after a successful probe")
	}
}

func TestCircuitBreakerResetsOnSuccess(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("test", 2, time.Hour)
	_ = cb.Call(func() error { return errors.New("one") })
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	// Counter reset: one more failure must not open it.
	_ = cb.Call(func() error { return errors.New("two") })
	if cb.IsOpen() {
		t.Fatalf("success should have reset the failure counter")
	}
}
