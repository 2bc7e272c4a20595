package services

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// CircuitBreaker stops hammering a tenant's assistant backend after repeated
// failures, letting the cooldown expire before a half-open retry.
type CircuitBreaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	failures    int
	lastFailure time.Time
	open        bool
	mu          sync.RWMutex
}

func NewCircuitBreaker(name string, maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:        name,
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

// Call runs fn unless the breaker is open. A failure inside the cooldown
// window keeps it open; the first call after the cooldown is the half-open
// probe.
func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.open {
		if time.Since(cb.lastFailure) > cb.cooldown {
			cb.open = false
			cb.failures = 0
			log.Printf("[CircuitBreaker:%s] Attempting half-open state", cb.name)
		} else {
			return fmt.Errorf("circuit breaker %s is open (cooldown until %v)",
				cb.name, cb.lastFailure.Add(cb.cooldown))
		}
	}

	err := fn()

	if err != nil {
		cb.failures++
		cb.lastFailure = time.Now()

		if cb.failures >= cb.maxFailures {
			cb.open = true
			log.Printf("🔴 [CircuitBreaker:%s] OPENED after %d failures (cooldown: %v)",
				cb.name, cb.failures, cb.cooldown)
		}

		return err
	}

	if cb.failures > 0 {
		log.Printf("✅ [CircuitBreaker:%s] Closed (recovered after %d failures)", cb.name, cb.failures)
	}
	cb.failures = 0
	return nil
}

// IsOpen reports whether the breaker currently rejects calls.
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.open
}
