// Package resilience guards agent backend calls. A provider that starts
// timing out or erroring would otherwise burn every run's retry budget in
// quick succession; the breaker trips instead and lets runs fail fast until
// the provider looks healthy again.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker is rejecting agent calls.
var ErrCircuitOpen = errors.New("agent backend circuit open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker trips after maxFailures consecutive agent failures and rejects
// calls until timeout elapses. It then admits probe calls; probeQuota
// consecutive probe successes close the circuit, a single probe failure
// reopens it.
type Breaker struct {
	mu          sync.Mutex
	state       state
	failures    int
	probes      int // consecutive successes while half-open
	maxFailures int
	probeQuota  int
	timeout     time.Duration
	openedAt    time.Time
	now         func() time.Time // for testing
}

// NewBreaker creates a breaker that opens after maxFailures consecutive
// failures and stays open for timeout. One half-open probe success closes
// it; RequireProbes raises that bar.
func NewBreaker(maxFailures int, timeout time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		probeQuota:  1,
		timeout:     timeout,
		now:         time.Now,
	}
}

// RequireProbes sets how many consecutive half-open successes are needed
// before the circuit closes again.
func (b *Breaker) RequireProbes(n int) {
	if n < 1 {
		n = 1
	}
	b.mu.Lock()
	b.probeQuota = n
	b.mu.Unlock()
}

// Execute runs one agent call if the circuit admits it, returning
// ErrCircuitOpen otherwise. Context cancellation and deadline expiry come
// from the run's own lifecycle, not from provider health, so they pass
// through without counting as failures.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allowRequest() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			b.onFailure()
		}
		return err
	}

	b.onSuccess()
	return nil
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.timeout {
			b.state = stateHalfOpen
			b.probes = 0
			return true
		}
		return false
	case stateHalfOpen:
		return true
	}
	return false
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure() {
	b.failures++
	b.probes = 0
	if b.state == stateHalfOpen || b.failures >= b.maxFailures {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess() {
	if b.state == stateHalfOpen {
		b.probes++
		if b.probes < b.probeQuota {
			return
		}
	}
	b.failures = 0
	b.probes = 0
	b.state = stateClosed
}
