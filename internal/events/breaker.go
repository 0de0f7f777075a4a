package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPublisherUnavailable is returned while the breaker is open.
var ErrPublisherUnavailable = errors.New("events: publisher unavailable")

// BreakerState is the state of a BreakerPublisher.
type BreakerState int

const (
	// BreakerClosed passes every event through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerOpen drops events without calling the transport.
	BreakerOpen
	// BreakerHalfOpen lets one probe event through.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerPublisher stops calling a failing transport for a cooldown period
// after failureThreshold consecutive publish errors. Requests are never
// blocked on a broker that is known to be down.
type BreakerPublisher struct {
	next             Publisher
	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	probing  bool
	openedAt time.Time
}

// NewBreakerPublisher wraps next. Non-positive arguments select 5 failures
// and a 30 second cooldown.
func NewBreakerPublisher(next Publisher, failureThreshold int, cooldown time.Duration) *BreakerPublisher {
	if failureThreshold < 1 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &BreakerPublisher{
		next:             next,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// Publish forwards evt unless the breaker is open.
func (b *BreakerPublisher) Publish(ctx context.Context, evt Event) error {
	if !b.allow() {
		return ErrPublisherUnavailable
	}
	err := b.next.Publish(ctx, evt)
	b.record(err == nil)
	return err
}

// Close closes the wrapped publisher.
func (b *BreakerPublisher) Close() error {
	return b.next.Close()
}

// HealthCheck delegates to the wrapped publisher when it can check itself.
func (b *BreakerPublisher) HealthCheck(ctx context.Context) error {
	if hc, ok := b.next.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	if b.State() == BreakerOpen {
		return ErrPublisherUnavailable
	}
	return nil
}

// State returns the current breaker state.
func (b *BreakerPublisher) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	return b.state
}

func (b *BreakerPublisher) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance()
	switch b.state {
	case BreakerOpen:
		return false
	case BreakerHalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
	}
	return true
}

func (b *BreakerPublisher) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if ok {
		b.state = BreakerClosed
		b.failures = 0
		return
	}
	if b.state == BreakerHalfOpen {
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.failureThreshold {
		b.trip()
	}
}

// advance moves an expired open breaker to half-open. Lock held.
func (b *BreakerPublisher) advance() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		b.state = BreakerHalfOpen
		b.probing = false
	}
}

// trip opens the breaker. Lock held.
func (b *BreakerPublisher) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.failures = 0
}
