package events

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyPublisher fails while down is set and counts calls.
type flakyPublisher struct {
	down  bool
	calls int
}

func (p *flakyPublisher) Publish(context.Context, Event) error {
	p.calls++
	if p.down {
		return errors.New("broker down")
	}
	return nil
}

func (p *flakyPublisher) Close() error { return nil }

func newTestBreaker(next Publisher, threshold int) (*BreakerPublisher, *time.Time) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	b := NewBreakerPublisher(next, threshold, time.Minute)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerPublisher_opensAfterThreshold(t *testing.T) {
	next := &flakyPublisher{down: true}
	b, _ := newTestBreaker(next, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Publish(ctx, Event{}); err == nil {
			t.Fatalf("publish %d: expected error", i)
		}
	}
	if s := b.State(); s != BreakerOpen {
		t.Fatalf("state = %v, want open", s)
	}

	err := b.Publish(ctx, Event{})
	if !errors.Is(err, ErrPublisherUnavailable) {
		t.Errorf("error = %v, want ErrPublisherUnavailable", err)
	}
	if next.calls != 3 {
		t.Errorf("transport calls = %d, want 3", next.calls)
	}
}

func TestBreakerPublisher_successResetsFailures(t *testing.T) {
	next := &flakyPublisher{down: true}
	b, _ := newTestBreaker(next, 3)
	ctx := context.Background()

	_ = b.Publish(ctx, Event{})
	_ = b.Publish(ctx, Event{})
	next.down = false
	_ = b.Publish(ctx, Event{})
	next.down = true
	_ = b.Publish(ctx, Event{})
	_ = b.Publish(ctx, Event{})

	if s := b.State(); s != BreakerClosed {
		t.Errorf("state = %v, want closed", s)
	}
}

func TestBreakerPublisher_halfOpenProbe(t *testing.T) {
	tests := []struct {
		name      string
		probeDown bool
		want      BreakerState
	}{
		{"probe succeeds", false, BreakerClosed},
		{"probe fails", true, BreakerOpen},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &flakyPublisher{down: true}
			b, now := newTestBreaker(next, 1)
			ctx := context.Background()

			_ = b.Publish(ctx, Event{})
			*now = now.Add(time.Minute)
			if s := b.State(); s != BreakerHalfOpen {
				t.Fatalf("state after cooldown = %v, want half-open", s)
			}

			next.down = tt.probeDown
			_ = b.Publish(ctx, Event{})
			if s := b.State(); s != tt.want {
				t.Errorf("state = %v, want %v", s, tt.want)
			}
			if next.calls != 2 {
				t.Errorf("transport calls = %d, want 2", next.calls)
			}
		})
	}
}

func TestBreakerState_String(t *testing.T) {
	for s, want := range map[BreakerState]string{
		BreakerClosed:   "closed",
		BreakerOpen:     "open",
		BreakerHalfOpen: "half-open",
		BreakerState(9): "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
