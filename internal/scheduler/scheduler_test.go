package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunOnce_runsJobsInOrder(t *testing.T) {
	var order []string
	job := func(name string) Job {
		return Job{Name: name, Run: func(context.Context, time.Time) (int, error) {
			order = append(order, name)
			return 0, nil
		}}
	}
	s := New(nil, job("sla"), Job{Name: "empty"}, job("pendings"))
	s.RunOnce(context.Background())

	if len(order) != 2 || order[0] != "sla" || order[1] != "pendings" {
		t.Errorf("order = %v, want [sla pendings]", order)
	}
}

func TestRunOnce_passesClock(t *testing.T) {
	fixed := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	var got time.Time
	s := New(nil, Job{Name: "clock", Run: func(_ context.Context, now time.Time) (int, error) {
		got = now
		return 0, nil
	}})
	s.now = func() time.Time { return fixed }
	s.RunOnce(context.Background())

	if !got.Equal(fixed) {
		t.Errorf("now = %v, want %v", got, fixed)
	}
}

func TestRunOnce_logsFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := New(zap.New(core),
		Job{Name: "broken", Run: func(context.Context, time.Time) (int, error) { return 0, errors.New("db down") }},
		Job{Name: "busy", Run: func(context.Context, time.Time) (int, error) { return 3, nil }},
	)
	s.RunOnce(context.Background())

	if n := logs.FilterMessage("scheduled job failed").Len(); n != 1 {
		t.Errorf("failure logs = %d, want 1", n)
	}
	finished := logs.FilterMessage("scheduled job finished").All()
	if len(finished) != 1 || finished[0].ContextMap()["changed"] != int64(3) {
		t.Errorf("finished logs = %+v", finished)
	}
}

func TestStart_ticksUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	ran := make(chan struct{}, 16)
	s := New(nil, Job{Name: "tick", Interval: 5 * time.Millisecond, Run: func(context.Context, time.Time) (int, error) {
		runs.Add(1)
		select {
		case ran <- struct{}{}:
		default:
		}
		return 0, nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
	cancel()
	s.Wait()

	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Error("job kept running after cancellation")
	}
}
