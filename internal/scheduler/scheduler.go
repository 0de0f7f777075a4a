// Package scheduler runs the periodic maintenance jobs of the portal: the
// SLA status scan, pending expiry and stock expiry.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultInterval = 60 * time.Second

// Job is one periodic task. Run returns the number of items it changed.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, now time.Time) (int, error)
}

// Scheduler ticks each job on its own interval until the context ends.
type Scheduler struct {
	jobs   []Job
	logger *zap.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

// New creates a scheduler for jobs. Jobs without Run are ignored.
func New(logger *zap.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{logger: logger, now: func() time.Time { return time.Now().UTC() }}
	for _, j := range jobs {
		if j.Run == nil {
			continue
		}
		if j.Interval <= 0 {
			j.Interval = defaultInterval
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// Start launches one goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Wait blocks until every job loop has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// RunOnce runs every job once, in order.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, j := range s.jobs {
		s.run(ctx, j)
	}
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, j)
		}
	}
}

func (s *Scheduler) run(ctx context.Context, j Job) {
	start := time.Now()
	n, err := j.Run(ctx, s.now())
	if err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", j.Name), zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("scheduled job finished",
			zap.String("job", j.Name),
			zap.Int("changed", n),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
