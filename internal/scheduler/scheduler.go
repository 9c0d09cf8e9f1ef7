// Package scheduler runs independent periodic tasks — health checks,
// roster polls, maintenance saves — one goroutine per (profile, task) so a
// stalled command on one server never delays work on another.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one periodic action for one profile. Run errors are reported and
// the next tick proceeds unaffected; task failures are never fatal.
type Task struct {
	Run      func(ctx context.Context) error
	Profile  string
	Name     string
	Interval time.Duration

	// Immediate runs the task once at start instead of waiting a full
	// interval first.
	Immediate bool
}

// Scheduler owns the task goroutines and their shared shutdown signal.
type Scheduler struct {
	wg    sync.WaitGroup
	tasks []Task
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(t Task) {
	s.tasks = append(s.tasks, t)
}

// Start launches every registered task. Tasks stop when ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		s.wg.Add(1)
		go func(t Task) {
			defer s.wg.Done()
			s.loop(ctx, t)
		}(t)
	}
}

// Wait blocks until every task goroutine has returned. An in-flight run
// finishes (or times out) on its own; callers bound the grace period with
// the context they passed to Start.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	run := func() {
		if err := t.Run(ctx); err != nil {
			log.Debug().Err(err).
				Str("server", t.Profile).
				Str("task", t.Name).
				Msg("Periodic task failed")
		}
	}

	if t.Immediate {
		run()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
