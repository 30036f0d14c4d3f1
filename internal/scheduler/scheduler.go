package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Task is one unit of periodic work. A failing task is logged and retried on
// the next tick.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Scheduler struct {
	tasks    []Task
	interval time.Duration
	stopCh   chan struct{}
	done     chan struct{}
	once     sync.Once
}

func NewScheduler(interval time.Duration, tasks ...Task) *Scheduler {
	return &Scheduler{
		tasks:    tasks,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Begins the polling loop in a background goroutine. Tasks run once right
// away so the first request finds a warm cache; a non-positive interval stops
// after that first pass.
func (s *Scheduler) Start(ctx context.Context) {
	names := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		names[i] = t.Name
	}

	go func() {
		defer close(s.done)

		s.runAll(ctx)
		if s.interval <= 0 {
			return
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runAll(ctx)
			case <-ctx.Done():
				log.Info().Msg("scheduler stopped")
				return
			case <-s.stopCh:
				log.Info().Msg("scheduler stopped")
				return
			}
		}
	}()

	log.Info().
		Stringer("interval", s.interval).
		Strs("tasks", names).
		Msg("scheduler started")
}

// Signals the background goroutine to exit and waits for the current pass to
// finish. Must only be called after Start.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	<-s.done
}

func (s *Scheduler) runAll(ctx context.Context) {
	for _, task := range s.tasks {
		select {
		case <-s.stopCh:
			return
		default:
		}
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		if err := task.Run(ctx); err != nil {
			log.Error().Err(err).Str("task", task.Name).Msg("scheduled task failed")
			continue
		}

		log.Debug().Str("task", task.Name).Dur("took", time.Since(start)).Msg("scheduled task done")
	}
}
