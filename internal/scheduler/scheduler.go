// Package scheduler drives periodic detection ticks for one consumer
// context. Each consumer (the activity feed, the queue board) runs its
// own scheduler with its own interval and can be paused and resumed
// independently.
package scheduler

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"queue-market-watch/internal/observability"
)

// State of a scheduler.
type State int

const (
	StateStopped State = iota
	StateRunning
	StatePaused
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("scheduler already started")

// Options configures a Scheduler.
type Options struct {
	// Name identifies the consumer context in logs and metrics.
	Name string

	// Interval between ticks. Required.
	Interval time.Duration

	// Tick is the work run on each interval. Required. Errors are logged
	// and the schedule continues.
	Tick func(context.Context) error

	// Logger for operational messages. Defaults to stderr.
	Logger *log.Logger

	// Metrics receives tick counters and the paused gauge. Optional.
	Metrics *observability.Metrics
}

// Scheduler runs a tick function on a fixed interval with pause/resume.
// Pausing stops scheduling new ticks but never cancels a tick already in
// flight; resuming schedules the next tick a full interval after the
// resume.
type Scheduler struct {
	name     string
	interval time.Duration
	tick     func(context.Context) error
	logger   *log.Logger
	metrics  *observability.Metrics

	mu       sync.Mutex
	state    State
	resumeCh chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a scheduler.
func NewScheduler(opts Options) (*Scheduler, error) {
	if opts.Tick == nil {
		return nil, errors.New("tick function is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}

	name := opts.Name
	if name == "" {
		name = "default"
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[scheduler] ", log.LstdFlags)
	}

	return &Scheduler{
		name:     name,
		interval: opts.Interval,
		tick:     opts.Tick,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Name returns the consumer context name.
func (s *Scheduler) Name() string {
	return s.name
}

// State returns the current scheduler state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins scheduling ticks. The first tick fires one interval after
// Start. Stop or cancelling ctx ends the schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateRunning
	s.setPausedGauge(0)

	go s.run(runCtx)

	s.logger.Printf("%s: started, interval %s", s.name, s.interval)
	return nil
}

// Stop ends the schedule and waits for any in-flight tick to finish.
// Safe to call when not started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	s.state = StateStopped
	s.resumeCh = nil
	s.mu.Unlock()

	s.logger.Printf("%s: stopped", s.name)
}

// Pause stops scheduling new ticks. A tick already running completes
// normally. No-op unless running.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return
	}
	s.state = StatePaused
	s.resumeCh = make(chan struct{})
	s.setPausedGauge(1)
	s.logger.Printf("%s: paused", s.name)
}

// Resume restarts the schedule. The next tick fires a full interval after
// the resume. No-op unless paused.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePaused {
		return
	}
	s.state = StateRunning
	close(s.resumeCh)
	s.resumeCh = nil
	s.setPausedGauge(0)
	s.logger.Printf("%s: resumed", s.name)
}

// pausedWait returns the resume channel when paused, nil otherwise.
func (s *Scheduler) pausedWait() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		return s.resumeCh
	}
	return nil
}

func (s *Scheduler) setPausedGauge(v float64) {
	if s.metrics != nil {
		s.metrics.SchedulerPaused.WithLabelValues(s.name).Set(v)
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// A pause between timer fire and now suppresses the tick.
		if resume := s.pausedWait(); resume != nil {
			select {
			case <-ctx.Done():
				return
			case <-resume:
			}
			timer.Reset(s.interval)
			continue
		}

		if s.metrics != nil {
			s.metrics.SchedulerTicks.WithLabelValues(s.name).Inc()
		}
		if err := s.tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Printf("%s: tick: %v", s.name, err)
		}

		// A pause during the tick takes effect now that it finished.
		if resume := s.pausedWait(); resume != nil {
			select {
			case <-ctx.Done():
				return
			case <-resume:
			}
		}
		timer.Reset(s.interval)
	}
}
