package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/thejerf/suture/v4"
)

// MinInterval is the shortest tick period. Shorter configured values are
// raised to it.
const MinInterval = 30 * time.Second

var ErrAlreadyStarted = errors.New("scheduler already started")

func EffectiveInterval(d time.Duration) time.Duration {
	if d < MinInterval {
		return MinInterval
	}
	return d
}

type Runner interface {
	Run(ctx context.Context) (Results, bool)
}

type SchedulerOptions struct {
	Interval   time.Duration
	RunOnStart bool
	Clock      clock.Clock
}

// Scheduler fires the job on a fixed period. Each firing runs in its own
// goroutine; the job itself decides whether an overlapping firing is a no-op.
// Missed firings are dropped, never queued.
type Scheduler struct {
	job        Runner
	interval   time.Duration
	runOnStart bool
	clock      clock.Clock

	mu     sync.Mutex
	ticker *clock.Ticker
	stop   chan struct{}
	loop   sync.WaitGroup
	ticks  sync.WaitGroup
}

func NewScheduler(job Runner, opts SchedulerOptions) *Scheduler {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	interval := EffectiveInterval(opts.Interval)
	if interval != opts.Interval {
		slog.Info("Raised tick interval to minimum", "configured", opts.Interval, "effective", interval)
	}
	return &Scheduler{
		job:        job,
		interval:   interval,
		runOnStart: opts.RunOnStart,
		clock:      opts.Clock,
	}
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start registers the periodic job. Ticks run on a context that outlives
// cancellation of ctx so that shutdown lets them finish.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return ErrAlreadyStarted
	}

	runCtx := context.WithoutCancel(ctx)
	s.ticker = s.clock.Ticker(s.interval)
	s.stop = make(chan struct{})
	if s.runOnStart {
		s.fire(runCtx)
	}
	s.loop.Add(1)
	go s.run(runCtx, s.ticker, s.stop)

	slog.Info("Registered reconciliation job", "interval", s.interval, "runOnStart", s.runOnStart)
	return nil
}

// Stop removes the periodic job and waits for an in-flight tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stop == nil {
		s.mu.Unlock()
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.stop = nil
	s.mu.Unlock()

	s.loop.Wait()
	s.ticks.Wait()
	slog.Info("Removed reconciliation job")
}

// Serve runs the scheduler under a suture supervisor.
func (s *Scheduler) Serve(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		slog.Error("Failed to register reconciliation job", "error", err)
		return fmt.Errorf("%w: start scheduler: %v", suture.ErrTerminateSupervisorTree, err)
	}
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

func (s *Scheduler) run(ctx context.Context, ticker *clock.Ticker, stop <-chan struct{}) {
	defer s.loop.Done()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	s.ticks.Add(1)
	go func() {
		defer s.ticks.Done()
		s.job.Run(ctx)
	}()
}
