package engine

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler drives a Coordinator on a fixed cadence and also accepts manual
// triggers (e.g. from an API request). A manual trigger that arrives while a
// run is already in flight is coalesced into a single pending trigger rather
// than queued — the next loop iteration runs once, not once per trigger.
type Scheduler struct {
	Coordinator *Coordinator
	Interval    time.Duration
	Logger      *slog.Logger

	trigger chan struct{}
}

// NewScheduler constructs a Scheduler ready to Run.
func NewScheduler(coordinator *Coordinator, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		Coordinator: coordinator,
		Interval:    interval,
		Logger:      logger,
		trigger:     make(chan struct{}, 1),
	}
}

// Trigger requests an out-of-cadence run as soon as the scheduler is next
// free. It never blocks: a trigger already pending absorbs this one.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks, executing one run immediately and then one run per Interval or
// per manual Trigger, until ctx is cancelled.
//
// The cadence is anchored to nextFire, the deadline chosen for the run that
// just fired, not to the moment the run actually finished: a run that takes
// longer than Interval still fires its successor on the original schedule
// (immediately, if that deadline has already passed) rather than pushing
// every later run back by the overrun.
func (s *Scheduler) Run(ctx context.Context) {
	nextFire := time.Now().Add(s.Interval)
	s.runAndLog(ctx)

	timer := time.NewTimer(time.Until(nextFire))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runAndLog(ctx)
			nextFire = nextFire.Add(s.Interval)
			timer.Reset(time.Until(nextFire))
		case <-s.trigger:
			s.runAndLog(ctx)
			stopAndDrain(timer)
			nextFire = nextFire.Add(s.Interval)
			timer.Reset(time.Until(nextFire))
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context) {
	log := s.Coordinator.RunOnce(ctx)
	if !log.Success {
		s.Logger.Warn("scheduled run finished unsuccessfully", slog.String("run_id", log.RunID), slog.String("reason", log.FailureReason))
	}
}

// stopAndDrain stops t, draining its channel if it had already fired before
// Stop could prevent it, per the time.Timer.Reset documentation.
func stopAndDrain(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
