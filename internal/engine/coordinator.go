package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jacobpro/calpol/internal/fsm"
	"github.com/jacobpro/calpol/internal/notify"
)

// Coordinator runs one probe batch end to end: load, evaluate, fold through
// the failure-threshold FSM, notify, commit, sweep, and log. It holds no
// state between runs — everything it needs is re-read from the store each
// time, so concurrent or overlapping runs (should the scheduler ever allow
// one) cannot corrupt each other's view of probe state.
type Coordinator struct {
	Store    ProbeStore
	Notifier NotificationSink
	Clock    Clock
	Logger   *slog.Logger

	// Concurrency bounds how many probes evaluate at once.
	Concurrency int
	// RunTimeout is the deadline shared by every probe in a run.
	RunTimeout time.Duration
	// RetentionAge is how long result and run-log rows are kept before the
	// sweep step deletes them.
	RetentionAge time.Duration
}

type runCounts struct {
	passed, failed, skipped int
}

// RunOnce executes a single run and returns its RunLog. It never returns an
// error itself — a run that fails is recorded as a failing RunLog, not
// propagated to the caller, so the scheduler's loop never needs special
// handling for a bad run.
func (c *Coordinator) RunOnce(ctx context.Context) RunLog {
	runID := uuid.NewString()
	start := c.Clock.Now()
	log := RunLog{RunID: runID, TimeStarted: start}

	counts, err := c.run(ctx, runID, start)
	log.TimeFinished = c.Clock.Now()
	duration := log.TimeFinished.Sub(log.TimeStarted)

	if err != nil {
		log.Success = false
		log.FailureReason = err.Error()
		c.Logger.Error("run failed",
			slog.String("run_id", runID),
			slog.Duration("duration", duration),
			slog.Any("error", err),
		)
	} else {
		log.Success = true
		passed, failed, skipped := counts.passed, counts.failed, counts.skipped
		log.TestsPassed = &passed
		log.TestsFailed = &failed
		log.TestsSkipped = &skipped
		c.Logger.Info("run completed",
			slog.String("run_id", runID),
			slog.Duration("duration", duration),
			slog.Int("passed", passed),
			slog.Int("failed", failed),
			slog.Int("skipped", skipped),
		)
	}

	if err := c.Store.InsertRunLog(ctx, log); err != nil {
		c.Logger.Error("failed to write run log", slog.String("run_id", runID), slog.Any("error", err))
	}
	return log
}

func (c *Coordinator) run(ctx context.Context, runID string, start time.Time) (runCounts, error) {
	deadline := time.Now().Add(c.RunTimeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	probes, err := c.Store.ListProbes(runCtx)
	if err != nil {
		return runCounts{}, fmt.Errorf("load probes: %w", err)
	}

	var enabled []Probe
	skipped := 0
	byID := make(map[string]Probe, len(probes))
	for _, p := range probes {
		byID[p.ID] = p
		if p.Enabled {
			enabled = append(enabled, p)
		} else {
			skipped++
		}
	}

	outcomes := runProbes(runCtx, c.Clock, enabled, c.Concurrency, deadline)

	results := make([]Result, len(outcomes))
	passed, failed := 0, 0
	for i, o := range outcomes {
		reason := ""
		if o.err != nil {
			reason = o.err.Error()
			failed++
		} else {
			passed++
		}
		results[i] = Result{
			RunID:         runID,
			ProbeID:       o.probe.ID,
			Success:       o.err == nil,
			FailureReason: reason,
			TimeStarted:   o.started,
			TimeFinished:  o.finished,
		}
	}

	if len(results) > 0 {
		if err := c.Store.InsertResults(ctx, results); err != nil {
			return runCounts{}, fmt.Errorf("insert results: %w", err)
		}
	}

	transitions, err := c.computeTransitions(ctx, outcomes)
	if err != nil {
		return runCounts{}, fmt.Errorf("compute transitions: %w", err)
	}

	if err := c.notifyAndCommit(ctx, byID, transitions); err != nil {
		c.Logger.Error("notification dispatch failed", slog.Any("error", err))
	}

	if err := c.sweep(ctx, start); err != nil {
		return runCounts{}, fmt.Errorf("sweep: %w", err)
	}

	return runCounts{passed: passed, failed: failed, skipped: skipped}, nil
}

func (c *Coordinator) computeTransitions(ctx context.Context, outcomes []probeOutcome) (fsm.Result, error) {
	fsmOutcomes := make([]fsm.Outcome, 0, len(outcomes))
	for _, o := range outcomes {
		threshold := o.probe.FailureThreshold
		recentResults, err := c.Store.RecentResults(ctx, o.probe.ID, int(threshold))
		if err != nil {
			return fsm.Result{}, fmt.Errorf("load recent results for probe %s: %w", o.probe.ID, err)
		}
		recent := make([]bool, len(recentResults))
		for i, r := range recentResults {
			recent[i] = r.Success
		}
		fsmOutcomes = append(fsmOutcomes, fsm.Outcome{
			ProbeID:          o.probe.ID,
			WasFailing:       o.probe.Failing,
			FailureThreshold: threshold,
			Recent:           recent,
			Err:              o.err,
		})
	}
	return fsm.Process(fsmOutcomes), nil
}

// notifyAndCommit dispatches notifications for every transition and commits
// each probe's failing flag only once its own notification batch has been
// sent successfully — an at-least-once guarantee: a notification failure
// leaves the flag unchanged, so the next run's transition detection will
// retry the same notification rather than silently dropping it.
func (c *Coordinator) notifyAndCommit(ctx context.Context, byID map[string]Probe, transitions fsm.Result) error {
	targets, err := c.Store.NotificationTargets(ctx)
	if err != nil {
		return fmt.Errorf("load notification targets: %w", err)
	}

	var dispatchErrs []error

	if len(transitions.ToFailing) > 0 {
		failing := make([]notify.FailingProbe, 0, len(transitions.ToFailing))
		for _, t := range transitions.ToFailing {
			failing = append(failing, notify.FailingProbe{Name: byID[t.ProbeID].Name, Err: t.Err})
		}
		if err := c.Notifier.NotifyFailing(ctx, failing, targets); err != nil {
			dispatchErrs = append(dispatchErrs, fmt.Errorf("notify failing: %w", err))
		} else {
			for _, t := range transitions.ToFailing {
				if err := c.Store.SetFailing(ctx, t.ProbeID, true); err != nil {
					c.Logger.Error("failed to commit failing flag", slog.String("probe_id", t.ProbeID), slog.Any("error", err))
				}
			}
		}
	}

	if len(transitions.ToPassing) > 0 {
		names := make([]string, 0, len(transitions.ToPassing))
		for _, t := range transitions.ToPassing {
			names = append(names, byID[t.ProbeID].Name)
		}
		if err := c.Notifier.NotifyPassing(ctx, names, targets); err != nil {
			dispatchErrs = append(dispatchErrs, fmt.Errorf("notify passing: %w", err))
		} else {
			for _, t := range transitions.ToPassing {
				if err := c.Store.SetFailing(ctx, t.ProbeID, false); err != nil {
					c.Logger.Error("failed to commit passing flag", slog.String("probe_id", t.ProbeID), slog.Any("error", err))
				}
			}
		}
	}

	if len(dispatchErrs) == 0 {
		return nil
	}
	msg := dispatchErrs[0].Error()
	for _, e := range dispatchErrs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}

func (c *Coordinator) sweep(ctx context.Context, start time.Time) error {
	cutoff := start.Add(-c.RetentionAge)
	if err := c.Store.DeleteResultsOlderThan(ctx, cutoff); err != nil {
		return fmt.Errorf("delete expired results: %w", err)
	}
	if err := c.Store.DeleteRunLogsOlderThan(ctx, cutoff); err != nil {
		c.Logger.Error("failed to clean old run logs", slog.Any("error", err))
	}
	return nil
}
