// Package engine owns the run coordinator: the one place that loads probes,
// fans them out through internal/probe, folds their results through
// internal/fsm, dispatches transitions through internal/notify, and commits
// everything back through a ProbeStore. It depends on those three leaf
// packages but is itself depended on by internal/store and internal/api,
// never the reverse.
package engine

import (
	"context"
	"time"

	"github.com/jacobpro/calpol/internal/notify"
	"github.com/jacobpro/calpol/internal/probe"
)

// Probe is one configured check: what to run, how many consecutive
// failures constitute "failing", and whether it is currently failing.
type Probe struct {
	ID               string
	Name             string
	Enabled          bool
	FailureThreshold uint8
	Failing          bool
	Config           probe.Config

	// ConfigErr is set by a ProbeStore when this probe's stored config
	// could not be decoded (e.g. a legacy or hand-edited row). It is a
	// per-probe diagnostic, not a run failure: the coordinator records it
	// as this probe's Result instead of evaluating Config, so one bad row
	// never aborts the run for every other probe.
	ConfigErr error
}

// Result is one probe's outcome from a single run.
type Result struct {
	RunID         string
	ProbeID       string
	Success       bool
	FailureReason string
	TimeStarted   time.Time
	TimeFinished  time.Time
}

// RunLog is the engine-level record of a single run: it can fail even when
// every individual probe succeeds (e.g. a store outage),
// which is why its Success/FailureReason are independent of any Result's.
type RunLog struct {
	RunID        string
	TimeStarted  time.Time
	TimeFinished time.Time
	Success      bool
	FailureReason string
	TestsPassed  *int
	TestsFailed  *int
	TestsSkipped *int
}

// Clock abstracts time.Now so tests can supply a deterministic clock.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ProbeStore is everything the coordinator needs from durable storage. Each
// method maps directly onto one step of a run.
type ProbeStore interface {
	// ListProbes returns every configured probe, enabled or not.
	ListProbes(ctx context.Context) ([]Probe, error)
	// RecentResults returns up to limit of the most recent results for
	// probeID, newest first, INCLUDING any result just written by
	// InsertResults in this same run.
	RecentResults(ctx context.Context, probeID string, limit int) ([]Result, error)
	// InsertResults persists every probe's outcome for one run in a single
	// batch.
	InsertResults(ctx context.Context, results []Result) error
	// SetFailing commits a probe's failing flag. Called only after
	// notifications for that transition have been sent successfully.
	SetFailing(ctx context.Context, probeID string, failing bool) error
	// InsertRunLog persists the engine-level record of one run.
	InsertRunLog(ctx context.Context, log RunLog) error
	// NotificationTargets returns every contact that should be notified of
	// a transition.
	NotificationTargets(ctx context.Context) (notify.Targets, error)
	// DeleteResultsOlderThan removes result rows older than cutoff. A
	// failure here is fatal to the run: stale results left behind would
	// corrupt the next run's threshold computation.
	DeleteResultsOlderThan(ctx context.Context, cutoff time.Time) error
	// DeleteRunLogsOlderThan removes run-log rows older than cutoff. A
	// failure here is logged but does not fail the run: run logs are an
	// operator convenience, not an input to any future computation.
	DeleteRunLogsOlderThan(ctx context.Context, cutoff time.Time) error
}

// NotificationSink is the subset of notify.Dispatcher the coordinator
// drives. Defined at point of use so tests can supply a fake.
type NotificationSink interface {
	NotifyFailing(ctx context.Context, probes []notify.FailingProbe, targets notify.Targets) error
	NotifyPassing(ctx context.Context, names []string, targets notify.Targets) error
}
