package rest

import (
	"context"

	"github.com/jacobpro/calpol/internal/engine"
)

// Store is the subset of persistence operations the REST handlers need.
// Defining it here, separately from engine.ProbeStore, lets handlers be
// tested against a mock without dragging in the coordinator's write-path
// methods (SetFailing, InsertResults, ...) they never call.
type Store interface {
	// ListProbes returns every configured probe, enabled or not.
	ListProbes(ctx context.Context) ([]engine.Probe, error)
	// ListRunLogs returns the most recent run logs, newest first, bounded by
	// limit.
	ListRunLogs(ctx context.Context, limit int) ([]engine.RunLog, error)
	// InsertProbe creates a probe or, on ID conflict, updates its mutable
	// fields (name, enabled, failure threshold, config).
	InsertProbe(ctx context.Context, p engine.Probe) error
}

// Trigger requests an out-of-cadence engine run. Satisfied by
// *engine.Scheduler in production.
type Trigger interface {
	Trigger()
}
