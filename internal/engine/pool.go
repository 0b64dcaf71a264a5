package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jacobpro/calpol/internal/probe"
)

// probeOutcome is one probe's result from a single concurrent fan-out.
type probeOutcome struct {
	probe    Probe
	started  time.Time
	finished time.Time
	err      error
}

// runProbes evaluates every probe concurrently, bounded by concurrency, all
// sharing a single deadline. Every probe produces its own outcome — a probe
// that fails or times out never cancels its siblings, mirroring
// buffer_unordered's independence in the run loop this was translated from.
func runProbes(ctx context.Context, clock Clock, probes []Probe, concurrency int, deadline time.Time) []probeOutcome {
	outcomes := make([]probeOutcome, len(probes))
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for i, p := range probes {
		i, p := i, p
		g.Go(func() error {
			started := clock.Now()

			if p.ConfigErr != nil {
				outcomes[i] = probeOutcome{probe: p, started: started, finished: started, err: p.ConfigErr}
				return nil
			}

			itemCtx, cancel := context.WithDeadline(ctx, deadline)
			defer cancel()

			err := probe.Evaluate(itemCtx, p.Config)
			if err != nil && errors.Is(itemCtx.Err(), context.DeadlineExceeded) {
				err = errors.New("cancelled due to global test timeout")
			}
			outcomes[i] = probeOutcome{probe: p, started: started, finished: clock.Now(), err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
