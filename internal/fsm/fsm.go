// Package fsm computes the failure-threshold state machine: whether a probe
// has crossed into, or recovered out of, a failing state, given its current
// flag and its most recent results. It holds no storage or scheduling
// knowledge of its own so the threshold-correctness and no-spurious-
// transition properties can be tested directly against plain slices of
// booleans.
package fsm

// Outcome carries one probe's evaluation result alongside enough state to
// decide whether it has just transitioned.
type Outcome struct {
	ProbeID          string
	WasFailing       bool
	FailureThreshold uint8
	// Recent holds the most recent results for this probe, newest first,
	// up to FailureThreshold entries, INCLUDING the result just produced by
	// this run.
	Recent []bool
	// Err is the error belonging to the most recent (this run's) result; it
	// is only meaningful when Recent[0] is false.
	Err error
}

// Transition describes a probe whose failing flag should change.
type Transition struct {
	ProbeID string
	Err     error // non-nil only for a ToFailing transition
}

// Result partitions a batch of Outcomes into probes that must be committed
// as now-failing and probes that must be committed as now-passing. Probes
// whose failing flag is unchanged appear in neither slice.
type Result struct {
	ToFailing []Transition
	ToPassing []Transition
}

// IsFailing reports whether threshold consecutive results (including this
// run's) have all failed. A threshold of 0 never counts as met.
func IsFailing(threshold uint8, recentIncludingLatest []bool) bool {
	if threshold == 0 {
		return false
	}
	if uint8(len(recentIncludingLatest)) != threshold {
		return false
	}
	for _, success := range recentIncludingLatest {
		if success {
			return false
		}
	}
	return true
}

// Process partitions outcomes into the probes that transitioned into or out
// of a failing state this run. A probe whose failing flag is unchanged
// (still passing, or still failing but not yet recovered) is dropped.
func Process(outcomes []Outcome) Result {
	var result Result
	for _, o := range outcomes {
		failingNow := IsFailing(o.FailureThreshold, o.Recent)

		switch {
		case o.WasFailing && !failingNow:
			result.ToPassing = append(result.ToPassing, Transition{ProbeID: o.ProbeID})
		case !o.WasFailing && failingNow:
			result.ToFailing = append(result.ToFailing, Transition{ProbeID: o.ProbeID, Err: o.Err})
		}
	}
	return result
}
