// Package store provides the PostgreSQL-backed implementation of
// engine.ProbeStore, plus a modernc.org/sqlite implementation suited to a
// single-binary or development deployment. Both implementations speak the
// same four tables: probes, results, run_logs, and notification_targets.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/jacobpro/calpol/internal/engine"
	"github.com/jacobpro/calpol/internal/probe"
)

// probeRow is the on-disk shape of a configured probe. Config is stored as
// JSONB/TEXT and round-trips through probe.Config's own tagged-union
// (Un)MarshalJSON, so the table schema never needs to change when a new
// probe variant gains a field.
type probeRow struct {
	ID               string
	Name             string
	Enabled          bool
	FailureThreshold uint8
	Failing          bool
	Config           json.RawMessage
}

// marshalConfigErr and unmarshalConfigErr exist only so postgres.go and sqlite.go
// share one error-wrapping convention around probe.Config's JSON codec.
func marshalConfigErr(probeID string, err error) error {
	return fmt.Errorf("marshal config for probe %s: %w", probeID, err)
}

func unmarshalConfigErr(probeID string, err error) error {
	return fmt.Errorf("unmarshal config for probe %s: %w", probeID, err)
}

// rowToProbe decodes a stored row's JSON config into probe.Config and
// assembles the engine.Probe the coordinator works with. A row whose config
// fails to decode (a legacy or hand-edited probe) is not an error here: it
// is returned as a Probe with ConfigErr set, so a single bad row becomes a
// per-probe diagnostic for the coordinator rather than failing ListProbes
// for every other probe.
func rowToProbe(row probeRow) engine.Probe {
	p := engine.Probe{
		ID:               row.ID,
		Name:             row.Name,
		Enabled:          row.Enabled,
		FailureThreshold: row.FailureThreshold,
		Failing:          row.Failing,
	}
	var cfg probe.Config
	if err := json.Unmarshal(row.Config, &cfg); err != nil {
		p.ConfigErr = unmarshalConfigErr(row.ID, err)
		return p
	}
	p.Config = cfg
	return p
}

// probeToRow encodes an engine.Probe's config back into the JSON form stored
// on disk.
func probeToRow(p engine.Probe) (probeRow, error) {
	data, err := json.Marshal(p.Config)
	if err != nil {
		return probeRow{}, marshalConfigErr(p.ID, err)
	}
	return probeRow{
		ID:               p.ID,
		Name:             p.Name,
		Enabled:          p.Enabled,
		FailureThreshold: p.FailureThreshold,
		Failing:          p.Failing,
		Config:           data,
	}, nil
}
