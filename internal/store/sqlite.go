package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jacobpro/calpol/internal/engine"
	"github.com/jacobpro/calpol/internal/notify"
)

// schema creates every table a SQLite store needs, if absent. Postgres
// deployments are expected to migrate this shape through an external tool;
// SQLite exists for single-binary and development use, so it owns its own
// migration.
const schema = `
CREATE TABLE IF NOT EXISTS probes (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	enabled           INTEGER NOT NULL,
	failure_threshold INTEGER NOT NULL,
	failing           INTEGER NOT NULL,
	config            TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id         TEXT NOT NULL,
	probe_id       TEXT NOT NULL,
	success        INTEGER NOT NULL,
	failure_reason TEXT NOT NULL,
	time_started   TEXT NOT NULL,
	time_finished  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS results_probe_id_time_finished ON results (probe_id, time_finished DESC);
CREATE TABLE IF NOT EXISTS run_logs (
	run_id         TEXT PRIMARY KEY,
	time_started   TEXT NOT NULL,
	time_finished  TEXT NOT NULL,
	success        INTEGER NOT NULL,
	failure_reason TEXT NOT NULL,
	tests_passed   INTEGER,
	tests_failed   INTEGER,
	tests_skipped  INTEGER
);
CREATE TABLE IF NOT EXISTS notification_targets (
	kind  TEXT NOT NULL,
	value TEXT NOT NULL
);
`

// SQLite is a ProbeStore backed by modernc.org/sqlite in WAL mode. It is
// meant for a single-process runner (no second writer contending for the
// same file) — an embeddable alternative to Postgres for development or a
// small deployment.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and if necessary creates) a SQLite database at path,
// enables WAL mode, and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writes; avoid pool contention

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable wal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

var _ engine.ProbeStore = (*SQLite)(nil)

const sqliteTimeLayout = time.RFC3339Nano

func (s *SQLite) ListProbes(ctx context.Context) ([]engine.Probe, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, enabled, failure_threshold, failing, config
		FROM   probes
		ORDER  BY name`)
	if err != nil {
		return nil, fmt.Errorf("list probes: %w", err)
	}
	defer rows.Close()

	var out []engine.Probe
	for rows.Next() {
		var row probeRow
		var enabled, failing int
		var config string
		if err := rows.Scan(&row.ID, &row.Name, &enabled, &row.FailureThreshold, &failing, &config); err != nil {
			return nil, fmt.Errorf("scan probe: %w", err)
		}
		row.Enabled = enabled != 0
		row.Failing = failing != 0
		row.Config = []byte(config)
		out = append(out, rowToProbe(row))
	}
	return out, rows.Err()
}

func (s *SQLite) RecentResults(ctx context.Context, probeID string, limit int) ([]engine.Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, probe_id, success, failure_reason, time_started, time_finished
		FROM   results
		WHERE  probe_id = ?
		ORDER  BY time_finished DESC
		LIMIT  ?`, probeID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent results for probe %s: %w", probeID, err)
	}
	defer rows.Close()

	var out []engine.Result
	for rows.Next() {
		var r engine.Result
		var success int
		var started, finished string
		if err := rows.Scan(&r.RunID, &r.ProbeID, &success, &r.FailureReason, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Success = success != 0
		if r.TimeStarted, err = time.Parse(sqliteTimeLayout, started); err != nil {
			return nil, fmt.Errorf("parse time_started: %w", err)
		}
		if r.TimeFinished, err = time.Parse(sqliteTimeLayout, finished); err != nil {
			return nil, fmt.Errorf("parse time_finished: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) InsertResults(ctx context.Context, results []engine.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert results: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO results (run_id, probe_id, success, failure_reason, time_started, time_finished)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert result: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, r.RunID, r.ProbeID, r.Success, r.FailureReason,
			r.TimeStarted.Format(sqliteTimeLayout), r.TimeFinished.Format(sqliteTimeLayout)); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) SetFailing(ctx context.Context, probeID string, failing bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE probes SET failing = ? WHERE id = ?`, failing, probeID)
	if err != nil {
		return fmt.Errorf("set failing for probe %s: %w", probeID, err)
	}
	return nil
}

func (s *SQLite) InsertRunLog(ctx context.Context, log engine.RunLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_logs
			(run_id, time_started, time_finished, success, failure_reason, tests_passed, tests_failed, tests_skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.RunID, log.TimeStarted.Format(sqliteTimeLayout), log.TimeFinished.Format(sqliteTimeLayout),
		log.Success, log.FailureReason, log.TestsPassed, log.TestsFailed, log.TestsSkipped,
	)
	if err != nil {
		return fmt.Errorf("insert run log %s: %w", log.RunID, err)
	}
	return nil
}

func (s *SQLite) NotificationTargets(ctx context.Context) (notify.Targets, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, value FROM notification_targets ORDER BY kind, value`)
	if err != nil {
		return notify.Targets{}, fmt.Errorf("notification targets: %w", err)
	}
	defer rows.Close()

	var targets notify.Targets
	for rows.Next() {
		var kind, value string
		if err := rows.Scan(&kind, &value); err != nil {
			return notify.Targets{}, fmt.Errorf("scan notification target: %w", err)
		}
		switch kind {
		case "email":
			targets.Emails = append(targets.Emails, value)
		case "phone":
			targets.Phones = append(targets.Phones, value)
		default:
			return notify.Targets{}, fmt.Errorf("notification targets: unknown kind %q", kind)
		}
	}
	return targets, rows.Err()
}

func (s *SQLite) DeleteResultsOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE time_finished < ?`, cutoff.Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("delete expired results: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteRunLogsOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM run_logs WHERE time_finished < ?`, cutoff.Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("delete expired run logs: %w", err)
	}
	return nil
}

// InsertProbe is an administrative helper mirroring Postgres.InsertProbe,
// used by tests and by internal/api rather than by the run coordinator
// itself.
func (s *SQLite) InsertProbe(ctx context.Context, p engine.Probe) error {
	row, err := probeToRow(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO probes (id, name, enabled, failure_threshold, failing, config)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name              = excluded.name,
			enabled           = excluded.enabled,
			failure_threshold = excluded.failure_threshold,
			config            = excluded.config`,
		row.ID, row.Name, row.Enabled, row.FailureThreshold, row.Failing, string(row.Config),
	)
	if err != nil {
		return fmt.Errorf("insert probe %s: %w", p.ID, err)
	}
	return nil
}
