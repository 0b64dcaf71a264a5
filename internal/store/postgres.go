package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jacobpro/calpol/internal/engine"
	"github.com/jacobpro/calpol/internal/notify"
)

// pgErrForeignKeyViolation is the Postgres SQLSTATE for a foreign key
// violation (23503).
const pgErrForeignKeyViolation = "23503"

// Postgres is the production ProbeStore, backed by a pgxpool connection
// pool. Unlike the batched alert writer this package was adapted from, every
// write here is synchronous: a run only ever touches a handful of probes, so
// there is no batching window worth the added complexity, and the
// coordinator needs InsertResults to have landed before it asks for recent
// results in the same run.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pgxpool connection to connStr and pings it.
func NewPostgres(ctx context.Context, connStr string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pool.Ping: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

var _ engine.ProbeStore = (*Postgres)(nil)

func (p *Postgres) ListProbes(ctx context.Context) ([]engine.Probe, error) {
	rows, err := p.pool.Query(ctx, `
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
		if err := rows.Scan(&row.ID, &row.Name, &row.Enabled, &row.FailureThreshold, &row.Failing, &row.Config); err != nil {
			return nil, fmt.Errorf("scan probe: %w", err)
		}
		out = append(out, rowToProbe(row))
	}
	return out, rows.Err()
}

func (p *Postgres) RecentResults(ctx context.Context, probeID string, limit int) ([]engine.Result, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT run_id, probe_id, success, failure_reason, time_started, time_finished
		FROM   results
		WHERE  probe_id = $1
		ORDER  BY time_finished DESC
		LIMIT  $2`, probeID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent results for probe %s: %w", probeID, err)
	}
	defer rows.Close()

	var out []engine.Result
	for rows.Next() {
		var r engine.Result
		if err := rows.Scan(&r.RunID, &r.ProbeID, &r.Success, &r.FailureReason, &r.TimeStarted, &r.TimeFinished); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertResults persists one run's results, one INSERT per row. A foreign key
// violation — a probe deleted between being listed and its result being
// written — is tolerated: that row is dropped and logged rather than
// failing the insert (and the run) for every other probe's result.
func (p *Postgres) InsertResults(ctx context.Context, results []engine.Result) error {
	const query = `
		INSERT INTO results (run_id, probe_id, success, failure_reason, time_started, time_finished)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, r := range results {
		if _, err := p.pool.Exec(ctx, query, r.RunID, r.ProbeID, r.Success, r.FailureReason, r.TimeStarted, r.TimeFinished); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgErrForeignKeyViolation {
				slog.Default().Warn("dropping result for probe deleted mid-run",
					slog.String("run_id", r.RunID), slog.String("probe_id", r.ProbeID), slog.Any("error", err))
				continue
			}
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return nil
}

func (p *Postgres) SetFailing(ctx context.Context, probeID string, failing bool) error {
	_, err := p.pool.Exec(ctx, `UPDATE probes SET failing = $2 WHERE id = $1`, probeID, failing)
	if err != nil {
		return fmt.Errorf("set failing for probe %s: %w", probeID, err)
	}
	return nil
}

func (p *Postgres) InsertRunLog(ctx context.Context, log engine.RunLog) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO run_logs
			(run_id, time_started, time_finished, success, failure_reason, tests_passed, tests_failed, tests_skipped)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		log.RunID, log.TimeStarted, log.TimeFinished, log.Success, log.FailureReason,
		log.TestsPassed, log.TestsFailed, log.TestsSkipped,
	)
	if err != nil {
		return fmt.Errorf("insert run log %s: %w", log.RunID, err)
	}
	return nil
}

func (p *Postgres) NotificationTargets(ctx context.Context) (notify.Targets, error) {
	rows, err := p.pool.Query(ctx, `SELECT kind, value FROM notification_targets ORDER BY kind, value`)
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

func (p *Postgres) DeleteResultsOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM results WHERE time_finished < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired results: %w", err)
	}
	return nil
}

func (p *Postgres) DeleteRunLogsOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM run_logs WHERE time_finished < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("delete expired run logs: %w", err)
	}
	return nil
}

// InsertProbe is an administrative helper used by internal/api when a probe
// is created or updated through the HTTP surface. It is not part of
// engine.ProbeStore because the run coordinator never creates probes itself.
func (p *Postgres) InsertProbe(ctx context.Context, pr engine.Probe) error {
	row, err := probeToRow(pr)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO probes (id, name, enabled, failure_threshold, failing, config)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name              = EXCLUDED.name,
			enabled           = EXCLUDED.enabled,
			failure_threshold = EXCLUDED.failure_threshold,
			config            = EXCLUDED.config`,
		row.ID, row.Name, row.Enabled, row.FailureThreshold, row.Failing, row.Config,
	)
	if err != nil {
		return fmt.Errorf("insert probe %s: %w", pr.ID, err)
	}
	return nil
}

// ListRunLogs returns the most recent run logs, newest first, bounded by
// limit.
func (p *Postgres) ListRunLogs(ctx context.Context, limit int) ([]engine.RunLog, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT run_id, time_started, time_finished, success, failure_reason,
		       tests_passed, tests_failed, tests_skipped
		FROM   run_logs
		ORDER  BY time_started DESC
		LIMIT  $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var out []engine.RunLog
	for rows.Next() {
		var l engine.RunLog
		if err := rows.Scan(&l.RunID, &l.TimeStarted, &l.TimeFinished, &l.Success, &l.FailureReason,
			&l.TestsPassed, &l.TestsFailed, &l.TestsSkipped); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
