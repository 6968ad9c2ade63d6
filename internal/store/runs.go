package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
)

// RecordRun stores the audit record of one sweep.
func (r *SQLiteRepo) RecordRun(ctx context.Context, run domain.MaintenanceRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO maintenance_runs (id, kind, started_at, finished_at, scanned, applied, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), unixNano(run.StartedAt), unixNano(run.FinishedAt),
		run.Scanned, run.Applied, run.Skipped, run.Failed,
	)
	return err
}

// LatestRun returns the most recent run of a kind or ErrNotFound.
func (r *SQLiteRepo) LatestRun(ctx context.Context, kind domain.RunKind) (*domain.MaintenanceRun, error) {
	var (
		run      domain.MaintenanceRun
		k        string
		started  int64
		finished int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, kind, started_at, finished_at, scanned, applied, skipped, failed
		FROM maintenance_runs
		WHERE kind = ?
		ORDER BY started_at DESC, rowid DESC
		LIMIT 1`,
		string(kind),
	).Scan(&run.ID, &k, &started, &finished, &run.Scanned, &run.Applied, &run.Skipped, &run.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	run.Kind = domain.RunKind(k)
	run.StartedAt = fromUnixNano(started)
	run.FinishedAt = fromUnixNano(finished)
	return &run, nil
}
