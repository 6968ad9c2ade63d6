package store

import (
	"context"
	"errors"
	"time"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
)

// AddArtifact records one delivered message and sets a.ID.
func (r *SQLiteRepo) AddArtifact(ctx context.Context, a *domain.Artifact) error {
	if a == nil {
		return errors.New("nil artifact")
	}
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO message_artifacts (user_id, chat_id, message_id, created_at)
		VALUES (?, ?, ?, ?)`,
		a.UserID, a.ChatID, a.MessageID, unixNano(created),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	a.CreatedAt = created.UTC()
	return nil
}

// ListArtifacts returns a user's artifacts, oldest first.
func (r *SQLiteRepo) ListArtifacts(ctx context.Context, userID int64) ([]domain.Artifact, error) {
	return r.queryArtifacts(ctx, `
		SELECT id, user_id, chat_id, message_id, created_at
		FROM message_artifacts
		WHERE user_id = ?
		ORDER BY id ASC`,
		userID,
	)
}

// ListArtifactsBefore returns the artifacts a user received strictly before
// the given instant, oldest first.
func (r *SQLiteRepo) ListArtifactsBefore(ctx context.Context, userID int64, before time.Time) ([]domain.Artifact, error) {
	return r.queryArtifacts(ctx, `
		SELECT id, user_id, chat_id, message_id, created_at
		FROM message_artifacts
		WHERE user_id = ? AND created_at < ?
		ORDER BY id ASC`,
		userID, unixNano(before),
	)
}

func (r *SQLiteRepo) queryArtifacts(ctx context.Context, q string, args ...any) ([]domain.Artifact, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Artifact
	for rows.Next() {
		var (
			a       domain.Artifact
			created int64
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.ChatID, &a.MessageID, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = fromUnixNano(created)
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountArtifacts returns how many artifacts a user holds.
func (r *SQLiteRepo) CountArtifacts(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message_artifacts WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// DeleteArtifact removes one artifact row. Deleting a missing row is not an error.
func (r *SQLiteRepo) DeleteArtifact(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM message_artifacts WHERE id = ?`, id)
	return err
}
