package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
)

var _ Repo = (*SQLiteRepo)(nil)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection makes every transaction a single-writer section.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

// applyPragmas configures the SQLite connection for durability and concurrency.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the database is reachable.
func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

const userColumns = `
	user_id, chat_id, status, created_at, trial_started_at, trial_expires_at,
	last_reminder_at, feedback_given, extension_used, feedback_message_id,
	pending_start_at, status_history, content_delivered_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u          domain.User
		status     string
		createdAt  int64
		startedNS  sql.NullInt64
		expiresNS  sql.NullInt64
		reminderNS sql.NullInt64
		feedback   int
		extension  int
		promptNS   sql.NullInt64
		pendingNS  sql.NullInt64
		history    string
		contentNS  sql.NullInt64
	)
	if err := row.Scan(
		&u.ID, &u.ChatID, &status, &createdAt, &startedNS, &expiresNS,
		&reminderNS, &feedback, &extension, &promptNS,
		&pendingNS, &history, &contentNS,
	); err != nil {
		return nil, err
	}

	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}
	h, err := domain.DecodeHistory(history)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", u.ID, err)
	}

	u.Status = st
	u.CreatedAt = fromUnixNano(createdAt)
	u.TrialStartedAt = fromNullInt64(startedNS)
	u.TrialExpiresAt = fromNullInt64(expiresNS)
	u.LastReminderAt = fromNullInt64(reminderNS)
	u.FeedbackGiven = feedback != 0
	u.ExtensionUsed = extension != 0
	u.FeedbackMessageID = fromNullInt(promptNS)
	u.PendingStartAt = fromNullInt64(pendingNS)
	u.StatusHistory = h
	u.ContentDeliveredAt = fromNullInt64(contentNS)
	return &u, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func writeUser(ctx context.Context, ex execer, u *domain.User) error {
	if u == nil {
		return errors.New("nil user")
	}
	if err := u.Validate(); err != nil {
		return err
	}
	history, err := domain.EncodeHistory(u.StatusHistory)
	if err != nil {
		return err
	}
	created := unixNano(u.CreatedAt)
	if u.CreatedAt.IsZero() {
		created = unixNano(time.Now())
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			chat_id             = excluded.chat_id,
			status              = excluded.status,
			trial_started_at    = excluded.trial_started_at,
			trial_expires_at    = excluded.trial_expires_at,
			last_reminder_at    = excluded.last_reminder_at,
			feedback_given      = excluded.feedback_given,
			extension_used      = excluded.extension_used,
			feedback_message_id = excluded.feedback_message_id,
			pending_start_at    = excluded.pending_start_at,
			status_history      = excluded.status_history,
			content_delivered_at = excluded.content_delivered_at`,
		u.ID, u.ChatID, string(u.Status), created,
		toNullInt64(u.TrialStartedAt), toNullInt64(u.TrialExpiresAt),
		toNullInt64(u.LastReminderAt), boolToInt(u.FeedbackGiven), boolToInt(u.ExtensionUsed),
		toNullInt(u.FeedbackMessageID), toNullInt64(u.PendingStartAt), history,
		toNullInt64(u.ContentDeliveredAt),
	)
	return err
}

// UpsertUser inserts or replaces a user record.
func (r *SQLiteRepo) UpsertUser(ctx context.Context, u *domain.User) error {
	return writeUser(ctx, r.db, u)
}

// GetUser returns a user by id or ErrNotFound.
func (r *SQLiteRepo) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return u, err
}

// EnsureUser creates the user with default status when missing. An existing
// row only gets its chat id refreshed.
func (r *SQLiteRepo) EnsureUser(ctx context.Context, userID, chatID int64, now time.Time) (*domain.User, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (user_id, chat_id, status, created_at, status_history)
		VALUES (?, ?, ?, ?, '[]')
		ON CONFLICT(user_id) DO UPDATE SET chat_id = excluded.chat_id`,
		userID, chatID, string(domain.StatusNew), unixNano(now),
	)
	if err != nil {
		return nil, err
	}
	return r.GetUser(ctx, userID)
}

// UpdateUser runs fn on the current row inside a transaction.
func (r *SQLiteRepo) UpdateUser(ctx context.Context, userID int64, fn Mutation) (*domain.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	changed, err := fn(u)
	if err != nil {
		return nil, err
	}
	if !changed {
		return u, nil
	}
	if u.ID != userID {
		return nil, fmt.Errorf("%w: mutation changed user id", domain.ErrInvariant)
	}
	if err := writeUser(ctx, tx, u); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsers returns users matching f ordered by user id.
func (r *SQLiteRepo) ListUsers(ctx context.Context, f Filter) ([]domain.User, error) {
	var (
		where []string
		args  []any
	)
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}
	if f.ExpiresAtOrBefore != nil {
		where = append(where, "trial_expires_at IS NOT NULL AND trial_expires_at <= ?")
		args = append(args, unixNano(*f.ExpiresAtOrBefore))
	}
	if f.ExtensionUsed != nil {
		where = append(where, "extension_used = ?")
		args = append(args, boolToInt(*f.ExtensionUsed))
	}
	if f.HasFeedbackPrompt {
		where = append(where, "feedback_message_id IS NOT NULL")
	}
	if f.HasArtifacts {
		where = append(where, "EXISTS (SELECT 1 FROM message_artifacts a WHERE a.user_id = users.user_id)")
	}
	if f.PendingStart {
		where = append(where, "pending_start_at IS NOT NULL")
	}

	q := `SELECT ` + userColumns + ` FROM users`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY user_id ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// CountByStatus returns the number of users per status.
func (r *SQLiteRepo) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM users GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[domain.Status(status)] = n
	}
	return res, rows.Err()
}
