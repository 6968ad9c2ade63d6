package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
)

var t0 = time.Date(2025, time.May, 5, 9, 0, 0, 0, time.UTC)

func openTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestOpenSQLite_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "twice.db")
	ctx := context.Background()

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestEnsureUser_CreatesDefaultsOnce(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	u, err := repo.EnsureUser(ctx, 10, 100, t0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, u.Status)
	assert.Equal(t, int64(100), u.ChatID)
	assert.Equal(t, t0, u.CreatedAt)
	assert.Empty(t, u.StatusHistory)

	u.Status = domain.StatusTrialActive
	u.TrialStartedAt = domain.TimePtr(t0)
	u.TrialExpiresAt = domain.TimePtr(t0.Add(time.Hour))
	require.NoError(t, repo.UpsertUser(ctx, u))

	again, err := repo.EnsureUser(ctx, 10, 101, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTrialActive, again.Status, "existing row keeps its state")
	assert.Equal(t, int64(101), again.ChatID)
	assert.Equal(t, t0, again.CreatedAt)
}

func TestGetUser_NotFound(t *testing.T) {
	repo := openTestRepo(t)
	_, err := repo.GetUser(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertUser_RoundTripsAllFields(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	u := domain.NewUser(5, 50, t0)
	u.Status = domain.StatusTrialExpired
	u.TrialStartedAt = domain.TimePtr(t0)
	u.TrialExpiresAt = domain.TimePtr(t0.Add(15 * 24 * time.Hour))
	u.LastReminderAt = domain.TimePtr(t0.Add(3 * 24 * time.Hour))
	u.FeedbackGiven = true
	u.ExtensionUsed = true
	u.FeedbackMessageID = domain.IntPtr(111)
	u.PendingStartAt = domain.TimePtr(t0.Add(time.Minute))
	u.ContentDeliveredAt = domain.TimePtr(t0)
	u.StatusHistory = domain.History{}.
		Append(domain.HistoryEntry{Timestamp: t0, From: domain.StatusNew, To: domain.StatusTrialActive, Reason: "trial_started"}).
		Append(domain.HistoryEntry{Timestamp: t0.Add(15 * 24 * time.Hour), From: domain.StatusTrialActive, To: domain.StatusTrialExpired, Reason: "course_expired"})

	require.NoError(t, repo.UpsertUser(ctx, u))

	got, err := repo.GetUser(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestUpsertUser_RejectsInvariantViolation(t *testing.T) {
	repo := openTestRepo(t)
	u := domain.NewUser(6, 6, t0)
	u.TrialStartedAt = domain.TimePtr(t0)

	err := repo.UpsertUser(context.Background(), u)
	assert.ErrorIs(t, err, domain.ErrInvariant)
}

func TestUpdateUser_NoChangeLeavesRow(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	_, err := repo.EnsureUser(ctx, 1, 1, t0)
	require.NoError(t, err)

	got, err := repo.UpdateUser(ctx, 1, func(u *domain.User) (bool, error) {
		u.Status = domain.StatusOpen
		return false, nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, got.Status, "caller sees its own view")

	stored, err := repo.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNew, stored.Status)

	_, err = repo.UpdateUser(ctx, 999, func(u *domain.User) (bool, error) { return true, nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateUser_SerializesConcurrentMutations(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	_, err := repo.EnsureUser(ctx, 1, 1, t0)
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.UpdateUser(ctx, 1, func(u *domain.User) (bool, error) {
				u.StatusHistory = u.StatusHistory.Append(domain.HistoryEntry{
					Timestamp: t0.Add(time.Duration(i) * time.Second),
					Reason:    "tick",
				})
				return true, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := repo.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got.StatusHistory, writers, "no append may be lost")
	assert.True(t, got.StatusHistory.Ordered())
}

func TestListUsers_Filters(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	active := domain.NewUser(1, 1, t0)
	active.Status = domain.StatusTrialActive
	active.TrialStartedAt = domain.TimePtr(t0)
	active.TrialExpiresAt = domain.TimePtr(t0.Add(24 * time.Hour))

	expired := domain.NewUser(2, 2, t0)
	expired.Status = domain.StatusTrialExpired
	expired.TrialStartedAt = domain.TimePtr(t0)
	expired.TrialExpiresAt = domain.TimePtr(t0.Add(-time.Hour))
	expired.ExtensionUsed = true
	expired.FeedbackMessageID = domain.IntPtr(7)

	pending := domain.NewUser(3, 3, t0)
	pending.PendingStartAt = domain.TimePtr(t0.Add(time.Minute))

	for _, u := range []*domain.User{active, expired, pending} {
		require.NoError(t, repo.UpsertUser(ctx, u))
	}
	require.NoError(t, repo.AddArtifact(ctx, &domain.Artifact{UserID: 2, ChatID: 2, MessageID: 70, CreatedAt: t0}))

	ids := func(f Filter) []int64 {
		users, err := repo.ListUsers(ctx, f)
		require.NoError(t, err)
		out := []int64{}
		for _, u := range users {
			out = append(out, u.ID)
		}
		return out
	}

	yes := true
	assert.Equal(t, []int64{1, 2, 3}, ids(Filter{}))
	assert.Equal(t, []int64{1}, ids(Filter{Statuses: []domain.Status{domain.StatusTrialActive}}))
	assert.Equal(t, []int64{2}, ids(Filter{ExpiresAtOrBefore: domain.TimePtr(t0)}))
	assert.Equal(t, []int64{2}, ids(Filter{ExtensionUsed: &yes, HasFeedbackPrompt: true}))
	assert.Equal(t, []int64{2}, ids(Filter{HasArtifacts: true}))
	assert.Equal(t, []int64{3}, ids(Filter{PendingStart: true}))
	assert.Equal(t, []int64{1}, ids(Filter{Limit: 1}))

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.StatusTrialActive])
	assert.Equal(t, 1, counts[domain.StatusTrialExpired])
	assert.Equal(t, 1, counts[domain.StatusNew])
}

func TestArtifacts_Lifecycle(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	_, err := repo.EnsureUser(ctx, 1, 1, t0)
	require.NoError(t, err)

	a := &domain.Artifact{UserID: 1, ChatID: 1, MessageID: 10, CreatedAt: t0}
	require.NoError(t, repo.AddArtifact(ctx, a))
	require.NotZero(t, a.ID)
	require.NoError(t, repo.AddArtifact(ctx, &domain.Artifact{UserID: 1, ChatID: 1, MessageID: 11, CreatedAt: t0}))

	n, err := repo.CountArtifacts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := repo.ListArtifacts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 10, list[0].MessageID)

	require.NoError(t, repo.DeleteArtifact(ctx, a.ID))
	require.NoError(t, repo.DeleteArtifact(ctx, a.ID))

	n, err = repo.CountArtifacts(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestListArtifactsBefore_IsStrict(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	_, err := repo.EnsureUser(ctx, 1, 1, t0)
	require.NoError(t, err)

	cutoff := t0.Add(15 * 24 * time.Hour)
	for i, at := range []time.Time{t0, cutoff.Add(-time.Nanosecond), cutoff, cutoff.Add(time.Hour)} {
		require.NoError(t, repo.AddArtifact(ctx, &domain.Artifact{UserID: 1, ChatID: 1, MessageID: 10 + i, CreatedAt: at}))
	}

	list, err := repo.ListArtifactsBefore(ctx, 1, cutoff)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 10, list[0].MessageID)
	assert.Equal(t, 11, list[1].MessageID)
}

func TestInstants_KeepSubSecondPrecision(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	start := t0.Add(1234567891 * time.Nanosecond)

	u, err := repo.EnsureUser(ctx, 1, 1, start)
	require.NoError(t, err)
	assert.Equal(t, start, u.CreatedAt)

	u.Status = domain.StatusTrialActive
	u.TrialStartedAt = domain.TimePtr(start)
	u.TrialExpiresAt = domain.TimePtr(start.Add(500 * time.Millisecond))
	u.LastReminderAt = domain.TimePtr(start.Add(time.Nanosecond))
	u.ContentDeliveredAt = domain.TimePtr(start)
	u.StatusHistory = domain.History{}.
		Append(domain.HistoryEntry{Timestamp: start, From: domain.StatusNew, To: domain.StatusTrialActive, Reason: "trial_started"})
	require.NoError(t, repo.UpsertUser(ctx, u))

	got, err := repo.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, u, got)

	// Expiry half a second after start: the filter must see the difference.
	ids := func(at time.Time) int {
		users, err := repo.ListUsers(ctx, Filter{ExpiresAtOrBefore: &at})
		require.NoError(t, err)
		return len(users)
	}
	assert.Zero(t, ids(start.Add(400*time.Millisecond)))
	assert.Equal(t, 1, ids(start.Add(500*time.Millisecond)))

	a := &domain.Artifact{UserID: 1, ChatID: 1, MessageID: 5, CreatedAt: start}
	require.NoError(t, repo.AddArtifact(ctx, a))
	arts, err := repo.ListArtifacts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, start, arts[0].CreatedAt)

	run := domain.MaintenanceRun{ID: uuid.NewString(), Kind: domain.RunPurge, StartedAt: start, FinishedAt: start.Add(time.Millisecond)}
	require.NoError(t, repo.RecordRun(ctx, run))
	latest, err := repo.LatestRun(ctx, domain.RunPurge)
	require.NoError(t, err)
	assert.Equal(t, run, *latest)
}

func TestMigrations_UpgradeSecondPrecisionRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	ctx := context.Background()

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	require.NoError(t, err)
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	require.NoError(t, err)
	require.NoError(t, m.Migrate(1))

	expires := t0.Add(15 * 24 * time.Hour)
	_, err = db.ExecContext(ctx, `
		INSERT INTO users (user_id, chat_id, status, created_at, trial_started_at, trial_expires_at, status_history)
		VALUES (1, 1, 'trial_active', ?, ?, ?, '[]'), (2, 2, 'trial_active', ?, ?, ?, '[]')`,
		t0.Unix(), t0.Unix(), expires.Unix(), t0.Unix(), t0.Unix(), expires.Unix())
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO message_artifacts (user_id, chat_id, message_id, created_at) VALUES (1, 1, 10, ?)`, t0.Unix())
	require.NoError(t, err)
	require.NoError(t, src.Close())
	require.NoError(t, db.Close())

	repo, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	u, err := repo.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, t0, u.CreatedAt)
	assert.Equal(t, expires, *u.TrialExpiresAt)
	require.NotNil(t, u.ContentDeliveredAt, "users holding content get a claim")
	assert.Equal(t, t0, *u.ContentDeliveredAt)

	other, err := repo.GetUser(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, other.ContentDeliveredAt)

	arts, err := repo.ListArtifacts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, t0, arts[0].CreatedAt)
}

func TestRuns_LatestByKind(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	_, err := repo.LatestRun(ctx, domain.RunDaily)
	assert.ErrorIs(t, err, ErrNotFound)

	older := domain.MaintenanceRun{ID: uuid.NewString(), Kind: domain.RunDaily, StartedAt: t0, FinishedAt: t0.Add(time.Second), Scanned: 3}
	newer := domain.MaintenanceRun{ID: uuid.NewString(), Kind: domain.RunDaily, StartedAt: t0.Add(24 * time.Hour), FinishedAt: t0.Add(24*time.Hour + time.Second), Scanned: 5, Applied: 2, Skipped: 3}
	purge := domain.MaintenanceRun{ID: uuid.NewString(), Kind: domain.RunPurge, StartedAt: t0.Add(48 * time.Hour), FinishedAt: t0.Add(48 * time.Hour)}
	for _, r := range []domain.MaintenanceRun{older, newer, purge} {
		require.NoError(t, repo.RecordRun(ctx, r))
	}

	got, err := repo.LatestRun(ctx, domain.RunDaily)
	require.NoError(t, err)
	assert.Equal(t, newer, *got)
}
