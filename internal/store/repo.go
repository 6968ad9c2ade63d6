package store

import (
	"context"
	"errors"
	"time"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
)

// ErrNotFound is returned when a user or run does not exist.
var ErrNotFound = errors.New("not found")

// Mutation edits a user inside UpdateUser. Returning false leaves the row
// untouched.
type Mutation func(u *domain.User) (changed bool, err error)

// Filter selects users for a sweep. Zero fields do not constrain.
type Filter struct {
	Statuses          []domain.Status
	ExpiresAtOrBefore *time.Time
	ExtensionUsed     *bool
	HasFeedbackPrompt bool
	HasArtifacts      bool
	PendingStart      bool
	Limit             int
}

// Repo is the user record store. All methods are safe for concurrent use.
type Repo interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	// EnsureUser returns the user, creating it with defaults on first contact.
	EnsureUser(ctx context.Context, userID, chatID int64, now time.Time) (*domain.User, error)
	UpsertUser(ctx context.Context, u *domain.User) error
	// UpdateUser reads, mutates and writes one user atomically. It is the
	// single-writer point for a record: concurrent callers are serialized and
	// each mutation sees the latest committed state.
	UpdateUser(ctx context.Context, userID int64, fn Mutation) (*domain.User, error)
	ListUsers(ctx context.Context, f Filter) ([]domain.User, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)

	AddArtifact(ctx context.Context, a *domain.Artifact) error
	ListArtifacts(ctx context.Context, userID int64) ([]domain.Artifact, error)
	ListArtifactsBefore(ctx context.Context, userID int64, before time.Time) ([]domain.Artifact, error)
	CountArtifacts(ctx context.Context, userID int64) (int, error)
	DeleteArtifact(ctx context.Context, id int64) error

	RecordRun(ctx context.Context, run domain.MaintenanceRun) error
	LatestRun(ctx context.Context, kind domain.RunKind) (*domain.MaintenanceRun, error)

	Ping(ctx context.Context) error
	Close() error
}
