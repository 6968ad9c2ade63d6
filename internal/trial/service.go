// Package trial runs the trial lifecycle against the store and the messaging
// channel.
//
// Every operation follows the same discipline: the engine decision is
// computed and committed inside store.Repo.UpdateUser, which serializes
// writers per record and re-reads the row, and only after the commit are the
// decision's side effects executed. Messaging failures are logged and never
// roll back a committed transition; the next sweep re-evaluates the user.
package trial

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ChuprinaDaria/yoga-bot/internal/clock"
	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
	"github.com/ChuprinaDaria/yoga-bot/internal/lifecycle"
	"github.com/ChuprinaDaria/yoga-bot/internal/scheduler"
	"github.com/ChuprinaDaria/yoga-bot/internal/store"
)

// Messenger is the outbound channel. Failures are never fatal to the caller.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg domain.Message) (messageID int, err error)
	Edit(ctx context.Context, chatID int64, messageID int, msg domain.Message) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// ContentSource yields the course content delivered at trial start.
type ContentSource interface {
	Items(ctx context.Context) ([]domain.ContentItem, error)
}

// Deferrer runs a keyed job once after a delay.
type Deferrer interface {
	RunAfter(key string, delay time.Duration, job scheduler.Job)
}

// Config tunes the service.
type Config struct {
	Lifecycle    lifecycle.Config
	StartDelay   time.Duration
	Concurrency  int
	ContentLimit int
	Links        Links
}

// Deps are the collaborators of a Service.
type Deps struct {
	Repo      store.Repo
	Messenger Messenger
	Content   ContentSource
	Deferrer  Deferrer
	Clock     clock.Clock
	Metrics   *Metrics
	Log       *zap.Logger
}

// Service applies lifecycle decisions.
type Service struct {
	cfg      Config
	repo     store.Repo
	engine   *lifecycle.Engine
	msg      Messenger
	content  ContentSource
	deferrer Deferrer
	clock    clock.Clock
	metrics  *Metrics
	texts    Texts
	log      *zap.Logger
}

// New builds a Service. Missing clock and logger fall back to defaults.
func New(cfg Config, deps Deps) *Service {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.ContentLimit <= 0 {
		cfg.ContentLimit = 6
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Service{
		cfg:      cfg,
		repo:     deps.Repo,
		engine:   lifecycle.New(cfg.Lifecycle),
		msg:      deps.Messenger,
		content:  deps.Content,
		deferrer: deps.Deferrer,
		clock:    deps.Clock,
		metrics:  deps.Metrics,
		texts:    NewTexts(cfg.Links),
		log:      deps.Log,
	}
}

// Result is the outcome of one operation on one user.
type Result struct {
	UserID  int64
	Op      string
	Outcome lifecycle.Outcome
	Reason  string
	// User is the committed record after the operation, when it was read.
	User *domain.User
	// Cancelled counts side effects dropped because a re-validation failed.
	Cancelled int
}

// apply decides and commits in one store transaction, then runs effects.
func (s *Service) apply(ctx context.Context, userID int64, in lifecycle.Input) Result {
	res := Result{UserID: userID, Op: in.Event.String()}

	var dec lifecycle.Decision
	u, err := s.repo.UpdateUser(ctx, userID, func(u *domain.User) (bool, error) {
		dec = s.engine.Decide(*u, in)
		if !dec.Applied() {
			return false, nil
		}
		*u = dec.User
		return true, nil
	})
	if err != nil {
		res.Outcome = lifecycle.OutcomeFailed
		res.Reason = err.Error()
		s.metrics.observeOp(res.Op, res.Outcome)
		s.log.Error("lifecycle commit failed",
			zap.Int64("userID", userID), zap.String("op", res.Op), zap.Error(err))
		return res
	}

	res.Outcome, res.Reason, res.User = dec.Outcome, dec.Reason, u
	s.metrics.observeOp(res.Op, res.Outcome)
	if !dec.Applied() {
		s.log.Debug("precondition not met",
			zap.Int64("userID", userID), zap.String("op", res.Op), zap.String("reason", dec.Reason))
		return res
	}

	fields := []zap.Field{
		zap.Int64("userID", userID),
		zap.String("op", res.Op),
		zap.String("status", string(u.Status)),
		zap.String("reason", dec.Reason),
	}
	if dec.History != nil {
		fields = append(fields, zap.String("from", string(dec.History.From)))
	}
	s.log.Info("lifecycle transition committed", fields...)

	res.Cancelled = s.runEffects(ctx, u, dec.Effects)
	return res
}
