package trial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
	"github.com/ChuprinaDaria/yoga-bot/internal/lifecycle"
	"github.com/ChuprinaDaria/yoga-bot/internal/store"
)

// RequestStart registers the user and schedules a deferred trial start.
// It reports whether a start was scheduled; users already in a trial or
// past it get their current record back unchanged.
func (s *Service) RequestStart(ctx context.Context, userID, chatID int64) (*domain.User, bool, error) {
	now := s.clock.Now()
	if _, err := s.repo.EnsureUser(ctx, userID, chatID, now); err != nil {
		return nil, false, fmt.Errorf("ensure user: %w", err)
	}

	due := now.Add(s.cfg.StartDelay)
	scheduled := false
	u, err := s.repo.UpdateUser(ctx, userID, func(u *domain.User) (bool, error) {
		if _, ok := lifecycle.TransitionFor(u.Status, lifecycle.EventBegin); !ok || u.Status == domain.StatusTrialActive {
			return false, nil
		}
		u.PendingStartAt = domain.TimePtr(due)
		scheduled = true
		return true, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("schedule start: %w", err)
	}
	if scheduled {
		s.scheduleBegin(userID, s.cfg.StartDelay)
		s.log.Info("trial start scheduled", zap.Int64("userID", userID), zap.Time("due", due))
	}
	return u, scheduled, nil
}

// BeginTrial starts or restarts the trial. Without force it only acts on a
// due pending start; with force it starts immediately and redelivers content
// to an active user who no longer holds any. The artifact count is read
// outside the commit; the delivery claim on the record keeps two racing
// begins from both delivering.
func (s *Service) BeginTrial(ctx context.Context, userID int64, force bool) Result {
	n, err := s.repo.CountArtifacts(ctx, userID)
	if err != nil {
		return s.failed(userID, lifecycle.EventBegin, err)
	}
	return s.apply(ctx, userID, lifecycle.Input{
		Event:        lifecycle.EventBegin,
		Now:          s.clock.Now(),
		Force:        force,
		HasArtifacts: n > 0,
	})
}

// SubmitFeedback records the answer to the feedback prompt.
func (s *Service) SubmitFeedback(ctx context.Context, userID int64, positive bool) Result {
	ev := lifecycle.EventFeedbackNegative
	if positive {
		ev = lifecycle.EventFeedbackPositive
	}
	return s.apply(ctx, userID, lifecycle.Input{Event: ev, Now: s.clock.Now()})
}

// GrantExtension reopens the trial for the one-time extension window.
func (s *Service) GrantExtension(ctx context.Context, userID int64) Result {
	return s.apply(ctx, userID, lifecycle.Input{Event: lifecycle.EventExtend, Now: s.clock.Now()})
}

// RecoverPending re-arms deferred starts lost with the previous process.
// Overdue starts fire immediately.
func (s *Service) RecoverPending(ctx context.Context) (int, error) {
	users, err := s.repo.ListUsers(ctx, store.Filter{PendingStart: true})
	if err != nil {
		return 0, fmt.Errorf("list pending starts: %w", err)
	}
	now := s.clock.Now()
	for _, u := range users {
		delay := u.PendingStartAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		s.scheduleBegin(u.ID, delay)
	}
	if len(users) > 0 {
		s.log.Info("pending starts recovered", zap.Int("count", len(users)))
	}
	return len(users), nil
}

func (s *Service) scheduleBegin(userID int64, delay time.Duration) {
	if s.deferrer == nil {
		return
	}
	s.deferrer.RunAfter(fmt.Sprintf("begin:%d", userID), delay, func(ctx context.Context) {
		res := s.BeginTrial(ctx, userID, false)
		if res.Outcome == lifecycle.OutcomeFailed {
			s.log.Warn("deferred start failed", zap.Int64("userID", userID), zap.String("reason", res.Reason))
		}
	})
}

// StatusMessage renders the user's current standing.
func (s *Service) StatusMessage(ctx context.Context, userID int64) (domain.Message, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return s.texts.Status(nil, s.clock.Now()), nil
	}
	if err != nil {
		return domain.Message{}, err
	}
	return s.texts.Status(u, s.clock.Now()), nil
}

// Stats is the admin overview.
type Stats struct {
	ByStatus map[domain.Status]int
	LastRuns map[domain.RunKind]*domain.MaintenanceRun
}

// Stats counts users per status and reports the latest sweep of each kind.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count by status: %w", err)
	}
	st := Stats{ByStatus: counts, LastRuns: make(map[domain.RunKind]*domain.MaintenanceRun)}
	for _, kind := range []domain.RunKind{domain.RunDaily, domain.RunPurge, domain.RunCleanup} {
		run, err := s.repo.LatestRun(ctx, kind)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return Stats{}, fmt.Errorf("latest %s run: %w", kind, err)
		}
		st.LastRuns[kind] = run
	}
	return st, nil
}

// StatsMessage renders Stats for the admin chat.
func (s *Service) StatsMessage(ctx context.Context) (domain.Message, error) {
	st, err := s.Stats(ctx)
	if err != nil {
		return domain.Message{}, err
	}
	return s.texts.Stats(st), nil
}

func (s *Service) failed(userID int64, ev lifecycle.Event, err error) Result {
	s.metrics.observeOp(ev.String(), lifecycle.OutcomeFailed)
	s.log.Error("lifecycle read failed", zap.Int64("userID", userID), zap.String("op", ev.String()), zap.Error(err))
	return Result{UserID: userID, Op: ev.String(), Outcome: lifecycle.OutcomeFailed, Reason: err.Error()}
}
