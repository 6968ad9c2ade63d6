package trial

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
	"github.com/ChuprinaDaria/yoga-bot/internal/lifecycle"
	"github.com/ChuprinaDaria/yoga-bot/internal/store"
)

// DailySweep expires due trials and sends reminders. Per user, expiry is
// evaluated first and a reminder is only considered when expiry was skipped.
func (s *Service) DailySweep(ctx context.Context) (domain.MaintenanceRun, error) {
	now := s.clock.Now()
	users, err := s.repo.ListUsers(ctx, store.Filter{Statuses: []domain.Status{domain.StatusTrialActive}})
	if err != nil {
		return domain.MaintenanceRun{}, fmt.Errorf("list active trials: %w", err)
	}
	return s.sweep(ctx, domain.RunDaily, now, users, func(ctx context.Context, u domain.User) Result {
		res := s.apply(ctx, u.ID, lifecycle.Input{Event: lifecycle.EventExpire, Now: now})
		if res.Outcome != lifecycle.OutcomeSkipped {
			return res
		}
		return s.apply(ctx, u.ID, lifecycle.Input{Event: lifecycle.EventRemind, Now: now})
	}), nil
}

// PurgeSweep deletes delivered content of users whose trial window closed.
// Channel deletion is best effort; the tracking record is always dropped.
// Each candidate is re-read first, so a window reopened after the listing
// keeps its content.
func (s *Service) PurgeSweep(ctx context.Context) (domain.MaintenanceRun, error) {
	now := s.clock.Now()
	users, err := s.repo.ListUsers(ctx, store.Filter{ExpiresAtOrBefore: &now, HasArtifacts: true})
	if err != nil {
		return domain.MaintenanceRun{}, fmt.Errorf("list purge candidates: %w", err)
	}
	return s.sweep(ctx, domain.RunPurge, now, users, func(ctx context.Context, u domain.User) Result {
		return s.purgeArtifacts(ctx, u.ID, now)
	}), nil
}

// CleanupSweep removes the leftover feedback prompt once an extension has
// been over for the cleanup grace period.
func (s *Service) CleanupSweep(ctx context.Context) (domain.MaintenanceRun, error) {
	now := s.clock.Now()
	cutoff := now.Add(-s.cfg.Lifecycle.PromptCleanupAfter)
	used := true
	users, err := s.repo.ListUsers(ctx, store.Filter{
		ExpiresAtOrBefore: &cutoff,
		ExtensionUsed:     &used,
		HasFeedbackPrompt: true,
	})
	if err != nil {
		return domain.MaintenanceRun{}, fmt.Errorf("list cleanup candidates: %w", err)
	}
	return s.sweep(ctx, domain.RunCleanup, now, users, func(ctx context.Context, u domain.User) Result {
		return s.apply(ctx, u.ID, lifecycle.Input{Event: lifecycle.EventCloseExtension, Now: now})
	}), nil
}

// purgeArtifacts drops the content of a closed window. Only artifacts
// delivered before the committed expiry go: content handed out by an
// extension granted meanwhile belongs to the new window.
func (s *Service) purgeArtifacts(ctx context.Context, userID int64, now time.Time) Result {
	res := Result{UserID: userID, Op: "artifact_purge"}
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		res.Outcome, res.Reason = lifecycle.OutcomeFailed, err.Error()
		s.metrics.observeOp(res.Op, res.Outcome)
		s.log.Error("reload purge candidate failed", zap.Int64("userID", userID), zap.Error(err))
		return res
	}
	res.User = u
	if u.TrialExpiresAt == nil || u.TrialExpiresAt.After(now) {
		res.Outcome, res.Reason = lifecycle.OutcomeSkipped, "trial window reopened"
		s.metrics.observeOp(res.Op, res.Outcome)
		s.log.Debug("purge skipped", zap.Int64("userID", userID), zap.String("reason", res.Reason))
		return res
	}

	arts, err := s.repo.ListArtifactsBefore(ctx, userID, *u.TrialExpiresAt)
	if err != nil {
		res.Outcome, res.Reason = lifecycle.OutcomeFailed, err.Error()
		s.metrics.observeOp(res.Op, res.Outcome)
		s.log.Error("list artifacts failed", zap.Int64("userID", userID), zap.Error(err))
		return res
	}

	removed, failed := 0, 0
	for _, a := range arts {
		s.delete(ctx, a.ChatID, a.MessageID)
		if err := s.repo.DeleteArtifact(ctx, a.ID); err != nil {
			s.log.Error("drop artifact failed", zap.Int64("artifactID", a.ID), zap.Error(err))
			failed++
			continue
		}
		removed++
	}

	switch {
	case failed > 0:
		res.Outcome, res.Reason = lifecycle.OutcomeFailed, fmt.Sprintf("%d artifacts left", failed)
	case removed == 0:
		res.Outcome, res.Reason = lifecycle.OutcomeSkipped, "nothing to purge"
	default:
		res.Outcome, res.Reason = lifecycle.OutcomeOK, fmt.Sprintf("%d artifacts purged", removed)
	}
	s.metrics.observeOp(res.Op, res.Outcome)
	return res
}

// sweep runs fn for every user with bounded concurrency and records the run.
// A failure on one user never aborts the others.
func (s *Service) sweep(ctx context.Context, kind domain.RunKind, now time.Time, users []domain.User,
	fn func(context.Context, domain.User) Result) domain.MaintenanceRun {
	run := domain.MaintenanceRun{
		ID:        uuid.NewString(),
		Kind:      kind,
		StartedAt: now,
		Scanned:   len(users),
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Concurrency)
	for _, u := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := fn(ctx, u)
			mu.Lock()
			defer mu.Unlock()
			switch res.Outcome {
			case lifecycle.OutcomeOK:
				run.Applied++
			case lifecycle.OutcomeSkipped:
				run.Skipped++
			default:
				run.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	run.FinishedAt = s.clock.Now()
	if err := s.repo.RecordRun(ctx, run); err != nil {
		s.log.Warn("record maintenance run failed", zap.String("runID", run.ID), zap.Error(err))
	}
	s.metrics.observeSweep(run)
	s.log.Info("sweep finished",
		zap.String("kind", string(kind)),
		zap.String("runID", run.ID),
		zap.Int("scanned", run.Scanned),
		zap.Int("applied", run.Applied),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed),
	)
	return run
}
