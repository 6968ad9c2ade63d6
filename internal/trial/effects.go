package trial

import (
	"context"

	"go.uber.org/zap"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
	"github.com/ChuprinaDaria/yoga-bot/internal/lifecycle"
)

// runEffects executes committed side effects in order and returns how many
// were cancelled by a failed re-validation.
func (s *Service) runEffects(ctx context.Context, u *domain.User, effects []lifecycle.Effect) int {
	cancelled := 0
	for _, e := range effects {
		switch e.Kind {
		case lifecycle.EffectSend:
			id, err := s.send(ctx, u.ChatID, s.texts.Render(e.Notice, e.DaysLeft))
			if err != nil {
				s.log.Warn("send failed", zap.Int64("userID", u.ID), zap.Error(err))
				continue
			}
			if e.RecordPrompt && !s.recordPrompt(ctx, u, id) {
				cancelled++
			}

		case lifecycle.EffectEditPrompt:
			msg := s.texts.Render(e.Notice, e.DaysLeft)
			if err := s.msg.Edit(ctx, u.ChatID, e.MessageID, msg); err != nil {
				s.metrics.observeMessenger("edit", err)
				s.log.Debug("edit failed, sending fresh message",
					zap.Int64("userID", u.ID), zap.Int("messageID", e.MessageID), zap.Error(err))
				if _, err := s.send(ctx, u.ChatID, msg); err != nil {
					s.log.Warn("send failed", zap.Int64("userID", u.ID), zap.Error(err))
				}
				continue
			}
			s.metrics.observeMessenger("edit", nil)

		case lifecycle.EffectDeletePrompt:
			s.delete(ctx, u.ChatID, e.MessageID)

		case lifecycle.EffectDeliverContent:
			s.deliverContent(ctx, u)
		}
	}
	return cancelled
}

// recordPrompt stores the prompt handle if the record still expects one. When
// the state moved on while the prompt was in flight, the orphan is removed.
func (s *Service) recordPrompt(ctx context.Context, u *domain.User, messageID int) bool {
	recorded := false
	_, err := s.repo.UpdateUser(ctx, u.ID, func(cur *domain.User) (bool, error) {
		next, ok := lifecycle.RecordPrompt(*cur, messageID)
		if !ok {
			return false, nil
		}
		*cur = next
		recorded = true
		return true, nil
	})
	if err != nil {
		s.log.Error("record feedback prompt failed", zap.Int64("userID", u.ID), zap.Error(err))
	}
	if recorded {
		return true
	}
	s.log.Info("feedback prompt cancelled by newer state",
		zap.Int64("userID", u.ID), zap.Int("messageID", messageID))
	s.delete(ctx, u.ChatID, messageID)
	return false
}

// deliverContent sends catalog items and tracks each as an artifact. The
// committed record holds the delivery claim; when nothing could be delivered
// the claim is released so a forced begin may retry.
func (s *Service) deliverContent(ctx context.Context, u *domain.User) {
	if s.content == nil {
		return
	}
	delivered := 0
	defer func() {
		if delivered == 0 {
			s.releaseContentClaim(ctx, u)
		}
	}()

	items, err := s.content.Items(ctx)
	if err != nil {
		s.log.Error("load content failed", zap.Error(err))
		return
	}
	if len(items) > s.cfg.ContentLimit {
		items = items[:s.cfg.ContentLimit]
	}

	for _, item := range items {
		id, err := s.send(ctx, u.ChatID, s.texts.Content(item))
		if err != nil {
			s.log.Warn("content send failed",
				zap.Int64("userID", u.ID), zap.String("code", item.Code), zap.Error(err))
			continue
		}
		a := &domain.Artifact{UserID: u.ID, ChatID: u.ChatID, MessageID: id, CreatedAt: s.clock.Now()}
		if err := s.repo.AddArtifact(ctx, a); err != nil {
			s.log.Error("track artifact failed", zap.Int64("userID", u.ID), zap.Error(err))
			continue
		}
		delivered++
	}
	s.log.Info("content delivered", zap.Int64("userID", u.ID), zap.Int("items", delivered))
}

func (s *Service) releaseContentClaim(ctx context.Context, u *domain.User) {
	if u.ContentDeliveredAt == nil {
		return
	}
	claimedAt := *u.ContentDeliveredAt
	_, err := s.repo.UpdateUser(ctx, u.ID, func(cur *domain.User) (bool, error) {
		next, ok := lifecycle.ReleaseContentClaim(*cur, claimedAt)
		if !ok {
			return false, nil
		}
		*cur = next
		return true, nil
	})
	if err != nil {
		s.log.Error("release content claim failed", zap.Int64("userID", u.ID), zap.Error(err))
		return
	}
	s.log.Info("content claim released", zap.Int64("userID", u.ID))
}

func (s *Service) send(ctx context.Context, chatID int64, msg domain.Message) (int, error) {
	id, err := s.msg.Send(ctx, chatID, msg)
	s.metrics.observeMessenger("send", err)
	return id, err
}

func (s *Service) delete(ctx context.Context, chatID int64, messageID int) bool {
	err := s.msg.Delete(ctx, chatID, messageID)
	s.metrics.observeMessenger("delete", err)
	if err != nil {
		s.log.Debug("delete failed",
			zap.Int64("chatID", chatID), zap.Int("messageID", messageID), zap.Error(err))
		return false
	}
	return true
}
