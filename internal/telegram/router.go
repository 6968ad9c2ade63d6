package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
	"github.com/ChuprinaDaria/yoga-bot/internal/lifecycle"
	"github.com/ChuprinaDaria/yoga-bot/internal/trial"
)

// TrialService is what the router needs from the trial lifecycle.
type TrialService interface {
	RequestStart(ctx context.Context, userID, chatID int64) (*domain.User, bool, error)
	BeginTrial(ctx context.Context, userID int64, force bool) trial.Result
	SubmitFeedback(ctx context.Context, userID int64, positive bool) trial.Result
	GrantExtension(ctx context.Context, userID int64) trial.Result
	StatusMessage(ctx context.Context, userID int64) (domain.Message, error)
	StatsMessage(ctx context.Context) (domain.Message, error)
}

// Router wires Telegram updates to the trial service.
type Router struct {
	out     *Messenger
	svc     TrialService
	isAdmin func(userID int64) bool
	log     *zap.Logger
}

// NewRouter creates a new Telegram router.
func NewRouter(out *Messenger, svc TrialService, isAdmin func(int64) bool, log *zap.Logger) *Router {
	return &Router{out: out, svc: svc, isAdmin: isAdmin, log: log}
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil && upd.Message.From != nil {
		msg := upd.Message
		userID, chatID := msg.From.ID, msg.Chat.ID
		text := strings.TrimSpace(msg.Text)

		switch {
		case strings.HasPrefix(text, "/start"), text == btnFreeCourse:
			r.handleStart(ctx, userID, chatID)
		case strings.HasPrefix(text, "/status"), text == btnMyStatus:
			r.handleStatus(ctx, userID, chatID)
		case strings.HasPrefix(text, "/admin"):
			r.handleAdmin(ctx, userID, chatID)
		default:
			r.sendText(ctx, chatID, helpText)
		}
		return
	}

	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		if cb.From == nil {
			return
		}
		userID := cb.From.ID

		switch cb.Data {
		case trial.CallbackStartNow:
			r.handleStartNow(ctx, userID, cb.ID)
		case trial.CallbackFeedbackYes:
			r.handleFeedback(ctx, userID, cb.ID, true)
		case trial.CallbackFeedbackNo:
			r.handleFeedback(ctx, userID, cb.ID, false)
		case trial.CallbackExtend:
			r.handleExtend(ctx, userID, cb.ID)
		default:
			// Unknown callback, ignore silently
			r.out.answer(cb.ID, "")
		}
	}
}

func (r *Router) handleStart(ctx context.Context, userID, chatID int64) {
	_, scheduled, err := r.svc.RequestStart(ctx, userID, chatID)
	if err != nil {
		r.log.Error("request start failed", zap.Int64("userID", userID), zap.Error(err))
		r.sendText(ctx, chatID, errorText)
		return
	}
	if !scheduled {
		r.sendMenu(ctx, chatID, alreadyStartedText)
		r.handleStatus(ctx, userID, chatID)
		return
	}
	r.sendMenu(ctx, chatID, welcomeText)
	r.send(ctx, chatID, domain.Message{
		Text:    "Can't wait?",
		Buttons: [][]domain.Button{{{Text: "🚀 Start now", Data: trial.CallbackStartNow}}},
	})
}

func (r *Router) handleStatus(ctx context.Context, userID, chatID int64) {
	msg, err := r.svc.StatusMessage(ctx, userID)
	if err != nil {
		r.log.Error("status failed", zap.Int64("userID", userID), zap.Error(err))
		r.sendText(ctx, chatID, errorText)
		return
	}
	r.send(ctx, chatID, msg)
}

func (r *Router) handleAdmin(ctx context.Context, userID, chatID int64) {
	if r.isAdmin == nil || !r.isAdmin(userID) {
		r.sendText(ctx, chatID, adminOnlyText)
		return
	}
	msg, err := r.svc.StatsMessage(ctx)
	if err != nil {
		r.log.Error("stats failed", zap.Error(err))
		r.sendText(ctx, chatID, errorText)
		return
	}
	r.send(ctx, chatID, msg)
}

func (r *Router) handleStartNow(ctx context.Context, userID int64, cbID string) {
	res := r.svc.BeginTrial(ctx, userID, true)
	switch res.Outcome {
	case lifecycle.OutcomeOK:
		r.out.answer(cbID, ackStarted)
	case lifecycle.OutcomeSkipped:
		r.out.answer(cbID, ackAlreadyActive)
	default:
		r.out.answer(cbID, ackStartFirst)
	}
}

func (r *Router) handleFeedback(ctx context.Context, userID int64, cbID string, positive bool) {
	res := r.svc.SubmitFeedback(ctx, userID, positive)
	if res.Outcome == lifecycle.OutcomeOK {
		r.out.answer(cbID, ackThanks)
		return
	}
	r.out.answer(cbID, ackAnswered)
}

func (r *Router) handleExtend(ctx context.Context, userID int64, cbID string) {
	res := r.svc.GrantExtension(ctx, userID)
	if res.Outcome == lifecycle.OutcomeOK {
		r.out.answer(cbID, ackExtended)
		return
	}
	r.out.answer(cbID, ackNoExtension)
}

// --- Generic helpers ---

func (r *Router) send(ctx context.Context, chatID int64, msg domain.Message) {
	if _, err := r.out.Send(ctx, chatID, msg); err != nil {
		r.log.Warn("reply failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

func (r *Router) sendText(ctx context.Context, chatID int64, text string) {
	r.send(ctx, chatID, domain.Message{Text: text})
}

func (r *Router) sendMenu(ctx context.Context, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenuKeyboard()
	if _, err := r.out.send(ctx, msg); err != nil {
		r.log.Warn("reply failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}
