package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
	"github.com/ChuprinaDaria/yoga-bot/internal/lifecycle"
	"github.com/ChuprinaDaria/yoga-bot/internal/trial"
)

type fakeService struct {
	calls     []string
	scheduled bool
	outcome   lifecycle.Outcome
	startErr  error
}

func (s *fakeService) RequestStart(_ context.Context, userID, chatID int64) (*domain.User, bool, error) {
	s.calls = append(s.calls, "start")
	if s.startErr != nil {
		return nil, false, s.startErr
	}
	return domain.NewUser(userID, chatID, time.Time{}), s.scheduled, nil
}

func (s *fakeService) BeginTrial(_ context.Context, userID int64, force bool) trial.Result {
	s.calls = append(s.calls, "begin")
	return trial.Result{UserID: userID, Outcome: s.outcome}
}

func (s *fakeService) SubmitFeedback(_ context.Context, userID int64, positive bool) trial.Result {
	if positive {
		s.calls = append(s.calls, "feedback+")
	} else {
		s.calls = append(s.calls, "feedback-")
	}
	return trial.Result{UserID: userID, Outcome: s.outcome}
}

func (s *fakeService) GrantExtension(_ context.Context, userID int64) trial.Result {
	s.calls = append(s.calls, "extend")
	return trial.Result{UserID: userID, Outcome: s.outcome}
}

func (s *fakeService) StatusMessage(context.Context, int64) (domain.Message, error) {
	s.calls = append(s.calls, "status")
	return domain.Message{Text: "status text"}, nil
}

func (s *fakeService) StatsMessage(context.Context) (domain.Message, error) {
	s.calls = append(s.calls, "stats")
	return domain.Message{Text: "stats text"}, nil
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

func sentTexts(bot *fakeBot) []string {
	var out []string
	for _, c := range bot.sent {
		if m, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, m.Text)
		}
	}
	return out
}

func callbackAnswers(bot *fakeBot) []string {
	var out []string
	for _, c := range bot.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb.Text)
		}
	}
	return out
}

func newTestRouter(svc *fakeService, admins ...int64) (*Router, *fakeBot) {
	bot := &fakeBot{}
	isAdmin := func(id int64) bool {
		for _, a := range admins {
			if a == id {
				return true
			}
		}
		return false
	}
	return NewRouter(newTestMessenger(bot), svc, isAdmin, zap.NewNop()), bot
}

func TestRouter_StartSchedulesAndOffersStartNow(t *testing.T) {
	svc := &fakeService{scheduled: true}
	r, bot := newTestRouter(svc)

	r.HandleUpdate(context.Background(), textUpdate(1, "/start"))

	assert.Equal(t, []string{"start"}, svc.calls)
	texts := sentTexts(bot)
	require.Len(t, texts, 2)
	assert.Equal(t, welcomeText, texts[0])
	_, isMenu := bot.sent[0].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.ReplyKeyboardMarkup)
	assert.True(t, isMenu)
	kb := bot.sent[1].(tgbotapi.MessageConfig).ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, trial.CallbackStartNow, *kb.InlineKeyboard[0][0].CallbackData)
}

func TestRouter_StartWhenAlreadyInCourseShowsStatus(t *testing.T) {
	svc := &fakeService{}
	r, bot := newTestRouter(svc)

	r.HandleUpdate(context.Background(), textUpdate(1, btnFreeCourse))

	assert.Equal(t, []string{"start", "status"}, svc.calls)
	assert.Equal(t, []string{alreadyStartedText, "status text"}, sentTexts(bot))
}

func TestRouter_StartFailure(t *testing.T) {
	svc := &fakeService{startErr: errors.New("disk full")}
	r, bot := newTestRouter(svc)

	r.HandleUpdate(context.Background(), textUpdate(1, "/start"))
	assert.Equal(t, []string{errorText}, sentTexts(bot))
}

func TestRouter_AdminIsGated(t *testing.T) {
	svc := &fakeService{}
	r, bot := newTestRouter(svc, 7)

	r.HandleUpdate(context.Background(), textUpdate(1, "/admin"))
	r.HandleUpdate(context.Background(), textUpdate(7, "/admin"))

	assert.Equal(t, []string{"stats"}, svc.calls)
	assert.Equal(t, []string{adminOnlyText, "stats text"}, sentTexts(bot))
}

func TestRouter_Callbacks(t *testing.T) {
	tests := []struct {
		data    string
		outcome lifecycle.Outcome
		call    string
		answer  string
	}{
		{trial.CallbackStartNow, lifecycle.OutcomeOK, "begin", ackStarted},
		{trial.CallbackStartNow, lifecycle.OutcomeSkipped, "begin", ackAlreadyActive},
		{trial.CallbackStartNow, lifecycle.OutcomeFailed, "begin", ackStartFirst},
		{trial.CallbackFeedbackYes, lifecycle.OutcomeOK, "feedback+", ackThanks},
		{trial.CallbackFeedbackNo, lifecycle.OutcomeSkipped, "feedback-", ackAnswered},
		{trial.CallbackExtend, lifecycle.OutcomeOK, "extend", ackExtended},
		{trial.CallbackExtend, lifecycle.OutcomeSkipped, "extend", ackNoExtension},
	}
	for _, tt := range tests {
		t.Run(tt.data+"/"+tt.outcome.String(), func(t *testing.T) {
			svc := &fakeService{outcome: tt.outcome}
			r, bot := newTestRouter(svc)

			r.HandleUpdate(context.Background(), callbackUpdate(1, tt.data))

			assert.Equal(t, []string{tt.call}, svc.calls)
			assert.Equal(t, []string{tt.answer}, callbackAnswers(bot))
		})
	}
}

func TestRouter_UnknownInput(t *testing.T) {
	svc := &fakeService{}
	r, bot := newTestRouter(svc)

	r.HandleUpdate(context.Background(), textUpdate(1, "hello"))
	r.HandleUpdate(context.Background(), callbackUpdate(1, "set_interval"))

	assert.Empty(t, svc.calls)
	assert.Equal(t, []string{helpText}, sentTexts(bot))
	assert.Equal(t, []string{""}, callbackAnswers(bot))
}
