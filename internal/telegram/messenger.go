package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
)

// BotAPI is the subset of *tgbotapi.BotAPI the bot uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Messenger delivers messages through the Bot API. Calls are paced by a
// token bucket and guarded by a circuit breaker so a Telegram outage fails
// fast instead of stalling sweeps.
type Messenger struct {
	bot     BotAPI
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[tgbotapi.Message]
	log     *zap.Logger
}

// NewMessenger paces outbound calls at perSecond.
func NewMessenger(bot BotAPI, perSecond float64, log *zap.Logger) *Messenger {
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	cb := gobreaker.NewCircuitBreaker[tgbotapi.Message](gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isClientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &Messenger{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		breaker: cb,
		log:     log,
	}
}

// Send delivers msg and returns the Telegram message id.
func (m *Messenger) Send(ctx context.Context, chatID int64, msg domain.Message) (int, error) {
	var c tgbotapi.Chattable
	if msg.PhotoID != "" {
		p := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(msg.PhotoID))
		p.Caption = msg.Text
		if len(msg.Buttons) > 0 {
			p.ReplyMarkup = inlineKeyboard(msg.Buttons)
		}
		c = p
	} else {
		t := tgbotapi.NewMessage(chatID, msg.Text)
		if len(msg.Buttons) > 0 {
			t.ReplyMarkup = inlineKeyboard(msg.Buttons)
		}
		c = t
	}
	sent, err := m.send(ctx, c)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// Edit replaces the text and inline keyboard of an existing message.
func (m *Messenger) Edit(ctx context.Context, chatID int64, messageID int, msg domain.Message) error {
	var c tgbotapi.Chattable = tgbotapi.NewEditMessageText(chatID, messageID, msg.Text)
	if len(msg.Buttons) > 0 {
		c = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, msg.Text, inlineKeyboard(msg.Buttons))
	}
	return m.request(ctx, c)
}

// Delete removes a message from the chat.
func (m *Messenger) Delete(ctx context.Context, chatID int64, messageID int) error {
	return m.request(ctx, tgbotapi.NewDeleteMessage(chatID, messageID))
}

func (m *Messenger) send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return tgbotapi.Message{}, err
	}
	return m.breaker.Execute(func() (tgbotapi.Message, error) {
		return m.bot.Send(c)
	})
}

func (m *Messenger) request(ctx context.Context, c tgbotapi.Chattable) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := m.breaker.Execute(func() (tgbotapi.Message, error) {
		resp, err := m.bot.Request(c)
		if err != nil {
			return tgbotapi.Message{}, err
		}
		if !resp.Ok {
			return tgbotapi.Message{}, fmt.Errorf("telegram: %s", resp.Description)
		}
		return tgbotapi.Message{}, nil
	})
	return err
}

// answer acknowledges a callback query. It bypasses the breaker so buttons
// never spin forever on the client.
func (m *Messenger) answer(callbackID, text string) {
	if _, err := m.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		m.log.Debug("answer callback failed", zap.Error(err))
	}
}

// isClientError reports Bot API rejections of a single request, such as a
// message that no longer exists or a user who blocked the bot. They say
// nothing about the health of the API.
func isClientError(err error) bool {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == http.StatusBadRequest || tgErr.Code == http.StatusForbidden
	}
	return false
}

func inlineKeyboard(rows [][]domain.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}
