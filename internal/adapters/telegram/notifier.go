package telegram

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"boxscout/internal/adapters/config"
	"boxscout/pkg/errors"
	"boxscout/pkg/logger"
)

// Notifier sends alert texts to a fixed chat. Telegram allows bursts
// but throttles sustained traffic, so sends go through a rate limiter.
type Notifier struct {
	api     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewNotifier creates a notifier bound to the configured chat
func NewNotifier(cfg config.TelegramConfig) (*Notifier, error) {
	if cfg.BotToken == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "telegram bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}

	log := logger.Get().With("component", "telegram_notifier")
	log.Infof("Authorized on account %s", api.Self.UserName)

	return &Notifier{
		api:     api,
		chatID:  cfg.ChatID,
		limiter: rate.NewLimiter(rate.Limit(20), 30),
		log:     log,
	}, nil
}

// Send delivers one Markdown-formatted message to the alert chat
func (n *Notifier) Send(ctx context.Context, text string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "telegram rate limiter wait")
	}

	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := n.api.Send(msg); err != nil {
		n.log.Errorf("Failed to send telegram message: %v", err)
		return errors.Wrap(err, "send telegram message")
	}
	return nil
}
