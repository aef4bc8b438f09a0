package sender

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
)

const telegramMessageLimit = 4096

// BotAPI — часть *tgbotapi.BotAPI, нужная отправителю.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramPush доставляет push через Telegram-бота. PushToken пользователя — chat id.
type TelegramPush struct {
	bot BotAPI
}

var _ domain.ChannelSender = (*TelegramPush)(nil)

// NewTelegramPush создаёт отправителя.
func NewTelegramPush(bot BotAPI) *TelegramPush {
	return &TelegramPush{bot: bot}
}

// Channel реализует domain.ChannelSender.
func (t *TelegramPush) Channel() domain.Channel { return domain.ChannelPush }

// Send реализует domain.ChannelSender.
func (t *TelegramPush) Send(ctx context.Context, user domain.User, payload domain.NotificationPayload) error {
	raw := strings.TrimSpace(user.Contact.PushToken)
	if raw == "" {
		return domain.ErrNoContact
	}
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", raw, err)
	}
	_, body := FormatReminder(payload)
	for _, part := range SplitMessage(body, telegramMessageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		_, err := t.bot.Send(tgbotapi.NewMessage(chatID, part))
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", raw, start, err)
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}
