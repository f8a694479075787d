package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"venue-membership/internal/config"
	"venue-membership/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*TelegramNotifier)(nil)

// sender is the part of *tgbotapi.BotAPI the notifier needs.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts operator notifications to Telegram chats. Info goes
// to the info chat; warnings and dangers go to the alert chat.
type TelegramNotifier struct {
	bot         sender
	infoChatID  int64
	alertChatID int64
}

func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newTelegramNotifier(bot, cfg.InfoChatID, cfg.AlertChatID)
}

func newTelegramNotifier(bot sender, infoChatID, alertChatID int64) (*TelegramNotifier, error) {
	if infoChatID == 0 && alertChatID == 0 {
		return nil, errors.New("telegram notifier needs at least one chat id")
	}
	if alertChatID == 0 {
		alertChatID = infoChatID
	}
	if infoChatID == 0 {
		infoChatID = alertChatID
	}
	return &TelegramNotifier{bot: bot, infoChatID: infoChatID, alertChatID: alertChatID}, nil
}

func (t *TelegramNotifier) Notify(ctx context.Context, n adapter.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chatID := t.infoChatID
	if n.Level != adapter.LevelInfo {
		chatID = t.alertChatID
	}
	msg := tgbotapi.NewMessage(chatID, Format(n))
	msg.DisableWebPagePreview = true
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

var levelMarks = map[adapter.NotificationLevel]string{
	adapter.LevelInfo:    "ℹ️",
	adapter.LevelWarning: "⚠️",
	adapter.LevelDanger:  "🚨",
}

// Format renders n as plain text.
func Format(n adapter.Notification) string {
	var b strings.Builder
	if mark, ok := levelMarks[n.Level]; ok {
		b.WriteString(mark)
		b.WriteString(" ")
	}
	b.WriteString(n.Title)
	if n.Text != "" {
		b.WriteString("\n")
		b.WriteString(n.Text)
	}
	for _, f := range n.Fields {
		b.WriteString("\n• ")
		b.WriteString(f.Title)
		b.WriteString(": ")
		b.WriteString(f.Value)
	}
	return b.String()
}
