package notify

import (
	"context"

	"github.com/rs/zerolog"

	"venue-membership/internal/domain/ports/adapter"
)

var _ adapter.Notifier = (*LogNotifier)(nil)

// LogNotifier writes notifications to the service log. It is the delivery
// channel for local runs without a Telegram bot.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "LogNotifier").Logger()
	return &LogNotifier{logger: &l}
}

func (n *LogNotifier) Notify(ctx context.Context, msg adapter.Notification) error {
	var ev *zerolog.Event
	switch msg.Level {
	case adapter.LevelDanger:
		ev = n.logger.Error()
	case adapter.LevelWarning:
		ev = n.logger.Warn()
	default:
		ev = n.logger.Info()
	}
	dict := zerolog.Dict()
	for _, f := range msg.Fields {
		dict = dict.Str(f.Title, f.Value)
	}
	ev.Str("notification_id", msg.ID).
		Str("notification_level", string(msg.Level)).
		Str("text", msg.Text).
		Dict("fields", dict).
		Msg(msg.Title)
	return nil
}
