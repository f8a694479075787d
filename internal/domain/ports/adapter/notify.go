package adapter

import "context"

type NotificationLevel string

const (
	LevelInfo    NotificationLevel = "info"
	LevelWarning NotificationLevel = "warning"
	LevelDanger  NotificationLevel = "danger"
)

type NotificationField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short,omitempty"`
}

// Notification is an operator-facing message.
type Notification struct {
	ID     string              `json:"id"`
	Title  string              `json:"title"`
	Text   string              `json:"text"`
	Fields []NotificationField `json:"fields,omitempty"`
	Level  NotificationLevel   `json:"level"`
}

// Notifier delivers operator notifications. Implementations must not block
// on slow downstream channels for longer than ctx allows.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
