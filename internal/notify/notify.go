// ABOUTME: Reminder delivery: Telegram when configured, structured log otherwise
// ABOUTME: The scheduler hands each due reminder to a Notifier
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/logging"
)

// Reminder is one due reminder for one user
type Reminder struct {
	UserID string
	// Kind is core.ReminderMeditation or core.ReminderJournal
	Kind string
	// At is the scheduled local clock time, HH:MM
	At string
}

// Notifier delivers reminders
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// Text renders the reminder message
func Text(r Reminder) string {
	switch r.Kind {
	case core.ReminderMeditation:
		return "🧘 <b>Time to sit.</b>\nFind your seat and arrive in the body."
	case core.ReminderJournal:
		return "📝 <b>How did today's sit go?</b>\nA few lines now keeps the thread of your practice."
	default:
		return fmt.Sprintf("🔔 Reminder: %s", r.Kind)
	}
}

// LogNotifier writes reminders to the log
type LogNotifier struct {
	log *logging.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(log *logging.Logger) *LogNotifier {
	if log == nil {
		log = logging.Nop()
	}
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Notify(_ context.Context, r Reminder) error {
	n.log.Info("reminder due", "user", r.UserID, "kind", r.Kind, "at", r.At)
	return nil
}

// Sender is the slice of the bot API the notifier uses
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier sends reminders to one chat
type TelegramNotifier struct {
	sender Sender
	chatID int64
	log    *logging.Logger
}

// NewTelegram connects to the bot API with token
func NewTelegram(token string, chatID int64, log *logging.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	n := NewTelegramWithSender(bot, chatID, log)
	n.log.Info("telegram notifier ready", "bot", bot.Self.UserName)
	return n, nil
}

// NewTelegramWithSender builds a notifier over an existing sender
func NewTelegramWithSender(sender Sender, chatID int64, log *logging.Logger) *TelegramNotifier {
	if log == nil {
		log = logging.Nop()
	}
	return &TelegramNotifier{sender: sender, chatID: chatID, log: log.Named("telegram")}
}

func (n *TelegramNotifier) Notify(ctx context.Context, r Reminder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, Text(r))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("telegram send %s reminder: %w", r.Kind, err)
	}
	n.log.Debug("reminder sent", "user", r.UserID, "kind", r.Kind)
	return nil
}
