package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"spot-price-alerts/internal/alert"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
	// ChatID receives the alert notifications.
	ChatID int64
	// SourceKind and InstrumentID are reported by /source.
	SourceKind   string
	InstrumentID string
}

// StatusProvider exposes the alert service state to the bot commands.
type StatusProvider interface {
	Status() alert.Status
}

// Bot telegram interaction client
type Bot struct {
	Bot    *tgbotapi.BotAPI
	Config BotConfig
	status StatusProvider
}

// Message a telegram message struct
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
}
