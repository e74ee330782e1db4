package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"spot-price-alerts/internal/commands"
	"spot-price-alerts/internal/types"
	"spot-price-alerts/lib/helpers"
	"spot-price-alerts/lib/translation"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return &Bot{
		Bot:    bot,
		Config: c,
	}, nil
}

// AttachStatus sets the provider used by /status and /alerts.
func (b *Bot) AttachStatus(p StatusProvider) {
	b.status = p
}

// GetUpdatesChannel gets new updates updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.Bot.GetUpdatesChan(updatesConfig), nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message to chat %d", m.ChatID)
}

// Send delivers an alert to the configured chat.
func (b *Bot) Send(ctx context.Context, event types.AlertEvent) error {
	if b.Config.ChatID == 0 {
		return errors.New("telegram: no chat configured for alerts")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.SendMessage(Message{ChatID: b.Config.ChatID, Text: alertText(event)})
}

func alertText(event types.AlertEvent) string {
	return fmt.Sprintf("🚨 *%s*\n\n%s", helpers.EscapeMarkdownV2(event.Title), helpers.EscapeMarkdownV2(event.Body))
}

// HandleUpdate processes Telegram updates
func (b *Bot) HandleUpdate(u tgbotapi.Update) string {
	text := helpers.EscapeMarkdownV2(translation.Translate("Commands: /status, /alerts, /source"))
	log.Debugf("received command: %s", u.Message.Command())

	switch u.Message.Command() {
	case "source":
		text = commands.CommandSource(b.Config.SourceKind, b.Config.InstrumentID)
	case "status":
		if b.status == nil {
			return helpers.EscapeMarkdownV2(translation.Translate("Alert service is not running"))
		}
		text = commands.CommandStatus(b.status.Status(), time.Now())
	case "alerts":
		if b.status == nil {
			return helpers.EscapeMarkdownV2(translation.Translate("Alert service is not running"))
		}
		text = commands.CommandAlerts(b.status.Status().Config)
	}

	return text
}
