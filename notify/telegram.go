package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"truckwatch/config"
)

// Telegram mirrors text alerts into a Telegram chat. It is an optional
// second text channel next to SMS; voice stays on Twilio.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram builds the Telegram channel.
func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	if !cfg.Configured() {
		return nil, fmt.Errorf("missing telegram bot token/chat id")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

// SendText posts the body to the configured chat.
func (t *Telegram) SendText(body string) error {
	msg := tgbotapi.NewMessage(t.chatID, body)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
