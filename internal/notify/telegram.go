package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ErrTelegramDisabled возвращается, если бот не настроен.
var ErrTelegramDisabled = errors.New("telegram not configured")

// Telegram отправляет служебные оповещения администраторам в чат.
type Telegram struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram авторизует бота по токену.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

// NewTelegramWithEndpoint авторизует бота через произвольный адрес Bot API.
func NewTelegramWithEndpoint(token, endpoint string, chatID int64) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{api: api, chatID: chatID}, nil
}

// Send публикует текст в чат администраторов.
func (t *Telegram) Send(ctx context.Context, text string) error {
	if t == nil || t.api == nil || t.chatID == 0 {
		return ErrTelegramDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
