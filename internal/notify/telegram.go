package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// DefaultTelegramAPI is the Bot API root.
const DefaultTelegramAPI = "https://api.telegram.org"

// TelegramSender posts alerts to one chat through the Telegram Bot API.
type TelegramSender struct {
	bot    *tgbotapi.BotAPI
	token  string
	chatID string
}

// NewTelegramSender creates a TelegramSender. An empty apiURL uses
// DefaultTelegramAPI. chatID is a numeric chat ID or an "@channel" name. No
// request is made until the first Send.
func NewTelegramSender(apiURL, token, chatID string) *TelegramSender {
	if apiURL == "" {
		apiURL = DefaultTelegramAPI
	}
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: &http.Client{Timeout: sendTimeout},
		Buffer: 1,
	}
	bot.SetAPIEndpoint(strings.TrimRight(apiURL, "/") + "/bot%s/%s")
	return &TelegramSender{bot: bot, token: token, chatID: chatID}
}

// Send posts the title and message as plain text, since market titles are
// not escaped for Markdown. The Bot API client has no context support; the
// HTTP client timeout bounds the call instead.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	text := title + "\n" + message
	var msg tgbotapi.MessageConfig
	if id, err := strconv.ParseInt(t.chatID, 10, 64); err == nil {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(t.chatID, text)
	}
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		// Transport errors carry the request URL, which embeds the token.
		return fmt.Errorf("telegram: %s", strings.ReplaceAll(err.Error(), t.token, "***"))
	}
	return nil
}

func (t *TelegramSender) Name() string { return "telegram" }
