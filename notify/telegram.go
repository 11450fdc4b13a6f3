package notify

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// NewTelegram sends plain-text messages to one chat. apiEndpoint may be empty for
// the public Bot API. Construction calls getMe to validate the token.
func NewTelegram(token, chatID, apiEndpoint string, timeout time.Duration) (*Channel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat id '%s': %w", chatID, err)
	}
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, apiEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}

	return newChannel("telegram", func(msg Message) error {
		_, err := bot.Send(tgbotapi.NewMessage(id, msg.Title+"\n"+msg.Body))
		return err
	}), nil
}
