package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// TelegramNotifier delivers messages through the Telegram Bot API. The
// requester address is the chat id.
type TelegramNotifier struct {
	client  *resty.Client
	baseURL string
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// NewTelegramNotifier creates a Telegram-backed notifier.
func NewTelegramNotifier(token string, timeout time.Duration) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)

	return &TelegramNotifier{
		client:  client,
		baseURL: "https://api.telegram.org/bot" + token,
	}, nil
}

// Notify sends one message to the chat identified by requester.
func (n *TelegramNotifier) Notify(ctx context.Context, requester, message string) error {
	var result telegramResponse

	resp, err := n.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": requester,
			"text":    message,
		}).
		SetResult(&result).
		Post(n.baseURL + "/sendMessage")
	if err != nil {
		return fmt.Errorf("telegram send failed: %w", err)
	}

	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram send rejected: status=%d description=%s",
			resp.StatusCode(), result.Description)
	}

	return nil
}
