// Package notify delivers operator messages to chat services.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	domrepo "FXEngine/internal/domain/repository"
	xhttp "FXEngine/pkg/http"
)

const defaultTelegramAPI = "https://api.telegram.org"

type TelegramNotifier struct {
	apiURL string
	token  string
	chatID string
	client *xhttp.Client
}

type TelegramOption func(*TelegramNotifier)

// WithTelegramAPI overrides the bot API root.
func WithTelegramAPI(u string) TelegramOption {
	return func(t *TelegramNotifier) { t.apiURL = strings.TrimRight(u, "/") }
}

func NewTelegramNotifier(token, chatID string, timeout time.Duration, opts ...TelegramOption) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	t := &TelegramNotifier{
		apiURL: defaultTelegramAPI,
		token:  token,
		chatID: chatID,
		client: xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TelegramNotifier) Notify(ctx context.Context, message string) error {
	if t.token == "" || t.chatID == "" {
		return nil
	}
	err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token),
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    map[string]string{"chat_id": t.chatID, "text": message},
	}, nil)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

var _ domrepo.Notifier = (*TelegramNotifier)(nil)
