package notify

import (
	"context"
	"fmt"
	"time"

	domrepo "FXEngine/internal/domain/repository"
	xhttp "FXEngine/pkg/http"
)

// DiscordNotifier posts an embed to a webhook.
type DiscordNotifier struct {
	webhookURL string
	title      string
	color      int
	client     *xhttp.Client
	now        func() time.Time
}

func NewDiscordNotifier(webhookURL, title string, timeout time.Duration) *DiscordNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if title == "" {
		title = "FXEngine"
	}
	return &DiscordNotifier{
		webhookURL: webhookURL,
		title:      title,
		color:      0x2e86de,
		client:     xhttp.NewClient(xhttp.WithTimeout(timeout)),
		now:        time.Now,
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

func (d *DiscordNotifier) Notify(ctx context.Context, message string) error {
	if d.webhookURL == "" {
		return nil
	}
	err := d.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    d.webhookURL,
		Body: discordPayload{Embeds: []discordEmbed{{
			Title:       d.title,
			Description: message,
			Color:       d.color,
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}}},
	}, nil)
	if err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

var _ domrepo.Notifier = (*DiscordNotifier)(nil)
