package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Slack posts to an incoming webhook.
type Slack struct {
	WebhookURL string
	HTTP       *http.Client
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Send(ctx context.Context, n Notification) error {
	if s.WebhookURL == "" {
		return errors.New("slack webhook not configured")
	}
	return postJSON(ctx, newHTTPClient(s.HTTP), s.WebhookURL, map[string]string{"text": SlackText(n)}, nil)
}

// SlackText renders n in Slack mrkdwn.
func SlackText(n Notification) string {
	text := fmt.Sprintf("*%s*\n%s", n.Title, n.Body)
	if n.URL != "" {
		label := n.URLTitle
		if label == "" {
			label = n.URL
		}
		text += fmt.Sprintf("\n<%s|%s>", n.URL, label)
	}
	return text
}
