package notify

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// Mastodon publishes each notification as a status on a Mastodon server.
type Mastodon struct {
	Server     string // e.g. https://mastodon.social
	Token      string
	Visibility string // public, unlisted, private; empty uses the account default
	HTTP       *http.Client
}

func (m *Mastodon) Name() string { return "mastodon" }

func (m *Mastodon) Send(ctx context.Context, n Notification) error {
	if m.Server == "" || m.Token == "" {
		return errors.New("mastodon server/token not configured")
	}
	status := n.Title + "\n" + n.Body
	if n.URL != "" {
		status += "\n" + n.URL
	}
	form := url.Values{}
	form.Set("status", status)
	if m.Visibility != "" {
		form.Set("visibility", m.Visibility)
	}
	h := http.Header{}
	h.Set("authorization", "Bearer "+m.Token)
	endpoint := strings.TrimRight(m.Server, "/") + "/api/v1/statuses"
	return postForm(ctx, newHTTPClient(m.HTTP), endpoint, form, h)
}
