package notify

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
)

const pushoverURL = "https://api.pushover.net/1/messages.json"

// Pushover sends push notifications through the Pushover messages API.
type Pushover struct {
	Token    string
	User     string
	Sound    string
	Priority int

	// Endpoint overrides the API URL (tests).
	Endpoint string
	HTTP     *http.Client
}

func (p *Pushover) Name() string { return "pushover" }

func (p *Pushover) Send(ctx context.Context, n Notification) error {
	if p.Token == "" || p.User == "" {
		return errors.New("pushover token/user not configured")
	}
	form := url.Values{}
	form.Set("token", p.Token)
	form.Set("user", p.User)
	form.Set("title", n.Title)
	form.Set("message", n.Body)
	form.Set("priority", strconv.Itoa(p.Priority))
	if p.Sound != "" {
		form.Set("sound", p.Sound)
	}
	if n.URL != "" {
		form.Set("url", n.URL)
		if n.URLTitle != "" {
			form.Set("url_title", n.URLTitle)
		}
	}
	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = pushoverURL
	}
	return postForm(ctx, newHTTPClient(p.HTTP), endpoint, form, nil)
}
