// Package gist keeps the state blob as one file of a GitHub gist.
package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jacobschulman/stonewatch/internal/internaltypes"
)

const defaultAPI = "https://api.github.com"

type Store struct {
	hc       *http.Client
	api      string
	id       string
	token    string
	filename string
}

func New(id, token, filename string) *Store {
	return &Store{
		hc:       &http.Client{Timeout: 15 * time.Second},
		api:      defaultAPI,
		id:       id,
		token:    token,
		filename: filename,
	}
}

// WithAPI points the store at another GitHub API root (tests, GHES).
func (s *Store) WithAPI(api string) *Store {
	s.api = strings.TrimRight(api, "/")
	return s
}

func (s *Store) Name() string { return "gist" }

type gistFile struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	RawURL    string `json:"raw_url"`
}

func (s *Store) Get(ctx context.Context) ([]byte, error) {
	status, body, err := s.do(ctx, http.MethodGet, s.gistURL(), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("gist get http %d", status)
	}
	var res struct {
		Files map[string]gistFile `json:"files"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("gist parse: %w", err)
	}
	f, ok := res.Files[s.filename]
	if !ok {
		return nil, internaltypes.ErrNotFound
	}
	if !f.Truncated {
		return []byte(f.Content), nil
	}
	// contents over 1MB are only reachable through raw_url
	status, body, err = s.do(ctx, http.MethodGet, f.RawURL, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("gist raw http %d", status)
	}
	return body, nil
}

func (s *Store) Put(ctx context.Context, data []byte) error {
	payload := map[string]any{
		"files": map[string]any{
			s.filename: map[string]string{"content": string(data)},
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	status, body, err := s.do(ctx, http.MethodPatch, s.gistURL(), b)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("gist patch http %d: %s", status, strings.TrimSpace(string(body)))
	}
	return nil
}

func (s *Store) gistURL() string { return s.api + "/gists/" + s.id }

func (s *Store) do(ctx context.Context, method, rawURL string, body []byte) (int, []byte, error) {
	if s.id == "" || s.token == "" {
		return 0, nil, errors.New("gist id/token not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Add("authorization", "token "+s.token)
	req.Header.Add("accept", "application/vnd.github+json")
	req.Header.Add("user-agent", "stonewatch-state/1.0")
	if body != nil {
		req.Header.Add("content-type", "application/json")
	}
	res, err := s.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}
