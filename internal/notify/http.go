package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

func newHTTPClient(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: defaultTimeout}
}

func postForm(ctx context.Context, hc *http.Client, rawURL string, form url.Values, header http.Header) error {
	return post(ctx, hc, rawURL, "application/x-www-form-urlencoded", []byte(form.Encode()), header)
}

func postJSON(ctx context.Context, hc *http.Client, rawURL string, v any, header http.Header) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return post(ctx, hc, rawURL, "application/json", b, header)
}

func post(ctx context.Context, hc *http.Client, rawURL, contentType string, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("content-type", contentType)

	res, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("http %d: %s", res.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
