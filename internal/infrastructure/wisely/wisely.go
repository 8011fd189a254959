// Package wisely queries the Wisely reservation inventory endpoint used by
// the venue's public booking widget.
package wisely

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

const (
	DefaultBaseURL = "https://loyaltyapi.wisely.io/v2/web/reservations/inventory"
	defaultUA      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	widgetOrigin   = "https://reservations.getwisely.com"

	// maxBody bounds one inventory response.
	maxBody = 1 << 20
)

// Client is a minimal inventory client. Every call carries its own timeout.
type Client struct {
	hc   *http.Client
	base string
	ua   string
}

type Option func(*Client)

func WithBaseURL(u string) Option { return func(c *Client) { c.base = u } }
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.hc = h } }

func New(timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		hc:   &http.Client{Timeout: timeout},
		base: DefaultBaseURL,
		ua:   defaultUA,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type inventoryResponse struct {
	Types []struct {
		ReservationTypeID   int    `json:"reservation_type_id"`
		ReservationTypeName string `json:"reservation_type_name"`
		Times               []struct {
			Time        string `json:"time"`
			Label       string `json:"label"`
			DisplayTime string `json:"display_time"`
			BookingURL  string `json:"booking_url"`
			ReserveURL  string `json:"reserve_url"`
		} `json:"times"`
	} `json:"types"`
}

// Inventory implements reservation.Prober.
func (c *Client) Inventory(ctx context.Context, req reservation.ProbeRequest) (reservation.Inventory, error) {
	params := map[string]string{
		"merchant_id":            req.MerchantID,
		"party_size":             strconv.Itoa(req.PartySize),
		"search_ts":              strconv.FormatInt(req.SearchAt.UnixMilli(), 10),
		"show_reservation_types": "1",
		"limit":                  strconv.Itoa(req.Limit),
	}
	if req.TypeID != 0 {
		params["reservation_type_id"] = strconv.Itoa(req.TypeID)
	}
	status, body, err := c.do(ctx, params)
	if err != nil {
		return reservation.Inventory{}, err
	}
	if status < 200 || status >= 300 {
		return reservation.Inventory{}, fmt.Errorf("inventory http %d", status)
	}
	var res inventoryResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return reservation.Inventory{}, fmt.Errorf("inventory parse: %w", err)
	}

	inv := reservation.Inventory{Blocks: make([]reservation.InventoryBlock, 0, len(res.Types))}
	for _, t := range res.Types {
		b := reservation.InventoryBlock{TypeID: t.ReservationTypeID, TypeName: t.ReservationTypeName}
		for _, e := range t.Times {
			label := e.Label
			if label == "" {
				label = e.DisplayTime
			}
			link := e.BookingURL
			if link == "" {
				link = e.ReserveURL
			}
			b.Times = append(b.Times, reservation.TimeEntry{ISO: e.Time, Label: label, BookingURL: link})
		}
		inv.Blocks = append(inv.Blocks, b)
	}
	return inv, nil
}

func (c *Client) do(ctx context.Context, query map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base, nil)
	if err != nil {
		return 0, nil, err
	}
	// the public booking widget sends these
	req.Header.Add("accept", "application/json")
	req.Header.Add("user-agent", c.ua)
	req.Header.Add("olo-application-name", "engage-host-public-widget")
	req.Header.Add("origin", widgetOrigin)
	req.Header.Add("referer", widgetOrigin+"/")

	q := req.URL.Query()
	for k, v := range query {
		q.Add(k, v)
	}
	req.URL.RawQuery = q.Encode()

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, maxBody+1))
	if err != nil {
		return res.StatusCode, nil, err
	}
	if len(b) > maxBody {
		return res.StatusCode, nil, fmt.Errorf("inventory response exceeds %d bytes", maxBody)
	}
	return res.StatusCode, b, nil
}
