package wisely

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

const inventoryJSON = `{
  "types": [
    {
      "reservation_type_id": 1695,
      "reservation_type_name": "Dinner",
      "times": [
        {"time": "2026-10-20T23:30:00Z", "label": "7:30 PM", "booking_url": "https://book/1"},
        {"display_time": "7:45 PM", "reserve_url": "https://book/2"},
        {}
      ]
    },
    {"reservation_type_id": 1862, "reservation_type_name": "Lunch", "times": []}
  ]
}`

func TestInventory(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = io.WriteString(w, inventoryJSON)
	}))
	defer srv.Close()

	c := New(time.Second, WithBaseURL(srv.URL))
	at := time.Date(2026, 10, 20, 23, 0, 0, 0, time.UTC)
	inv, err := c.Inventory(context.Background(), reservation.ProbeRequest{
		MerchantID: "278278", PartySize: 2, TypeID: 1695, SearchAt: at, Limit: 3,
	})
	require.NoError(t, err)

	q := got.URL.Query()
	assert.Equal(t, "278278", q.Get("merchant_id"))
	assert.Equal(t, "2", q.Get("party_size"))
	assert.Equal(t, "1792537200000", q.Get("search_ts"))
	assert.Equal(t, "1", q.Get("show_reservation_types"))
	assert.Equal(t, "3", q.Get("limit"))
	assert.Equal(t, "1695", q.Get("reservation_type_id"))
	assert.Equal(t, "engage-host-public-widget", got.Header.Get("olo-application-name"))
	assert.Equal(t, widgetOrigin, got.Header.Get("origin"))

	require.Len(t, inv.Blocks, 2)
	dinner, ok := inv.Block(1695)
	require.True(t, ok)
	assert.Equal(t, "Dinner", dinner.TypeName)
	require.Len(t, dinner.Times, 3)
	assert.Equal(t, reservation.TimeEntry{ISO: "2026-10-20T23:30:00Z", Label: "7:30 PM", BookingURL: "https://book/1"}, dinner.Times[0])
	assert.Equal(t, reservation.TimeEntry{Label: "7:45 PM", BookingURL: "https://book/2"}, dinner.Times[1])
	assert.Equal(t, reservation.TimeEntry{}, dinner.Times[2])

	_, ok = inv.Block(9999)
	assert.False(t, ok)
}

func TestInventoryOmitsZeroTypeID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["reservation_type_id"]
		assert.False(t, present)
		_, _ = io.WriteString(w, `{"types":[]}`)
	}))
	defer srv.Close()

	inv, err := New(time.Second, WithBaseURL(srv.URL)).Inventory(context.Background(), reservation.ProbeRequest{MerchantID: "1", PartySize: 2, SearchAt: time.Now()})
	require.NoError(t, err)
	assert.Empty(t, inv.Blocks)
}

func TestInventoryErrors(t *testing.T) {
	status := http.StatusServiceUnavailable
	body := "down"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()
	c := New(time.Second, WithBaseURL(srv.URL))
	req := reservation.ProbeRequest{MerchantID: "1", PartySize: 2, SearchAt: time.Now()}

	_, err := c.Inventory(context.Background(), req)
	assert.ErrorContains(t, err, "http 503")

	status, body = http.StatusOK, "<html>"
	_, err = c.Inventory(context.Background(), req)
	assert.ErrorContains(t, err, "parse")
}

func TestInventoryBodyTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"types":[],"pad":"`+strings.Repeat("x", maxBody)+`"}`)
	}))
	defer srv.Close()

	_, err := New(time.Second, WithBaseURL(srv.URL)).Inventory(context.Background(), reservation.ProbeRequest{MerchantID: "1", SearchAt: time.Now()})
	assert.ErrorContains(t, err, "exceeds")
}

func TestInventoryTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	_, err := New(50*time.Millisecond, WithBaseURL(srv.URL)).Inventory(context.Background(), reservation.ProbeRequest{MerchantID: "1", SearchAt: time.Now()})
	assert.Error(t, err)
}
