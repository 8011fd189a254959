package reservation

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nyc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestNormalize(t *testing.T) {
	loc := nyc(t)
	venue := Venue{MerchantID: "278278", Location: loc}
	dinner := Service{Name: "Dinner", TypeID: 1695}
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, loc)
	probed := time.Date(2026, 10, 20, 19, 0, 0, 0, loc)
	n := Normalizer{LinkBase: "https://example.com/book"}

	block := InventoryBlock{TypeID: 1695, Times: []TimeEntry{
		{ISO: "2026-10-20T23:30:00Z", Label: "ignored", BookingURL: "https://book/1"},
		{Label: "8:15 pm"},
		{ISO: "2026-10-20T21:00:00"},
		{Label: "sometime soon"},
		{},
	}}

	recs := n.Normalize(venue, dinner, 2, probed, block, now)
	require.Len(t, recs, 5)

	assert.Equal(t, SlotKey{MerchantID: "278278", Date: "2026-10-20", Time: "7:30 PM", PartySize: 2, Service: "Dinner"}, recs[0].Key)
	assert.Equal(t, "https://book/1", recs[0].BookingURL)
	assert.True(t, recs[0].TimeKnown)
	assert.Equal(t, 1, recs[0].LeadDays)
	assert.Equal(t, "Tue Oct 20", recs[0].DisplayDate())

	assert.Equal(t, "8:15 PM", recs[1].Key.Time)
	assert.True(t, recs[1].TimeKnown)
	assert.Equal(t, time.Date(2026, 10, 20, 20, 15, 0, 0, loc), recs[1].When)

	assert.Equal(t, "9:00 PM", recs[2].Key.Time, "naive ISO is venue-local")

	assert.Equal(t, "sometime soon", recs[3].Key.Time)
	assert.False(t, recs[3].TimeKnown)
	assert.Equal(t, UnknownTime, recs[4].Key.Time)
	assert.Equal(t, "2026-10-20", recs[4].Key.Date)

	u, err := url.Parse(recs[1].BookingURL)
	require.NoError(t, err)
	assert.Equal(t, "/book", u.Path)
	assert.Equal(t, "278278", u.Query().Get("merchant_id"))
	assert.Equal(t, "1695", u.Query().Get("reservation_type_id"))
	assert.Equal(t, "2", u.Query().Get("party_size"))
	assert.Equal(t, "1792537200000", u.Query().Get("search_ts"))
}

func TestNormalizeKeepsKeySeparatorOutOfLabels(t *testing.T) {
	loc := nyc(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, loc)
	block := InventoryBlock{TypeID: 1695, Times: []TimeEntry{{Label: "bar | patio"}}}

	recs := Normalizer{}.Normalize(Venue{MerchantID: "278278", Location: loc}, Service{Name: "Dinner", TypeID: 1695}, 2, now, block, now)
	require.Len(t, recs, 1)
	assert.Equal(t, "bar / patio", recs[0].Key.Time)

	back, err := ParseSlotKey(recs[0].Key.String())
	require.NoError(t, err)
	assert.Equal(t, recs[0].Key, back)
}

func TestNormalizeIgnoresOtherTypes(t *testing.T) {
	loc := nyc(t)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, loc)
	block := InventoryBlock{TypeID: 1862, Times: []TimeEntry{{Label: "12:00 PM"}}}

	recs := Normalizer{}.Normalize(Venue{MerchantID: "1", Location: loc}, Service{Name: "Dinner", TypeID: 1695}, 2, now, block, now)
	assert.Empty(t, recs)
}

func TestLeadDays(t *testing.T) {
	loc := nyc(t)
	now := time.Date(2026, 10, 19, 23, 30, 0, 0, loc)

	assert.Equal(t, 0, LeadDays(now, time.Date(2026, 10, 19, 8, 0, 0, 0, loc), loc))
	assert.Equal(t, 1, LeadDays(now, time.Date(2026, 10, 20, 0, 15, 0, 0, loc), loc))
	assert.Equal(t, 5, LeadDays(now, time.Date(2026, 10, 24, 19, 0, 0, 0, loc), loc))
	assert.Equal(t, 0, LeadDays(now, time.Date(2026, 10, 18, 19, 0, 0, 0, loc), loc), "past dates floor at zero")
	// across the DST change on Nov 1
	assert.Equal(t, 14, LeadDays(now, time.Date(2026, 11, 2, 19, 0, 0, 0, loc), loc))
}
