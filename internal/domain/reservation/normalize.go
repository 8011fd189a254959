package reservation

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SlotRecord is one normalized observation from a single scan.
type SlotRecord struct {
	Key        SlotKey
	When       time.Time // venue local
	TimeKnown  bool
	BookingURL string
	LeadDays   int
	SearchAt   time.Time
}

// DisplayDate renders the slot's local date, e.g. "Mon Oct 19".
func (r SlotRecord) DisplayDate() string { return r.When.Format(DisplayDateLayout) }

// Normalizer turns raw inventory blocks into SlotRecords.
type Normalizer struct {
	// LinkBase is used to build a booking link when upstream sends none.
	LinkBase string
}

// Normalize converts every time entry in block into a SlotRecord. probed is
// the grid timestamp the query was issued for. Blocks for a different
// reservation type yield nothing.
func (n Normalizer) Normalize(v Venue, svc Service, party int, probed time.Time, block InventoryBlock, now time.Time) []SlotRecord {
	if block.TypeID != svc.TypeID {
		return nil
	}
	loc := v.Location
	if loc == nil {
		loc = probed.Location()
	}
	probed = probed.In(loc)

	out := make([]SlotRecord, 0, len(block.Times))
	for _, e := range block.Times {
		when, display, known := resolveTime(e, probed, loc)
		link := strings.TrimSpace(e.BookingURL)
		if link == "" {
			link = n.fallbackURL(v.MerchantID, svc.TypeID, party, probed)
		}
		out = append(out, SlotRecord{
			Key: SlotKey{
				MerchantID: v.MerchantID,
				Date:       when.Format(DateLayout),
				Time:       KeyField(display),
				PartySize:  party,
				Service:    KeyField(svc.Name),
			},
			When:       when,
			TimeKnown:  known,
			BookingURL: link,
			LeadDays:   LeadDays(now, when, loc),
			SearchAt:   probed,
		})
	}
	return out
}

// KeyField keeps the SlotKey separator out of free-text fields.
func KeyField(s string) string { return strings.ReplaceAll(s, "|", "/") }

// resolveTime prefers the ISO timestamp, then the display label on the
// probed date, then the probed timestamp itself marked as unknown.
func resolveTime(e TimeEntry, probed time.Time, loc *time.Location) (time.Time, string, bool) {
	if iso := strings.TrimSpace(e.ISO); iso != "" {
		if t, ok := parseISO(iso, loc); ok {
			t = t.In(loc)
			return t, t.Format(DisplayTimeLayout), true
		}
	}
	if lbl := strings.TrimSpace(e.Label); lbl != "" {
		if c, ok := parseLabel(lbl); ok {
			y, m, d := probed.Date()
			t := time.Date(y, m, d, c.Hour(), c.Minute(), 0, 0, loc)
			return t, t.Format(DisplayTimeLayout), true
		}
		return probed, lbl, false
	}
	return probed, UnknownTime, false
}

func parseISO(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseLabel(s string) (time.Time, bool) {
	s = strings.ToUpper(s)
	for _, layout := range []string{"3:04 PM", "3:04PM", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (n Normalizer) fallbackURL(merchantID string, typeID, party int, probed time.Time) string {
	q := url.Values{}
	q.Set("merchant_id", merchantID)
	q.Set("reservation_type_id", strconv.Itoa(typeID))
	q.Set("party_size", strconv.Itoa(party))
	q.Set("search_ts", strconv.FormatInt(probed.UnixMilli(), 10))
	return n.LinkBase + "?" + q.Encode()
}

// LeadDays is the number of local calendar days from now until t, never
// negative.
func LeadDays(now, t time.Time, loc *time.Location) int {
	if loc == nil {
		loc = t.Location()
	}
	days := int(civilDay(t.In(loc)).Sub(civilDay(now.In(loc))).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
