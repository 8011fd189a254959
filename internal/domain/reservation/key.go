package reservation

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	DateLayout        = "2006-01-02"
	DisplayTimeLayout = "3:04 PM"
	DisplayDateLayout = "Mon Jan 02"

	// UnknownTime marks a slot whose time could not be resolved.
	UnknownTime = "(time?)"
)

// SlotKey identifies one bookable instance. Party size is part of the
// identity because availability is size-specific.
type SlotKey struct {
	MerchantID string
	Date       string // YYYY-MM-DD, venue local
	Time       string // display time, e.g. "7:30 PM"
	PartySize  int
	Service    string
}

func (k SlotKey) String() string {
	return strings.Join([]string{k.MerchantID, k.Date, k.Time, strconv.Itoa(k.PartySize), k.Service}, "|")
}

// ParseSlotKey is the inverse of SlotKey.String.
func ParseSlotKey(s string) (SlotKey, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 5 {
		return SlotKey{}, fmt.Errorf("slot key %q: want 5 fields, got %d", s, len(parts))
	}
	party, err := strconv.Atoi(parts[3])
	if err != nil {
		return SlotKey{}, fmt.Errorf("slot key %q: party size: %w", s, err)
	}
	return SlotKey{
		MerchantID: parts[0],
		Date:       parts[1],
		Time:       parts[2],
		PartySize:  party,
		Service:    parts[4],
	}, nil
}
