package state

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

// parseStoredKey accepts the current key format and the two older ones:
//
//	Mon Jan 15|7:30 PM|2|Dinner              (seen.json)
//	VIP|278278|Mon Jan 15|7:30 PM|2|Dinner   (vip_<merchant>.json)
//
// Older keys carry a display date without a year; the year is the one that
// puts the date closest to now.
func parseStoredKey(s, defaultMerchant string, now time.Time) (k reservation.SlotKey, migrated bool, err error) {
	parts := strings.Split(s, "|")
	switch {
	case len(parts) == 5:
		k, err = reservation.ParseSlotKey(s)
		return k, false, err
	case len(parts) == 4:
		k, err = legacyKey(defaultMerchant, parts, now)
		return k, true, err
	case len(parts) == 6 && parts[0] == "VIP":
		k, err = legacyKey(parts[1], parts[2:], now)
		return k, true, err
	}
	return reservation.SlotKey{}, false, fmt.Errorf("unrecognized slot key %q", s)
}

func legacyKey(merchant string, parts []string, now time.Time) (reservation.SlotKey, error) {
	party, err := strconv.Atoi(parts[2])
	if err != nil {
		return reservation.SlotKey{}, fmt.Errorf("legacy key party size %q: %w", parts[2], err)
	}
	date, err := inferYear(parts[0], now)
	if err != nil {
		return reservation.SlotKey{}, err
	}
	return reservation.SlotKey{
		MerchantID: merchant,
		Date:       date.Format(reservation.DateLayout),
		Time:       parts[1],
		PartySize:  party,
		Service:    parts[3],
	}, nil
}

func inferYear(display string, now time.Time) (time.Time, error) {
	best := time.Time{}
	for _, y := range []int{now.Year() - 1, now.Year(), now.Year() + 1} {
		t, err := time.Parse(reservation.DisplayDateLayout+" 2006", display+" "+strconv.Itoa(y))
		if err != nil {
			return time.Time{}, fmt.Errorf("legacy key date %q: %w", display, err)
		}
		if best.IsZero() || absDuration(t.Sub(now)) < absDuration(best.Sub(now)) {
			best = t
		}
	}
	return best, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
