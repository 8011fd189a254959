// Package vip handles user-pinned watch windows: a specific date, a time
// range and the party sizes to look for.
package vip

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

// Window is one VIP watch window on a venue-local date.
type Window struct {
	Date       time.Time // local midnight
	Range      reservation.Window
	PartySizes []int
	Raw        string
}

func (w Window) String() string {
	return fmt.Sprintf("%s %s (party: %v)", w.Date.Format(reservation.DateLayout), w.Range, w.PartySizes)
}

// End is the local time the window closes.
func (w Window) End() time.Time { return w.Range.End.On(w.Date, w.Date.Location()) }

// Active reports whether the window has not yet ended.
func (w Window) Active(now time.Time) bool { return !now.After(w.End()) }

// ParseWindows parses newline-separated "YYYY-MM-DD,HH:MM,HH:MM,size[,size...]"
// lines. Blank lines and lines starting with '#' are ignored. Invalid lines
// are returned as errors alongside the valid windows.
func ParseWindows(raw string, loc *time.Location) ([]Window, []error) {
	var out []Window
	var errs []error
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		w, err := parseLine(line, loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("vip window %q: %w", line, err))
			continue
		}
		out = append(out, w)
	}
	return out, errs
}

func parseLine(line string, loc *time.Location) (Window, error) {
	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 4 {
		return Window{}, fmt.Errorf("need date,start,end,party_sizes")
	}
	date, err := time.ParseInLocation(reservation.DateLayout, parts[0], loc)
	if err != nil {
		return Window{}, fmt.Errorf("date: %w", err)
	}
	rng, err := reservation.ParseWindow(parts[1] + "-" + parts[2])
	if err != nil {
		return Window{}, err
	}
	sizes := make([]int, 0, len(parts)-3)
	for _, p := range parts[3:] {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return Window{}, fmt.Errorf("invalid party size %q", p)
		}
		sizes = append(sizes, n)
	}
	return Window{Date: date, Range: rng, PartySizes: sizes, Raw: line}, nil
}

// Classify returns the service whose window contains t's local time.
func Classify(t time.Time, services []reservation.Service) (reservation.Service, bool) {
	for _, s := range services {
		if s.Window.Contains(t) {
			return s, true
		}
	}
	return reservation.Service{}, false
}
