package reservation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a local wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: hh, Minute: mm}, nil
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

// On returns the clock time on the calendar day of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// Window is a closed local time-of-day interval.
type Window struct {
	Start Clock
	End   Clock
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, fmt.Errorf("invalid window %q (want HH:MM-HH:MM)", s)
	}
	start, err := ParseClock(a)
	if err != nil {
		return Window{}, err
	}
	end, err := ParseClock(b)
	if err != nil {
		return Window{}, err
	}
	if end.Minutes() < start.Minutes() {
		return Window{}, fmt.Errorf("window %q ends before it starts", s)
	}
	return Window{Start: start, End: end}, nil
}

func (w Window) String() string { return w.Start.String() + "-" + w.End.String() }

// Contains reports whether t's local wall-clock time falls inside the window.
func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= w.Start.Minutes() && m <= w.End.Minutes()
}

// Service is a meal period with its own window and reservation type id.
type Service struct {
	Name   string
	TypeID int
	Window Window

	// DailyCap limits steady-state notifications per venue and local day. 0 disables.
	DailyCap int
	// NotifyMaxLeadDays is the lead time beyond which steady-state renotifies stop. 0 disables.
	NotifyMaxLeadDays int
	// MaxLeadDays is the hard far-future ceiling; slots beyond it are ignored. 0 disables.
	MaxLeadDays int
}

// Venue is one merchant on the inventory platform.
type Venue struct {
	MerchantID string
	Name       string
	Location   *time.Location
}

func (v Venue) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return "merchant " + v.MerchantID
}
