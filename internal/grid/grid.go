// Package grid enumerates the local timestamps probed for one day and
// service window.
package grid

import (
	"iter"
	"time"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

// Times yields local timestamps from start to end inclusive on day, advancing
// by step. The sequence is restartable: each range over it starts again at
// start. A non-positive step or an inverted window yields nothing.
func Times(day time.Time, w reservation.Window, step time.Duration, loc *time.Location) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if step <= 0 {
			return
		}
		start := w.Start.On(day, loc)
		end := w.End.On(day, loc)
		for t := start; !t.After(end); t = t.Add(step) {
			if !yield(t) {
				return
			}
		}
	}
}

// Count returns how many timestamps Times yields.
func Count(w reservation.Window, step time.Duration) int {
	if step <= 0 {
		return 0
	}
	span := time.Duration(w.End.Minutes()-w.Start.Minutes()) * time.Minute
	if span < 0 {
		return 0
	}
	return int(span/step) + 1
}

// Days returns the local midnights of today and the following n-1 days.
func Days(now time.Time, n int, loc *time.Location) []time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, time.Date(y, m, d+i, 0, 0, 0, 0, loc))
	}
	return out
}
