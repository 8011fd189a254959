// Package ratelimit bounds probe calls per rolling hour.
package ratelimit

import (
	"sync"
	"time"
)

// Period is the length of the sliding window.
const Period = time.Hour

// Window is a sliding-window call counter. Every query discards timestamps
// older than Period before counting, so bursts across a boundary never exceed
// the ceiling.
type Window struct {
	mu    sync.Mutex
	max   int
	now   func() time.Time
	calls []time.Time
}

// New returns a limiter admitting max calls per rolling hour. now may be nil.
func New(max int, now func() time.Time) *Window {
	if now == nil {
		now = time.Now
	}
	return &Window{max: max, now: now}
}

// CanCall reports whether another call fits in the current window.
func (w *Window) CanCall() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.prune()) < w.max
}

// RecordCall records a call at the current time.
func (w *Window) RecordCall() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.prune(), w.now())
}

// Remaining is the ceiling minus current occupancy, floored at zero.
func (w *Window) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n := w.max - len(w.prune()); n > 0 {
		return n
	}
	return 0
}

func (w *Window) Max() int { return w.max }

func (w *Window) prune() []time.Time {
	cutoff := w.now().Add(-Period)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	w.calls = w.calls[i:]
	return w.calls
}
