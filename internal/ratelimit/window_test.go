package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestWindowCeiling(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	w := New(3, clock.now)

	admitted := 0
	for i := 0; i < 3+5; i++ {
		if w.CanCall() {
			w.RecordCall()
			admitted++
		}
		clock.t = clock.t.Add(time.Second)
	}
	assert.Equal(t, 3, admitted)
	assert.Equal(t, 0, w.Remaining())
	assert.Equal(t, 3, w.Max())
}

func TestWindowSlides(t *testing.T) {
	start := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start}
	w := New(2, clock.now)

	w.RecordCall()
	clock.t = start.Add(30 * time.Minute)
	w.RecordCall()
	assert.False(t, w.CanCall())

	// exactly one hour after the first call it no longer counts
	clock.t = start.Add(time.Hour)
	assert.True(t, w.CanCall())
	assert.Equal(t, 1, w.Remaining())

	clock.t = start.Add(90 * time.Minute)
	assert.Equal(t, 2, w.Remaining())
}

func TestWindowRemainingFloor(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	w := New(1, clock.now)
	w.RecordCall()
	w.RecordCall()
	assert.Equal(t, 0, w.Remaining())
}
