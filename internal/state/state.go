// Package state holds the per-slot notification history that survives
// between runs, and the codec that reads and writes it as one JSON blob.
//
// A run is a single read-modify-write transaction against the blob: Load
// before the scan, Save after every decision. There is no locking; callers
// must not run two scans against the same blob at once.
package state

import (
	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

// SlotState is the persisted history of one SlotKey.
type SlotState struct {
	// Present reports whether the slot was on offer in the most recent scan.
	Present          bool
	LastSeen         int64 // epoch seconds
	LastNotified     int64 // epoch seconds, 0 if never notified
	LastMilestone    *int
	LastNotifiedDate string // venue-local YYYY-MM-DD of LastNotified
	// NotifiedOnDate counts notifications sent on LastNotifiedDate. Zero with
	// a date set means one (older records did not keep the count).
	NotifiedOnDate int
}

// Notified reports whether a notification was ever sent for the slot.
func (s SlotState) Notified() bool { return s.LastNotified != 0 }

// SentOnDate returns how many notifications the slot sent on the local date.
func (s SlotState) SentOnDate(date string) int {
	if s.LastNotifiedDate == "" || s.LastNotifiedDate != date {
		return 0
	}
	return max(s.NotifiedOnDate, 1)
}

// Snapshot is the working copy of all slot states for one run.
type Snapshot map[reservation.SlotKey]SlotState

// Clone returns a copy that shares no mutable state with s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		if v.LastMilestone != nil {
			m := *v.LastMilestone
			v.LastMilestone = &m
		}
		out[k] = v
	}
	return out
}
