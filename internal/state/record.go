package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

const currentVersion = 2

// record is one stored value in any schema version. Every version upgrades
// to the current SlotState; upgrades happen only while decoding.
type record interface {
	version() int
	upgrade(loc *time.Location) SlotState
}

// legacyTimestamp is the oldest seen.json value: the bare epoch second at
// which the slot was first notified.
type legacyTimestamp int64

func (legacyTimestamp) version() int { return 0 }

func (r legacyTimestamp) upgrade(loc *time.Location) SlotState {
	ts := int64(r)
	return SlotState{
		Present:          true,
		LastSeen:         ts,
		LastNotified:     ts,
		LastNotifiedDate: localDate(ts, loc),
	}
}

// recordV1 is the VIP watcher's {"last_notified": ts} object.
type recordV1 struct {
	LastNotified int64 `json:"last_notified"`
}

func (recordV1) version() int { return 1 }

func (r recordV1) upgrade(loc *time.Location) SlotState {
	return legacyTimestamp(r.LastNotified).upgrade(loc)
}

// recordV2 is the current schema.
type recordV2 struct {
	V                int    `json:"v"`
	Present          bool   `json:"present"`
	LastSeen         int64  `json:"last_seen"`
	LastNotified     int64  `json:"last_notified"`
	LastMilestone    *int   `json:"milestone,omitempty"`
	LastNotifiedDate string `json:"notified_date,omitempty"`
	NotifiedOnDate   int    `json:"notified_count,omitempty"`
}

func (recordV2) version() int { return currentVersion }

func (r recordV2) upgrade(*time.Location) SlotState {
	return SlotState{
		Present:          r.Present,
		LastSeen:         r.LastSeen,
		LastNotified:     r.LastNotified,
		LastMilestone:    r.LastMilestone,
		LastNotifiedDate: r.LastNotifiedDate,
		NotifiedOnDate:   r.NotifiedOnDate,
	}
}

func fromState(s SlotState) recordV2 {
	return recordV2{
		V:                currentVersion,
		Present:          s.Present,
		LastSeen:         s.LastSeen,
		LastNotified:     s.LastNotified,
		LastMilestone:    s.LastMilestone,
		LastNotifiedDate: s.LastNotifiedDate,
		NotifiedOnDate:   s.NotifiedOnDate,
	}
}

func decodeRecord(raw json.RawMessage) (record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty record")
	}
	if raw[0] != '{' {
		var ts float64
		if err := json.Unmarshal(raw, &ts); err != nil {
			return nil, fmt.Errorf("legacy record: %w", err)
		}
		return legacyTimestamp(int64(ts)), nil
	}
	var probe struct {
		V int `json:"v"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	if probe.V >= 2 {
		var r recordV2
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, err
		}
		return r, nil
	}
	var r recordV1
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return r, nil
}

func localDate(ts int64, loc *time.Location) string {
	if ts == 0 {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(ts, 0).In(loc).Format(reservation.DateLayout)
}
