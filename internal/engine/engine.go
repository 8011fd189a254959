// Package engine decides, per observed slot, whether a notification fires
// and what history to keep for it.
//
// Per key the state is derived from the stored record: never seen (no
// record), present, or absent (record with Present=false). Reappearances and
// first sightings always notify; everything else passes through the daily
// cap, the lead-time window, milestone crossings and the renotify cooldown,
// in that order. The engine is purely computational and not safe for
// concurrent use.
package engine

import (
	"time"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
	"github.com/jacobschulman/stonewatch/internal/state"
)

type Reason string

const (
	ReasonFarFuture       Reason = "far_future"
	ReasonDuplicate       Reason = "duplicate"
	ReasonFirstSighting   Reason = "first_sighting"
	ReasonReappeared      Reason = "reappeared"
	ReasonDailyCap        Reason = "daily_cap"
	ReasonOutsideWindow   Reason = "outside_window"
	ReasonMilestone       Reason = "milestone"
	ReasonCooldownElapsed Reason = "cooldown_elapsed"
	ReasonCoolingDown     Reason = "cooling_down"
)

type Decision struct {
	Notify    bool
	Reason    Reason
	Milestone *int
}

type dayKey struct {
	merchant string
	service  string
	date     string
}

// Engine evaluates one run's observations against a snapshot it owns for
// the duration of the run.
type Engine struct {
	policy   Policy
	snap     state.Snapshot
	now      time.Time
	touched  map[reservation.SlotKey]struct{}
	sent     map[dayKey]int
	accepted []reservation.SlotRecord
}

// New takes ownership of snap. now is the single timestamp used for every
// decision in the run.
func New(p Policy, snap state.Snapshot, now time.Time) *Engine {
	if snap == nil {
		snap = state.Snapshot{}
	}
	e := &Engine{
		policy:  p,
		snap:    snap,
		now:     now,
		touched: make(map[reservation.SlotKey]struct{}),
		sent:    make(map[dayKey]int),
	}
	for k, st := range snap {
		if st.LastNotifiedDate != "" {
			e.sent[dayKey{k.MerchantID, k.Service, st.LastNotifiedDate}] += st.SentOnDate(st.LastNotifiedDate)
		}
	}
	return e
}

// Evaluate applies the decision rules to one observation and updates the
// snapshot. Notified records are collected for Accepted.
func (e *Engine) Evaluate(rec reservation.SlotRecord) Decision {
	svc := e.policy.Services[rec.Key.Service]
	if svc.MaxLeadDays > 0 && rec.LeadDays > svc.MaxLeadDays {
		return Decision{Reason: ReasonFarFuture}
	}
	if _, seen := e.touched[rec.Key]; seen {
		return Decision{Reason: ReasonDuplicate}
	}
	e.touched[rec.Key] = struct{}{}

	prev, known := e.snap[rec.Key]
	wasPresent := known && prev.Present
	st := prev
	st.Present = true
	st.LastSeen = e.now.Unix()

	today := e.now.In(rec.When.Location()).Format(reservation.DateLayout)
	dk := dayKey{rec.Key.MerchantID, rec.Key.Service, today}
	milestone := ActiveMilestone(e.policy.Milestones, rec.LeadDays)

	d := Decision{Milestone: milestone}
	switch {
	case st.Notified() && !wasPresent:
		d.Notify, d.Reason = true, ReasonReappeared
	case !st.Notified():
		d.Notify, d.Reason = true, ReasonFirstSighting
	case svc.DailyCap > 0 && e.sent[dk] >= svc.DailyCap:
		d.Reason = ReasonDailyCap
	case svc.NotifyMaxLeadDays > 0 && rec.LeadDays > svc.NotifyMaxLeadDays:
		d.Reason = ReasonOutsideWindow
	case milestone != nil && !sameMilestone(milestone, st.LastMilestone):
		d.Notify, d.Reason = true, ReasonMilestone
	case e.policy.Renotify > 0 && e.now.Sub(time.Unix(st.LastNotified, 0)) >= e.policy.Renotify:
		d.Notify, d.Reason = true, ReasonCooldownElapsed
	default:
		d.Reason = ReasonCoolingDown
	}

	if d.Notify {
		st.NotifiedOnDate = st.SentOnDate(today) + 1
		st.LastNotified = e.now.Unix()
		st.LastMilestone = milestone
		st.LastNotifiedDate = today
		e.sent[dk]++
		e.accepted = append(e.accepted, rec)
	}
	e.snap[rec.Key] = st
	return d
}

// Finish marks every stored slot inside covered that was not observed this
// run as absent and returns how many flipped. Slots outside covered keep
// their presence: a scan cut short by the rate limit or a failed probe says
// nothing about them. Call once, after the scan.
func (e *Engine) Finish(covered Coverage) int {
	flipped := 0
	for k, st := range e.snap {
		if _, ok := e.touched[k]; ok || !st.Present || !covered.Covers(k) {
			continue
		}
		st.Present = false
		e.snap[k] = st
		flipped++
	}
	return flipped
}

// Accepted returns the records that triggered a notification, in evaluation order.
func (e *Engine) Accepted() []reservation.SlotRecord { return e.accepted }

// Snapshot returns the snapshot being mutated.
func (e *Engine) Snapshot() state.Snapshot { return e.snap }
