package engine

import (
	"sort"
	"time"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

// ServicePolicy holds the per-service gates. Zero values disable a gate.
type ServicePolicy struct {
	DailyCap          int
	NotifyMaxLeadDays int
	MaxLeadDays       int
}

// Policy is the notification policy for one run.
type Policy struct {
	Services   map[string]ServicePolicy
	Milestones []int
	// Renotify is the steady-state cooldown. 0 disables cooldown renotifies.
	Renotify time.Duration
}

// NewPolicy builds a Policy from configured services.
func NewPolicy(services []reservation.Service, milestones []int, renotify time.Duration) Policy {
	p := Policy{
		Services:   make(map[string]ServicePolicy, len(services)),
		Milestones: append([]int(nil), milestones...),
		Renotify:   renotify,
	}
	for _, s := range services {
		p.Services[s.Name] = ServicePolicy{
			DailyCap:          s.DailyCap,
			NotifyMaxLeadDays: s.NotifyMaxLeadDays,
			MaxLeadDays:       s.MaxLeadDays,
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(p.Milestones)))
	return p
}

// ActiveMilestone returns the nearest countdown checkpoint not yet passed:
// the smallest threshold greater than or equal to leadDays. With thresholds
// [3,1,0], lead 2 maps to 3, lead 1 to 1 and lead 0 to 0. It returns nil when
// leadDays is beyond every threshold.
func ActiveMilestone(thresholds []int, leadDays int) *int {
	var best *int
	for _, t := range thresholds {
		if t < leadDays {
			continue
		}
		if best == nil || t < *best {
			v := t
			best = &v
		}
	}
	return best
}

func sameMilestone(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
