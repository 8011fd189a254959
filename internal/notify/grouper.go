package notify

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
)

type groupKey struct {
	merchant string
	date     string
	time     string
	service  string
}

type group struct {
	key   groupKey
	first reservation.SlotRecord
	urls  map[int]string
	sizes []int
}

// Grouper batches accepted slots found for several party sizes at the same
// date, time and service into a single notification.
type Grouper struct {
	TitlePrefix string
	URLTitle    string
	// PartySizes is the set of sizes being tracked. Groups containing any
	// other size are dropped.
	PartySizes []int
	// VenueNames maps merchant id to a display name used in titles.
	VenueNames map[string]string
	Log        *log.Logger
}

// Group renders one notification per (venue, date, time, service), ordered
// by slot time.
func (g Grouper) Group(recs []reservation.SlotRecord) []Notification {
	allowed := make(map[int]bool, len(g.PartySizes))
	for _, s := range g.PartySizes {
		allowed[s] = true
	}

	byKey := map[groupKey]*group{}
	var order []*group
	for _, r := range recs {
		k := groupKey{r.Key.MerchantID, r.Key.Date, r.Key.Time, r.Key.Service}
		gr, ok := byKey[k]
		if !ok {
			gr = &group{key: k, first: r, urls: map[int]string{}}
			byKey[k] = gr
			order = append(order, gr)
		}
		if _, dup := gr.urls[r.Key.PartySize]; dup {
			continue
		}
		gr.urls[r.Key.PartySize] = r.BookingURL
		gr.sizes = append(gr.sizes, r.Key.PartySize)
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if !a.first.When.Equal(b.first.When) {
			return a.first.When.Before(b.first.When)
		}
		if a.key.merchant != b.key.merchant {
			return a.key.merchant < b.key.merchant
		}
		return a.key.service < b.key.service
	})

	out := make([]Notification, 0, len(order))
	for _, gr := range order {
		sort.Ints(gr.sizes)
		if bad := unknownSizes(gr.sizes, allowed); len(bad) > 0 {
			g.logger().Warn("dropping notification group with untracked party sizes",
				"date", gr.key.date, "time", gr.key.time, "service", gr.key.service,
				"sizes", gr.sizes, "untracked", bad)
			continue
		}
		out = append(out, g.render(gr))
	}
	return out
}

func (g Grouper) render(gr *group) Notification {
	sizes := JoinSizes(gr.sizes)
	title := fmt.Sprintf("%s Table for %s (%s)", g.TitlePrefix, sizes, gr.key.service)
	if name := g.VenueNames[gr.key.merchant]; name != "" {
		title = fmt.Sprintf("%s %s: Table for %s (%s)", g.TitlePrefix, name, sizes, gr.key.service)
	}
	return Notification{
		Title:      title,
		Body:       fmt.Sprintf("%s @ %s for %s. Act fast!", gr.first.DisplayDate(), gr.key.time, sizes),
		URL:        gr.urls[gr.sizes[0]],
		URLTitle:   g.URLTitle,
		PartySizes: gr.sizes,
	}
}

func (g Grouper) logger() *log.Logger {
	if g.Log != nil {
		return g.Log
	}
	return log.Default()
}

func unknownSizes(sizes []int, allowed map[int]bool) []int {
	var bad []int
	for _, s := range sizes {
		if !allowed[s] {
			bad = append(bad, s)
		}
	}
	return bad
}
