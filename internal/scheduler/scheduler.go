package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jacobschulman/stonewatch/internal/analytics"
	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
	"github.com/jacobschulman/stonewatch/internal/engine"
	"github.com/jacobschulman/stonewatch/internal/grid"
	"github.com/jacobschulman/stonewatch/internal/notify"
	"github.com/jacobschulman/stonewatch/internal/ratelimit"
	"github.com/jacobschulman/stonewatch/internal/state"
	"github.com/jacobschulman/stonewatch/internal/vip"
)

// Target is one venue-local day and time range to walk. When Service is nil
// each grid timestamp is classified into one of the Classify services.
type Target struct {
	Venue      reservation.Venue
	Day        time.Time
	Window     reservation.Window
	Service    *reservation.Service
	Classify   []reservation.Service
	PartySizes []int
}

// Planner returns the targets for a run started at now.
type Planner func(now time.Time) []Target

// DailyPlanner walks every enabled service for today and the next days-1
// days at each venue.
func DailyPlanner(venues []reservation.Venue, services []reservation.Service, days int, partySizes []int) Planner {
	return func(now time.Time) []Target {
		var out []Target
		for _, v := range venues {
			for _, day := range grid.Days(now, days, v.Location) {
				for i := range services {
					svc := services[i]
					out = append(out, Target{
						Venue:      v,
						Day:        day,
						Window:     svc.Window,
						Service:    &svc,
						PartySizes: partySizes,
					})
				}
			}
		}
		return out
	}
}

// VIPPlanner walks the VIP windows that have not ended yet.
func VIPPlanner(venue reservation.Venue, windows []vip.Window, services []reservation.Service) Planner {
	return func(now time.Time) []Target {
		var out []Target
		for _, w := range windows {
			if !w.Active(now) {
				continue
			}
			out = append(out, Target{
				Venue:      venue,
				Day:        w.Date,
				Window:     w.Range,
				Classify:   services,
				PartySizes: w.PartySizes,
			})
		}
		return out
	}
}

// Summary describes one run.
type Summary struct {
	RunID         string
	Targets       int
	Probes        int
	ProbeErrors   int
	Observed      int
	Accepted      int
	Notifications int
	SendFailures  int
	Flipped       int
	RateLimited   bool
	Saved         bool
	Remaining     int
}

// Scanner runs one load, scan, notify and save cycle per RunOnce.
type Scanner struct {
	Plan       Planner
	Prober     reservation.Prober
	Normalizer reservation.Normalizer
	ProbeLimit int
	Step       time.Duration
	Policy     engine.Policy
	Repo       *state.Repository
	Grouper    notify.Grouper
	Dispatcher *notify.Dispatcher
	Limiter    *ratelimit.Window

	// Pacer spaces probes. Nil means no fixed pacing.
	Pacer *rate.Limiter
	// StaggerMin and StaggerMax bound an extra random pause before each
	// probe. Both zero disables it.
	StaggerMin time.Duration
	StaggerMax time.Duration
	Rand       *rand.Rand

	Analytics *analytics.Recorder
	Now       func() time.Time
	Log       *log.Logger

	mu sync.Mutex
}

// RunOnce performs a full run. Probe and sender failures are logged and do
// not fail the run; a store load failure is logged and the run continues on
// an empty snapshot without saving. The returned error is only set when the
// final save fails or ctx is cancelled.
func (s *Scanner) RunOnce(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sum := Summary{RunID: uuid.NewString()}
	lg := s.logger().With("run", sum.RunID)

	snap, err := s.Repo.Load(ctx, now)
	if err != nil {
		lg.Warn("state load failed, continuing without persisted history", "err", err)
	}
	eng := engine.New(s.Policy, snap, now)

	targets := s.Plan(now)
	sum.Targets = len(targets)
	obs, covered, err := s.scan(ctx, lg, targets, now, &sum)
	if err != nil {
		return sum, err
	}

	for _, rec := range obs {
		d := eng.Evaluate(rec)
		lg.Debug("slot evaluated", "key", rec.Key.String(), "lead", rec.LeadDays,
			"notify", d.Notify, "reason", d.Reason)
		if err := s.Analytics.Record(sum.RunID, now, rec, d.Notify, string(d.Reason)); err != nil {
			lg.Warn("analytics write failed", "err", err)
		}
	}
	sum.Flipped = eng.Finish(covered)
	sum.Accepted = len(eng.Accepted())

	items := s.Grouper.Group(eng.Accepted())
	sum.Notifications = len(items)
	if len(items) > 0 {
		rep := s.Dispatcher.Dispatch(ctx, items)
		sum.SendFailures = rep.Failed
	}

	saved, err := s.Repo.Save(ctx, eng.Snapshot())
	sum.Saved = saved
	sum.Remaining = s.Limiter.Remaining()
	if ferr := s.Analytics.Flush(); ferr != nil {
		lg.Warn("analytics flush failed", "err", ferr)
	}

	lg.Info("run complete",
		"backend", s.Repo.Backend(),
		"targets", sum.Targets,
		"probes", sum.Probes,
		"probe_errors", sum.ProbeErrors,
		"observed", sum.Observed,
		"accepted", sum.Accepted,
		"notifications", sum.Notifications,
		"gone", sum.Flipped,
		"rate_limited", sum.RateLimited,
		"remaining", sum.Remaining,
		"max_per_hour", s.Limiter.Max(),
		"saved", sum.Saved,
	)
	if sum.Notifications == 0 {
		lg.Info("no new openings this run")
	}
	return sum, err
}

// scan probes every target until done or rate limited. A (merchant, date,
// service, party) scope is reported as covered only when every probe for it
// in its target succeeded.
func (s *Scanner) scan(ctx context.Context, lg *log.Logger, targets []Target, now time.Time, sum *Summary) ([]reservation.SlotRecord, engine.Coverage, error) {
	var out []reservation.SlotRecord
	covered := engine.Coverage{}
	for _, tg := range targets {
		loc := tg.Venue.Location
		date := tg.Day.Format(reservation.DateLayout)
		failed := make(map[int]bool, len(tg.PartySizes))
		services := map[string]bool{}

		for ts := range grid.Times(tg.Day, tg.Window, s.Step, loc) {
			svc, ok := tg.service(ts)
			if !ok {
				continue
			}
			services[svc.Name] = true
			for _, party := range tg.PartySizes {
				if !s.Limiter.CanCall() {
					sum.RateLimited = true
					lg.Warn("rate limit reached, stopping probes", "max_per_hour", s.Limiter.Max())
					return out, covered, nil
				}
				if err := s.pace(ctx); err != nil {
					return out, covered, err
				}
				s.Limiter.RecordCall()
				sum.Probes++

				inv, err := s.Prober.Inventory(ctx, reservation.ProbeRequest{
					MerchantID: tg.Venue.MerchantID,
					PartySize:  party,
					TypeID:     svc.TypeID,
					SearchAt:   ts,
					Limit:      s.ProbeLimit,
				})
				if err != nil {
					if ctx.Err() != nil {
						return out, covered, ctx.Err()
					}
					sum.ProbeErrors++
					failed[party] = true
					lg.Warn("probe failed", "merchant", tg.Venue.MerchantID, "at", ts.Format("2006-01-02 15:04"),
						"party", party, "service", svc.Name, "err", err)
					continue
				}
				block, ok := inv.Block(svc.TypeID)
				if !ok {
					continue
				}
				recs := s.Normalizer.Normalize(tg.Venue, svc, party, ts, block, now)
				sum.Observed += len(recs)
				out = append(out, recs...)
			}
		}

		for _, party := range tg.PartySizes {
			if failed[party] {
				continue
			}
			for name := range services {
				covered.Add(engine.Scope{MerchantID: tg.Venue.MerchantID, Date: date, Service: reservation.KeyField(name), PartySize: party})
			}
		}
	}
	return out, covered, nil
}

func (tg Target) service(ts time.Time) (reservation.Service, bool) {
	if tg.Service != nil {
		return *tg.Service, true
	}
	return vip.Classify(ts, tg.Classify)
}

func (s *Scanner) pace(ctx context.Context) error {
	if s.Pacer != nil {
		if err := s.Pacer.Wait(ctx); err != nil {
			return err
		}
	}
	if d := s.stagger(); d > 0 {
		return sleep(ctx, d)
	}
	return ctx.Err()
}

func (s *Scanner) stagger() time.Duration {
	if s.StaggerMax <= 0 || s.StaggerMax < s.StaggerMin {
		return 0
	}
	span := int64(s.StaggerMax - s.StaggerMin)
	if span == 0 {
		return s.StaggerMin
	}
	r := s.Rand
	if r == nil {
		return s.StaggerMin + time.Duration(rand.Int64N(span+1))
	}
	return s.StaggerMin + time.Duration(r.Int64N(span+1))
}

// Run calls RunOnce immediately and then every interval until ctx is done.
func (s *Scanner) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New("interval must be positive")
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	// kick immediately
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scanner) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger().Error("run failed", "err", err)
	}
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scanner) logger() *log.Logger {
	if s.Log != nil {
		return s.Log
	}
	return log.Default()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
