package scheduler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
	"github.com/jacobschulman/stonewatch/internal/engine"
	"github.com/jacobschulman/stonewatch/internal/notify"
	"github.com/jacobschulman/stonewatch/internal/ratelimit"
	"github.com/jacobschulman/stonewatch/internal/state"
	"github.com/jacobschulman/stonewatch/internal/vip"
)

var nyc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

var (
	dinner = reservation.Service{
		Name:   "Dinner",
		TypeID: 1695,
		Window: reservation.Window{Start: reservation.Clock{Hour: 19}, End: reservation.Clock{Hour: 20}},
	}
	lunch = reservation.Service{
		Name:   "Lunch",
		TypeID: 1862,
		Window: reservation.Window{Start: reservation.Clock{Hour: 11, Minute: 15}, End: reservation.Clock{Hour: 14, Minute: 30}},
	}
	venue = reservation.Venue{MerchantID: "278278", Location: nyc}
)

// fakeProber returns one 7:30 PM dinner slot on Oct 20 for the probes that
// land on it and empty blocks otherwise.
type fakeProber struct {
	mu      sync.Mutex
	reqs    []reservation.ProbeRequest
	failFor int
	gone    bool
}

func (f *fakeProber) Inventory(_ context.Context, req reservation.ProbeRequest) (reservation.Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.failFor != 0 && req.PartySize == f.failFor {
		return reservation.Inventory{}, errors.New("503 Service Unavailable")
	}
	block := reservation.InventoryBlock{TypeID: req.TypeID}
	local := req.SearchAt.In(nyc)
	if !f.gone && req.TypeID == dinner.TypeID && local.Format("2006-01-02 15:04") == "2026-10-20 19:30" {
		block.Times = []reservation.TimeEntry{{
			ISO:        "2026-10-20T19:30:00",
			BookingURL: "https://book.example/278278/1930",
		}}
	}
	return reservation.Inventory{Blocks: []reservation.InventoryBlock{block}}, nil
}

type captureSender struct {
	got []notify.Notification
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) Send(_ context.Context, n notify.Notification) error {
	c.got = append(c.got, n)
	return nil
}

func quiet() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

func newScanner(prober reservation.Prober, sender notify.Sender, now *time.Time, maxPerHour int) *Scanner {
	lg := quiet()
	clock := func() time.Time { return *now }
	return &Scanner{
		Plan:       DailyPlanner([]reservation.Venue{venue}, []reservation.Service{dinner}, 2, []int{2, 4}),
		Prober:     prober,
		Normalizer: reservation.Normalizer{LinkBase: "https://example.com"},
		ProbeLimit: 3,
		Step:       30 * time.Minute,
		Policy:     engine.NewPolicy([]reservation.Service{dinner}, []int{3, 1, 0}, 3*time.Hour),
		Repo: state.NewRepository(state.NewMemoryStore(), state.Options{
			TTL:             5 * 24 * time.Hour,
			Location:        nyc,
			DefaultMerchant: venue.MerchantID,
			Logger:          lg,
		}),
		Grouper: notify.Grouper{
			TitlePrefix: "🍸 Table Alert:",
			URLTitle:    "Grab it →",
			PartySizes:  []int{2, 4},
			Log:         lg,
		},
		Dispatcher: &notify.Dispatcher{Senders: []notify.Sender{sender}, Log: lg},
		Limiter:    ratelimit.New(maxPerHour, clock),
		Now:        clock,
		Log:        lg,
	}
}

func TestRunOnceNotifiesOnceThenStaysQuiet(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, nyc)
	prober := &fakeProber{}
	sender := &captureSender{}
	s := newScanner(prober, sender, &now, 120)

	sum, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, sum.RunID)
	assert.Equal(t, 2, sum.Targets)
	assert.Equal(t, 12, sum.Probes, "2 days x 3 times x 2 sizes")
	assert.Equal(t, 1, sum.Observed)
	assert.Equal(t, 1, sum.Accepted)
	assert.Equal(t, 1, sum.Notifications)
	assert.True(t, sum.Saved)
	assert.Equal(t, 108, sum.Remaining)

	require.Len(t, sender.got, 1)
	assert.Equal(t, "🍸 Table Alert: Table for 2 (Dinner)", sender.got[0].Title)
	assert.Equal(t, "Tue Oct 20 @ 7:30 PM for 2. Act fast!", sender.got[0].Body)
	assert.Equal(t, "https://book.example/278278/1930", sender.got[0].URL)

	first := prober.reqs[0]
	assert.Equal(t, "278278", first.MerchantID)
	assert.Equal(t, 1695, first.TypeID)
	assert.Equal(t, 3, first.Limit)
	assert.Equal(t, time.Date(2026, 10, 19, 19, 0, 0, 0, nyc), first.SearchAt)

	now = now.Add(15 * time.Minute)
	sum, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Observed)
	assert.Zero(t, sum.Accepted)
	assert.Zero(t, sum.Notifications)
	assert.Len(t, sender.got, 1, "still present, no repeat")
}

func TestRunOnceStopsAtRateLimit(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, nyc)
	prober := &fakeProber{}
	s := newScanner(prober, &captureSender{}, &now, 5)

	sum, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.RateLimited)
	assert.Equal(t, 5, sum.Probes)
	assert.Len(t, prober.reqs, 5)
	assert.Zero(t, sum.Remaining)
}

func TestRunOnceSkipsFailedProbes(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, nyc)
	prober := &fakeProber{failFor: 4}
	sender := &captureSender{}
	s := newScanner(prober, sender, &now, 120)

	sum, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, sum.Probes)
	assert.Equal(t, 6, sum.ProbeErrors)
	assert.Equal(t, 1, sum.Notifications)
}

func TestRateLimitedRunKeepsUnprobedSlotsPresent(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, nyc)
	sender := &captureSender{}
	s := newScanner(&fakeProber{}, sender, &now, 18)

	sum, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Notifications)

	// only Oct 19 fits in what is left of the hour; the Oct 20 slot is never probed
	now = now.Add(15 * time.Minute)
	sum, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.RateLimited)
	assert.Equal(t, 6, sum.Probes)
	assert.Zero(t, sum.Flipped)

	now = now.Add(65 * time.Minute)
	sum, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.RateLimited)
	assert.Equal(t, 1, sum.Observed)
	assert.Zero(t, sum.Accepted, "still inside the cooldown")
	assert.Len(t, sender.got, 1)
}

func TestFailedProbesKeepSlotsPresent(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, nyc)
	prober := &fakeProber{}
	sender := &captureSender{}
	s := newScanner(prober, sender, &now, 120)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	prober.failFor = 2
	now = now.Add(15 * time.Minute)
	sum, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, sum.ProbeErrors)
	assert.Zero(t, sum.Flipped)

	prober.failFor = 0
	now = now.Add(15 * time.Minute)
	sum, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Notifications)
	assert.Len(t, sender.got, 1)
}

func TestSlotGoneThenBackNotifiesAgain(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, nyc)
	prober := &fakeProber{}
	sender := &captureSender{}
	s := newScanner(prober, sender, &now, 120)

	_, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	prober.gone = true
	now = now.Add(15 * time.Minute)
	sum, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Flipped)

	prober.gone = false
	now = now.Add(15 * time.Minute)
	sum, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Notifications)
	assert.Len(t, sender.got, 2)
}

func TestRunOnceCancelled(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, nyc)
	s := newScanner(&fakeProber{}, &captureSender{}, &now, 120)
	s.StaggerMin, s.StaggerMax = time.Second, time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVIPPlannerClassifiesTimes(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, nyc)
	windows, errs := vip.ParseWindows("2026-10-20,16:30,19:30,6\n2026-10-18,18:00,20:00,2", nyc)
	require.Empty(t, errs)

	prober := &fakeProber{}
	sender := &captureSender{}
	s := newScanner(prober, sender, &now, 120)
	s.Plan = VIPPlanner(venue, windows, []reservation.Service{lunch, dinner})
	s.Policy = engine.NewPolicy([]reservation.Service{lunch, dinner}, nil, 5*time.Minute)
	s.Grouper.PartySizes = []int{6}

	sum, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Targets, "ended window dropped")
	// only 19:00 and 19:30 fall inside a service window
	assert.Equal(t, 2, sum.Probes)
	for _, req := range prober.reqs {
		assert.Equal(t, dinner.TypeID, req.TypeID)
		assert.Equal(t, 6, req.PartySize)
	}
	require.Len(t, sender.got, 1)
	assert.Equal(t, "Tue Oct 20 @ 7:30 PM for 6. Act fast!", sender.got[0].Body)
}

func TestRunRequiresInterval(t *testing.T) {
	s := &Scanner{}
	assert.Error(t, s.Run(context.Background(), 0))
}
