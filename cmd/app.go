package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/jacobschulman/stonewatch/internal/analytics"
	"github.com/jacobschulman/stonewatch/internal/config"
	"github.com/jacobschulman/stonewatch/internal/db"
	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
	"github.com/jacobschulman/stonewatch/internal/engine"
	"github.com/jacobschulman/stonewatch/internal/infrastructure/gist"
	"github.com/jacobschulman/stonewatch/internal/infrastructure/postgres"
	"github.com/jacobschulman/stonewatch/internal/infrastructure/redisstore"
	"github.com/jacobschulman/stonewatch/internal/infrastructure/sqlite"
	"github.com/jacobschulman/stonewatch/internal/infrastructure/wisely"
	"github.com/jacobschulman/stonewatch/internal/internaltypes"
	"github.com/jacobschulman/stonewatch/internal/logger"
	"github.com/jacobschulman/stonewatch/internal/migrate"
	"github.com/jacobschulman/stonewatch/internal/notify"
	"github.com/jacobschulman/stonewatch/internal/ratelimit"
	"github.com/jacobschulman/stonewatch/internal/scheduler"
	"github.com/jacobschulman/stonewatch/internal/state"
)

const defaultSQLitePath = "stonewatch.db"

// app holds what every command needs: config, logger and whatever must be
// closed on exit.
type app struct {
	cfg     *config.Config
	log     *log.Logger
	closers []func()
}

func loadApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath, os.Getenv)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFile != "" {
		cfg.LogFile = opts.logFile
	}
	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return &app{cfg: cfg, log: lg}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// openRepository connects the configured state backend for key.
func (a *app) openRepository(ctx context.Context, key string, ttl time.Duration) (*state.Repository, error) {
	sc := a.cfg.State
	var blobs state.BlobStore
	switch sc.Backend {
	case "gist":
		if sc.GistID == "" || sc.GistToken == "" {
			return nil, fmt.Errorf("gist backend needs GIST_ID and GIST_TOKEN")
		}
		blobs = gist.New(sc.GistID, sc.GistToken, key)
	case "postgres":
		if sc.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres backend needs DATABASE_URL")
		}
		d, err := db.Open(ctx, sc.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, d.Close)
		applied, err := migrate.Up(ctx, d)
		if err != nil {
			blobs = a.unavailable("postgres", fmt.Errorf("%w: migrate: %v", internaltypes.ErrStoreUnavailable, err))
			break
		}
		if len(applied) > 0 {
			a.log.Info("migrations applied", "files", applied)
		}
		blobs = postgres.NewStateRepo(d, key)
	case "redis":
		rs, err := redisstore.Open(ctx, sc.RedisURL, key, ttl)
		switch {
		case errors.Is(err, internaltypes.ErrStoreUnavailable):
			blobs = a.unavailable("redis", err)
		case err != nil:
			return nil, err
		default:
			a.closers = append(a.closers, func() { _ = rs.Close() })
			blobs = rs
		}
	case "sqlite":
		path := sc.SQLitePath
		if path == "" {
			path = defaultSQLitePath
		}
		ss, err := sqlite.Open(ctx, path, key)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = ss.Close() })
		blobs = ss
	default:
		a.log.Warn("no durable state backend configured; dedup only lasts for this process")
		blobs = state.NewMemoryStore()
	}

	var sealer *state.Sealer
	if len(sc.HashKey) > 0 {
		var err error
		if sealer, err = state.NewSealer(sc.HashKey, sc.BlockKey, key); err != nil {
			return nil, err
		}
	}

	venue := a.cfg.Venue()
	return state.NewRepository(blobs, state.Options{
		Sealer:          sealer,
		TTL:             ttl,
		Location:        venue.Location,
		DefaultMerchant: venue.MerchantID,
		Logger:          a.log,
	}), nil
}

// unavailable keeps the run going without persisted history when the
// backend is down at startup.
func (a *app) unavailable(backend string, err error) state.BlobStore {
	a.log.Warn("state store unreachable, running without persisted history", "backend", backend, "err", err)
	return state.Unavailable(backend, err)
}

// senders returns the log sender plus every remote sender with credentials.
func (a *app) senders(sound string, priority int) []notify.Sender {
	n := a.cfg.Notify
	out := []notify.Sender{notify.LogSender{Log: a.log}}
	if n.PushoverToken != "" && n.PushoverUser != "" {
		out = append(out, &notify.Pushover{Token: n.PushoverToken, User: n.PushoverUser, Sound: sound, Priority: priority})
	}
	if n.SlackWebhook != "" {
		out = append(out, &notify.Slack{WebhookURL: n.SlackWebhook})
	}
	if n.MastodonServer != "" && n.MastodonToken != "" {
		out = append(out, &notify.Mastodon{Server: n.MastodonServer, Token: n.MastodonToken, Visibility: n.MastodonVisibility})
	}
	return out
}

func (a *app) prober() reservation.Prober {
	return wisely.New(a.cfg.ProbeTimeout)
}

func (a *app) recorder() (*analytics.Recorder, error) {
	if a.cfg.CSVLog == "" {
		return nil, nil
	}
	rec, err := analytics.Open(a.cfg.CSVLog)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = rec.Close() })
	return rec, nil
}

func venueNames(venues []reservation.Venue) map[string]string {
	out := make(map[string]string, len(venues))
	for _, v := range venues {
		if v.Name != "" {
			out[v.MerchantID] = v.Name
		}
	}
	return out
}

// scanner builds the regular multi-day scanner.
func (a *app) scanner(ctx context.Context) (*scheduler.Scanner, error) {
	cfg := a.cfg
	repo, err := a.openRepository(ctx, cfg.State.Key, cfg.State.TTL)
	if err != nil {
		return nil, err
	}
	rec, err := a.recorder()
	if err != nil {
		return nil, err
	}
	s := a.baseScanner(repo, rec)
	s.Plan = scheduler.DailyPlanner(cfg.Venues, cfg.Services, cfg.DaysAhead, cfg.PartySizes)
	s.Policy = engine.NewPolicy(cfg.Services, cfg.Milestones, cfg.Renotify)
	s.Grouper = notify.Grouper{
		TitlePrefix: cfg.Notify.TitlePrefix,
		URLTitle:    cfg.Notify.URLTitle,
		PartySizes:  cfg.PartySizes,
		VenueNames:  venueNames(cfg.Venues),
		Log:         a.log,
	}
	s.Dispatcher = &notify.Dispatcher{
		Senders: a.senders(cfg.Notify.PushoverSound, cfg.Notify.PushoverPriority),
		Log:     a.log,
	}
	return s, nil
}

// vipScanner builds the scanner for VIP windows at the first venue. VIP runs
// keep their own state and skip milestones and daily caps.
func (a *app) vipScanner(ctx context.Context) (*scheduler.Scanner, error) {
	cfg := a.cfg
	repo, err := a.openRepository(ctx, cfg.VIPStateKey(), cfg.VIP.TTL)
	if err != nil {
		return nil, err
	}
	rec, err := a.recorder()
	if err != nil {
		return nil, err
	}

	services := make([]reservation.Service, len(cfg.AllServices))
	for i, svc := range cfg.AllServices {
		svc.DailyCap, svc.NotifyMaxLeadDays, svc.MaxLeadDays = 0, 0, 0
		services[i] = svc
	}
	venue := cfg.Venue()

	s := a.baseScanner(repo, rec)
	s.Plan = scheduler.VIPPlanner(venue, cfg.VIP.Windows, services)
	s.Policy = engine.NewPolicy(services, nil, cfg.VIP.Renotify)
	s.Grouper = notify.Grouper{
		TitlePrefix: cfg.VIP.TitlePrefix,
		URLTitle:    cfg.VIP.URLTitle,
		PartySizes:  vipPartySizes(cfg),
		VenueNames:  venueNames([]reservation.Venue{venue}),
		Log:         a.log,
	}
	s.Dispatcher = &notify.Dispatcher{
		Senders: a.senders(cfg.VIP.Sound, cfg.VIP.Priority),
		Log:     a.log,
	}
	return s, nil
}

func (a *app) baseScanner(repo *state.Repository, rec *analytics.Recorder) *scheduler.Scanner {
	cfg := a.cfg
	s := &scheduler.Scanner{
		Prober:     a.prober(),
		Normalizer: reservation.Normalizer{LinkBase: cfg.LinkBase},
		ProbeLimit: cfg.ProbeLimit,
		Step:       cfg.Step,
		Repo:       repo,
		Limiter:    ratelimit.New(cfg.MaxChecksPerHour, nil),
		Analytics:  rec,
		Log:        a.log,
	}
	if cfg.ProbeDelay > 0 {
		s.Pacer = rate.NewLimiter(rate.Every(cfg.ProbeDelay), 1)
	}
	if cfg.RandomizeDelay {
		s.StaggerMin, s.StaggerMax = cfg.StaggerMin, cfg.StaggerMax
		s.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return s
}

func vipPartySizes(cfg *config.Config) []int {
	seen := map[int]bool{}
	var out []int
	for _, w := range cfg.VIP.Windows {
		for _, p := range w.PartySizes {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out
}
