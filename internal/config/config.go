package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jacobschulman/stonewatch/internal/domain/reservation"
	"github.com/jacobschulman/stonewatch/internal/internaltypes"
	"github.com/jacobschulman/stonewatch/internal/vip"
)

// Config is built once at startup and never mutated afterwards.
type Config struct {
	Venues      []reservation.Venue
	Services    []reservation.Service // enabled, in scan order
	AllServices []reservation.Service // every known service, used to classify VIP timestamps
	PartySizes  []int

	Step         time.Duration
	DaysAhead    int
	ProbeLimit   int
	ProbeTimeout time.Duration
	LinkBase     string

	Milestones       []int
	Renotify         time.Duration
	MaxChecksPerHour int

	ProbeDelay     time.Duration
	StaggerMin     time.Duration
	StaggerMax     time.Duration
	RandomizeDelay bool

	State  StateConfig
	Notify NotifyConfig
	VIP    VIPConfig

	LogLevel string
	LogFile  string
	CSVLog   string
}

type StateConfig struct {
	Backend  string // gist, postgres, redis, sqlite, memory
	Key      string
	TTL      time.Duration
	HashKey  []byte
	BlockKey []byte

	GistID      string
	GistToken   string
	DatabaseURL string
	RedisURL    string
	SQLitePath  string
}

type NotifyConfig struct {
	TitlePrefix string
	URLTitle    string

	PushoverUser     string
	PushoverToken    string
	PushoverSound    string
	PushoverPriority int

	SlackWebhook string

	MastodonServer     string
	MastodonToken      string
	MastodonVisibility string
}

type VIPConfig struct {
	Windows     []vip.Window
	Invalid     []error
	Renotify    time.Duration
	TTL         time.Duration
	TitlePrefix string
	URLTitle    string
	Sound       string
	Priority    int
}

// Venue returns the first configured venue.
func (c *Config) Venue() reservation.Venue { return c.Venues[0] }

// VIPStateKey is the state key used by VIP runs for the first venue.
func (c *Config) VIPStateKey() string { return "vip_" + c.Venue().MerchantID + ".json" }

// FromEnv loads the YAML file named by STONEWATCH_CONFIG (if any) and the
// process environment.
func FromEnv() (*Config, error) {
	return Load(os.Getenv("STONEWATCH_CONFIG"), os.Getenv)
}

// Load builds a Config from defaults, then the YAML file at path (optional),
// then variables returned by getenv. Later sources win.
func Load(path string, getenv func(string) string) (*Config, error) {
	fc := defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// yaml replaces map values wholesale, so decode services on their own
		// and merge them field by field
		base := fc.Services
		fc.Services = nil
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		fc.Services = mergeServices(base, fc.Services)
	}
	e := env{get: getenv}
	e.overlay(&fc)
	if e.err != nil {
		return nil, e.err
	}
	return build(fc, e)
}

type fileVenue struct {
	MerchantID string `yaml:"merchant_id"`
	Name       string `yaml:"name"`
	Timezone   string `yaml:"timezone"`
}

type fileService struct {
	Enabled           *bool  `yaml:"enabled"`
	TypeID            int    `yaml:"type_id"`
	Window            string `yaml:"window"`
	DailyCap          int    `yaml:"daily_cap"`
	NotifyMaxLeadDays int    `yaml:"notify_max_lead_days"`
	MaxLeadDays       int    `yaml:"max_lead_days"`
}

type fileState struct {
	Backend    string `yaml:"backend"`
	Key        string `yaml:"key"`
	TTLDays    int    `yaml:"ttl_days"`
	SQLitePath string `yaml:"sqlite_path"`
}

type fileConfig struct {
	Timezone           string                  `yaml:"timezone"`
	Venues             []fileVenue             `yaml:"venues"`
	Services           map[string]*fileService `yaml:"services"`
	PartySizes         []int                   `yaml:"party_sizes"`
	StepMinutes        int                     `yaml:"step_minutes"`
	DaysAhead          int                     `yaml:"days_ahead"`
	ProbeLimit         int                     `yaml:"probe_limit"`
	ProbeTimeoutSec    int                     `yaml:"probe_timeout_sec"`
	LinkBase           string                  `yaml:"link_base"`
	Milestones         []int                   `yaml:"milestones"`
	RenotifyMinutes    int                     `yaml:"renotify_minutes"`
	MaxChecksPerHour   int                     `yaml:"max_checks_per_hour"`
	ProbeDelayMS       int                     `yaml:"probe_delay_ms"`
	StaggerMS          []int                   `yaml:"stagger_ms"`
	RandomizeDelay     bool                    `yaml:"randomize_delay"`
	NotificationPrefix string                  `yaml:"notification_prefix"`
	URLTitle           string                  `yaml:"url_title"`
	PushoverSound      string                  `yaml:"pushover_sound"`
	PushoverPriority   int                     `yaml:"pushover_priority"`
	MastodonVisibility string                  `yaml:"mastodon_visibility"`
	VIPWindows         []string                `yaml:"vip_windows"`
	VIPRenotifyMinutes int                     `yaml:"vip_renotify_minutes"`
	State              fileState               `yaml:"state"`
	LogLevel           string                  `yaml:"log_level"`
	LogFile            string                  `yaml:"log_file"`
	CSVLog             string                  `yaml:"csv_log"`
}

func boolPtr(b bool) *bool { return &b }

func mergeServices(base, file map[string]*fileService) map[string]*fileService {
	for name, fs := range file {
		if fs == nil {
			continue
		}
		name = strings.ToLower(name)
		cur, ok := base[name]
		if !ok {
			base[name] = fs
			continue
		}
		if fs.Enabled != nil {
			cur.Enabled = fs.Enabled
		}
		if fs.TypeID != 0 {
			cur.TypeID = fs.TypeID
		}
		if fs.Window != "" {
			cur.Window = fs.Window
		}
		if fs.DailyCap != 0 {
			cur.DailyCap = fs.DailyCap
		}
		if fs.NotifyMaxLeadDays != 0 {
			cur.NotifyMaxLeadDays = fs.NotifyMaxLeadDays
		}
		if fs.MaxLeadDays != 0 {
			cur.MaxLeadDays = fs.MaxLeadDays
		}
	}
	return base
}

func defaults() fileConfig {
	return fileConfig{
		Timezone: "America/New_York",
		Venues:   []fileVenue{{MerchantID: "278278"}},
		Services: map[string]*fileService{
			"dinner": {Enabled: boolPtr(true), TypeID: 1695, Window: "17:00-22:15"},
			"lunch":  {Enabled: boolPtr(false), TypeID: 1862, Window: "11:15-14:30"},
		},
		PartySizes:         []int{2, 4},
		StepMinutes:        15,
		DaysAhead:          3,
		ProbeLimit:         3,
		ProbeTimeoutSec:    15,
		LinkBase:           "https://example.com",
		Milestones:         []int{3, 1, 0},
		RenotifyMinutes:    180,
		MaxChecksPerHour:   120,
		ProbeDelayMS:       50,
		StaggerMS:          []int{50, 200},
		RandomizeDelay:     true,
		NotificationPrefix: "🍸 Table Alert:",
		URLTitle:           "Grab it →",
		VIPRenotifyMinutes: 5,
		State:              fileState{Backend: "auto", Key: "seen.json", TTLDays: 5},
		LogLevel:           "info",
	}
}

// env overlays environment variables and remembers the first parse error.
type env struct {
	get func(string) string
	err error
}

func (e *env) str(k string, dst *string) {
	if v := strings.TrimSpace(e.get(k)); v != "" {
		*dst = v
	}
}

func (e *env) num(k string, dst *int) {
	v := strings.TrimSpace(e.get(k))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %q", k, v))
		return
	}
	*dst = n
}

func (e *env) flag(k string, dst *bool) {
	if v := strings.TrimSpace(e.get(k)); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func (e *env) nums(k string, dst *[]int) {
	v := strings.TrimSpace(e.get(k))
	if v == "" {
		return
	}
	out, err := parseInts(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", k, err))
		return
	}
	*dst = out
}

func (e *env) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *env) overlay(fc *fileConfig) {
	e.str("TIMEZONE", &fc.Timezone)
	if ids := strings.TrimSpace(e.get("MERCHANT_ID")); ids != "" {
		fc.Venues = nil
		for _, id := range splitCSV(ids) {
			fc.Venues = append(fc.Venues, fileVenue{MerchantID: id})
		}
	}
	if name := strings.TrimSpace(e.get("RESTAURANT_NAME")); name != "" && len(fc.Venues) > 0 {
		fc.Venues[0].Name = name
	}

	for name, svc := range fc.Services {
		up := strings.ToUpper(name)
		if v := strings.TrimSpace(e.get("ENABLE_" + up)); v != "" {
			svc.Enabled = boolPtr(strings.EqualFold(v, "true") || v == "1")
		}
		e.str(up+"_WINDOW", &svc.Window)
		e.num(up+"_TYPE_ID", &svc.TypeID)
		e.num("DAILY_CAP_"+up, &svc.DailyCap)
		e.num("NOTIFY_MAX_LEAD_DAYS_"+up, &svc.NotifyMaxLeadDays)
		e.num("MAX_LEAD_DAYS_"+up, &svc.MaxLeadDays)
	}

	e.nums("PARTY_SIZES", &fc.PartySizes)
	e.num("STEP_MIN", &fc.StepMinutes)
	e.num("DAYS_AHEAD", &fc.DaysAhead)
	e.num("PROBE_LIMIT", &fc.ProbeLimit)
	e.num("PROBE_TIMEOUT_SEC", &fc.ProbeTimeoutSec)
	e.str("LINK_BASE", &fc.LinkBase)
	e.nums("MILESTONES", &fc.Milestones)
	e.num("RENOTIFY_MIN", &fc.RenotifyMinutes)
	e.num("MAX_CHECKS_PER_HOUR", &fc.MaxChecksPerHour)
	e.num("PROBE_DELAY_MS", &fc.ProbeDelayMS)
	e.nums("RANDOM_STAGGER_MS", &fc.StaggerMS)
	e.flag("RANDOMIZE_DELAY", &fc.RandomizeDelay)

	e.str("NOTIFICATION_PREFIX", &fc.NotificationPrefix)
	e.str("PUSHOVER_URL_TITLE", &fc.URLTitle)
	e.str("PUSHOVER_SOUND", &fc.PushoverSound)
	e.num("PUSHOVER_PRIORITY", &fc.PushoverPriority)
	e.str("MASTODON_VISIBILITY", &fc.MastodonVisibility)

	if raw := e.get("VIP_WINDOWS"); strings.TrimSpace(raw) != "" {
		fc.VIPWindows = strings.Split(raw, "\n")
	}
	e.num("VIP_RENOTIFY_MIN", &fc.VIPRenotifyMinutes)

	e.str("STATE_BACKEND", &fc.State.Backend)
	e.str("STATE_KEY", &fc.State.Key)
	e.num("STATE_TTL_DAYS", &fc.State.TTLDays)
	e.str("SQLITE_PATH", &fc.State.SQLitePath)

	e.str("LOG_LEVEL", &fc.LogLevel)
	e.str("LOG_FILE", &fc.LogFile)
	e.str("CSV_LOG", &fc.CSVLog)
}

func build(fc fileConfig, e env) (*Config, error) {
	cfg := &Config{
		PartySizes:       fc.PartySizes,
		Step:             time.Duration(fc.StepMinutes) * time.Minute,
		DaysAhead:        fc.DaysAhead,
		ProbeLimit:       fc.ProbeLimit,
		ProbeTimeout:     time.Duration(fc.ProbeTimeoutSec) * time.Second,
		LinkBase:         fc.LinkBase,
		Milestones:       fc.Milestones,
		Renotify:         time.Duration(fc.RenotifyMinutes) * time.Minute,
		MaxChecksPerHour: fc.MaxChecksPerHour,
		ProbeDelay:       time.Duration(fc.ProbeDelayMS) * time.Millisecond,
		RandomizeDelay:   fc.RandomizeDelay,
		LogLevel:         fc.LogLevel,
		LogFile:          fc.LogFile,
		CSVLog:           fc.CSVLog,
	}

	if fc.StepMinutes < 1 {
		return nil, fmt.Errorf("STEP_MIN must be >= 1")
	}
	if fc.DaysAhead < 1 {
		return nil, fmt.Errorf("DAYS_AHEAD must be >= 1")
	}
	if fc.MaxChecksPerHour < 1 {
		return nil, fmt.Errorf("MAX_CHECKS_PER_HOUR must be >= 1")
	}
	if len(cfg.PartySizes) == 0 {
		return nil, fmt.Errorf("PARTY_SIZES required")
	}
	for _, p := range cfg.PartySizes {
		if p < 1 {
			return nil, fmt.Errorf("invalid party size %d", p)
		}
	}
	switch len(fc.StaggerMS) {
	case 0:
	case 2:
		if fc.StaggerMS[0] < 0 || fc.StaggerMS[1] < fc.StaggerMS[0] {
			return nil, fmt.Errorf("RANDOM_STAGGER_MS must be min,max with 0 <= min <= max")
		}
		cfg.StaggerMin = time.Duration(fc.StaggerMS[0]) * time.Millisecond
		cfg.StaggerMax = time.Duration(fc.StaggerMS[1]) * time.Millisecond
	default:
		return nil, fmt.Errorf("RANDOM_STAGGER_MS must be min,max")
	}

	defaultLoc, err := time.LoadLocation(fc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", fc.Timezone, err)
	}
	if len(fc.Venues) == 0 {
		return nil, fmt.Errorf("at least one venue (MERCHANT_ID) required")
	}
	for _, v := range fc.Venues {
		if v.MerchantID == "" {
			return nil, fmt.Errorf("venue merchant_id required")
		}
		loc := defaultLoc
		if v.Timezone != "" {
			if loc, err = time.LoadLocation(v.Timezone); err != nil {
				return nil, fmt.Errorf("venue %s timezone: %w", v.MerchantID, err)
			}
		}
		cfg.Venues = append(cfg.Venues, reservation.Venue{MerchantID: v.MerchantID, Name: v.Name, Location: loc})
	}

	if err := buildServices(cfg, fc.Services); err != nil {
		return nil, err
	}

	cfg.Notify = NotifyConfig{
		TitlePrefix:        fc.NotificationPrefix,
		URLTitle:           fc.URLTitle,
		PushoverUser:       strings.TrimSpace(e.get("PUSHOVER_USER")),
		PushoverToken:      strings.TrimSpace(e.get("PUSHOVER_TOKEN")),
		PushoverSound:      fc.PushoverSound,
		PushoverPriority:   fc.PushoverPriority,
		SlackWebhook:       strings.TrimSpace(e.get("SLACK_WEBHOOK")),
		MastodonServer:     strings.TrimSpace(e.get("MASTODON_SERVER")),
		MastodonToken:      strings.TrimSpace(e.get("MASTODON_TOKEN")),
		MastodonVisibility: fc.MastodonVisibility,
	}

	if cfg.State, err = buildState(fc.State, e); err != nil {
		return nil, err
	}

	vipLoc := cfg.Venues[0].Location
	windows, invalid := vip.ParseWindows(strings.Join(fc.VIPWindows, "\n"), vipLoc)
	cfg.VIP = VIPConfig{
		Windows:     windows,
		Invalid:     invalid,
		Renotify:    time.Duration(fc.VIPRenotifyMinutes) * time.Minute,
		TTL:         7 * 24 * time.Hour,
		TitlePrefix: "🔥💎 VIP TABLE ALERT 💎🔥",
		URLTitle:    "Book VIP Table NOW!",
		Sound:       "magic",
		Priority:    1,
	}
	if v := strings.TrimSpace(e.get("VIP_NOTIFICATION_PREFIX")); v != "" {
		cfg.VIP.TitlePrefix = v
	}
	return cfg, nil
}

func buildServices(cfg *Config, services map[string]*fileService) error {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	// dinner first, then lunch, then anything else alphabetically
	rank := map[string]int{"dinner": 0, "lunch": 1}
	sort.Slice(names, func(i, j int) bool {
		ri, iok := rank[names[i]]
		rj, jok := rank[names[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		fs := services[name]
		if fs == nil {
			continue
		}
		w, err := reservation.ParseWindow(fs.Window)
		if err != nil {
			return fmt.Errorf("%s window: %w", name, err)
		}
		if fs.TypeID == 0 {
			return fmt.Errorf("%s: reservation type id required", name)
		}
		svc := reservation.Service{
			Name:              displayName(name),
			TypeID:            fs.TypeID,
			Window:            w,
			DailyCap:          fs.DailyCap,
			NotifyMaxLeadDays: fs.NotifyMaxLeadDays,
			MaxLeadDays:       fs.MaxLeadDays,
		}
		cfg.AllServices = append(cfg.AllServices, svc)
		if fs.Enabled != nil && *fs.Enabled {
			cfg.Services = append(cfg.Services, svc)
		}
	}
	if len(cfg.Services) == 0 {
		return internaltypes.ErrNoServices
	}
	return nil
}

func buildState(fs fileState, e env) (StateConfig, error) {
	sc := StateConfig{
		Backend:     strings.ToLower(fs.Backend),
		Key:         fs.Key,
		TTL:         time.Duration(fs.TTLDays) * 24 * time.Hour,
		GistID:      strings.TrimSpace(e.get("GIST_ID")),
		GistToken:   strings.TrimSpace(e.get("GIST_TOKEN")),
		DatabaseURL: strings.TrimSpace(e.get("DATABASE_URL")),
		RedisURL:    strings.TrimSpace(e.get("REDIS_URL")),
		SQLitePath:  fs.SQLitePath,
	}
	if sc.Key == "" {
		return sc, fmt.Errorf("STATE_KEY must not be empty")
	}

	if sc.Backend == "" || sc.Backend == "auto" {
		switch {
		case sc.GistID != "" && sc.GistToken != "":
			sc.Backend = "gist"
		case sc.DatabaseURL != "":
			sc.Backend = "postgres"
		case sc.RedisURL != "":
			sc.Backend = "redis"
		case sc.SQLitePath != "":
			sc.Backend = "sqlite"
		default:
			sc.Backend = "memory"
		}
	}
	switch sc.Backend {
	case "gist", "postgres", "redis", "sqlite", "memory":
	default:
		return sc, fmt.Errorf("unknown STATE_BACKEND %q", sc.Backend)
	}

	var err error
	if sc.HashKey, err = optionalB64(e.get("STATE_HASH_KEY")); err != nil {
		return sc, fmt.Errorf("STATE_HASH_KEY: %w", err)
	}
	if sc.BlockKey, err = optionalB64(e.get("STATE_BLOCK_KEY")); err != nil {
		return sc, fmt.Errorf("STATE_BLOCK_KEY: %w", err)
	}
	if len(sc.BlockKey) > 0 && len(sc.HashKey) == 0 {
		return sc, errors.New("STATE_BLOCK_KEY requires STATE_HASH_KEY")
	}
	return sc, nil
}

func displayName(key string) string {
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
}

func optionalB64(v string) ([]byte, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(v)
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, p := range splitCSV(s) {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
