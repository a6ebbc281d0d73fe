// Package config loads orbitview settings from defaults, an optional config
// file and ORBITVIEW_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/star/orbitview/internal/elements"
	"github.com/star/orbitview/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. ORBITVIEW_HTTP_ADDR.
const EnvPrefix = "ORBITVIEW"

// ConfigEnv names the environment variable holding a config file path.
const ConfigEnv = "ORBITVIEW_CONFIG"

// HTTP configures the listener.
type HTTP struct {
	Addr       string
	TrustProxy bool
}

// Auth configures bearer-token protection of mutating routes.
type Auth struct {
	Enabled bool
	Token   string
}

// Elements configures the element set provider.
type Elements struct {
	Groups       []string // groups loaded at startup
	SourceURL    string
	CacheDir     string
	MaxFiles     int
	MaxAge       time.Duration
	FetchEnabled bool
	RateLimit    time.Duration
	MaxRetries   int
	RetryAfter   time.Duration // wait after a failed fetch before trying again
}

// Orbit configures the model and its renderer mapping.
type Orbit struct {
	BodyRadiusKm  float64
	DisplayRadius float64
	SpeedConstant float64
	Segments      int
}

// Stream configures SSE position frames.
type Stream struct {
	MaxConcurrentPerIP int
	MaxTotal           int
	Interval           time.Duration
	KeepaliveInterval  time.Duration
}

// Tracker configures the tick worker pool and path cache.
type Tracker struct {
	Workers           int
	ParallelThreshold int
	WarmPaths         bool
	PathCacheEntries  int
	PathCacheIdleTTL  time.Duration
}

// Markers configures the globe markers.
type Markers struct {
	SeedSamples bool
}

// Log configures the process logger.
type Log struct {
	Level  string
	Format string
}

// Config is the full service configuration.
type Config struct {
	HTTP     HTTP
	Auth     Auth
	Elements Elements
	Orbit    Orbit
	Stream   Stream
	Tracker  Tracker
	Markers  Markers
	Log      Log
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		HTTP: HTTP{Addr: ":8080"},
		Elements: Elements{
			Groups:       []string{elements.DefaultGroup},
			SourceURL:    elements.DefaultSourceURL,
			CacheDir:     "/tmp/orbitview/elements",
			MaxFiles:     5,
			MaxAge:       elements.DefaultMaxAge,
			FetchEnabled: true,
			RateLimit:    2 * time.Second,
			MaxRetries:   3,
			RetryAfter:   elements.DefaultRetryAfter,
		},
		Orbit: Orbit{
			BodyRadiusKm:  6371,
			DisplayRadius: 5,
			SpeedConstant: 6e-5,
			Segments:      200,
		},
		Stream: Stream{
			MaxConcurrentPerIP: 10,
			MaxTotal:           1000,
			Interval:           100 * time.Millisecond,
			KeepaliveInterval:  30 * time.Second,
		},
		Tracker: Tracker{
			ParallelThreshold: 512,
			WarmPaths:         true,
			PathCacheEntries:  4096,
			PathCacheIdleTTL:  30 * time.Minute,
		},
		Markers: Markers{SeedSamples: true},
		Log:     Log{Level: "info", Format: "json"},
	}
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.trust_proxy", d.HTTP.TrustProxy)
	v.SetDefault("auth.enabled", d.Auth.Enabled)
	v.SetDefault("auth.token", d.Auth.Token)
	v.SetDefault("elements.groups", d.Elements.Groups)
	v.SetDefault("elements.source_url", d.Elements.SourceURL)
	v.SetDefault("elements.cache_dir", d.Elements.CacheDir)
	v.SetDefault("elements.max_files", d.Elements.MaxFiles)
	v.SetDefault("elements.max_age", d.Elements.MaxAge)
	v.SetDefault("elements.fetch_enabled", d.Elements.FetchEnabled)
	v.SetDefault("elements.rate_limit", d.Elements.RateLimit)
	v.SetDefault("elements.max_retries", d.Elements.MaxRetries)
	v.SetDefault("elements.retry_after", d.Elements.RetryAfter)
	v.SetDefault("orbit.body_radius_km", d.Orbit.BodyRadiusKm)
	v.SetDefault("orbit.display_radius", d.Orbit.DisplayRadius)
	v.SetDefault("orbit.speed_constant", d.Orbit.SpeedConstant)
	v.SetDefault("orbit.segments", d.Orbit.Segments)
	v.SetDefault("stream.max_concurrent_per_ip", d.Stream.MaxConcurrentPerIP)
	v.SetDefault("stream.max_total", d.Stream.MaxTotal)
	v.SetDefault("stream.interval", d.Stream.Interval)
	v.SetDefault("stream.keepalive_interval", d.Stream.KeepaliveInterval)
	v.SetDefault("tracker.workers", d.Tracker.Workers)
	v.SetDefault("tracker.parallel_threshold", d.Tracker.ParallelThreshold)
	v.SetDefault("tracker.warm_paths", d.Tracker.WarmPaths)
	v.SetDefault("tracker.path_cache_entries", d.Tracker.PathCacheEntries)
	v.SetDefault("tracker.path_cache_idle_ttl", d.Tracker.PathCacheIdleTTL)
	v.SetDefault("markers.seed_samples", d.Markers.SeedSamples)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply. Invalid values fall back to their defaults and
// are reported as warnings; an unreadable file or an enabled auth without a
// token is an error.
func Load(path string) (Config, []string, error) {
	v := viper.New()
	d := Defaults()
	setDefaults(v, d)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	r := reader{v: v}
	cfg := Config{
		HTTP: HTTP{
			Addr:       r.str("http.addr", d.HTTP.Addr),
			TrustProxy: r.boolean("http.trust_proxy", d.HTTP.TrustProxy),
		},
		Auth: Auth{
			Enabled: r.boolean("auth.enabled", d.Auth.Enabled),
			Token:   v.GetString("auth.token"),
		},
		Elements: Elements{
			Groups:       r.groups("elements.groups", d.Elements.Groups),
			SourceURL:    r.str("elements.source_url", d.Elements.SourceURL),
			CacheDir:     r.str("elements.cache_dir", d.Elements.CacheDir),
			MaxFiles:     r.positiveInt("elements.max_files", d.Elements.MaxFiles),
			MaxAge:       r.duration("elements.max_age", d.Elements.MaxAge, time.Minute),
			FetchEnabled: r.boolean("elements.fetch_enabled", d.Elements.FetchEnabled),
			RateLimit:    r.duration("elements.rate_limit", d.Elements.RateLimit, 0),
			MaxRetries:   r.positiveInt("elements.max_retries", d.Elements.MaxRetries),
			RetryAfter:   r.duration("elements.retry_after", d.Elements.RetryAfter, time.Second),
		},
		Orbit: Orbit{
			BodyRadiusKm:  r.positiveFloat("orbit.body_radius_km", d.Orbit.BodyRadiusKm),
			DisplayRadius: r.positiveFloat("orbit.display_radius", d.Orbit.DisplayRadius),
			SpeedConstant: r.positiveFloat("orbit.speed_constant", d.Orbit.SpeedConstant),
			Segments:      r.intAtLeast("orbit.segments", d.Orbit.Segments, 3),
		},
		Stream: Stream{
			MaxConcurrentPerIP: r.positiveInt("stream.max_concurrent_per_ip", d.Stream.MaxConcurrentPerIP),
			MaxTotal:           r.positiveInt("stream.max_total", d.Stream.MaxTotal),
			Interval:           r.duration("stream.interval", d.Stream.Interval, 16*time.Millisecond),
			KeepaliveInterval:  r.duration("stream.keepalive_interval", d.Stream.KeepaliveInterval, time.Second),
		},
		Tracker: Tracker{
			Workers:           r.intAtLeast("tracker.workers", d.Tracker.Workers, 0),
			ParallelThreshold: r.positiveInt("tracker.parallel_threshold", d.Tracker.ParallelThreshold),
			WarmPaths:         r.boolean("tracker.warm_paths", d.Tracker.WarmPaths),
			PathCacheEntries:  r.positiveInt("tracker.path_cache_entries", d.Tracker.PathCacheEntries),
			PathCacheIdleTTL:  r.duration("tracker.path_cache_idle_ttl", d.Tracker.PathCacheIdleTTL, time.Second),
		},
		Markers: Markers{
			SeedSamples: r.boolean("markers.seed_samples", d.Markers.SeedSamples),
		},
		Log: Log{
			Level:  r.level("log.level", d.Log.Level),
			Format: r.oneOf("log.format", d.Log.Format, "json", "text"),
		},
	}

	if cfg.Auth.Enabled && cfg.Auth.Token == "" {
		return cfg, r.warnings, errors.New("auth.token is required when auth is enabled")
	}
	return cfg, r.warnings, nil
}

// reader reads typed values and records a warning whenever it falls back.
type reader struct {
	v        *viper.Viper
	warnings []string
}

func (r *reader) warn(key string, value any, def any) {
	r.warnings = append(r.warnings, fmt.Sprintf("invalid %s value %q, using default %v", key, fmt.Sprint(value), def))
}

func (r *reader) str(key, def string) string {
	s := strings.TrimSpace(r.v.GetString(key))
	if s == "" {
		return def
	}
	return s
}

func (r *reader) boolean(key string, def bool) bool {
	raw := r.v.Get(key)
	if b, ok := raw.(bool); ok {
		return b
	}
	switch strings.ToLower(strings.TrimSpace(fmt.Sprint(raw))) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	}
	r.warn(key, raw, def)
	return def
}

func (r *reader) intAtLeast(key string, def, least int) int {
	raw := r.v.Get(key)
	n, err := toInt(raw)
	if err != nil || n < least {
		r.warn(key, raw, def)
		return def
	}
	return n
}

func (r *reader) positiveInt(key string, def int) int {
	return r.intAtLeast(key, def, 1)
}

func (r *reader) positiveFloat(key string, def float64) float64 {
	raw := r.v.Get(key)
	f, err := toFloat(raw)
	if err != nil || !(f > 0) || math.IsInf(f, 0) {
		r.warn(key, raw, def)
		return def
	}
	return f
}

// duration accepts Go duration strings ("90s", "24h") or a bare number
// of seconds.
func (r *reader) duration(key string, def, least time.Duration) time.Duration {
	raw := r.v.Get(key)
	d, err := toDuration(raw)
	if err != nil || d < least {
		r.warn(key, raw, def)
		return def
	}
	return d
}

func (r *reader) level(key, def string) string {
	s := r.str(key, def)
	if !logging.ValidLevel(s) {
		r.warn(key, s, def)
		return def
	}
	return strings.ToLower(s)
}

func (r *reader) oneOf(key, def string, allowed ...string) string {
	s := strings.ToLower(r.str(key, def))
	for _, a := range allowed {
		if s == a {
			return s
		}
	}
	r.warn(key, s, def)
	return def
}

// groups accepts a list or a comma separated string. Unknown groups are
// dropped with a warning.
func (r *reader) groups(key string, def []string) []string {
	var names []string
	switch raw := r.v.Get(key).(type) {
	case []string:
		names = raw
	case []any:
		for _, n := range raw {
			names = append(names, fmt.Sprint(n))
		}
	case string:
		names = strings.Split(raw, ",")
	}

	var out []string
	seen := make(map[string]bool)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		if !elements.IsKnownGroup(n) {
			r.warnings = append(r.warnings, fmt.Sprintf("ignoring unknown group %q in %s", n, key))
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
