package main

import (
	"errors"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/star/orrery/internal/api"
	"github.com/star/orrery/internal/auth"
	"github.com/star/orrery/internal/cache"
	"github.com/star/orrery/internal/catalog"
	"github.com/star/orrery/internal/orbit"
	"github.com/star/orrery/internal/propagation"
	"github.com/star/orrery/internal/stream"
	"github.com/star/orrery/internal/transform"
)

// envName returns the environment variable a setting is read from.
func envName(key string) string {
	return "ORRERY_" + strings.ToUpper(key)
}

// intSetting reads an integer setting of at least min, warning and falling
// back to def on bad input.
func intSetting(v *viper.Viper, logger *slog.Logger, key string, def, min int) int {
	s := v.GetString(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min {
		logger.Warn("invalid "+envName(key)+" value, using default", "value", s, "default", def)
		return def
	}
	return n
}

// floatSetting reads a finite float setting in [min, max].
func floatSetting(v *viper.Viper, logger *slog.Logger, key string, def, min, max float64) float64 {
	s := v.GetString(key)
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !(f >= min && f <= max) {
		logger.Warn("invalid "+envName(key)+" value, using default", "value", s, "default", def)
		return def
	}
	return f
}

// secondsSetting reads a whole number of seconds, at least 1.
func secondsSetting(v *viper.Viper, logger *slog.Logger, key string, def time.Duration) time.Duration {
	return time.Duration(intSetting(v, logger, key, int(def/time.Second), 1)) * time.Second
}

func boolSetting(v *viper.Viper, logger *slog.Logger, key string, def bool) bool {
	s := v.GetString(key)
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		logger.Warn("invalid "+envName(key)+" value, using default", "value", s, "default", def)
		return def
	}
	return b
}

// listSetting reads a comma-separated list.
func listSetting(v *viper.Viper, key string) []string {
	var out []string
	for _, s := range strings.Split(v.GetString(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func loadAuthConfig(v *viper.Viper, logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	if s := v.GetString("auth_enabled"); s != "" {
		enabled, err := strconv.ParseBool(s)
		if err != nil {
			return cfg, errors.New("ORRERY_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = v.GetString("auth_token")
		if cfg.Token == "" {
			return cfg, errors.New("ORRERY_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

// catalogConfig configures the NEO catalog source, disk cache and overrides.
type catalogConfig struct {
	FetchEnabled    bool
	SourceURL       string
	ExtraURLs       []string
	Limit           int
	CacheDir        string
	MaxFiles        int
	OverridesPath   string
	RefreshInterval time.Duration
}

func loadCatalogConfig(v *viper.Viper, logger *slog.Logger) catalogConfig {
	cfg := catalogConfig{
		FetchEnabled:    boolSetting(v, logger, "neo_fetch_enabled", true),
		SourceURL:       v.GetString("neo_source_url"),
		ExtraURLs:       listSetting(v, "neo_extra_urls"),
		Limit:           intSetting(v, logger, "neo_limit", 0, 0),
		CacheDir:        v.GetString("catalog_cache_dir"),
		MaxFiles:        intSetting(v, logger, "catalog_cache_max_files", 5, 1),
		OverridesPath:   v.GetString("catalog_overrides"),
		RefreshInterval: secondsSetting(v, logger, "neo_refresh_interval", 24*time.Hour),
	}
	if cfg.SourceURL == "" {
		cfg.SourceURL = catalog.DefaultSourceURL
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = "/tmp/orrery/neo"
	}

	logger.Info("catalog config",
		"fetch_enabled", cfg.FetchEnabled,
		"source_url", cfg.SourceURL,
		"extra_urls", cfg.ExtraURLs,
		"limit", cfg.Limit,
		"cache_dir", cfg.CacheDir,
		"overrides", cfg.OverridesPath,
		"refresh_interval_seconds", cfg.RefreshInterval.Seconds(),
	)

	return cfg
}

// newRefresher builds the catalog refresher. A configured overrides file
// that cannot be loaded is a startup error.
func newRefresher(cfg catalogConfig, store *catalog.Store, logger *slog.Logger) (*catalog.Refresher, error) {
	logger = logger.With("component", "catalog")

	var overrides []catalog.Body
	if cfg.OverridesPath != "" {
		var err error
		overrides, err = catalog.LoadOverrides(cfg.OverridesPath)
		if err != nil {
			return nil, err
		}
		logger.Info("loaded catalog overrides", "path", cfg.OverridesPath, "count", len(overrides))
	}

	var fetcher *catalog.Fetcher
	if cfg.FetchEnabled {
		fetcher = catalog.NewFetcher(cfg.SourceURL, logger, cfg.ExtraURLs...)
	}

	return catalog.NewRefresher(store, fetcher, catalog.NewCache(cfg.CacheDir, cfg.MaxFiles), cfg.Limit, overrides, logger), nil
}

func loadClockSpeed(v *viper.Viper, logger *slog.Logger) float64 {
	speed := floatSetting(v, logger, "clock_speed", 1, -10000, 10000)
	logger.Info("clock config", "speed", speed)
	return speed
}

func loadPropConfig(v *viper.Viper, logger *slog.Logger) propagation.PropConfig {
	cfg := propagation.PropConfig{
		Workers: intSetting(v, logger, "prop_workers", runtime.NumCPU(), 1),
		Step:    secondsSetting(v, logger, "keyframe_step", 5*time.Second),
		Horizon: secondsSetting(v, logger, "keyframe_horizon", 600*time.Second),
		Scale:   floatSetting(v, logger, "orbit_scale", transform.DefaultOrbitScale, 1e-9, 1e9),

		KeplerMaxIter: intSetting(v, logger, "kepler_max_iter", orbit.MaxKeplerIterations, 1),
	}

	logger.Info("propagation config",
		"workers", cfg.Workers,
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"orbit_scale", cfg.Scale,
		"kepler_max_iter", cfg.KeplerMaxIter,
	)

	return cfg
}

func loadCacheConfig(v *viper.Viper, logger *slog.Logger, propCfg propagation.PropConfig) cache.Config {
	cfg := cache.Config{
		Step:        secondsSetting(v, logger, "cache_step", propCfg.Step),
		Horizon:     secondsSetting(v, logger, "cache_horizon", propCfg.Horizon),
		GracePeriod: secondsSetting(v, logger, "cache_grace_period", 30*time.Second),
		Buffer:      secondsSetting(v, logger, "cache_buffer", 60*time.Second),
	}

	logger.Info("cache config",
		"step_seconds", cfg.Step.Seconds(),
		"horizon_seconds", cfg.Horizon.Seconds(),
		"grace_period_seconds", cfg.GracePeriod.Seconds(),
		"buffer_seconds", cfg.Buffer.Seconds(),
	)

	return cfg
}

func loadStreamConfig(v *viper.Viper, logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: intSetting(v, logger, "stream_max_concurrent", 10, 1),
		MaxConcurrentTotal: intSetting(v, logger, "stream_max_total", 1000, 1),
		BandwidthLimit:     intSetting(v, logger, "stream_bandwidth_limit", 1048576, 0),
		KeepaliveInterval:  secondsSetting(v, logger, "stream_keepalive_interval", 30*time.Second),
		AllowedOrigins:     listSetting(v, "stream_allowed_origins"),
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"max_concurrent_total", cfg.MaxConcurrentTotal,
		"bandwidth_limit", cfg.BandwidthLimit,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"allowed_origins", cfg.AllowedOrigins,
	)

	return cfg
}

func loadRateLimitConfig(v *viper.Viper, logger *slog.Logger) api.RateLimitConfig {
	cfg := api.RateLimitConfig{
		RequestsPerSecond: floatSetting(v, logger, "api_rate_limit", 20, 0, 1e6),
		Burst:             intSetting(v, logger, "api_rate_burst", 40, 1),
	}

	logger.Info("rate limit config",
		"requests_per_second", cfg.RequestsPerSecond,
		"burst", cfg.Burst,
	)

	return cfg
}
