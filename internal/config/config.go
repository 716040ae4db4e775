// Package config loads and validates comparator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pmprecos/comparador/internal/cache"
	"github.com/pmprecos/comparador/internal/governor"
	"github.com/pmprecos/comparador/internal/match"
)

// Transport kinds a store can be configured with.
const (
	TransportStatic  = "static"
	TransportBrowser = "browser"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Feed     FeedConfig             `mapstructure:"feed"`
	Report   ReportConfig           `mapstructure:"report"`
	Cache    CacheConfig            `mapstructure:"cache"`
	Governor GovernorConfig         `mapstructure:"governor"`
	Retry    RetryConfig            `mapstructure:"retry"`
	Browser  BrowserConfig          `mapstructure:"browser"`
	Stores   map[string]StoreConfig `mapstructure:"stores"`
	Match    match.Config           `mapstructure:"match"`
	Logging  LoggingConfig          `mapstructure:"logging"`
}

// FeedConfig locates the product feed.
type FeedConfig struct {
	Path string `mapstructure:"path"`
}

// ReportConfig controls workbook output.
type ReportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// CacheConfig sets the on-disk cache location and outcome TTLs.
type CacheConfig struct {
	Dir             string `mapstructure:"dir"`
	FoundTTLDays    int    `mapstructure:"found_ttl_days"`
	NotFoundTTLDays int    `mapstructure:"not_found_ttl_days"`
}

// GovernorConfig paces navigation per store.
type GovernorConfig struct {
	MinGapMs         int     `mapstructure:"min_gap_ms"`
	JitterMinMs      int     `mapstructure:"jitter_min_ms"`
	JitterMaxMs      int     `mapstructure:"jitter_max_ms"`
	SlowMultiplier   float64 `mapstructure:"slow_multiplier"`
	WindowSize       int     `mapstructure:"window_size"`
	MinSamples       int     `mapstructure:"min_samples"`
	FailureThreshold float64 `mapstructure:"failure_threshold"`
}

// RetryConfig bounds per-URL retries.
type RetryConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// BrowserConfig configures both transports.
type BrowserConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	Headful        bool   `mapstructure:"headful"`
}

// StoreConfig describes one storefront.
type StoreConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	Transport string `mapstructure:"transport"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("COMPARADOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("feed.path", "feed.xml")
	v.SetDefault("report.output_dir", ".")
	v.SetDefault("cache.dir", "cache")
	v.SetDefault("cache.found_ttl_days", 10)
	v.SetDefault("cache.not_found_ttl_days", 4)
	v.SetDefault("governor.min_gap_ms", 7500)
	v.SetDefault("governor.jitter_min_ms", 700)
	v.SetDefault("governor.jitter_max_ms", 1500)
	v.SetDefault("governor.slow_multiplier", 2.0)
	v.SetDefault("governor.window_size", 20)
	v.SetDefault("governor.min_samples", 10)
	v.SetDefault("governor.failure_threshold", 0.30)
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.backoff_initial_ms", 1000)
	v.SetDefault("retry.backoff_max_ms", 8000)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36")
	v.SetDefault("browser.timeout_seconds", 45)
	v.SetDefault("browser.headful", false)
	v.SetDefault("logging.development", true)
	m := match.DefaultConfig()
	v.SetDefault("match.sku_exact_confidence", m.SKUExactConfidence)
	v.SetDefault("match.code_exact_confidence", m.CodeExactConfidence)
	v.SetDefault("match.url_match_confidence", m.URLMatchConfidence)
	v.SetDefault("match.composite_base_confidence", m.CompositeBaseConfidence)
	v.SetDefault("match.composite_part_bonus", m.CompositePartBonus)
	v.SetDefault("match.composite_max_confidence", m.CompositeMaxConfidence)
	v.SetDefault("match.partial_base_confidence", m.PartialBaseConfidence)
	v.SetDefault("match.partial_per_match_bonus", m.PartialPerMatchBonus)
	v.SetDefault("match.kit_reject_confidence", m.KitRejectConfidence)
	v.SetDefault("match.min_part_length", m.MinPartLength)
	v.SetDefault("match.fuzzy_min_token_length", m.FuzzyMinTokenLength)
	v.SetDefault("match.fuzzy_length_tolerance", m.FuzzyLengthTolerance)
	v.SetDefault("match.fuzzy_oversize_score", m.FuzzyOversizeScore)
	v.SetDefault("match.fuzzy_oversize_penalty", m.FuzzyOversizePenalty)
	v.SetDefault("match.fuzzy_accept_score", m.FuzzyAcceptScore)
	v.SetDefault("match.fuzzy_base_confidence", m.FuzzyBaseConfidence)
	v.SetDefault("match.fuzzy_score_weight", m.FuzzyScoreWeight)
	v.SetDefault("match.fuzzy_valid_confidence", m.FuzzyValidConfidence)
	v.SetDefault("stores.emmoto.enabled", true)
	v.SetDefault("stores.emmoto.base_url", "https://em-moto.com/")
	v.SetDefault("stores.emmoto.transport", TransportStatic)
	v.SetDefault("stores.omniaracing.enabled", true)
	v.SetDefault("stores.omniaracing.base_url", "https://www.omniaracing.net/")
	v.SetDefault("stores.omniaracing.transport", TransportBrowser)
	v.SetDefault("stores.genialmotor.enabled", true)
	v.SetDefault("stores.genialmotor.base_url", "https://www.genialmotor.it/")
	v.SetDefault("stores.genialmotor.transport", TransportStatic)
	v.SetDefault("stores.jbsmotos.enabled", true)
	v.SetDefault("stores.jbsmotos.base_url", "https://jbs-motos.pt/")
	v.SetDefault("stores.jbsmotos.transport", TransportStatic)
	v.SetDefault("stores.wrs.enabled", true)
	v.SetDefault("stores.wrs.base_url", "https://www.wrs.it/")
	v.SetDefault("stores.wrs.transport", TransportBrowser)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Cache.FoundTTLDays <= 0 || c.Cache.NotFoundTTLDays <= 0 {
		return fmt.Errorf("cache TTLs must be > 0")
	}
	if c.Governor.MinGapMs <= 0 {
		return fmt.Errorf("governor.min_gap_ms must be > 0")
	}
	if c.Governor.JitterMaxMs < c.Governor.JitterMinMs {
		return fmt.Errorf("governor.jitter_max_ms must be >= governor.jitter_min_ms")
	}
	if c.Governor.FailureThreshold <= 0 || c.Governor.FailureThreshold >= 1 {
		return fmt.Errorf("governor.failure_threshold must be in (0, 1)")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Browser.TimeoutSeconds <= 0 {
		return fmt.Errorf("browser.timeout_seconds must be > 0")
	}
	if c.Match.FuzzyAcceptScore <= 0 || c.Match.FuzzyAcceptScore > 1 {
		return fmt.Errorf("match.fuzzy_accept_score must be in (0, 1]")
	}
	for name, store := range c.Stores {
		if !store.Enabled {
			continue
		}
		if store.BaseURL == "" {
			return fmt.Errorf("stores.%s.base_url must be set", name)
		}
		if store.Transport != TransportStatic && store.Transport != TransportBrowser {
			return fmt.Errorf("stores.%s.transport must be %q or %q", name, TransportStatic, TransportBrowser)
		}
	}
	return nil
}

// GovernorSettings converts the millisecond knobs into a governor config.
func (c Config) GovernorSettings() governor.Config {
	return governor.Config{
		MinGap:           time.Duration(c.Governor.MinGapMs) * time.Millisecond,
		JitterMin:        time.Duration(c.Governor.JitterMinMs) * time.Millisecond,
		JitterMax:        time.Duration(c.Governor.JitterMaxMs) * time.Millisecond,
		SlowMultiplier:   c.Governor.SlowMultiplier,
		WindowSize:       c.Governor.WindowSize,
		MinSamples:       c.Governor.MinSamples,
		FailureThreshold: c.Governor.FailureThreshold,
	}
}

// CacheSettings converts the cache knobs into a cache config.
func (c Config) CacheSettings() cache.Config {
	return cache.Config{
		Dir:             c.Cache.Dir,
		FoundTTLDays:    c.Cache.FoundTTLDays,
		NotFoundTTLDays: c.Cache.NotFoundTTLDays,
	}
}

// BrowserTimeout is the per-navigation transport budget.
func (c Config) BrowserTimeout() time.Duration {
	return time.Duration(c.Browser.TimeoutSeconds) * time.Second
}
