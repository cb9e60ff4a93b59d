// Package config loads process configuration from an optional YAML file plus
// CINEVIEW_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Cache     CacheConfig     `mapstructure:"cache"`
	TMDB      ProviderConfig  `mapstructure:"tmdb"`
	Watchmode ProviderConfig  `mapstructure:"watchmode"`
	Languages LanguagesConfig `mapstructure:"languages"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr               string   `mapstructure:"addr"`
	CORSOrigins        []string `mapstructure:"cors_origins"`
	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
	RateLimitBurst     int      `mapstructure:"rate_limit_burst"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig drives both cache tiers. SoftTTLHours is the preferred freshness
// window of the shared file tier, HardTTLHours the fail-safe maximum age.
// StableIDMultiplier scales both for the id-mapping cache, which holds values
// that rarely change.
type CacheConfig struct {
	Dir                string `mapstructure:"dir"`
	MemoryTTLMinutes   int    `mapstructure:"memory_ttl_minutes"`
	MemorySize         int    `mapstructure:"memory_size"`
	SoftTTLHours       int    `mapstructure:"soft_ttl_hours"`
	HardTTLHours       int    `mapstructure:"hard_ttl_hours"`
	SoftTimeoutMs      int    `mapstructure:"soft_timeout_ms"`
	StableIDMultiplier int    `mapstructure:"stable_id_multiplier"`
}

// ProviderConfig is shared by the TMDB and Watchmode clients. BaseURL is
// overridable so tests can point the client at an httptest server.
type ProviderConfig struct {
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	Retries      int    `mapstructure:"retries"`
	RetryDelayMs int    `mapstructure:"retry_delay_ms"`
}

type LanguagesConfig struct {
	Default   string   `mapstructure:"default"`
	Supported []string `mapstructure:"supported"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_per_minute", 120)
	v.SetDefault("server.rate_limit_burst", 30)
	v.SetDefault("database.path", "data/cineview.db")
	v.SetDefault("cache.dir", "data/cache")
	v.SetDefault("cache.memory_ttl_minutes", 5)
	v.SetDefault("cache.memory_size", 2048)
	v.SetDefault("cache.soft_ttl_hours", 6)
	v.SetDefault("cache.hard_ttl_hours", 72)
	v.SetDefault("cache.soft_timeout_ms", 500)
	v.SetDefault("cache.stable_id_multiplier", 7)
	// Secrets have no real default; registering the keys lets AutomaticEnv
	// surface them through Unmarshal.
	v.SetDefault("tmdb.api_key", "")
	v.SetDefault("watchmode.api_key", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.file", "")
	v.SetDefault("tmdb.base_url", "https://api.themoviedb.org/3")
	v.SetDefault("tmdb.retries", 3)
	v.SetDefault("tmdb.retry_delay_ms", 300)
	v.SetDefault("watchmode.base_url", "https://api.watchmode.com/v1")
	v.SetDefault("watchmode.retries", 3)
	v.SetDefault("watchmode.retry_delay_ms", 300)
	v.SetDefault("languages.default", "en-US")
	v.SetDefault("languages.supported", []string{"en-US", "uk-UA"})
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
}

// Load reads configuration from path (optional, "" skips the file) and the
// environment. Environment keys are upper-cased with dots replaced by
// underscores, e.g. CINEVIEW_TMDB_API_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("cineview")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Languages.Default == "" {
		return fmt.Errorf("languages.default must not be empty")
	}
	for _, lang := range c.Languages.Supported {
		if lang == c.Languages.Default {
			return nil
		}
	}
	return fmt.Errorf("languages.supported must include the default language %q", c.Languages.Default)
}

// MemoryTTL returns the in-process tier TTL.
func (c CacheConfig) MemoryTTL() time.Duration {
	return time.Duration(c.MemoryTTLMinutes) * time.Minute
}

// SoftTTL returns the preferred freshness window of the file tier.
func (c CacheConfig) SoftTTL() time.Duration {
	return time.Duration(c.SoftTTLHours) * time.Hour
}

// HardTTL returns the fail-safe maximum servable age.
func (c CacheConfig) HardTTL() time.Duration {
	return time.Duration(c.HardTTLHours) * time.Hour
}

// SoftTimeout returns how long a caller waits for a fresh value before falling
// back to stale data.
func (c CacheConfig) SoftTimeout() time.Duration {
	return time.Duration(c.SoftTimeoutMs) * time.Millisecond
}

// RetryDelay returns the fixed backoff between upstream retry attempts.
func (c ProviderConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}
