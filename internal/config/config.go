// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper. The
// crawl core consumes these values; it has no file or CLI surface of its
// own.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Source    SourceConfig    `mapstructure:"source"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Breaker   BreakerConfig   `mapstructure:"breaker"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	DB        DBConfig        `mapstructure:"db"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// SourceConfig identifies the upstream site and how to talk to it.
type SourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	Referer        string `mapstructure:"referer"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// PageConfig names one ranking page to crawl.
type PageConfig struct {
	ID      string `mapstructure:"id"`
	Channel string `mapstructure:"channel"`
}

// CrawlerConfig governs the scheduler, workers, and fan-out bound.
type CrawlerConfig struct {
	Concurrency     int          `mapstructure:"concurrency"`
	Workers         int          `mapstructure:"workers"`
	QueueDepth      int          `mapstructure:"queue_depth"`
	IntervalMinutes int          `mapstructure:"interval_minutes"`
	Pages           []PageConfig `mapstructure:"pages"`
}

// RetryConfig configures per-request retry behavior.
type RetryConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// BreakerConfig controls the circuit breaker cooldown. The right value is
// a property of the live source's anti-bot posture, not of this design,
// which is why it is configuration rather than a constant.
type BreakerConfig struct {
	CooldownSeconds int `mapstructure:"cooldown_seconds"`
}

// RateLimitConfig caps the outbound request rate.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("JJCRAWLER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("source.base_url", "https://app.jjwxc.net")
	v.SetDefault("source.timeout_seconds", 15)
	v.SetDefault("crawler.concurrency", 5)
	v.SetDefault("crawler.workers", 2)
	v.SetDefault("crawler.queue_depth", 32)
	v.SetDefault("crawler.interval_minutes", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.backoff_initial_ms", 1000)
	v.SetDefault("retry.backoff_max_ms", 10000)
	v.SetDefault("breaker.cooldown_seconds", 25)
	v.SetDefault("ratelimit.rps", 4)
	v.SetDefault("ratelimit.burst", 2)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url is required")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if c.Breaker.CooldownSeconds <= 0 {
		return fmt.Errorf("breaker.cooldown_seconds must be > 0")
	}
	for i, page := range c.Crawler.Pages {
		if page.ID == "" || page.Channel == "" {
			return fmt.Errorf("crawler.pages[%d] must set id and channel", i)
		}
	}
	return nil
}

// SourceTimeout converts the HTTP timeout into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// BreakerCooldown converts the breaker cooldown into a duration.
func (c Config) BreakerCooldown() time.Duration {
	return time.Duration(c.Breaker.CooldownSeconds) * time.Second
}

// CrawlInterval converts the schedule interval into a duration.
func (c Config) CrawlInterval() time.Duration {
	return time.Duration(c.Crawler.IntervalMinutes) * time.Minute
}

// RetryBackoffInitial converts the initial backoff into a duration.
func (c Config) RetryBackoffInitial() time.Duration {
	return time.Duration(c.Retry.BackoffInitialMs) * time.Millisecond
}

// RetryBackoffMax converts the backoff cap into a duration.
func (c Config) RetryBackoffMax() time.Duration {
	return time.Duration(c.Retry.BackoffMaxMs) * time.Millisecond
}
