// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

// EnvPrefix namespaces environment overrides, e.g. ARCHIVER_CRAWL_CONCURRENCY.
const EnvPrefix = "ARCHIVER"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Sink    SinkConfig    `mapstructure:"sink"`
	Publish PublishConfig `mapstructure:"publish"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SourceConfig locates the forum. An empty BaseURL is derived from each thread link.
type SourceConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	ChallengeDomain string `mapstructure:"challenge_domain"`
	// ChallengeDomainFromHost adds the thread host's length when ChallengeDomain is empty.
	ChallengeDomainFromHost bool `mapstructure:"challenge_domain_from_host"`
}

// HTTPConfig configures the fetcher, rate limiter and retry behavior.
type HTTPConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
}

// CrawlConfig governs the page pool and error policy.
type CrawlConfig struct {
	Concurrency          int  `mapstructure:"concurrency"`
	FailFast             bool `mapstructure:"fail_fast"`
	MaxChallengeAttempts int  `mapstructure:"max_challenge_attempts"`
	MaxPages             int  `mapstructure:"max_pages"`
}

// SinkConfig selects and locates the export sink.
type SinkConfig struct {
	Name     string `mapstructure:"name"`
	Output   string `mapstructure:"output"`
	Database string `mapstructure:"database"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Table    string `mapstructure:"table"`
}

// PublishConfig holds metadata for post notifications.
type PublishConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the status server when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// MonitorConfig schedules repeated runs.
type MonitorConfig struct {
	Schedule string `mapstructure:"schedule"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Binding ties a command-line flag to a configuration key.
type Binding struct {
	Key  string
	Flag *pflag.Flag
}

// Load builds a Config from defaults, an optional file, .env, the
// environment and bound flags, in increasing order of precedence.
func Load(path string, bindings ...Binding) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("%w: load .env: %v", crawler.ErrConfiguration, err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: read config: %v", crawler.ErrConfiguration, err)
		}
	}

	for _, b := range bindings {
		if b.Flag == nil {
			continue
		}
		if err := v.BindPFlag(b.Key, b.Flag); err != nil {
			return Config{}, fmt.Errorf("bind flag %s: %w", b.Flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: unmarshal config: %v", crawler.ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "")
	v.SetDefault("source.challenge_domain", "facepunch.com")
	v.SetDefault("source.challenge_domain_from_host", false)
	v.SetDefault("http.user_agent", "")
	v.SetDefault("http.timeout", 15*time.Second)
	v.SetDefault("http.requests_per_second", 2.0)
	v.SetDefault("http.burst", 2)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial", 250*time.Millisecond)
	v.SetDefault("http.backoff_max", 5*time.Second)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.fail_fast", false)
	v.SetDefault("crawl.max_challenge_attempts", 3)
	v.SetDefault("crawl.max_pages", 10000)
	v.SetDefault("sink.name", "json")
	v.SetDefault("sink.output", "")
	v.SetDefault("sink.database", "")
	v.SetDefault("sink.bucket", "")
	v.SetDefault("sink.prefix", "")
	v.SetDefault("sink.table", "posts")
	v.SetDefault("publish.project_id", "")
	v.SetDefault("publish.topic", "")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("monitor.schedule", "@hourly")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", crawler.ErrConfiguration, fmt.Sprintf(format, args...))
	}
	if c.Source.BaseURL != "" {
		u, err := url.Parse(c.Source.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("source.base_url %q must be an http(s) URL", c.Source.BaseURL)
		}
	}
	if c.HTTP.Timeout <= 0 {
		return invalid("http.timeout must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return invalid("http.requests_per_second must be >= 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return invalid("http.max_retries must be >= 0")
	}
	if c.HTTP.BackoffMax < c.HTTP.BackoffInitial {
		return invalid("http.backoff_max must be >= http.backoff_initial")
	}
	if c.Crawl.Concurrency <= 0 {
		return invalid("crawl.concurrency must be > 0")
	}
	if c.Crawl.MaxChallengeAttempts <= 0 {
		return invalid("crawl.max_challenge_attempts must be > 0")
	}
	if c.Crawl.MaxPages <= 0 {
		return invalid("crawl.max_pages must be > 0")
	}
	if strings.TrimSpace(c.Sink.Name) == "" {
		return invalid("sink.name must be set")
	}
	if c.Publish.ProjectID != "" && c.Publish.Topic == "" {
		return invalid("publish.topic must be set when publish.project_id is set")
	}
	return nil
}

// RetryConfig converts the HTTP retry settings for the retry policy.
func (c Config) RetryConfig() crawler.RetryConfig {
	return crawler.RetryConfig{
		MaxAttempts: c.HTTP.MaxRetries,
		BaseDelay:   c.HTTP.BackoffInitial,
		MaxDelay:    c.HTTP.BackoffMax,
	}
}
