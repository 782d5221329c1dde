// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/lastplayed-crawler/internal/crawler"
)

// EnvPrefix is prepended to every environment override, e.g. LASTPLAYED_STATE_PATH.
const EnvPrefix = "LASTPLAYED"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source  SourceConfig  `mapstructure:"source"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	State   StateConfig   `mapstructure:"state"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Export  ExportConfig  `mapstructure:"export"`
}

// SourceConfig describes the listing being crawled and how to talk to it.
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Warmup         bool          `mapstructure:"warmup"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// CrawlerConfig governs the page walk.
type CrawlerConfig struct {
	PagePause       time.Duration `mapstructure:"page_pause"`
	CheckpointEvery int           `mapstructure:"checkpoint_every"`
	PageLowerBound  int           `mapstructure:"page_lower_bound"`
	PageUpperBound  int           `mapstructure:"page_upper_bound"`
}

// StateConfig locates the song database file.
type StateConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig enables the optional metrics outputs. Empty values disable them.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	Textfile   string `mapstructure:"textfile"`
}

// ExportConfig controls the Postgres export.
type ExportConfig struct {
	DSN            string `mapstructure:"dsn"`
	SongsTable     string `mapstructure:"songs_table"`
	ConflictsTable string `mapstructure:"conflicts_table"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
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
	v.SetDefault("source.base_url", "https://r-a-d.io/last-played")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:58.0) Gecko/20100101 Firefox/58.0")
	v.SetDefault("source.request_timeout", 30*time.Second)
	v.SetDefault("source.warmup", true)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.backoff_initial", 250*time.Millisecond)
	v.SetDefault("source.backoff_max", 5*time.Second)
	v.SetDefault("crawler.page_pause", 300*time.Millisecond)
	v.SetDefault("crawler.checkpoint_every", crawler.DefaultCheckpointEvery)
	v.SetDefault("crawler.page_lower_bound", crawler.DefaultLowerBound)
	v.SetDefault("crawler.page_upper_bound", crawler.DefaultUpperBound)
	v.SetDefault("state.path", "songs_db.json")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("export.dsn", "")
	v.SetDefault("export.songs_table", "played_songs")
	v.SetDefault("export.conflicts_table", "played_song_conflicts")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Source.BaseURL)
	if c.Source.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.base_url must be an absolute URL, got %q", c.Source.BaseURL)
	}
	if c.Source.RequestTimeout <= 0 {
		return fmt.Errorf("source.request_timeout must be > 0")
	}
	if c.Source.MaxRetries <= 0 {
		return fmt.Errorf("source.max_retries must be > 0")
	}
	if c.Source.BackoffMax < c.Source.BackoffInitial {
		return fmt.Errorf("source.backoff_max must be >= source.backoff_initial")
	}
	if c.Crawler.PagePause < 0 {
		return fmt.Errorf("crawler.page_pause must be >= 0")
	}
	if err := c.Engine().Validate(); err != nil {
		return err
	}
	if c.State.Path == "" {
		return fmt.Errorf("state.path must be set")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	return nil
}

// Engine maps the crawler section onto the engine's own configuration.
func (c Config) Engine() crawler.Config {
	return crawler.Config{
		Window: crawler.PageWindow{
			Lower: c.Crawler.PageLowerBound,
			Upper: c.Crawler.PageUpperBound,
		},
		CheckpointEvery: c.Crawler.CheckpointEvery,
	}
}

// Retry converts the source retry settings into a retry policy configuration.
func (c Config) Retry() crawler.RetryConfig {
	return crawler.RetryConfig{
		MaxAttempts: c.Source.MaxRetries,
		BaseDelay:   c.Source.BackoffInitial,
		MaxDelay:    c.Source.BackoffMax,
	}
}
