// Package config provides configuration management for the indexing pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid wraps fatal configuration problems detected at startup.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all configuration for the pipeline.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	YouTube YouTubeConfig
	Indexer IndexerConfig
	Matcher MatcherConfig
	Enricher EnricherConfig
	Paths   PathsConfig
	Server  ServerConfig
	Logging LoggingConfig
}

// YouTubeConfig governs all upstream calls.
type YouTubeConfig struct {
	APIKey            string
	QuotaLimit        int
	RequestsPerSecond float64
	RequestTimeout    time.Duration
}

// IndexerConfig controls the channel-first index build.
type IndexerConfig struct {
	HistoryYears       int
	ChannelConcurrency int
}

// MatcherConfig controls per-opening match selection.
type MatcherConfig struct {
	MaxResults int
	MinScore   int
}

// EnricherConfig controls batch enrichment.
type EnricherConfig struct {
	BatchSize int
	CacheTTL  time.Duration
}

// PathsConfig locates the persisted artifacts.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type PathsConfig struct {
	ChannelsFile     string
	CatalogFile      string
	CacheFile        string
	VideosDir        string
	IndexFile        string
	CheckpointFile   string
	SummaryFile      string
	ConsolidatedFile string
}

// ServerConfig contains the optional ops HTTP server configuration.
type ServerConfig struct {
	Enabled bool
	Port    int
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// The upstream key is also resolvable from the conventional env name.
	if cfg.YouTube.APIKey == "" {
		cfg.YouTube.APIKey = os.Getenv("YOUTUBE_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the invariants that make a run impossible when broken.
func (c *Config) Validate() error {
	if c.YouTube.APIKey == "" {
		return fmt.Errorf("%w: youtube.apikey (or YOUTUBE_API_KEY) is required", ErrInvalid)
	}
	if c.Paths.ChannelsFile == "" {
		return fmt.Errorf("%w: paths.channelsfile is required", ErrInvalid)
	}
	if c.Paths.VideosDir == "" {
		return fmt.Errorf("%w: paths.videosdir is required", ErrInvalid)
	}
	if c.YouTube.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: youtube.requestspersecond must be positive", ErrInvalid)
	}
	if c.Matcher.MaxResults <= 0 {
		return fmt.Errorf("%w: matcher.maxresults must be positive", ErrInvalid)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// YouTube
	v.SetDefault("youtube.quotalimit", 10000)
	v.SetDefault("youtube.requestspersecond", 1.0)
	v.SetDefault("youtube.requesttimeout", 30*time.Second)

	// Indexer
	v.SetDefault("indexer.historyyears", 15)
	v.SetDefault("indexer.channelconcurrency", 4)

	// Matcher
	v.SetDefault("matcher.maxresults", 10)
	v.SetDefault("matcher.minscore", 60)

	// Enricher
	v.SetDefault("enricher.batchsize", 50)
	v.SetDefault("enricher.cachettl", 7*24*time.Hour)

	// Paths
	v.SetDefault("paths.channelsfile", "config/channels.json")
	v.SetDefault("paths.catalogfile", "data/openings.json")
	v.SetDefault("paths.cachefile", "data/enrichment_cache.json")
	v.SetDefault("paths.videosdir", "data/videos")
	v.SetDefault("paths.indexfile", "data/local_index.json")
	v.SetDefault("paths.checkpointfile", "data/matches_checkpoint.json")
	v.SetDefault("paths.summaryfile", "data/run_summary.json")
	v.SetDefault("paths.consolidatedfile", "")

	// Server
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
}
