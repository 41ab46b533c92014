package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mdwatch/regpulse/pkg/domain"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server struct {
		Listen  string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
		Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	} `yaml:"server" json:"server" jsonschema:"description=Server configuration"`

	Database struct {
		DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:regpulse.db?cache=shared&mode=rwc,description=Database connection string"`
		MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
		MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
		ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
	} `yaml:"database" json:"database" jsonschema:"description=Database configuration"`

	Schedule ScheduleConfig `yaml:"schedule" json:"schedule" jsonschema:"description=Ingestion scheduling configuration"`

	Fetch FetchConfig `yaml:"fetch" json:"fetch" jsonschema:"description=Outbound HTTP fetch configuration"`

	Parser ParserConfig `yaml:"parser" json:"parser" jsonschema:"description=Feed and page parsing configuration"`

	Dedup DedupConfig `yaml:"dedup" json:"dedup" jsonschema:"description=Deduplication configuration"`

	Enrichment EnrichmentConfig `yaml:"enrichment" json:"enrichment" jsonschema:"description=Linked-page content enrichment configuration"`

	Sources []domain.Source `yaml:"sources" json:"sources" jsonschema:"description=Upstream sources to poll"`
}

// ScheduleConfig holds coordinator scheduling settings
type ScheduleConfig struct {
	MonitorInterval time.Duration `yaml:"monitor_interval" json:"monitor_interval" jsonschema:"default=5m,description=Fixed interval between continuous monitoring runs"`
	MaxWorkers      int           `yaml:"max_workers" json:"max_workers" jsonschema:"default=4,description=Maximum concurrent source workers"`
	RequestDelay    time.Duration `yaml:"request_delay" json:"request_delay" jsonschema:"default=1500ms,description=Minimum delay between any two outbound requests"`
}

// FetchConfig holds outbound HTTP settings
type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=20s,description=Per-request fetch timeout"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent" jsonschema:"default=Mozilla/5.0 (compatible; RegPulse/1.0),description=User agent for outbound requests"`
	MaxBodySize int64         `yaml:"max_body_size" json:"max_body_size" jsonschema:"default=5242880,description=Maximum response body size in bytes"`
}

// ParserConfig holds parsing settings
type ParserConfig struct {
	MinTitleLength int `yaml:"min_title_length" json:"min_title_length" jsonschema:"default=15,description=Minimum title length for scraped HTML entries"`
	// fallback is on unless explicitly disabled, so malformed feeds degrade to
	// whatever the lenient parser can recover instead of failing the cycle
	DisableRegexFallback bool `yaml:"disable_regex_fallback" json:"disable_regex_fallback" jsonschema:"default=false,description=Disable lenient regex feed parsing when the XML parser fails"`
}

// DedupConfig holds deduplication settings
type DedupConfig struct {
	Strategy     string `yaml:"strategy" json:"strategy" jsonschema:"default=index,description=Duplicate lookup strategy: index (persisted fingerprint index) or window (containment over recent updates)"`
	RecentWindow int    `yaml:"recent_window" json:"recent_window" jsonschema:"default=200,description=Size of the recent-updates window for the window strategy"`
}

// EnrichmentConfig holds linked-page text extraction settings
type EnrichmentConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled" jsonschema:"default=false,description=Extract linked page text for items without a description"`
	Timeout       time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=Extraction timeout per article"`
	MinTextLength int           `yaml:"min_text_length" json:"min_text_length" jsonschema:"default=100,description=Minimum extracted text length to consider valid"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

// setDefaults applies programmatic defaults for anything the file omitted
func setDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Server.Timeout == 0 {
		cfg.Server.Timeout = 30 * time.Second
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "file:regpulse.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 3600
	}

	if cfg.Schedule.MonitorInterval == 0 {
		cfg.Schedule.MonitorInterval = 5 * time.Minute
	}
	if cfg.Schedule.MaxWorkers == 0 {
		cfg.Schedule.MaxWorkers = 4
	}
	if cfg.Schedule.RequestDelay == 0 {
		cfg.Schedule.RequestDelay = 1500 * time.Millisecond
	}

	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 20 * time.Second
	}
	if cfg.Fetch.UserAgent == "" {
		cfg.Fetch.UserAgent = "Mozilla/5.0 (compatible; RegPulse/1.0)"
	}
	if cfg.Fetch.MaxBodySize == 0 {
		cfg.Fetch.MaxBodySize = 5 << 20
	}

	if cfg.Parser.MinTitleLength == 0 {
		cfg.Parser.MinTitleLength = 15
	}

	if cfg.Dedup.Strategy == "" {
		cfg.Dedup.Strategy = "index"
	}
	if cfg.Dedup.RecentWindow == 0 {
		cfg.Dedup.RecentWindow = 200
	}

	if cfg.Enrichment.Timeout == 0 {
		cfg.Enrichment.Timeout = 30 * time.Second
	}
	if cfg.Enrichment.MinTextLength == 0 {
		cfg.Enrichment.MinTextLength = 100
	}

	for i := range cfg.Sources {
		if cfg.Sources[i].Kind == "" {
			cfg.Sources[i].Kind = domain.SourceKindRSS
		}
		if cfg.Sources[i].PollInterval == 0 {
			cfg.Sources[i].PollInterval = 30 * time.Minute
		}
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}
	if cfg.Schedule.MaxWorkers < 1 {
		return fmt.Errorf("schedule.max_workers must be at least 1")
	}
	if cfg.Schedule.RequestDelay < 0 {
		return fmt.Errorf("schedule.request_delay must be non-negative")
	}
	if cfg.Dedup.Strategy != "index" && cfg.Dedup.Strategy != "window" {
		return fmt.Errorf("dedup.strategy must be index or window, got %q", cfg.Dedup.Strategy)
	}

	seen := make(map[string]struct{}, len(cfg.Sources))
	minPoll := time.Duration(0)
	for _, src := range cfg.Sources {
		if src.ID == "" {
			return fmt.Errorf("source %q has no id", src.Name)
		}
		if _, ok := seen[src.ID]; ok {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}

		if src.URL == "" {
			return fmt.Errorf("source %q has no url", src.ID)
		}
		switch src.Kind {
		case domain.SourceKindRSS:
		case domain.SourceKindHTML:
			if src.Selectors == nil || len(src.Selectors.Containers) == 0 || src.Selectors.Title == "" {
				return fmt.Errorf("html source %q needs selectors with containers and title", src.ID)
			}
		default:
			return fmt.Errorf("source %q has unsupported kind %q", src.ID, src.Kind)
		}

		if src.Active && (minPoll == 0 || src.PollInterval < minPoll) {
			minPoll = src.PollInterval
		}
	}

	// per-source interval gating only works when the monitor runs at least
	// as often as the most frequent source wants to be polled
	if minPoll > 0 && cfg.Schedule.MonitorInterval > minPoll {
		return fmt.Errorf("schedule.monitor_interval %v exceeds the smallest source poll_interval %v",
			cfg.Schedule.MonitorInterval, minPoll)
	}

	return nil
}

// GetServerConfig returns server configuration
func (c *Config) GetServerConfig() (listen string, timeout time.Duration) {
	return c.Server.Listen, c.Server.Timeout
}
