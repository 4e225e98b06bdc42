package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the ingestion agent.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Jenkins JenkinsConfig `yaml:"jenkins"`
	Agent   AgentConfig   `yaml:"agent"`
	Store   StoreConfig   `yaml:"store"`
	Catalog CatalogConfig `yaml:"catalog"`
	Squads  SquadsConfig  `yaml:"squads"`
	Logging LoggingConfig `yaml:"logging"`
	Cache   CacheConfig   `yaml:"cache"`
}

// ServerConfig controls the query API and metrics listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// JenkinsConfig configures access to the CI server.
type JenkinsConfig struct {
	URL               string        `yaml:"url"`
	User              string        `yaml:"user"`
	Password          string        `yaml:"password"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	BuildsPerJob      int           `yaml:"buildsPerJob"`
	MaxConsoleBytes   int64         `yaml:"maxConsoleBytes"`
}

// AgentConfig controls polling cadence and retry policy for the two loops.
type AgentConfig struct {
	Enabled           bool          `yaml:"enabled"`
	JobPattern        string        `yaml:"jobPattern"`
	DiscoveryInterval time.Duration `yaml:"discoveryInterval"`
	DetailInterval    time.Duration `yaml:"detailInterval"`
	BatchSize         int           `yaml:"batchSize"`
	Workers           int           `yaml:"workers"`
	BackoffBase       time.Duration `yaml:"backoffBase"`
	BackoffMax        time.Duration `yaml:"backoffMax"`
	NotFoundDelay     time.Duration `yaml:"notFoundDelay"`
	InProgressDelay   time.Duration `yaml:"inProgressDelay"`
	MaxNotFound       int           `yaml:"maxNotFound"`
	MaxExcerptBytes   int           `yaml:"maxExcerptBytes"`
}

// StoreConfig points at the SQLite database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// CatalogConfig optionally extends the built-in failure signatures.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// SquadsConfig optionally replaces the built-in DFG/squad seed.
type SquadsConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls caching of slow-moving CI listings.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	JobsTTL time.Duration `yaml:"jobsTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RHOCI_CONFIG_FILE")
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the documented defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Jenkins: JenkinsConfig{
			Timeout:           20 * time.Second,
			RequestsPerSecond: 5,
			Burst:             5,
			BuildsPerJob:      10,
			MaxConsoleBytes:   8 << 20,
		},
		Agent: AgentConfig{
			Enabled:           true,
			DiscoveryInterval: 5 * time.Minute,
			DetailInterval:    30 * time.Second,
			BatchSize:         20,
			Workers:           4,
			BackoffBase:       30 * time.Second,
			BackoffMax:        30 * time.Minute,
			NotFoundDelay:     2 * time.Minute,
			InProgressDelay:   2 * time.Minute,
			MaxNotFound:       5,
			MaxExcerptBytes:   4096,
		},
		Store:   StoreConfig{Path: "rhoci.db"},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Cache:   CacheConfig{Enabled: true, JobsTTL: 10 * time.Minute},
	}
}

// Validate rejects settings the agent cannot run with.
func (c Config) Validate() error {
	if c.Agent.Enabled && strings.TrimSpace(c.Jenkins.URL) == "" {
		return fmt.Errorf("jenkins.url is required when the agent is enabled")
	}
	if c.Agent.DiscoveryInterval <= 0 || c.Agent.DetailInterval <= 0 {
		return fmt.Errorf("agent poll intervals must be positive")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RHOCI_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("RHOCI_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("RHOCI_JENKINS_URL"); v != "" {
		cfg.Jenkins.URL = v
	}
	if v := os.Getenv("RHOCI_JENKINS_USER"); v != "" {
		cfg.Jenkins.User = v
	}
	if v := os.Getenv("RHOCI_JENKINS_PASSWORD"); v != "" {
		cfg.Jenkins.Password = v
	}
	if v := os.Getenv("RHOCI_JENKINS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Jenkins.Timeout = d
		}
	}
	if v := os.Getenv("RHOCI_AGENT_ENABLED"); v != "" {
		cfg.Agent.Enabled = parseBool(v)
	}
	if v := os.Getenv("RHOCI_AGENT_JOB_PATTERN"); v != "" {
		cfg.Agent.JobPattern = v
	}
	if v := os.Getenv("RHOCI_AGENT_DISCOVERY_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.DiscoveryInterval = d
		}
	}
	if v := os.Getenv("RHOCI_AGENT_DETAIL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Agent.DetailInterval = d
		}
	}
	if v := os.Getenv("RHOCI_AGENT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Agent.Workers = n
		}
	}
	if v := os.Getenv("RHOCI_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("RHOCI_CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("RHOCI_SQUADS_PATH"); v != "" {
		cfg.Squads.Path = v
	}
	if v := os.Getenv("RHOCI_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RHOCI_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("RHOCI_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("RHOCI_CACHE_JOBS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.JobsTTL = d
		}
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
