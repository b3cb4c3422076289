package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for lprwatch.
// Values come from an optional YAML file; environment variables override
// the file, and command-line flags override both.
type Config struct {
	// DatabaseURL is a SQLite path or a postgres:// DSN
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL" env-default:"agency_data.db"`

	// ScrapeRoot is the <REGION>/<agency>/<date> tree the harvester writes
	// and the importer reads
	ScrapeRoot string `yaml:"scrape_root" env:"SCRAPE_ROOT" env-default:"scraped_data"`

	Log     LogConfig     `yaml:"log"`
	Harvest HarvestConfig `yaml:"harvest"`
	Server  ServerConfig  `yaml:"server"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	// File additionally receives every log line when set
	File string `yaml:"file" env:"LOG_FILE" env-default:""`
}

// HarvestConfig holds harvester configuration
type HarvestConfig struct {
	URLsFile     string        `yaml:"urls_file" env:"URLS_CSV" env-default:"urls.csv"`
	ProgressFile string        `yaml:"progress_file" env:"PROGRESS_FILE" env-default:"progress.txt"`
	UserAgent    string        `yaml:"user_agent" env:"USER_AGENT" env-default:""`
	Timeout      time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"30s"`
	MaxRetries   int           `yaml:"max_retries" env:"HTTP_MAX_RETRIES" env-default:"3"`
	Delay        time.Duration `yaml:"delay" env:"HARVEST_DELAY" env-default:"0s"`
}

// ServerConfig holds catalog browser configuration
type ServerConfig struct {
	Port string `yaml:"port" env:"PORT" env-default:"8080"`
}

// Load reads configuration from path (if it exists) with environment
// variable overrides. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
			return cfg, cfg.validate()
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database_url must not be empty")
	}
	if c.Harvest.MaxRetries < 1 {
		return fmt.Errorf("harvest max_retries must be at least 1, got %d", c.Harvest.MaxRetries)
	}
	return nil
}
