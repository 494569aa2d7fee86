// Package config loads the process configuration from EVENTS_* environment
// variables, after an optional .env file.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/eventsearch/mcp-server/internal/connection"
	"github.com/eventsearch/mcp-server/internal/engine"
	"github.com/eventsearch/mcp-server/internal/engine/elastic"
	"github.com/eventsearch/mcp-server/internal/engine/embedded"
	"github.com/eventsearch/mcp-server/internal/logging"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

const envPrefix = "EVENTS"

const (
	EngineElasticsearch = "elasticsearch"
	EngineEmbedded      = "embedded"
)

// Config holds all configuration for the event search processes
type Config struct {
	Engine string `envconfig:"ENGINE" default:"elasticsearch"`

	ESHost     string `envconfig:"ES_HOST" default:"localhost"`
	ESPort     int    `envconfig:"ES_PORT" default:"9200"`
	ESScheme   string `envconfig:"ES_SCHEME" default:"http"`
	ESUsername string `envconfig:"ES_USERNAME"`
	ESPassword string `envconfig:"ES_PASSWORD"`
	ESRefresh  bool   `envconfig:"ES_REFRESH" default:"false"`

	Index string `envconfig:"INDEX" default:"events"`

	// DataDir keeps embedded indices on disk; empty means in memory
	DataDir string `envconfig:"DATA_DIR"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

// Load reads .env files (when present) and then the environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values envconfig cannot
func (c *Config) Validate() error {
	c.Engine = strings.ToLower(strings.TrimSpace(c.Engine))
	switch c.Engine {
	case EngineElasticsearch, EngineEmbedded:
	default:
		return fmt.Errorf("unknown engine %q (want %s or %s)", c.Engine, EngineElasticsearch, EngineEmbedded)
	}
	if c.ESPort <= 0 || c.ESPort > 65535 {
		return fmt.Errorf("invalid elasticsearch port %d", c.ESPort)
	}
	switch c.ESScheme {
	case "http", "https":
	default:
		return fmt.Errorf("invalid elasticsearch scheme %q", c.ESScheme)
	}
	if c.Index == "" {
		return errors.New("index name must not be empty")
	}
	return nil
}

// Elastic returns the Elasticsearch connection parameters
func (c *Config) Elastic() elastic.Config {
	return elastic.Config{
		Host:          c.ESHost,
		Port:          c.ESPort,
		Scheme:        c.ESScheme,
		Username:      c.ESUsername,
		Password:      c.ESPassword,
		RefreshWrites: c.ESRefresh,
	}
}

// Logging returns the logger settings
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat}
}

// EngineFactory returns the connection factory for the configured engine
func (c *Config) EngineFactory(logger *zap.Logger) connection.Factory {
	switch c.Engine {
	case EngineEmbedded:
		cfg := embedded.Config{Dir: c.DataDir, Logger: logger}
		return func(ctx context.Context) (engine.Engine, error) {
			return embedded.New(cfg)
		}
	default:
		cfg := c.Elastic()
		return func(ctx context.Context) (engine.Engine, error) {
			return elastic.New(cfg)
		}
	}
}
