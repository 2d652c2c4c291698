package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ticketpilot.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "TICKETPILOT_PORT")
	setString(&cfg.Server.CORSOrigin, "TICKETPILOT_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "TICKETPILOT_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "TICKETPILOT_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "TICKETPILOT_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "TICKETPILOT_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "TICKETPILOT_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Logging.Level, "TICKETPILOT_LOG_LEVEL")
	setString(&cfg.Logging.Service, "TICKETPILOT_LOG_SERVICE")
	setInt(&cfg.Breaker.MaxFailures, "TICKETPILOT_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "TICKETPILOT_BREAKER_TIMEOUT")
	setInt(&cfg.Breaker.HalfOpenProbes, "TICKETPILOT_BREAKER_HALF_OPEN_PROBES")
	setString(&cfg.Pipeline.CustomDir, "TICKETPILOT_PIPELINE_DIR")
	setString(&cfg.Pipeline.Definition, "TICKETPILOT_PIPELINE")
	setInt(&cfg.Pipeline.MaxAttempts, "TICKETPILOT_MAX_ATTEMPTS")
	setInt(&cfg.Pipeline.TestIterations, "TICKETPILOT_TEST_ITERATIONS")
	setInt64(&cfg.Pipeline.MaxConcurrent, "TICKETPILOT_MAX_CONCURRENT")
	setDuration(&cfg.Sandbox.CommandTimeout, "TICKETPILOT_COMMAND_TIMEOUT")
	setDuration(&cfg.Sandbox.TestTimeout, "TICKETPILOT_TEST_TIMEOUT")
	setInt(&cfg.Sandbox.SearchLimit, "TICKETPILOT_SEARCH_LIMIT")
	setInt64(&cfg.Cache.MaxSizeMB, "TICKETPILOT_CACHE_SIZE_MB")
	setDuration(&cfg.Cache.TTL, "TICKETPILOT_CACHE_TTL")
	setString(&cfg.Agent.Backend, "TICKETPILOT_AGENT_BACKEND")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Pipeline.MaxAttempts < 1 {
		return errors.New("pipeline.max_attempts must be >= 1")
	}
	if cfg.Pipeline.MaxConcurrent < 1 {
		return errors.New("pipeline.max_concurrent must be >= 1")
	}
	if cfg.Sandbox.SearchLimit < 1 {
		return errors.New("sandbox.search_limit must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
