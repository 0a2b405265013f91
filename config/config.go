package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fernandovargasjimenez085-jpg/captura-datos-app/models"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	AuthModeDemo   = "demo"
	AuthModeHashed = "hashed"
)

type Config struct {
	Addr         string
	DatabaseURL  string
	Schema       models.Schema
	RedisURL     string
	SecureCookie bool

	SessionTTL      time.Duration
	LocationTimeout time.Duration
	StatsInterval   time.Duration

	AuthMode           string
	AdminUsername      string
	AdminPasswordHash  string
	SharedPasswordHash string
	MasterAPIKey       string

	LogLevel       log.Level
	LogFormat      string
	LoginRateLimit int
}

// Load reads .env (when present) and the process environment once.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warnf("Error loading .env file: %v", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{
		Addr:               env("ADDR", ":8080"),
		RedisURL:           env("REDIS_URL", ""),
		AuthMode:           strings.ToLower(env("AUTH_MODE", AuthModeDemo)),
		AdminUsername:      env("ADMIN_USERNAME", "admin"),
		AdminPasswordHash:  env("ADMIN_PASSWORD_HASH", ""),
		SharedPasswordHash: env("SHARED_PASSWORD_HASH", ""),
		MasterAPIKey:       env("MASTER_API_KEY", ""),
		LogFormat:          strings.ToLower(env("LOG_FORMAT", "text")),
	}

	cfg.DatabaseURL = env("DATABASE_URL", "")
	if cfg.DatabaseURL == "" && getenv("DB_HOST") != "" {
		cfg.DatabaseURL = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getenv("DB_HOST"),
			env("DB_PORT", "5432"),
			getenv("DB_USER"),
			getenv("DB_PASSWORD"),
			getenv("DB_NAME"),
			env("DB_SSLMODE", "disable"),
		)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	var err error
	if file := env("SCHEMA_FILE", ""); file != "" {
		if cfg.Schema, err = models.LoadSchemaFile(file); err != nil {
			return nil, fmt.Errorf("SCHEMA_FILE: %w", err)
		}
	} else {
		name := env("SCHEMA", "")
		schema, ok := models.BuiltinSchema(name)
		if !ok {
			return nil, fmt.Errorf("SCHEMA: unknown schema %q", name)
		}
		cfg.Schema = schema
	}

	if cfg.SessionTTL, err = duration(env("SESSION_TTL", "12h")); err != nil {
		return nil, fmt.Errorf("SESSION_TTL: %w", err)
	}
	if cfg.LocationTimeout, err = duration(env("LOCATION_TIMEOUT", "10s")); err != nil {
		return nil, fmt.Errorf("LOCATION_TIMEOUT: %w", err)
	}

	// UPDATE_INTERVAL is plain seconds.
	interval := env("STATS_INTERVAL", "")
	if interval == "" {
		if secs := env("UPDATE_INTERVAL", ""); secs != "" {
			interval = secs + "s"
		}
	}
	if cfg.StatsInterval, err = duration(def(interval, "60s")); err != nil {
		return nil, fmt.Errorf("STATS_INTERVAL: %w", err)
	}

	if cfg.SecureCookie, err = strconv.ParseBool(env("SECURE_COOKIE", "false")); err != nil {
		return nil, fmt.Errorf("SECURE_COOKIE: %w", err)
	}
	if cfg.LoginRateLimit, err = strconv.Atoi(env("LOGIN_RATE_LIMIT", "20")); err != nil || cfg.LoginRateLimit <= 0 {
		return nil, fmt.Errorf("LOGIN_RATE_LIMIT: must be a positive integer")
	}
	if cfg.LogLevel, err = log.ParseLevel(env("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("LOG_FORMAT: expected text or json, got %q", cfg.LogFormat)
	}

	switch cfg.AuthMode {
	case AuthModeDemo:
	case AuthModeHashed:
		if cfg.AdminPasswordHash == "" || cfg.SharedPasswordHash == "" {
			return nil, fmt.Errorf("AUTH_MODE=hashed needs ADMIN_PASSWORD_HASH and SHARED_PASSWORD_HASH")
		}
	default:
		return nil, fmt.Errorf("AUTH_MODE: expected demo or hashed, got %q", cfg.AuthMode)
	}

	return cfg, nil
}

// ConfigureLogging applies the level and formatter to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	log.SetLevel(c.LogLevel)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func duration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

func def(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
