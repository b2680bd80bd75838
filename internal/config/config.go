// Package config loads service settings from the environment. A .env file
// in the working directory is read first when present; real environment
// variables win over it, and command-line flags win over both.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable prefix.
const prefix = "KARAT_"

// Config holds every runtime setting.
type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Logger   LoggerConfig
	Ledger   LedgerConfig
	Images   ImageConfig
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string
	CORSOrigins     []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects and tunes the datastore.
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig configures token signing. An empty secret means the one
// persisted in the database is used.
type AuthConfig struct {
	JWTSecret string
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level    string
	Encoding string
	File     string
}

// LedgerConfig tunes the transaction recorder.
type LedgerConfig struct {
	Timeout time.Duration
}

// ImageConfig tunes photo processing.
type ImageConfig struct {
	MaxDimension int
	MaxBytes     int64
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env: getEnv("ENV", "production"),
		Server: ServerConfig{
			Addr:            getEnv("ADDR", ":8080"),
			CORSOrigins:     getEnvList("CORS_ORIGINS", nil),
			ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			DSN:             getEnv("DB_DSN", "karat.sqlite3"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: getEnv("LOG_ENCODING", "json"),
			File:     getEnv("LOG_FILE", ""),
		},
		Ledger: LedgerConfig{
			Timeout: getEnvDuration("LEDGER_TIMEOUT", 5*time.Second),
		},
		Images: ImageConfig{
			MaxDimension: getEnvInt("IMAGE_MAX_DIMENSION", 1024),
			MaxBytes:     int64(getEnvInt("IMAGE_MAX_BYTES", 10<<20)),
		},
	}

	if cfg.Env == "development" {
		cfg.Logger.Encoding = getEnv("LOG_ENCODING", "console")
		cfg.Logger.Level = getEnv("LOG_LEVEL", "debug")
	}

	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%sDB_DRIVER: unsupported driver %q", prefix, c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("%sDB_DSN is required", prefix)
	}
	switch c.Logger.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("%sLOG_ENCODING: must be json or console", prefix)
	}
	if c.Ledger.Timeout <= 0 {
		return fmt.Errorf("%sLEDGER_TIMEOUT must be positive", prefix)
	}
	return nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(prefix + key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
