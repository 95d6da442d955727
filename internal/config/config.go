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

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	QuotingStandard = "standard"
	QuotingLegacy   = "legacy"

	defaultDSN = "host=localhost user=postgres password=postgres dbname=zaikokanri port=5432 sslmode=disable"
)

type Config struct {
	AppEnv   string
	HTTPPort string

	DatabaseDriver  string
	DatabaseDSN     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	JWTSecret   string
	CORSOrigins string

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	CatalogCacheTTL time.Duration

	LogLevel    string
	LogEncoding string

	CSVQuoting string
}

// Load reads the process environment, after merging an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),

		DatabaseDriver:  strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres)),
		DatabaseDSN:     getEnv("DATABASE_DSN", defaultDSN),
		MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,

		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		CatalogCacheTTL: time.Duration(getEnvInt("CATALOG_CACHE_TTL", 300)) * time.Second,

		LogLevel:    getEnv("LOG_LEVEL", "debug"),
		LogEncoding: getEnv("LOG_ENCODING", "console"),

		CSVQuoting: strings.ToLower(getEnv("CSV_QUOTING", QuotingStandard)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT_SECRET must be at least 32 characters")
	}
	switch c.DatabaseDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	switch c.CSVQuoting {
	case QuotingStandard, QuotingLegacy:
	default:
		return fmt.Errorf("unsupported CSV_QUOTING %q", c.CSVQuoting)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// UsesDefaultDSN reports whether the built-in local DSN is in effect.
func (c *Config) UsesDefaultDSN() bool {
	return c.DatabaseDriver == DriverPostgres && c.DatabaseDSN == defaultDSN
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}
