// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mmynk/sharedledger/internal/balance"
	"github.com/mmynk/sharedledger/internal/events"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/settlement"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Port int

	DBDriver      string
	DBPath        string
	MongoURI      string
	MongoDatabase string

	JWTSecret string

	Currency          string
	Methods           models.MethodSet
	SettlementWindow  time.Duration
	SettlementTimeout time.Duration

	// RedisAddr enables the distributed lock when set.
	RedisAddr string
	// KafkaBrokers enables event publishing when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	MetricsPath string
}

// Load reads an optional .env file and then the process environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config using getenv for lookups.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return value
		}
		return fallback
	}

	cfg := &Config{
		DBDriver:      strings.ToLower(get("DB_DRIVER", DriverSQLite)),
		DBPath:        get("DB_PATH", "./data/ledger.db"),
		MongoURI:      get("MONGO_URI", ""),
		MongoDatabase: get("MONGO_DATABASE", "sharedledger"),
		JWTSecret:     get("JWT_SECRET", ""),
		Currency:      strings.ToUpper(get("CURRENCY", balance.DefaultCurrency)),
		RedisAddr:     get("REDIS_ADDR", ""),
		KafkaBrokers:  splitList(get("KAFKA_BROKERS", "")),
		KafkaTopic:    get("KAFKA_TOPIC", events.TopicSettlementRecorded),
		MetricsPath:   get("METRICS_PATH", "/metrics"),
	}

	var err error
	if cfg.Port, err = strconv.Atoi(get("PORT", "8080")); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid PORT %q", getenv("PORT"))
	}
	if cfg.Methods, err = models.ParseMethodList(get("SETTLEMENT_METHODS", "UPI,Cash")); err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_METHODS: %w", err)
	}
	if cfg.SettlementWindow, err = duration(get("SETTLEMENT_WINDOW", settlement.DefaultWindow.String())); err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_WINDOW: %w", err)
	}
	if cfg.SettlementTimeout, err = duration(get("SETTLEMENT_TIMEOUT", settlement.DefaultTimeout.String())); err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_TIMEOUT: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverMemory:
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when DB_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if _, err := balance.New(c.Currency); err != nil {
		return fmt.Errorf("invalid CURRENCY: %w", err)
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("METRICS_PATH must start with /, got %q", c.MetricsPath)
	}
	return nil
}

// duration parses a Go duration ("90s") or a bare number of seconds ("90").
func duration(s string) (time.Duration, error) {
	if secs, err := strconv.Atoi(s); err == nil {
		s = strconv.Itoa(secs) + "s"
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
