// Package config loads and validates tiercache-check settings from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/replica"
)

const (
	ArbiterPostgres = "postgres"
	ArbiterBolt     = "bolt"

	ProviderRistretto = "ristretto"
	ProviderLRU       = "lru"
	ProviderRedis     = "redis"
)

type Config struct {
	// Enabled false turns every cache call into a pass-through.
	Enabled bool

	PrimaryDefaultTTL time.Duration
	PrimarySlidingTTL time.Duration

	// SecondaryEnabled adds a second tier on SecondaryProvider.
	SecondaryEnabled    bool
	SecondaryProvider   string
	SecondaryDefaultTTL time.Duration
	SecondarySlidingTTL time.Duration
	// SecondarySize bounds the lru provider.
	SecondarySize int
	// SecondaryRedisAddr is the shared Redis of the redis provider.
	SecondaryRedisAddr string

	ReaderAddr   replica.Addr
	WriterAddr   replica.Addr
	DeploymentID string

	Arbiter     string
	ArbiterDSN  string
	ArbiterPath string

	IPFile      string
	MetadataURL string

	// RegisterTTL is how long the replica registration key lives.
	RegisterTTL time.Duration
	// StatusAddr serves the health and metrics routes when set.
	StatusAddr string

	LogLevel  zapcore.Level
	LogFormat string
}

// Load reads TC_* variables. Required values missing or malformed values
// are reported with the variable name.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	if cfg.Enabled, err = getEnvBool("TC_ENABLED", true); err != nil {
		return nil, fmt.Errorf("TC_ENABLED: %w", err)
	}

	if cfg.PrimaryDefaultTTL, err = getEnvMinutes("TC_PRIMARY_DEFAULT_MINUTES", 5); err != nil {
		return nil, fmt.Errorf("TC_PRIMARY_DEFAULT_MINUTES: %w", err)
	}
	if cfg.PrimarySlidingTTL, err = getEnvMinutes("TC_PRIMARY_SLIDING_MINUTES", 0); err != nil {
		return nil, fmt.Errorf("TC_PRIMARY_SLIDING_MINUTES: %w", err)
	}
	if cfg.SecondaryEnabled, err = getEnvBool("TC_SECONDARY_ENABLED", false); err != nil {
		return nil, fmt.Errorf("TC_SECONDARY_ENABLED: %w", err)
	}
	if cfg.SecondaryDefaultTTL, err = getEnvMinutes("TC_SECONDARY_DEFAULT_MINUTES", 5); err != nil {
		return nil, fmt.Errorf("TC_SECONDARY_DEFAULT_MINUTES: %w", err)
	}
	if cfg.SecondarySlidingTTL, err = getEnvMinutes("TC_SECONDARY_SLIDING_MINUTES", 0); err != nil {
		return nil, fmt.Errorf("TC_SECONDARY_SLIDING_MINUTES: %w", err)
	}
	if err := checkSliding(cfg.PrimaryDefaultTTL, cfg.PrimarySlidingTTL); err != nil {
		return nil, fmt.Errorf("TC_PRIMARY_SLIDING_MINUTES: %w", err)
	}
	if err := checkSliding(cfg.SecondaryDefaultTTL, cfg.SecondarySlidingTTL); err != nil {
		return nil, fmt.Errorf("TC_SECONDARY_SLIDING_MINUTES: %w", err)
	}
	cfg.SecondaryProvider = strings.ToLower(getEnvDefault("TC_SECONDARY_PROVIDER", ProviderRistretto))
	if cfg.SecondarySize, err = getEnvInt("TC_SECONDARY_SIZE", 10000); err != nil || cfg.SecondarySize <= 0 {
		return nil, fmt.Errorf("TC_SECONDARY_SIZE: must be a positive integer")
	}
	cfg.SecondaryRedisAddr = os.Getenv("TC_SECONDARY_REDIS_ADDR")
	switch cfg.SecondaryProvider {
	case ProviderRistretto, ProviderLRU:
	case ProviderRedis:
		if cfg.SecondaryEnabled && cfg.SecondaryRedisAddr == "" {
			return nil, fmt.Errorf("TC_SECONDARY_REDIS_ADDR: required when TC_SECONDARY_PROVIDER=%s", ProviderRedis)
		}
	default:
		return nil, fmt.Errorf("TC_SECONDARY_PROVIDER: unknown provider %q, allowed: %s, %s, %s",
			cfg.SecondaryProvider, ProviderRistretto, ProviderLRU, ProviderRedis)
	}

	if cfg.ReaderAddr, err = replica.ParseAddr(getEnvDefault("TC_READER_ADDR", "127.0.0.1:6379")); err != nil {
		return nil, fmt.Errorf("TC_READER_ADDR: %w", err)
	}
	writer, err := getEnvRequired("TC_WRITER_ADDR")
	if err != nil {
		return nil, err
	}
	if cfg.WriterAddr, err = replica.ParseAddr(writer); err != nil {
		return nil, fmt.Errorf("TC_WRITER_ADDR: %w", err)
	}
	if cfg.DeploymentID, err = getEnvRequired("TC_DEPLOYMENT_ID"); err != nil {
		return nil, err
	}

	cfg.Arbiter = strings.ToLower(getEnvDefault("TC_ARBITER", ArbiterPostgres))
	cfg.ArbiterDSN = os.Getenv("TC_ARBITER_DSN")
	cfg.ArbiterPath = getEnvDefault("TC_ARBITER_PATH", "tiercache-arbiter.db")
	switch cfg.Arbiter {
	case ArbiterPostgres:
		if cfg.ArbiterDSN == "" {
			return nil, fmt.Errorf("TC_ARBITER_DSN: required when TC_ARBITER=%s", ArbiterPostgres)
		}
	case ArbiterBolt:
	default:
		return nil, fmt.Errorf("TC_ARBITER: unknown arbiter %q, allowed: %s, %s", cfg.Arbiter, ArbiterPostgres, ArbiterBolt)
	}

	cfg.IPFile = os.Getenv("TC_IP_FILE")
	cfg.MetadataURL = os.Getenv("TC_METADATA_URL")
	cfg.StatusAddr = os.Getenv("TC_STATUS_ADDR")

	if cfg.RegisterTTL, err = getEnvDuration("TC_REGISTER_TTL", 24*time.Hour); err != nil {
		return nil, fmt.Errorf("TC_REGISTER_TTL: %w", err)
	}

	if cfg.LogLevel, err = zapcore.ParseLevel(getEnvDefault("TC_LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("TC_LOG_LEVEL: %w", err)
	}
	cfg.LogFormat = getEnvDefault("TC_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return nil, fmt.Errorf("TC_LOG_FORMAT: invalid format %q, allowed: json, console", cfg.LogFormat)
	}

	return cfg, nil
}

// checkSliding compares against the TTL in effect, where zero means
// tiercache.DefaultTTL.
func checkSliding(def, sliding time.Duration) error {
	if def == 0 {
		def = tiercache.DefaultTTL
	}
	if sliding > 0 && sliding >= def {
		return fmt.Errorf("sliding window %s must be shorter than the default TTL %s", sliding, def)
	}
	return nil
}

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: required environment variable is not set", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvMinutes reads a non-negative whole number of minutes.
func getEnvMinutes(key string, defaultVal int) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return time.Duration(defaultVal) * time.Minute, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid minutes: %q", val)
	}
	return time.Duration(n) * time.Minute, nil
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration: %q (use Go format: 30s, 1h, 15m)", val)
	}
	return d, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("invalid boolean: %q (allowed: true, false, 1, 0)", val)
	}
	return b, nil
}
