package config

import (
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/tiercache/replica"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TC_WRITER_ADDR", "10.0.0.1:6379")
	t.Setenv("TC_DEPLOYMENT_ID", "orders-prod")
	t.Setenv("TC_ARBITER_DSN", "postgres://u:p@db:5432/arb")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Enabled || cfg.SecondaryEnabled {
		t.Fatalf("enabled=%v secondary=%v", cfg.Enabled, cfg.SecondaryEnabled)
	}
	if cfg.PrimaryDefaultTTL != 5*time.Minute || cfg.PrimarySlidingTTL != 0 {
		t.Fatalf("primary ttl %v/%v", cfg.PrimaryDefaultTTL, cfg.PrimarySlidingTTL)
	}
	if cfg.ReaderAddr != (replica.Addr{Host: "127.0.0.1", Port: 6379}) {
		t.Fatalf("reader %v", cfg.ReaderAddr)
	}
	if cfg.WriterAddr != (replica.Addr{Host: "10.0.0.1", Port: 6379}) {
		t.Fatalf("writer %v", cfg.WriterAddr)
	}
	if cfg.SecondaryProvider != ProviderRistretto || cfg.SecondarySize != 10000 {
		t.Fatalf("secondary provider %q size %d", cfg.SecondaryProvider, cfg.SecondarySize)
	}
	if cfg.Arbiter != ArbiterPostgres || cfg.RegisterTTL != 24*time.Hour {
		t.Fatalf("arbiter=%q register=%v", cfg.Arbiter, cfg.RegisterTTL)
	}
	if cfg.LogLevel != zapcore.InfoLevel || cfg.LogFormat != "json" {
		t.Fatalf("log %v %q", cfg.LogLevel, cfg.LogFormat)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("TC_ENABLED", "false")
	t.Setenv("TC_PRIMARY_DEFAULT_MINUTES", "10")
	t.Setenv("TC_PRIMARY_SLIDING_MINUTES", "2")
	t.Setenv("TC_SECONDARY_ENABLED", "1")
	t.Setenv("TC_SECONDARY_DEFAULT_MINUTES", "3")
	t.Setenv("TC_SECONDARY_PROVIDER", "redis")
	t.Setenv("TC_SECONDARY_REDIS_ADDR", "10.0.0.50:6379")
	t.Setenv("TC_READER_ADDR", "127.0.0.1 6380")
	t.Setenv("TC_ARBITER", "BOLT")
	t.Setenv("TC_ARBITER_PATH", "/var/lib/tc/arb.db")
	t.Setenv("TC_LOG_LEVEL", "debug")
	t.Setenv("TC_LOG_FORMAT", "console")
	t.Setenv("TC_STATUS_ADDR", ":9310")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Enabled || !cfg.SecondaryEnabled {
		t.Fatalf("enabled=%v secondary=%v", cfg.Enabled, cfg.SecondaryEnabled)
	}
	if cfg.PrimaryDefaultTTL != 10*time.Minute || cfg.PrimarySlidingTTL != 2*time.Minute {
		t.Fatalf("primary ttl %v/%v", cfg.PrimaryDefaultTTL, cfg.PrimarySlidingTTL)
	}
	if cfg.SecondaryDefaultTTL != 3*time.Minute {
		t.Fatalf("secondary ttl %v", cfg.SecondaryDefaultTTL)
	}
	if cfg.SecondaryProvider != ProviderRedis || cfg.SecondaryRedisAddr != "10.0.0.50:6379" {
		t.Fatalf("secondary %q %q", cfg.SecondaryProvider, cfg.SecondaryRedisAddr)
	}
	if cfg.ReaderAddr.Port != 6380 {
		t.Fatalf("reader %v", cfg.ReaderAddr)
	}
	if cfg.Arbiter != ArbiterBolt || cfg.ArbiterPath != "/var/lib/tc/arb.db" {
		t.Fatalf("arbiter %q %q", cfg.Arbiter, cfg.ArbiterPath)
	}
	if cfg.LogLevel != zapcore.DebugLevel || cfg.StatusAddr != ":9310" {
		t.Fatalf("level=%v status=%q", cfg.LogLevel, cfg.StatusAddr)
	}
}

func TestSlidingAgainstEffectiveDefault(t *testing.T) {
	setRequired(t)
	t.Setenv("TC_PRIMARY_DEFAULT_MINUTES", "0")
	t.Setenv("TC_PRIMARY_SLIDING_MINUTES", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PrimaryDefaultTTL != 0 || cfg.PrimarySlidingTTL != 2*time.Minute {
		t.Fatalf("primary ttl %v/%v", cfg.PrimaryDefaultTTL, cfg.PrimarySlidingTTL)
	}

	t.Setenv("TC_PRIMARY_SLIDING_MINUTES", "5")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "TC_PRIMARY_SLIDING_MINUTES") {
		t.Fatalf("sliding equal to the 5m default: err = %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantVar string
	}{
		{"writer missing", map[string]string{"TC_WRITER_ADDR": ""}, "TC_WRITER_ADDR"},
		{"writer malformed", map[string]string{"TC_WRITER_ADDR": "nope"}, "TC_WRITER_ADDR"},
		{"deployment missing", map[string]string{"TC_DEPLOYMENT_ID": ""}, "TC_DEPLOYMENT_ID"},
		{"bad bool", map[string]string{"TC_ENABLED": "maybe"}, "TC_ENABLED"},
		{"negative minutes", map[string]string{"TC_PRIMARY_DEFAULT_MINUTES": "-1"}, "TC_PRIMARY_DEFAULT_MINUTES"},
		{"sliding too long", map[string]string{"TC_PRIMARY_SLIDING_MINUTES": "5"}, "TC_PRIMARY_SLIDING_MINUTES"},
		{"unknown provider", map[string]string{"TC_SECONDARY_PROVIDER": "memcached"}, "TC_SECONDARY_PROVIDER"},
		{"bad size", map[string]string{"TC_SECONDARY_SIZE": "0"}, "TC_SECONDARY_SIZE"},
		{"redis without addr", map[string]string{"TC_SECONDARY_ENABLED": "true", "TC_SECONDARY_PROVIDER": "redis"}, "TC_SECONDARY_REDIS_ADDR"},
		{"unknown arbiter", map[string]string{"TC_ARBITER": "etcd"}, "TC_ARBITER"},
		{"postgres without dsn", map[string]string{"TC_ARBITER_DSN": ""}, "TC_ARBITER_DSN"},
		{"bad level", map[string]string{"TC_LOG_LEVEL": "loud"}, "TC_LOG_LEVEL"},
		{"bad format", map[string]string{"TC_LOG_FORMAT": "xml"}, "TC_LOG_FORMAT"},
		{"bad register ttl", map[string]string{"TC_REGISTER_TTL": "0s"}, "TC_REGISTER_TTL"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("Load: want error")
			}
			if !strings.Contains(err.Error(), tc.wantVar) {
				t.Fatalf("error %q does not name %s", err, tc.wantVar)
			}
		})
	}
}
