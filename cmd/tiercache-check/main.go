// tiercache-check runs on every replica host at boot. It aligns the local
// replica with the arbiter's master, runs one failover check and registers
// the host under RedisSlave:IP_<ip>. With TC_STATUS_ADDR set it keeps
// serving health and metrics until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/arbiter"
	"github.com/unkn0wn-root/tiercache/arbiter/boltstore"
	"github.com/unkn0wn-root/tiercache/arbiter/pgstore"
	"github.com/unkn0wn-root/tiercache/failover"
	asynchook "github.com/unkn0wn-root/tiercache/hooks/async"
	"github.com/unkn0wn-root/tiercache/internal/config"
	"github.com/unkn0wn-root/tiercache/internal/status"
	tczap "github.com/unkn0wn-root/tiercache/log/zap"
	"github.com/unkn0wn-root/tiercache/metrics"
	"github.com/unkn0wn-root/tiercache/provider"
	"github.com/unkn0wn-root/tiercache/provider/lru"
	"github.com/unkn0wn-root/tiercache/provider/redis"
	"github.com/unkn0wn-root/tiercache/provider/ristretto"
	"github.com/unkn0wn-root/tiercache/replica"
)

const (
	startupTimeout  = time.Minute
	shutdownTimeout = 5 * time.Second
)

// registration is stored under the host's registration key.
type registration struct {
	InstanceID string    `json:"instance_id"`
	Deployment string    `json:"deployment"`
	Reader     string    `json:"reader"`
	Writer     string    `json:"writer"`
	StartedAt  time.Time `json:"started_at"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := newZap(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Error("tiercache-check failed", zap.Error(err))
		_ = zl.Sync()
		os.Exit(1)
	}
}

func newZap(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	return zc.Build()
}

func run(cfg *config.Config, zl *zap.Logger) error {
	logger := tczap.New(zl)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mc := metrics.New(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openArbiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	resolver := failover.DefaultResolver(cfg.IPFile, cfg.MetadataURL)
	coord, err := failover.New(failover.Options{
		Arbiter:    store,
		Deployment: cfg.DeploymentID,
		Resolver:   resolver,
		Logger:     logger,
		Hooks:      mc,
	})
	if err != nil {
		return err
	}
	defer coord.Wait()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()
	rc, err := replica.New(startCtx, replica.Options{
		Reader:     cfg.ReaderAddr,
		Writer:     cfg.WriterAddr,
		DefaultTTL: cfg.PrimaryDefaultTTL,
		SlidingTTL: cfg.PrimarySlidingTTL,
		Escalator:  coord,
		Startup:    coord.Startup,
		Logger:     logger,
		Hooks:      mc,
	})
	if err != nil {
		return err
	}

	var secondary tiercache.Client
	if cfg.SecondaryEnabled {
		p, err := newProvider(cfg)
		if err != nil {
			return err
		}
		secondary, err = tiercache.NewStoreClient(tiercache.StoreOptions{
			Provider:   p,
			DefaultTTL: cfg.SecondaryDefaultTTL,
			SlidingTTL: cfg.SecondarySlidingTTL,
			Name:       cfg.SecondaryProvider,
			Logger:     logger,
		})
		if err != nil {
			return err
		}
	}

	cacheHooks := asynchook.New(mc, 1, 1024)
	defer cacheHooks.Close()

	m, err := tiercache.New(tiercache.Options{
		Primary:       rc,
		Secondary:     secondary,
		PrimaryTier:   tiercache.Tier{DefaultTTL: cfg.PrimaryDefaultTTL},
		SecondaryTier: tiercache.Tier{DefaultTTL: cfg.SecondaryDefaultTTL},
		Disabled:      !cfg.Enabled,
		Logger:        logger,
		Hooks:         cacheHooks,
	})
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := m.Close(closeCtx); err != nil {
			zl.Warn("closing cache", zap.Error(err))
		}
	}()

	if err := register(startCtx, m, resolver, rc, coord.InstanceID(), cfg); err != nil {
		zl.Warn("replica registration skipped", zap.Error(err))
	}

	if cfg.StatusAddr == "" {
		return nil
	}
	return serve(ctx, zl, cfg.StatusAddr, status.NewRouter(rc, reg))
}

func newProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.SecondaryProvider {
	case config.ProviderLRU:
		return lru.New(cfg.SecondarySize)
	case config.ProviderRedis:
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.SecondaryRedisAddr})
		return redis.New(redis.Config{Client: rdb, CloseClient: true})
	default:
		return ristretto.New(ristretto.DefaultConfig())
	}
}

func openArbiter(ctx context.Context, cfg *config.Config, logger tiercache.Logger) (arbiter.Store, error) {
	switch cfg.Arbiter {
	case config.ArbiterBolt:
		return boltstore.Open(cfg.ArbiterPath)
	default:
		return pgstore.Open(ctx, pgstore.Options{DSN: cfg.ArbiterDSN, Migrate: true, Logger: logger})
	}
}

func register(ctx context.Context, m *tiercache.Manager, r failover.Resolver, rc *replica.Client, id string, cfg *config.Config) error {
	ip, err := r.Resolve(ctx)
	if err != nil {
		return err
	}
	info := registration{
		InstanceID: id,
		Deployment: cfg.DeploymentID,
		Reader:     rc.ReaderAddr().String(),
		Writer:     rc.WriterAddr().String(),
		StartedAt:  time.Now().UTC(),
	}
	if !tiercache.ToCache(ctx, m, "RedisSlave:IP_"+ip, info, tiercache.WithTTL(cfg.RegisterTTL)) {
		return fmt.Errorf("write RedisSlave:IP_%s rejected", ip)
	}
	return nil
}

func serve(ctx context.Context, zl *zap.Logger, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		zl.Info("status server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		zl.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}
