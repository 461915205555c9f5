// Package pgstore keeps arbiter records in PostgreSQL.
//
// Every election is a row in master_deployments; the newest row of a
// deployment is its current master. Reads run under READ COMMITTED and
// inserts under SERIALIZABLE.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/arbiter"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	latestSQL = `SELECT server_host, inserted_at, inserted_by, description, deployment_id
FROM master_deployments
WHERE deployment_id = $1
ORDER BY inserted_at DESC, id DESC
LIMIT 1`

	insertSQL = `INSERT INTO master_deployments (server_host, inserted_at, inserted_by, description, deployment_id)
VALUES ($1, COALESCE($2, now()), $3, $4, $5)`
)

type Options struct {
	// DSN is a postgres:// connection string.
	DSN string
	// Migrate applies embedded migrations in Open.
	Migrate bool
	Logger  tiercache.Logger
}

type Store struct {
	pool *pgxpool.Pool
	log  tiercache.Logger
}

var _ arbiter.Store = (*Store)(nil)

// Open connects, pings and optionally migrates.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, &tiercache.ConfigError{Field: "DSN", Reason: "is required"}
	}
	log := tiercache.OrNop(opts.Logger)

	if opts.Migrate {
		if err := Migrate(opts.DSN, log); err != nil {
			return nil, err
		}
	}

	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, &tiercache.ConfigError{Field: "DSN", Reason: "invalid", Err: err}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	log.Info("arbiter connected", tiercache.Fields{"host": cfg.ConnConfig.Host, "database": cfg.ConnConfig.Database})
	return &Store{pool: pool, log: log}, nil
}

// New wraps an existing pool. Close closes it.
func New(pool *pgxpool.Pool, logger tiercache.Logger) *Store {
	return &Store{pool: pool, log: tiercache.OrNop(logger)}
}

// Migrate applies the embedded migrations to the database at dsn.
func Migrate(dsn string, logger tiercache.Logger) error {
	log := tiercache.OrNop(logger)
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("pgstore: migration source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(dsn))
	if err != nil {
		return fmt.Errorf("pgstore: init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("pgstore: apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	log.Info("arbiter migrations applied", tiercache.Fields{"version": version, "dirty": dirty})
	return nil
}

// migrateURL rewrites a postgres:// DSN to the pgx5:// scheme the migrate
// driver registers.
func migrateURL(dsn string) string {
	for _, p := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, p) {
			return "pgx5://" + strings.TrimPrefix(dsn, p)
		}
	}
	return dsn
}

func (s *Store) Latest(ctx context.Context, deployment string) (arbiter.Record, bool, error) {
	var rec arbiter.Record
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, latestSQL, deployment).
			Scan(&rec.ServerHostPort, &rec.InsertedAt, &rec.InsertedBy, &rec.Description, &rec.Deployment)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return arbiter.Record{}, false, nil
	}
	if err != nil {
		return arbiter.Record{}, false, fmt.Errorf("pgstore: latest %s: %w", deployment, err)
	}
	rec.ServerHostPort = arbiter.Clean(rec.ServerHostPort)
	return rec, true, nil
}

func (s *Store) Insert(ctx context.Context, rec arbiter.Record) error {
	var at *time.Time
	if !rec.InsertedAt.IsZero() {
		at = &rec.InsertedAt
	}
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.Serializable}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertSQL, arbiter.Clean(rec.ServerHostPort), at, rec.InsertedBy, rec.Description, rec.Deployment)
		return err
	})
	if err != nil {
		return fmt.Errorf("pgstore: insert %s: %w", rec.Deployment, err)
	}
	s.log.Warn("arbiter record inserted", tiercache.Fields{
		"deployment": rec.Deployment, "master": rec.ServerHostPort, "by": rec.InsertedBy,
	})
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
