package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-resale-pricer/internal/config"
	"fleet-resale-pricer/internal/pricing"
)

// ErrNotConfigured indicates the storage pool was not initialised.
var ErrNotConfigured = errors.New("storage: pool not configured")

// DeviceStore defines operations for device snapshot persistence.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, device DeviceRecord) error
	GetDevice(ctx context.Context, serial string) (*DeviceRecord, error)
	ListDevices(ctx context.Context) ([]DeviceRecord, error)
	CountDevices(ctx context.Context) (int64, error)
}

// CatalogStore defines operations for catalog row administration. The
// matcher reads the catalog through pricing.CatalogQuerier instead.
type CatalogStore interface {
	InsertCatalogEntries(ctx context.Context, entries []pricing.CatalogEntry) (int, error)
}

// ReportStore defines the reporting queries behind show and export.
type ReportStore interface {
	ListValuations(ctx context.Context, limit int) ([]DeviceValuation, error)
	FleetValueByFamily(ctx context.Context) ([]FamilyValue, error)
	Stats(ctx context.Context) (FleetStats, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates Postgres access to devices, the price catalog, and
// valuation results. It implements pricing.CatalogQuerier and
// pricing.ResultStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

const (
	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// TryAdvisoryLock attempts to acquire a postgres advisory lock and
// returns a release func. Used so only one replica processes a
// scheduled revaluation tick.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ pricing.CatalogQuerier = (*Store)(nil)
	_ pricing.ResultStore    = (*Store)(nil)
	_ DeviceStore            = (*Store)(nil)
	_ CatalogStore           = (*Store)(nil)
	_ ReportStore            = (*Store)(nil)
	_ AdvisoryLocker         = (*Store)(nil)
)
