package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	identity "github.com/goliatone/go-identity"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// MemoryDSN is a private in-memory database; it lives as long as the single pooled connection.
const MemoryDSN = ":memory:"

const defaultPingTimeout = 5 * time.Second

// Config describes the sqlite database backing the repositories.
type Config struct {
	DSN         string
	Debug       bool
	PingTimeout time.Duration
}

func (c Config) GetDebug() bool                { return c.Debug }
func (c Config) GetDriver() string             { return sqliteshim.ShimName }
func (c Config) GetOtelIdentifier() string     { return "" }
func (c Config) GetPingTimeout() time.Duration { return c.PingTimeout }

func (c Config) GetServer() string {
	if c.DSN == "" {
		return MemoryDSN
	}
	return c.DSN
}

// NewClient opens the database described by cfg and registers the identity
// migrations. SQLite allows one writer, so the pool is capped at a single
// connection. Migrations are not applied until Migrate is called.
func NewClient(cfg Config) (*persistence.Client, error) {
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = defaultPingTimeout
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.GetServer())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.GetServer(), err)
	}
	sqldb.SetMaxOpenConns(1)

	client, err := persistence.New(cfg, sqldb, sqlitedialect.New())
	if err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}

	migrations, err := MigrationsFS()
	if err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	client.RegisterDialectMigrations(
		migrations,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
	)
	return client, nil
}

// Open opens dsn, applies the migrations and returns the repository manager
// with the underlying database.
func Open(ctx context.Context, dsn string) (identity.RepositoryManager, *bun.DB, error) {
	client, err := NewClient(Config{DSN: dsn})
	if err != nil {
		return nil, nil, err
	}

	db := client.DB()
	if err := client.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate identity schema: %w", err)
	}

	manager := identity.NewRepositoryManager(db)
	if err := manager.Validate(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return manager, db, nil
}
