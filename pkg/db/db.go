// Package db manages the PostgreSQL connection pool and schema migrations.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Config configures the pool.
type Config struct {
	DSN             string
	Schema          string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DB wraps the pgx pool.
type DB struct {
	Pool   *pgxpool.Pool
	schema string
	logger *slog.Logger
}

// New connects to the database and verifies the connection.
func New(cfg Config, logger *slog.Logger) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		slog.String("host", poolCfg.ConnConfig.Host),
		slog.String("database", poolCfg.ConnConfig.Database),
		slog.String("schema", cfg.Schema),
	)

	return &DB{Pool: pool, schema: cfg.Schema, logger: logger}, nil
}

// Close closes the pool.
func (d *DB) Close() {
	if d == nil || d.Pool == nil {
		return
	}
	d.Pool.Close()
}

// Health pings the database.
func (d *DB) Health(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

// RunMigrations creates the schema if needed and applies all pending migrations.
func (d *DB) RunMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := d.ensureSchema(ctx); err != nil {
		return err
	}

	provider, sqlDB, err := d.provider()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		d.logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Duration("duration", r.Duration),
		)
	}
	return nil
}

// RollbackMigration reverts the most recent migration.
func (d *DB) RollbackMigration(ctx context.Context) error {
	provider, sqlDB, err := d.provider()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	r, err := provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	d.logger.Info("rolled back migration", slog.String("source", r.Source.Path))
	return nil
}

// MigrationStatus reports every known migration and whether it is applied.
func (d *DB) MigrationStatus(ctx context.Context) ([]*goose.MigrationStatus, error) {
	provider, sqlDB, err := d.provider()
	if err != nil {
		return nil, err
	}
	defer sqlDB.Close()

	status, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}
	return status, nil
}

func (d *DB) ensureSchema(ctx context.Context) error {
	if d.schema == "" {
		return nil
	}
	stmt := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{d.schema}.Sanitize()
	if _, err := d.Pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.schema, err)
	}
	return nil
}

func (d *DB) provider() (*goose.Provider, *sql.DB, error) {
	fsys, err := Migrations()
	if err != nil {
		return nil, nil, err
	}
	sqlDB := stdlib.OpenDBFromPool(d.Pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, sqlDB, nil
}

// Migrations returns the embedded migration files.
func Migrations() (fs.FS, error) {
	return fs.Sub(migrationFiles, "migrations")
}
