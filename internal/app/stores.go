package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sundayezeilo/shortlink/internal/account"
	"github.com/sundayezeilo/shortlink/internal/config"
	"github.com/sundayezeilo/shortlink/internal/db/migrations"
	db "github.com/sundayezeilo/shortlink/internal/db/sqlc"
	"github.com/sundayezeilo/shortlink/internal/db/sqlite"
	"github.com/sundayezeilo/shortlink/internal/shortener"
)

// Stores are the link and account stores for the configured driver.
type Stores struct {
	Links    shortener.Repository
	Accounts account.Repository

	pool  *pgxpool.Pool
	sqlDB *sql.DB
}

// OpenStores connects to the database selected by cfg.Driver.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		logger.Info("opening sqlite database", "driver", sqlite.DriverFor(cfg.URL))
		conn, err := sqlite.Open(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return &Stores{
			Links:    shortener.NewSQLRepository(conn, nil),
			Accounts: account.NewSQLRepository(conn),
			sqlDB:    conn,
		}, nil

	default:
		pool, err := connectDatabase(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		queries := db.New(pool)
		return &Stores{
			Links:    shortener.NewRepository(queries, nil),
			Accounts: account.NewRepository(queries),
			pool:     pool,
		}, nil
	}
}

// Migrate applies pending schema migrations and returns their versions.
func (s *Stores) Migrate(ctx context.Context) ([]string, error) {
	if s.sqlDB != nil {
		return migrations.SQLite(ctx, s.sqlDB)
	}
	return migrations.Postgres(ctx, s.pool)
}

// Close releases the underlying connections.
func (s *Stores) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.sqlDB != nil {
		return s.sqlDB.Close()
	}
	return nil
}

// connectDatabase establishes a connection to the PostgreSQL database.
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns

	logger.Info("connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")

	return pool, nil
}
