package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"skechum/internal/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DSN returns the connection string adjusted for the current environment.
// In a development environment SSL is disabled for local testing unless the
// connection string already says otherwise.
func DSN(cfg *config.Config) string {
	dsn := cfg.DBConnectionString
	if cfg.IsDevelopment() && !strings.Contains(dsn, "sslmode") {
		separator := " "
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			if strings.Contains(dsn, "?") {
				separator = "&"
			} else {
				separator = "?"
			}
		}
		dsn += separator + "sslmode=disable"
	}
	return dsn
}

// NewPool opens the pgx connection pool used by all repositories.
func NewPool(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	// Outside development we sit behind a transaction pooler (pgbouncer), which
	// breaks server-side prepared statements.
	if !cfg.IsDevelopment() {
		poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info().Int32("max_conns", poolCfg.MaxConns).Msg("Database connection successful")
	return pool, nil
}
