package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-ledger/internal/config"
	"ms-ledger/internal/logger"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// OpenPostgres connects to cfg.DSN, retrying the ping while the database
// comes up, and returns a Store on pgdialect.
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is not set")
	}
	log.LogDatabase("CONNECT", "postgresql", "Connecting to PostgreSQL")

	sqldb, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	retries := cfg.ConnRetries
	if retries <= 0 {
		retries = 1
	}
	for attempt := 1; ; attempt++ {
		err = sqldb.PingContext(ctx)
		if err == nil {
			break
		}
		if attempt >= retries {
			sqldb.Close()
			return nil, fmt.Errorf("failed to ping database after %d attempts: %w", attempt, err)
		}
		log.Warn("DATABASE", fmt.Sprintf("PostgreSQL not ready (attempt %d/%d): %v", attempt, retries, err))
		select {
		case <-ctx.Done():
			sqldb.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	log.LogDatabase("SUCCESS", "postgresql", "PostgreSQL connection established")
	return &DB{Bun: bun.NewDB(sqldb, pgdialect.New())}, nil
}
