package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Config struct {
	DSN            string
	MaxConns       int
	Timeout        time.Duration
	TimeZone       string
	ClientEncoding string
}

// Connect opens a *sql.DB and verifies connectivity with a ping
func Connect(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MaxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	// Apply session-level settings if provided
	if cfg.TimeZone != "" {
		if _, err := db.ExecContext(ctx, "SET TIME ZONE "+quoteLiteral(cfg.TimeZone)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set time zone: %w", err)
		}
	}
	if cfg.ClientEncoding != "" {
		if _, err := db.ExecContext(ctx, "SET client_encoding = "+quoteLiteral(cfg.ClientEncoding)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set client_encoding: %w", err)
		}
	}
	return db, nil
}

// Open connects and wraps the pool with sqlx for the repositories.
func Open(cfg Config) (*sqlx.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(db, "postgres"), nil
}

// quoteLiteral escapes single quotes and wraps the value in single quotes
// so it can be used safely in SET ... statements which don't accept
// parameter placeholders for the right-hand side.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
