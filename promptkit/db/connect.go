// Package db opens the embedded libsql database that backs session storage.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// LibSQLEmbeddedConfig holds configuration for embedded libsql connections
type LibSQLEmbeddedConfig struct {
	DatabasePath string // Path to .db file
	Logger       zerolog.Logger
}

// ConnectToDB opens the database at path, creating it if needed.
func ConnectToDB(ctx context.Context, path string, logger zerolog.Logger) (*sql.DB, error) {
	return ConnectToDBWithConfig(ctx, &LibSQLEmbeddedConfig{DatabasePath: path, Logger: logger})
}

func ConnectToDBWithConfig(ctx context.Context, cfg *LibSQLEmbeddedConfig) (*sql.DB, error) {
	dir := filepath.Dir(cfg.DatabasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
	}

	if _, err := os.Stat(cfg.DatabasePath); os.IsNotExist(err) {
		cfg.Logger.Info().Str("path", cfg.DatabasePath).Msg("database not found, creating a new one")
		file, err := os.Create(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("could not create db at path %s: %w", cfg.DatabasePath, err)
		}
		file.Close()
	}

	dsn := "file:" + cfg.DatabasePath
	cfg.Logger.Debug().Str("dsn", dsn).Msg("connecting to embedded libsql")

	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open libsql connection: %w", err)
	}

	if err := verifyEmbeddedLibSQL(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// verifyEmbeddedLibSQL checks that the connection answers a trivial query.
func verifyEmbeddedLibSQL(ctx context.Context, db *sql.DB) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}
	return nil
}
