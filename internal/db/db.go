package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"prepvista-rag/internal/config"
)

// Open connects to the configured database
func Open(cfg *config.DatabaseConfig) (*bun.DB, error) {
	var db *bun.DB
	switch cfg.Type {
	case "postgres":
		sqldb, err := connectPostgres(cfg)
		if err != nil {
			return nil, err
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	case "sqlite":
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		// in-memory databases live and die with a single connection
		if strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory") {
			sqldb.SetMaxOpenConns(1)
		}
		db = bun.NewDB(sqldb, sqlitedialect.New())
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}

	if cfg.MaxOpenConns > 0 && cfg.Type == "postgres" {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db, nil
}

func connectPostgres(cfg *config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Driver == "pq" {
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		return sqldb, nil
	}
	opts := []pgdriver.Option{pgdriver.WithDSN(cfg.DSN)}
	if cfg.Password != "" {
		opts = append(opts, pgdriver.WithPassword(cfg.Password))
	}
	return sql.OpenDB(pgdriver.NewConnector(opts...)), nil
}

func isPostgres(db bun.IDB) bool {
	return db.Dialect().Name() == dialect.PG
}

var postgresSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		name TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size_bytes BIGINT NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		failure_reason TEXT,
		processed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS documents_agent_hash_idx ON documents (agent_id, content_hash)`,
	`CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
		sequence_index INTEGER NOT NULL,
		page_number INTEGER,
		content TEXT NOT NULL,
		metadata JSONB,
		UNIQUE (document_id, sequence_index)
	)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		chunk_id TEXT NOT NULL REFERENCES chunks (id) ON DELETE CASCADE,
		model TEXT NOT NULL,
		dimension INTEGER NOT NULL,
		vector vector NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (chunk_id, model)
	)`,
	`CREATE INDEX IF NOT EXISTS embeddings_model_idx ON embeddings (model)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		name TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		failure_reason TEXT,
		processed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS documents_agent_hash_idx ON documents (agent_id, content_hash)`,
	`CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents (id) ON DELETE CASCADE,
		sequence_index INTEGER NOT NULL,
		page_number INTEGER,
		content TEXT NOT NULL,
		metadata TEXT,
		UNIQUE (document_id, sequence_index)
	)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		id TEXT PRIMARY KEY,
		chunk_id TEXT NOT NULL REFERENCES chunks (id) ON DELETE CASCADE,
		model TEXT NOT NULL,
		dimension INTEGER NOT NULL,
		vector TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (chunk_id, model)
	)`,
	`CREATE INDEX IF NOT EXISTS embeddings_model_idx ON embeddings (model)`,
}

// InitDB creates the tables if they do not exist
func InitDB(ctx context.Context, db *bun.DB) error {
	schema := sqliteSchema
	if isPostgres(db) {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// DropTables removes every table created by InitDB
func DropTables(ctx context.Context, db *bun.DB) error {
	for _, table := range []string{"embeddings", "chunks", "documents"} {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}
