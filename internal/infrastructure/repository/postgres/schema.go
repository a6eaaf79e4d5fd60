package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	storage_ref TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	doc_type TEXT NOT NULL CHECK (doc_type IN ('reference', 'patient')),
	uploaded_by_id TEXT NOT NULL,
	patient_id TEXT,
	status TEXT NOT NULL CHECK (status IN ('uploading', 'processing', 'indexed', 'error')),
	progress INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	analysis JSONB,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CONSTRAINT documents_patient_id_iff_patient CHECK ((doc_type = 'patient') = (patient_id IS NOT NULL)),
	CONSTRAINT documents_progress_iff_indexed CHECK ((progress = 100) = (status = 'indexed')),
	CONSTRAINT documents_analysis_iff_indexed CHECK ((analysis IS NOT NULL) = (status = 'indexed'))
);

CREATE INDEX IF NOT EXISTS idx_documents_type ON documents(doc_type, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_patient ON documents(patient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	location TEXT NOT NULL DEFAULT '',
	last_seen_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON sessions(last_seen_at DESC);

CREATE TABLE IF NOT EXISTS user_roles (
	user_id TEXT PRIMARY KEY,
	role TEXT NOT NULL CHECK (role IN ('admin', 'doctor', 'patient')),
	updated_at TIMESTAMPTZ NOT NULL
);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
