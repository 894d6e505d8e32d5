package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// EmbeddingDimensions matches nomic-embed-text and similar models.
const EmbeddingDimensions = 768

const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	path TEXT NOT NULL,
	filename TEXT NOT NULL,
	extension TEXT NOT NULL,
	size_bytes BIGINT NOT NULL DEFAULT 0,
	mtime TIMESTAMPTZ,
	sha256 TEXT UNIQUE,
	raw_text TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'ok',
	doc_summary TEXT,
	doc_embedding vector(768),
	doc_search_vector TSVECTOR,
	doc_status TEXT NOT NULL DEFAULT 'pending',
	meta JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_path ON documents(path);
CREATE INDEX IF NOT EXISTS idx_documents_doc_status ON documents(doc_status);
CREATE INDEX IF NOT EXISTS idx_documents_doc_search ON documents USING gin(doc_search_vector);

CREATE TABLE IF NOT EXISTS chunks (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	ordinal INTEGER NOT NULL,
	char_start INTEGER NOT NULL DEFAULT 0,
	char_end INTEGER NOT NULL DEFAULT 0,
	text TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	title TEXT,
	author TEXT,
	category TEXT,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	summary TEXT,
	quality_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding vector(768),
	search_vector TSVECTOR,
	status TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_chunks_status ON chunks(status);
CREATE INDEX IF NOT EXISTS idx_chunks_search ON chunks USING gin(search_vector);

CREATE TABLE IF NOT EXISTS links (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	text TEXT,
	type TEXT NOT NULL,
	domain TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_links_document ON links(document_id);
CREATE INDEX IF NOT EXISTS idx_links_domain ON links(domain);

CREATE TABLE IF NOT EXISTS workers (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	current_phase TEXT,
	current_task TEXT,
	config JSONB NOT NULL DEFAULT '{}'::jsonb,
	progress JSONB NOT NULL DEFAULT '{}'::jsonb,
	stats JSONB NOT NULL DEFAULT '{}'::jsonb,
	last_heartbeat TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_workers_status ON workers(status);
`

// EnsureSchema bootstraps the DDL. The advisory lock serializes api and
// worker startups racing on CREATE statements.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082701)); err != nil {
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
