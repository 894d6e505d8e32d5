package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

const chunkColumns = `id, document_id, ordinal, char_start, char_end, text, content_hash, COALESCE(title, ''), COALESCE(author, ''), COALESCE(category, ''), tags, COALESCE(summary, ''), quality_metadata, status, retry_count, created_at, updated_at`

func scanChunk(row rowScanner) (*domain.Chunk, error) {
	var chunk domain.Chunk
	var status string
	var tagsRaw, qualityRaw []byte

	err := row.Scan(
		&chunk.ID, &chunk.DocumentID, &chunk.Ordinal, &chunk.CharStart, &chunk.CharEnd,
		&chunk.Text, &chunk.ContentHash, &chunk.Title, &chunk.Author, &chunk.Category,
		&tagsRaw, &chunk.Summary, &qualityRaw, &status, &chunk.RetryCount,
		&chunk.CreatedAt, &chunk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &chunk.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	if len(qualityRaw) > 0 {
		if err := json.Unmarshal(qualityRaw, &chunk.Quality); err != nil {
			return nil, fmt.Errorf("unmarshal quality metadata: %w", err)
		}
	}
	chunk.Status = domain.ChunkStatus(status)
	return &chunk, nil
}

func collectChunks(rows *sql.Rows) ([]domain.Chunk, error) {
	var out []domain.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		out = append(out, *chunk)
	}
	return out, rows.Err()
}

// InsertBatch writes the chunks of one document. Rows whose content hash
// already exists anywhere in the archive are silently dropped.
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i := range chunks {
		chunk := &chunks[i]
		tagsJSON, err := json.Marshal(chunk.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		if chunk.Tags == nil {
			tagsJSON = []byte(`[]`)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chunks (document_id, ordinal, char_start, char_end, text, content_hash, tags, status, search_vector)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8, setweight(to_tsvector('english', $5::text), 'B'))
ON CONFLICT (content_hash) DO NOTHING
`,
			chunk.DocumentID, chunk.Ordinal, chunk.CharStart, chunk.CharEnd,
			chunk.Text, chunk.ContentHash, tagsJSON, string(domain.ChunkPending),
		); err != nil {
			return fmt.Errorf("insert chunk %d/%d: %w", chunk.DocumentID, chunk.Ordinal, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert tx: %w", err)
	}
	return nil
}

func (r *ChunkRepository) GetByID(ctx context.Context, id int64) (*domain.Chunk, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = $1`, id)
	chunk, err := scanChunk(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get chunk", fmt.Errorf("id %d", id))
		}
		return nil, fmt.Errorf("scan chunk: %w", err)
	}
	return chunk, nil
}

func (r *ChunkRepository) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	out := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT content_hash FROM chunks WHERE content_hash = ANY($1)`, hashes)
	if err != nil {
		return nil, fmt.Errorf("select existing hashes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("scan hash: %w", err)
		}
		out[hash] = true
	}
	return out, rows.Err()
}

// ClaimPending locks a retry-eligible pending batch and marks it enriching
// so a concurrent claim on another worker skips the same rows.
func (r *ChunkRepository) ClaimPending(ctx context.Context, limit int) ([]domain.Chunk, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE status = 'pending' AND retry_count < $1
ORDER BY id
LIMIT $2
FOR UPDATE SKIP LOCKED
`, domain.MaxEnrichRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("select claimable chunks: %w", err)
	}
	chunks, err := collectChunks(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]int64, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.ID
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE chunks SET status = 'enriching', updated_at = now() WHERE id = ANY($1)
`, ids); err != nil {
		return nil, fmt.Errorf("mark claimed chunks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	for i := range chunks {
		chunks[i].Status = domain.ChunkEnriching
	}
	return chunks, nil
}

// SaveEnrichment persists the metadata, refreshes the weighted search
// vector and clears any stale embedding so the embed phase picks the chunk
// up again.
func (r *ChunkRepository) SaveEnrichment(ctx context.Context, chunk *domain.Chunk) error {
	tagsJSON, err := json.Marshal(chunk.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	if chunk.Tags == nil {
		tagsJSON = []byte(`[]`)
	}
	qualityJSON, err := json.Marshal(chunk.Quality)
	if err != nil {
		return fmt.Errorf("marshal quality metadata: %w", err)
	}
	weighted := strings.TrimSpace(chunk.Title + " " + strings.Join(chunk.Tags, " "))

	res, err := r.db.ExecContext(ctx, `
UPDATE chunks
SET title = $2,
    author = $3,
    category = $4,
    tags = $5,
    summary = $6,
    quality_metadata = $7,
    status = 'enriched',
    embedding = NULL,
    search_vector = setweight(to_tsvector('english', $8::text), 'A') || setweight(to_tsvector('english', text), 'B'),
    updated_at = now()
WHERE id = $1
`, chunk.ID, chunk.Title, chunk.Author, chunk.Category, tagsJSON, chunk.Summary, qualityJSON, weighted)
	if err != nil {
		return fmt.Errorf("save chunk enrichment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "save chunk enrichment", fmt.Errorf("id %d", chunk.ID))
	}
	return nil
}

// RecordFailure bumps the retry counter in one statement. Below the limit
// the chunk goes back to pending; at the limit it flips to error.
func (r *ChunkRepository) RecordFailure(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
UPDATE chunks
SET retry_count = retry_count + 1,
    status = CASE WHEN retry_count + 1 >= $2 THEN 'error' ELSE 'pending' END,
    updated_at = now()
WHERE id = $1
RETURNING retry_count
`, id, domain.MaxEnrichRetries).Scan(&count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.WrapError(domain.ErrNotFound, "record chunk failure", fmt.Errorf("id %d", id))
		}
		return 0, fmt.Errorf("record chunk failure: %w", err)
	}
	return count, nil
}

// Release puts a claimed chunk back to pending without touching the retry
// counter. Used when a shutdown interrupts a batch before the model ran.
func (r *ChunkRepository) Release(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE chunks SET status = 'pending', updated_at = now() WHERE id = $1 AND status = 'enriching'
`, id)
	if err != nil {
		return fmt.Errorf("release chunk: %w", err)
	}
	return nil
}

// ReleaseStale returns chunks abandoned mid-claim by a dead worker to
// pending once their claim is older than the staleness threshold.
func (r *ChunkRepository) ReleaseStale(ctx context.Context, olderThanSeconds int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE chunks
SET status = 'pending', updated_at = now()
WHERE status = 'enriching'
  AND updated_at < now() - make_interval(secs => $1)
`, olderThanSeconds)
	if err != nil {
		return 0, fmt.Errorf("release stale chunks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale rows affected: %w", err)
	}
	return int(n), nil
}

// ClaimUnembedded selects without marking: embedding writes are idempotent,
// so a rare duplicate claim costs one redundant model call at most.
func (r *ChunkRepository) ClaimUnembedded(ctx context.Context, limit int) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE status = 'enriched' AND embedding IS NULL
ORDER BY id
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("select unembedded chunks: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (r *ChunkRepository) SaveEmbedding(ctx context.Context, id int64, embedding []float32) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE chunks SET embedding = $2, updated_at = now() WHERE id = $1
`, id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("save chunk embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "save chunk embedding", fmt.Errorf("id %d", id))
	}
	return nil
}

// ListNeedingReview surfaces the manual-recovery queue: chunks that gave
// up enriching plus those flagged by the quality rubric.
func (r *ChunkRepository) ListNeedingReview(ctx context.Context, limit int) ([]domain.Chunk, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+chunkColumns+`
FROM chunks
WHERE status = 'error' OR COALESCE((quality_metadata ->> 'needs_review')::boolean, false)
ORDER BY updated_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("select review queue: %w", err)
	}
	defer rows.Close()
	return collectChunks(rows)
}

func (r *ChunkRepository) Reset(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE chunks
SET status = 'pending',
    retry_count = 0,
    title = NULL,
    author = NULL,
    category = NULL,
    tags = '[]'::jsonb,
    summary = NULL,
    quality_metadata = '{}'::jsonb,
    embedding = NULL,
    search_vector = setweight(to_tsvector('english', text), 'B'),
    updated_at = now()
WHERE id = $1
`, id)
	if err != nil {
		return fmt.Errorf("reset chunk: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "reset chunk", fmt.Errorf("id %d", id))
	}
	return nil
}
