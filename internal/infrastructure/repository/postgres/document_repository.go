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

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, path, filename, extension, size_bytes, COALESCE(mtime, to_timestamp(0)), COALESCE(sha256, ''), raw_text, status, COALESCE(doc_summary, ''), doc_status, meta, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var doc domain.Document
	var status, docStatus string
	var metaRaw []byte

	err := row.Scan(
		&doc.ID, &doc.Path, &doc.Filename, &doc.Extension, &doc.SizeBytes, &doc.MTime,
		&doc.SHA256, &doc.RawText, &status, &doc.DocSummary, &docStatus, &metaRaw,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &doc.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
	}
	doc.Status = domain.DocumentStatus(status)
	doc.DocStatus = domain.DocStatus(docStatus)
	return &doc, nil
}

func (r *DocumentRepository) Insert(ctx context.Context, doc *domain.Document) error {
	metaJSON, err := json.Marshal(doc.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if doc.Meta == nil {
		metaJSON = []byte(`{}`)
	}

	var sha any
	if doc.SHA256 != "" {
		sha = doc.SHA256
	}

	err = r.db.QueryRowContext(ctx, `
INSERT INTO documents (path, filename, extension, size_bytes, mtime, sha256, raw_text, status, doc_status, meta)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, created_at, updated_at
`,
		doc.Path, doc.Filename, doc.Extension, doc.SizeBytes, doc.MTime, sha,
		doc.RawText, string(doc.Status), string(doc.DocStatus), metaJSON,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id int64) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id %d", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) GetBySHA256(ctx context.Context, sha256 string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE sha256 = $1`, sha256)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document by hash", fmt.Errorf("sha256 %s", sha256))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) RepointPath(ctx context.Context, id int64, doc *domain.Document) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET path = $2, filename = $3, extension = $4, size_bytes = $5, mtime = $6, updated_at = now()
WHERE id = $1
`, id, doc.Path, doc.Filename, doc.Extension, doc.SizeBytes, doc.MTime)
	if err != nil {
		return fmt.Errorf("repoint document path: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "repoint document path", fmt.Errorf("id %d", id))
	}
	return nil
}

// UpdateExtraction rewrites the extracted text and file metadata after a
// re-extraction of an existing row, e.g. a retried failed extraction.
func (r *DocumentRepository) UpdateExtraction(ctx context.Context, id int64, doc *domain.Document) error {
	metaJSON, err := json.Marshal(doc.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if doc.Meta == nil {
		metaJSON = []byte(`{}`)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET path = $2, filename = $3, extension = $4, size_bytes = $5, mtime = $6,
    raw_text = $7, status = $8, doc_status = $9, meta = $10, updated_at = now()
WHERE id = $1
`, id, doc.Path, doc.Filename, doc.Extension, doc.SizeBytes, doc.MTime,
		doc.RawText, string(doc.Status), string(doc.DocStatus), metaJSON)
	if err != nil {
		return fmt.Errorf("update document extraction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update document extraction", fmt.Errorf("id %d", id))
	}
	return nil
}

func (r *DocumentRepository) ListFingerprints(ctx context.Context) ([]domain.FileFingerprint, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, path, COALESCE(EXTRACT(EPOCH FROM mtime)::bigint, 0), size_bytes, status
FROM documents
`)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var out []domain.FileFingerprint
	for rows.Next() {
		var fp domain.FileFingerprint
		var status string
		if err := rows.Scan(&fp.DocumentID, &fp.Path, &fp.MTimeUnix, &fp.SizeBytes, &status); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		fp.Status = domain.DocumentStatus(status)
		out = append(out, fp)
	}
	return out, rows.Err()
}

func (r *DocumentRepository) ListUnsegmented(ctx context.Context, limit int) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents d
WHERE d.status = 'ok'
  AND d.raw_text <> ''
  AND NOT EXISTS (SELECT 1 FROM chunks c WHERE c.document_id = d.id)
ORDER BY d.id
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsegmented documents: %w", err)
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var out []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// claimDocuments locks a batch with SKIP LOCKED and marks it with the
// transient status so other workers and crash recovery can see ownership.
func (r *DocumentRepository) claimDocuments(ctx context.Context, fromStatus, toStatus domain.DocStatus, limit int) ([]domain.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `
SELECT `+documentColumns+`
FROM documents
WHERE doc_status = $1 AND status = 'ok'
ORDER BY id
LIMIT $2
FOR UPDATE SKIP LOCKED
`, string(fromStatus), limit)
	if err != nil {
		return nil, fmt.Errorf("select claimable documents: %w", err)
	}
	docs, err := collectDocuments(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, tx.Commit()
	}

	ids := make([]int64, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE documents SET doc_status = $1, updated_at = now() WHERE id = ANY($2)
`, string(toStatus), ids); err != nil {
		return nil, fmt.Errorf("mark claimed documents: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	for i := range docs {
		docs[i].DocStatus = toStatus
	}
	return docs, nil
}

func (r *DocumentRepository) ClaimForEnrichment(ctx context.Context, limit int) ([]domain.Document, error) {
	return r.claimDocuments(ctx, domain.DocPending, domain.DocEnriching, limit)
}

func (r *DocumentRepository) ClaimForEmbedding(ctx context.Context, limit int) ([]domain.Document, error) {
	return r.claimDocuments(ctx, domain.DocEnriched, domain.DocEmbedding, limit)
}

func (r *DocumentRepository) SaveDocEnrichment(ctx context.Context, id int64, summary string, enrichment domain.DocEnrichment) error {
	enrichJSON, err := json.Marshal(enrichment)
	if err != nil {
		return fmt.Errorf("marshal enrichment: %w", err)
	}
	weighted := strings.TrimSpace(enrichment.Title + " " + strings.Join(enrichment.Themes, " "))

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET doc_summary = $2,
    meta = meta || $3,
    doc_status = 'enriched',
    doc_embedding = NULL,
    doc_search_vector = setweight(to_tsvector('english', $4), 'A') || setweight(to_tsvector('english', $2), 'B'),
    updated_at = now()
WHERE id = $1
`, id, summary, enrichJSON, weighted)
	if err != nil {
		return fmt.Errorf("save doc enrichment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "save doc enrichment", fmt.Errorf("id %d", id))
	}
	return nil
}

func (r *DocumentRepository) SaveDocEmbedding(ctx context.Context, id int64, embedding []float32) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET doc_embedding = $2, doc_status = 'embedded', updated_at = now()
WHERE id = $1
`, id, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("save doc embedding: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "save doc embedding", fmt.Errorf("id %d", id))
	}
	return nil
}

func (r *DocumentRepository) SetDocStatus(ctx context.Context, id int64, status domain.DocStatus) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents SET doc_status = $2, updated_at = now() WHERE id = $1
`, id, string(status))
	if err != nil {
		return fmt.Errorf("set doc status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "set doc status", fmt.Errorf("id %d", id))
	}
	return nil
}

func (r *DocumentRepository) SetStatus(ctx context.Context, id int64, status domain.DocumentStatus) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents SET status = $2, updated_at = now() WHERE id = $1
`, id, string(status))
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "set document status", fmt.Errorf("id %d", id))
	}
	return nil
}

// ReleaseStale returns documents abandoned mid-claim by a dead worker to
// their pre-claim status so the pipeline picks them up again.
func (r *DocumentRepository) ReleaseStale(ctx context.Context, olderThanSeconds int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET doc_status = CASE doc_status WHEN 'enriching' THEN 'pending' ELSE 'enriched' END,
    updated_at = now()
WHERE doc_status IN ('enriching', 'embedding')
  AND updated_at < now() - make_interval(secs => $1)
`, olderThanSeconds)
	if err != nil {
		return 0, fmt.Errorf("release stale documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale rows affected: %w", err)
	}
	return int(n), nil
}

func (r *DocumentRepository) ResetDoc(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET doc_status = 'pending', doc_summary = NULL, doc_embedding = NULL, doc_search_vector = NULL, updated_at = now()
WHERE id = $1
`, id)
	if err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "reset document", fmt.Errorf("id %d", id))
	}
	return nil
}
