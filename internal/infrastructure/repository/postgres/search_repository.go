package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

type SearchRepository struct {
	db *sql.DB
}

func NewSearchRepository(db *sql.DB) *SearchRepository {
	return &SearchRepository{db: db}
}

const retrievedColumns = `c.id, c.document_id, c.ordinal, COALESCE(c.title, ''), COALESCE(c.author, ''), COALESCE(c.category, ''), c.tags, COALESCE(c.summary, ''), c.text, d.path`

// filterClauses renders the optional chunk filters as AND conditions.
// Placeholders continue from next; the returned int is the next free index.
func filterClauses(filter domain.SearchFilter, next int) ([]string, []any, int) {
	var conds []string
	var args []any

	if len(filter.Tags) > 0 {
		conds = append(conds, fmt.Sprintf("c.tags ?| $%d", next))
		args = append(args, filter.Tags)
		next++
	}
	if filter.Author != "" {
		conds = append(conds, fmt.Sprintf("c.author ILIKE '%%' || $%d || '%%'", next))
		args = append(args, filter.Author)
		next++
	}
	if filter.Extension != "" {
		conds = append(conds, fmt.Sprintf("d.extension = $%d", next))
		args = append(args, filter.Extension)
		next++
	}
	if filter.Category != "" {
		conds = append(conds, fmt.Sprintf("c.category = $%d", next))
		args = append(args, filter.Category)
		next++
	}
	if !filter.From.IsZero() {
		conds = append(conds, fmt.Sprintf("d.mtime >= $%d", next))
		args = append(args, filter.From)
		next++
	}
	if !filter.To.IsZero() {
		conds = append(conds, fmt.Sprintf("d.mtime <= $%d", next))
		args = append(args, filter.To)
		next++
	}
	return conds, args, next
}

func scanRetrieved(rows *sql.Rows, scoreCols int) ([]domain.RetrievedChunk, error) {
	var out []domain.RetrievedChunk
	for rows.Next() {
		var hit domain.RetrievedChunk
		var tagsRaw []byte

		dest := []any{
			&hit.ChunkID, &hit.DocumentID, &hit.Ordinal, &hit.Title, &hit.Author,
			&hit.Category, &tagsRaw, &hit.Summary, &hit.Text, &hit.Path,
		}
		switch scoreCols {
		case 1:
			dest = append(dest, &hit.Score)
		case 3:
			dest = append(dest, &hit.VectorScore, &hit.KeywordScore, &hit.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan retrieved chunk: %w", err)
		}
		if len(tagsRaw) > 0 {
			if err := json.Unmarshal(tagsRaw, &hit.Tags); err != nil {
				return nil, fmt.Errorf("unmarshal tags: %w", err)
			}
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

func (r *SearchRepository) keywordChunks(ctx context.Context, query string, docIDs []int64, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	conds := []string{"c.search_vector @@ plainto_tsquery('english', $1)"}
	args := []any{query}
	next := 2

	if docIDs != nil {
		conds = append(conds, fmt.Sprintf("c.document_id = ANY($%d)", next))
		args = append(args, docIDs)
		next++
	}
	fconds, fargs, next := filterClauses(filter, next)
	conds = append(conds, fconds...)
	args = append(args, fargs...)

	sqlQuery := fmt.Sprintf(`
SELECT %s, ts_rank(c.search_vector, plainto_tsquery('english', $1)) AS score
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE %s
ORDER BY score DESC
LIMIT $%d
`, retrievedColumns, strings.Join(conds, " AND "), next)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("keyword chunk search: %w", err)
	}
	defer rows.Close()

	hits, err := scanRetrieved(rows, 1)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].KeywordScore = hits[i].Score
	}
	return hits, nil
}

func (r *SearchRepository) KeywordChunks(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	return r.keywordChunks(ctx, query, nil, limit, filter)
}

func (r *SearchRepository) KeywordChunksIn(ctx context.Context, query string, docIDs []int64, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	return r.keywordChunks(ctx, query, docIDs, limit, filter)
}

func (r *SearchRepository) vectorChunks(ctx context.Context, embedding []float32, docIDs []int64, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	conds := []string{"c.embedding IS NOT NULL"}
	args := []any{pgvector.NewVector(embedding)}
	next := 2

	if docIDs != nil {
		conds = append(conds, fmt.Sprintf("c.document_id = ANY($%d)", next))
		args = append(args, docIDs)
		next++
	}
	fconds, fargs, next := filterClauses(filter, next)
	conds = append(conds, fconds...)
	args = append(args, fargs...)

	sqlQuery := fmt.Sprintf(`
SELECT %s, 1 - (c.embedding <=> $1) AS score
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE %s
ORDER BY c.embedding <=> $1
LIMIT $%d
`, retrievedColumns, strings.Join(conds, " AND "), next)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("vector chunk search: %w", err)
	}
	defer rows.Close()

	hits, err := scanRetrieved(rows, 1)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].VectorScore = hits[i].Score
	}
	return hits, nil
}

func (r *SearchRepository) VectorChunks(ctx context.Context, embedding []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	return r.vectorChunks(ctx, embedding, nil, limit, filter)
}

func (r *SearchRepository) VectorChunksIn(ctx context.Context, embedding []float32, docIDs []int64, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	return r.vectorChunks(ctx, embedding, docIDs, limit, filter)
}

// HybridChunks scores each row as a weighted sum of cosine similarity and
// keyword rank in one statement. Rows matching either leg qualify.
func (r *SearchRepository) HybridChunks(ctx context.Context, query string, embedding []float32, limit int, vectorWeight float64, filter domain.SearchFilter) ([]domain.RetrievedChunk, error) {
	conds := []string{"(c.embedding IS NOT NULL OR c.search_vector @@ plainto_tsquery('english', $2))"}
	args := []any{pgvector.NewVector(embedding), query, vectorWeight}
	next := 4

	fconds, fargs, next := filterClauses(filter, next)
	conds = append(conds, fconds...)
	args = append(args, fargs...)

	sqlQuery := fmt.Sprintf(`
SELECT %s,
       COALESCE(1 - (c.embedding <=> $1), 0) AS vector_score,
       COALESCE(ts_rank(c.search_vector, plainto_tsquery('english', $2)), 0) AS keyword_score,
       $3::float8 * COALESCE(1 - (c.embedding <=> $1), 0) + (1 - $3::float8) * COALESCE(ts_rank(c.search_vector, plainto_tsquery('english', $2)), 0) AS score
FROM chunks c
JOIN documents d ON d.id = c.document_id
WHERE %s
ORDER BY score DESC
LIMIT $%d
`, retrievedColumns, strings.Join(conds, " AND "), next)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("hybrid chunk search: %w", err)
	}
	defer rows.Close()
	return scanRetrieved(rows, 3)
}

func (r *SearchRepository) KeywordDocuments(ctx context.Context, query string, limit int) ([]domain.DocumentHit, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT d.id, d.path, COALESCE(d.doc_summary, ''), ts_rank(d.doc_search_vector, plainto_tsquery('english', $1)) AS score
FROM documents d
WHERE d.doc_search_vector @@ plainto_tsquery('english', $1)
ORDER BY score DESC
LIMIT $2
`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword document search: %w", err)
	}
	defer rows.Close()
	return collectDocumentHits(rows)
}

func (r *SearchRepository) VectorDocuments(ctx context.Context, embedding []float32, limit int) ([]domain.DocumentHit, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT d.id, d.path, COALESCE(d.doc_summary, ''), 1 - (d.doc_embedding <=> $1) AS score
FROM documents d
WHERE d.doc_embedding IS NOT NULL
ORDER BY d.doc_embedding <=> $1
LIMIT $2
`, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("vector document search: %w", err)
	}
	defer rows.Close()
	return collectDocumentHits(rows)
}

func collectDocumentHits(rows *sql.Rows) ([]domain.DocumentHit, error) {
	var out []domain.DocumentHit
	for rows.Next() {
		var hit domain.DocumentHit
		if err := rows.Scan(&hit.DocumentID, &hit.Path, &hit.Summary, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan document hit: %w", err)
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

func (r *SearchRepository) AnyEmbeddedChunks(ctx context.Context, docIDs []int64) (bool, error) {
	if len(docIDs) == 0 {
		return false, nil
	}
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (SELECT 1 FROM chunks WHERE document_id = ANY($1) AND embedding IS NOT NULL)
`, docIDs).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check embedded chunks: %w", err)
	}
	return exists, nil
}
