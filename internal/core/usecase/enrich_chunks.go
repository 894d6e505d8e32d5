package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/core/ports"
)

// folderCategories maps well-known directory names to a category when the
// model does not produce one.
var folderCategories = map[string]string{
	"journal":   "journal",
	"journals":  "journal",
	"diary":     "journal",
	"letters":   "correspondence",
	"mail":      "correspondence",
	"email":     "correspondence",
	"recipes":   "recipe",
	"work":      "work",
	"projects":  "work",
	"photos":    "photo",
	"pictures":  "photo",
	"reference": "reference",
	"docs":      "reference",
	"notes":     "note",
}

// EnrichChunksUseCase extracts retrieval metadata for claimed chunks with
// a bounded goroutine pool. Every chunk commits independently: one bad
// chunk never blocks its batch.
type EnrichChunksUseCase struct {
	docs     ports.DocumentRepository
	chunks   ports.ChunkRepository
	llm      ports.LLMBackend
	model    string
	maxChars int
	workers  int
	logger   *slog.Logger
}

func NewEnrichChunksUseCase(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	llm ports.LLMBackend,
	model string,
	maxChars, workers int,
	logger *slog.Logger,
) *EnrichChunksUseCase {
	if maxChars <= 0 {
		maxChars = 4000
	}
	if workers <= 0 {
		workers = 1
	}
	return &EnrichChunksUseCase{
		docs:     docs,
		chunks:   chunks,
		llm:      llm,
		model:    model,
		maxChars: maxChars,
		workers:  workers,
		logger:   logger,
	}
}

// Run enriches one claimed batch and reports how many chunks it took.
func (uc *EnrichChunksUseCase) Run(ctx context.Context, batchSize int) (int, error) {
	chunks, err := uc.chunks.ClaimPending(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim chunks: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	docCache := newDocumentCache(uc.docs)
	sem := make(chan struct{}, uc.workers)
	var wg sync.WaitGroup
	for i := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(chunk *domain.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			uc.enrichOne(ctx, chunk, docCache)
		}(&chunks[i])
	}
	wg.Wait()
	return len(chunks), nil
}

func (uc *EnrichChunksUseCase) enrichOne(ctx context.Context, chunk *domain.Chunk, docCache *documentCache) {
	var enrichment domain.ChunkEnrichment
	err := uc.llm.GenerateJSON(ctx, chunkEnrichPrompt(truncateChars(chunk.Text, uc.maxChars)), uc.model, &enrichment)
	if err != nil {
		// Shutdown mid-batch is not a model failure: put the claim back
		// without consuming a retry.
		if ctx.Err() != nil {
			uc.releaseClaim(ctx, chunk.ID)
			return
		}
		count, failErr := uc.chunks.RecordFailure(ctx, chunk.ID)
		if failErr != nil {
			uc.logger.Error("record chunk failure failed", "chunk_id", chunk.ID, "error", failErr)
			return
		}
		if count >= domain.MaxEnrichRetries {
			uc.logger.Error("chunk enrichment gave up", "chunk_id", chunk.ID, "retries", count, "error", err)
		} else {
			uc.logger.Warn("chunk enrichment failed, will retry", "chunk_id", chunk.ID, "retries", count, "error", err)
		}
		return
	}

	doc, docErr := docCache.get(ctx, chunk.DocumentID)
	if docErr != nil {
		uc.logger.Warn("document lookup for fallbacks failed", "chunk_id", chunk.ID, "error", docErr)
	}
	applyFallbacks(&enrichment, doc)

	chunk.Title = enrichment.Title
	chunk.Author = enrichment.Author
	chunk.Category = categoryFor(enrichment, doc)
	chunk.Tags = cleanTags(enrichment.Tags)
	chunk.Summary = enrichment.Summary
	chunk.Quality = scoreEnrichment(enrichment, chunk.Text)

	if err := uc.chunks.SaveEnrichment(ctx, chunk); err != nil {
		uc.logger.Error("save chunk enrichment failed", "chunk_id", chunk.ID, "error", err)
		return
	}
	if chunk.Quality.NeedsReview {
		uc.logger.Warn("low quality enrichment", "chunk_id", chunk.ID, "score", chunk.Quality.Score)
	}
}

// releaseClaim returns an interrupted claim to pending. The batch context
// is already cancelled, so the update runs on a short detached one.
func (uc *EnrichChunksUseCase) releaseClaim(ctx context.Context, id int64) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := uc.chunks.Release(releaseCtx, id); err != nil {
		uc.logger.Error("release claimed chunk failed", "chunk_id", id, "error", err)
	}
}

func truncateChars(text string, max int) string {
	if max > 0 && len(text) > max {
		return text[:max]
	}
	return text
}

// applyFallbacks fills missing fields from the file path: the filename
// stands in for a title and an authors/<name>/ segment names the author.
func applyFallbacks(e *domain.ChunkEnrichment, doc *domain.Document) {
	if doc == nil {
		return
	}
	if strings.TrimSpace(e.Title) == "" {
		name := strings.TrimSuffix(doc.Filename, filepath.Ext(doc.Filename))
		e.Title = strings.ReplaceAll(strings.ReplaceAll(name, "_", " "), "-", " ")
	}
	if strings.TrimSpace(e.Author) == "" {
		e.Author = authorFromPath(doc.Path)
	}
}

func authorFromPath(path string) string {
	segments := strings.Split(filepath.ToSlash(path), "/")
	for i, seg := range segments {
		if strings.EqualFold(seg, "authors") && i+1 < len(segments)-1 {
			return strings.ReplaceAll(segments[i+1], "_", " ")
		}
	}
	return ""
}

func categoryFor(e domain.ChunkEnrichment, doc *domain.Document) string {
	// The extraction result has no category field of its own; it is
	// derived from tags first, folders second.
	for _, tag := range e.Tags {
		if cat, ok := folderCategories[strings.ToLower(strings.TrimSpace(tag))]; ok {
			return cat
		}
	}
	if doc != nil {
		for _, seg := range strings.Split(filepath.ToSlash(doc.Path), "/") {
			if cat, ok := folderCategories[strings.ToLower(seg)]; ok {
				return cat
			}
		}
	}
	return ""
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

func chunkEnrichPrompt(text string) string {
	return fmt.Sprintf(`Extract metadata from this text excerpt of a personal archive.
Respond with a single JSON object:
{"title": "short title", "author": "author name or empty string", "created_hint": "date or era the text was written, or empty string", "tags": ["lowercase", "tags"], "summary": "1-2 sentence summary"}

Text:
%s`, text)
}

// documentCache memoizes per-batch document lookups for path fallbacks.
type documentCache struct {
	docs ports.DocumentRepository

	mu    sync.Mutex
	cache map[int64]*domain.Document
}

func newDocumentCache(docs ports.DocumentRepository) *documentCache {
	return &documentCache{docs: docs, cache: make(map[int64]*domain.Document)}
}

func (c *documentCache) get(ctx context.Context, id int64) (*domain.Document, error) {
	c.mu.Lock()
	if doc, ok := c.cache[id]; ok {
		c.mu.Unlock()
		return doc, nil
	}
	c.mu.Unlock()

	doc, err := c.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache[id] = doc
	c.mu.Unlock()
	return doc, nil
}
