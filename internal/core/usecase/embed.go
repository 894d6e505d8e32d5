package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/core/ports"
)

// minEmbedChars stops the halving retry from degenerating to nothing.
const minEmbedChars = 100

// EmbedUseCase produces vectors for both tiers. Input is capped at the
// configured character budget; when the model still rejects it for length
// the text is halved and retried until it fits.
type EmbedUseCase struct {
	docs     ports.DocumentRepository
	chunks   ports.ChunkRepository
	llm      ports.LLMBackend
	model    string
	maxChars int
	workers  int
	logger   *slog.Logger
}

func NewEmbedUseCase(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	llm ports.LLMBackend,
	model string,
	maxChars, workers int,
	logger *slog.Logger,
) *EmbedUseCase {
	if maxChars <= 0 {
		maxChars = 8000
	}
	if workers <= 0 {
		workers = 1
	}
	return &EmbedUseCase{
		docs:     docs,
		chunks:   chunks,
		llm:      llm,
		model:    model,
		maxChars: maxChars,
		workers:  workers,
		logger:   logger,
	}
}

// RunDocuments embeds one claimed batch of enriched documents.
func (uc *EmbedUseCase) RunDocuments(ctx context.Context, batchSize int) (int, error) {
	docs, err := uc.docs.ClaimForEmbedding(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim documents for embedding: %w", err)
	}

	if len(docs) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, uc.workers)
	var wg sync.WaitGroup
	for i := range docs {
		wg.Add(1)
		sem <- struct{}{}
		go func(doc *domain.Document) {
			defer wg.Done()
			defer func() { <-sem }()
			uc.embedDocument(ctx, doc)
		}(&docs[i])
	}
	wg.Wait()
	return len(docs), nil
}

func (uc *EmbedUseCase) embedDocument(ctx context.Context, doc *domain.Document) {
	if strings.TrimSpace(doc.DocSummary) == "" {
		uc.logger.Warn("document has no summary to embed", "document_id", doc.ID)
		uc.markEmbedError(ctx, doc.ID)
		return
	}
	vector, err := uc.embedWithRetry(ctx, doc.DocSummary)
	if err != nil {
		uc.logger.Error("document embedding failed", "document_id", doc.ID, "error", err)
		uc.markEmbedError(ctx, doc.ID)
		return
	}
	if err := uc.docs.SaveDocEmbedding(ctx, doc.ID, vector); err != nil {
		uc.logger.Error("save doc embedding failed", "document_id", doc.ID, "error", err)
	}
}

func (uc *EmbedUseCase) markEmbedError(ctx context.Context, id int64) {
	if err := uc.docs.SetDocStatus(ctx, id, domain.DocEmbedError); err != nil {
		uc.logger.Error("mark embed error failed", "document_id", id, "error", err)
	}
}

// RunChunks embeds one batch of enriched chunks with a bounded pool. A
// failed chunk keeps its NULL embedding and is retried on the next pass.
func (uc *EmbedUseCase) RunChunks(ctx context.Context, batchSize int) (int, error) {
	chunks, err := uc.chunks.ClaimUnembedded(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim chunks for embedding: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, uc.workers)
	var wg sync.WaitGroup
	for i := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(chunk *domain.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			uc.embedChunk(ctx, chunk)
		}(&chunks[i])
	}
	wg.Wait()
	return len(chunks), nil
}

func (uc *EmbedUseCase) embedChunk(ctx context.Context, chunk *domain.Chunk) {
	vector, err := uc.embedWithRetry(ctx, embedInput(chunk))
	if err != nil {
		uc.logger.Error("chunk embedding failed", "chunk_id", chunk.ID, "error", err)
		return
	}
	if err := uc.chunks.SaveEmbedding(ctx, chunk.ID, vector); err != nil {
		uc.logger.Error("save chunk embedding failed", "chunk_id", chunk.ID, "error", err)
	}
}

// embedInput prepends the enrichment metadata so the vector carries the
// chunk's title, tags and summary alongside the body.
func embedInput(chunk *domain.Chunk) string {
	var b strings.Builder
	if chunk.Title != "" {
		b.WriteString(chunk.Title)
		b.WriteString("\n")
	}
	if chunk.Author != "" {
		b.WriteString("Author: ")
		b.WriteString(chunk.Author)
		b.WriteString("\n")
	}
	if chunk.Category != "" {
		b.WriteString("Category: ")
		b.WriteString(chunk.Category)
		b.WriteString("\n")
	}
	if len(chunk.Tags) > 0 {
		b.WriteString("Tags: ")
		b.WriteString(strings.Join(chunk.Tags, ", "))
		b.WriteString("\n")
	}
	if chunk.Summary != "" {
		b.WriteString(chunk.Summary)
		b.WriteString("\n")
	}
	b.WriteString(chunk.Text)
	return b.String()
}

func (uc *EmbedUseCase) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	if len(text) > uc.maxChars {
		text = text[:uc.maxChars]
	}
	for {
		vector, err := uc.llm.Embed(ctx, text, uc.model)
		if err == nil {
			return vector, nil
		}
		if !domain.IsKind(err, domain.ErrContextLength) || len(text) <= minEmbedChars {
			return nil, err
		}
		text = text[:len(text)/2]
	}
}
