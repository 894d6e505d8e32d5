package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/core/ports"
)

// docSampleChars bounds the document-tier prompt input.
const docSampleChars = 8000

// EnrichDocumentsUseCase produces the document-level summary used by the
// two-stage retrieval path. Claiming marks the batch enriching so parallel
// workers never double-process a document.
type EnrichDocumentsUseCase struct {
	docs   ports.DocumentRepository
	llm    ports.LLMBackend
	model  string
	logger *slog.Logger
}

func NewEnrichDocumentsUseCase(docs ports.DocumentRepository, llm ports.LLMBackend, model string, logger *slog.Logger) *EnrichDocumentsUseCase {
	return &EnrichDocumentsUseCase{docs: docs, llm: llm, model: model, logger: logger}
}

// Run enriches one claimed batch and reports how many documents it took.
func (uc *EnrichDocumentsUseCase) Run(ctx context.Context, batchSize int) (int, error) {
	docs, err := uc.docs.ClaimForEnrichment(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim documents: %w", err)
	}

	for i := range docs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		uc.enrichOne(ctx, &docs[i])
	}
	return len(docs), nil
}

func (uc *EnrichDocumentsUseCase) enrichOne(ctx context.Context, doc *domain.Document) {
	if strings.TrimSpace(doc.RawText) == "" {
		// Nothing to summarize; unblock the row without a model call.
		summary := doc.Filename
		if err := uc.docs.SaveDocEnrichment(ctx, doc.ID, summary, domain.DocEnrichment{Title: doc.Filename}); err != nil {
			uc.logger.Error("save empty-doc enrichment failed", "document_id", doc.ID, "error", err)
		}
		return
	}

	var enrichment domain.DocEnrichment
	prompt := docEnrichPrompt(doc.Filename, sampleDocument(doc.RawText))
	if err := uc.llm.GenerateJSON(ctx, prompt, uc.model, &enrichment); err != nil {
		// Document-tier failures are terminal: the reset endpoint is the
		// recovery path, not silent retry loops over the same huge text.
		uc.logger.Error("document enrichment failed", "document_id", doc.ID, "error", err)
		if statusErr := uc.docs.SetDocStatus(ctx, doc.ID, domain.DocError); statusErr != nil {
			uc.logger.Error("mark doc error failed", "document_id", doc.ID, "error", statusErr)
		}
		return
	}

	summary := enrichment.CombinedSummary(doc.Filename)
	if err := uc.docs.SaveDocEnrichment(ctx, doc.ID, summary, enrichment); err != nil {
		uc.logger.Error("save doc enrichment failed", "document_id", doc.ID, "error", err)
		return
	}
	uc.logger.Info("document enriched", "document_id", doc.ID, "title", enrichment.Title)
}

// sampleDocument keeps the head, middle and tail of long texts in a
// 40/20/40 split so the prompt sees structure, argument and conclusion.
func sampleDocument(text string) string {
	if len(text) <= docSampleChars {
		return text
	}
	head := docSampleChars * 40 / 100
	middle := docSampleChars * 20 / 100
	tail := docSampleChars - head - middle

	midStart := len(text)/2 - middle/2
	return text[:head] +
		"\n[...]\n" + text[midStart:midStart+middle] +
		"\n[...]\n" + text[len(text)-tail:]
}

func docEnrichPrompt(filename, sample string) string {
	return fmt.Sprintf(`You are indexing a personal document archive.
Analyze the document below and respond with a single JSON object:
{"doc_title": "short descriptive title", "doc_summary": "2-4 sentence summary", "doc_themes": ["theme", ...], "doc_type": "one of: note, article, letter, journal, reference, record, creative, other", "content_warning": "empty string, or a short note if the content is sensitive"}

Filename: %s

Document:
%s`, filename, sample)
}
