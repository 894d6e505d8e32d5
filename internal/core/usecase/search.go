package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/core/ports"
)

// SearchOptions tunes the retrieval strategies.
type SearchOptions struct {
	VectorWeight     float64
	RRFK             int
	Stage1Docs       int
	CandidatesPerLeg int
}

// SearchUseCase answers queries in four modes. Vector-dependent modes
// degrade to keyword search instead of failing when the embedding leg is
// unavailable, and the result says so.
type SearchUseCase struct {
	repo   ports.SearchRepository
	llm    ports.LLMBackend
	model  string
	opts   SearchOptions
	logger *slog.Logger
}

func NewSearchUseCase(repo ports.SearchRepository, llm ports.LLMBackend, model string, opts SearchOptions, logger *slog.Logger) *SearchUseCase {
	if opts.VectorWeight <= 0 || opts.VectorWeight > 1 {
		opts.VectorWeight = 0.7
	}
	if opts.RRFK <= 0 {
		opts.RRFK = 60
	}
	if opts.Stage1Docs <= 0 {
		opts.Stage1Docs = 20
	}
	if opts.CandidatesPerLeg <= 0 {
		opts.CandidatesPerLeg = 100
	}
	return &SearchUseCase{repo: repo, llm: llm, model: model, opts: opts, logger: logger}
}

func (uc *SearchUseCase) Search(ctx context.Context, query string, mode domain.SearchMode, limit int, filter domain.SearchFilter) (*domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("empty query"))
	}
	if limit <= 0 {
		limit = 10
	}

	switch mode {
	case domain.ModeKeyword:
		return uc.keyword(ctx, query, limit, filter)
	case domain.ModeVector:
		return uc.vector(ctx, query, limit, filter)
	case domain.ModeHybrid, "":
		return uc.hybrid(ctx, query, limit, filter)
	case domain.ModeTwoStage:
		return uc.twoStage(ctx, query, limit, filter)
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("unknown mode %q", mode))
	}
}

func (uc *SearchUseCase) keyword(ctx context.Context, query string, limit int, filter domain.SearchFilter) (*domain.SearchResult, error) {
	chunks, err := uc.repo.KeywordChunks(ctx, query, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return &domain.SearchResult{Mode: domain.ModeKeyword, Chunks: chunks}, nil
}

func (uc *SearchUseCase) vector(ctx context.Context, query string, limit int, filter domain.SearchFilter) (*domain.SearchResult, error) {
	embedding, ok := uc.embedQuery(ctx, query)
	if !ok {
		result, err := uc.keyword(ctx, query, limit, filter)
		if err != nil {
			return nil, err
		}
		result.Mode = domain.ModeVector
		result.Degraded = true
		return result, nil
	}
	chunks, err := uc.repo.VectorChunks(ctx, embedding, limit, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return &domain.SearchResult{Mode: domain.ModeVector, Chunks: chunks}, nil
}

func (uc *SearchUseCase) hybrid(ctx context.Context, query string, limit int, filter domain.SearchFilter) (*domain.SearchResult, error) {
	embedding, ok := uc.embedQuery(ctx, query)
	if !ok {
		result, err := uc.keyword(ctx, query, limit, filter)
		if err != nil {
			return nil, err
		}
		result.Mode = domain.ModeHybrid
		result.Degraded = true
		return result, nil
	}
	chunks, err := uc.repo.HybridChunks(ctx, query, embedding, limit, uc.opts.VectorWeight, filter)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	return &domain.SearchResult{Mode: domain.ModeHybrid, Chunks: chunks}, nil
}

// twoStage narrows to the most relevant documents first, then fuses both
// chunk legs inside that document set.
func (uc *SearchUseCase) twoStage(ctx context.Context, query string, limit int, filter domain.SearchFilter) (*domain.SearchResult, error) {
	embedding, embedOK := uc.embedQuery(ctx, query)

	keywordDocs, err := uc.repo.KeywordDocuments(ctx, query, uc.opts.CandidatesPerLeg)
	if err != nil {
		return nil, fmt.Errorf("stage1 keyword documents: %w", err)
	}
	var vectorDocs []domain.DocumentHit
	if embedOK {
		vectorDocs, err = uc.repo.VectorDocuments(ctx, embedding, uc.opts.CandidatesPerLeg)
		if err != nil {
			return nil, fmt.Errorf("stage1 vector documents: %w", err)
		}
	}

	docs := trimDocuments(fuseDocumentsRRF(vectorDocs, keywordDocs, uc.opts.RRFK, uc.opts.VectorWeight), uc.opts.Stage1Docs)
	if len(docs) == 0 {
		// No document-level signal at all; fall back to a flat search so
		// the user still gets an answer.
		uc.logger.Info("two-stage fallback to flat search", "query_len", len(query))
		result, err := uc.hybrid(ctx, query, limit, filter)
		if err != nil {
			return nil, err
		}
		result.Mode = domain.ModeTwoStage
		result.Degraded = true
		return result, nil
	}

	docIDs := make([]int64, len(docs))
	for i, d := range docs {
		docIDs[i] = d.DocumentID
	}

	vectorLeg := embedOK
	if vectorLeg {
		anyEmbedded, err := uc.repo.AnyEmbeddedChunks(ctx, docIDs)
		if err != nil {
			return nil, fmt.Errorf("check embedded chunks: %w", err)
		}
		vectorLeg = anyEmbedded
	}

	keywordChunks, err := uc.repo.KeywordChunksIn(ctx, query, docIDs, uc.opts.CandidatesPerLeg, filter)
	if err != nil {
		return nil, fmt.Errorf("stage2 keyword chunks: %w", err)
	}
	var vectorChunks []domain.RetrievedChunk
	if vectorLeg {
		vectorChunks, err = uc.repo.VectorChunksIn(ctx, embedding, docIDs, uc.opts.CandidatesPerLeg, filter)
		if err != nil {
			return nil, fmt.Errorf("stage2 vector chunks: %w", err)
		}
	}

	fused := trimChunks(fuseChunksRRF(vectorChunks, keywordChunks, uc.opts.RRFK, uc.opts.VectorWeight), limit)
	return &domain.SearchResult{
		Mode:      domain.ModeTwoStage,
		Degraded:  !vectorLeg,
		Chunks:    fused,
		Documents: docs,
	}, nil
}

// embedQuery reports false instead of an error: every vector-dependent
// mode has a keyword-only degradation path.
func (uc *SearchUseCase) embedQuery(ctx context.Context, query string) ([]float32, bool) {
	if uc.llm == nil || !uc.llm.Provider().Capabilities.Embedding {
		return nil, false
	}
	embedding, err := uc.llm.Embed(ctx, query, uc.model)
	if err != nil {
		uc.logger.Warn("query embedding failed, degrading to keyword", "error", err)
		return nil, false
	}
	return embedding, true
}
