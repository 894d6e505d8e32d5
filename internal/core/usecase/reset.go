package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/core/ports"
)

// ResetUseCase is the manual recovery path: wipe derived metadata and put
// a unit back at the start of its pipeline.
type ResetUseCase struct {
	docs   ports.DocumentRepository
	chunks ports.ChunkRepository
	logger *slog.Logger
}

func NewResetUseCase(docs ports.DocumentRepository, chunks ports.ChunkRepository, logger *slog.Logger) *ResetUseCase {
	return &ResetUseCase{docs: docs, chunks: chunks, logger: logger}
}

// ReviewQueue lists chunks that gave up enriching or scored below the
// quality threshold.
func (uc *ResetUseCase) ReviewQueue(ctx context.Context, limit int) ([]domain.Chunk, error) {
	if limit <= 0 {
		limit = 50
	}
	chunks, err := uc.chunks.ListNeedingReview(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list review queue: %w", err)
	}
	return chunks, nil
}

func (uc *ResetUseCase) ResetChunk(ctx context.Context, chunkID int64) error {
	if err := uc.chunks.Reset(ctx, chunkID); err != nil {
		return fmt.Errorf("reset chunk: %w", err)
	}
	uc.logger.Info("chunk reset", "chunk_id", chunkID)
	return nil
}

func (uc *ResetUseCase) ResetDocument(ctx context.Context, documentID int64) error {
	if err := uc.docs.ResetDoc(ctx, documentID); err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	uc.logger.Info("document reset", "document_id", documentID)
	return nil
}
