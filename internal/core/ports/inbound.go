package ports

import (
	"context"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

// ArchiveSearcher answers search queries over the indexed archive.
type ArchiveSearcher interface {
	Search(ctx context.Context, query string, mode domain.SearchMode, limit int, filter domain.SearchFilter) (*domain.SearchResult, error)
}

// WorkerDirectory exposes registered workers and their live state.
type WorkerDirectory interface {
	ListWorkers(ctx context.Context, includeStopped bool) ([]domain.Worker, error)
	SetPhaseEnabled(ctx context.Context, workerID string, phase domain.Phase, enabled bool) error
}

// Resetter is the manual recovery path: list what needs attention, clear
// metadata and embeddings and put a unit back to pending.
type Resetter interface {
	ReviewQueue(ctx context.Context, limit int) ([]domain.Chunk, error)
	ResetChunk(ctx context.Context, chunkID int64) error
	ResetDocument(ctx context.Context, documentID int64) error
}
