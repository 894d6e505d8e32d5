package ports

import (
	"context"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

// DocumentRepository persists source files and their document-tier state.
type DocumentRepository interface {
	Insert(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id int64) (*domain.Document, error)
	GetBySHA256(ctx context.Context, sha256 string) (*domain.Document, error)
	// RepointPath updates path metadata on the canonical row when the same
	// content shows up at a new location (content wins over path).
	RepointPath(ctx context.Context, id int64, doc *domain.Document) error
	// UpdateExtraction rewrites the extracted text, file metadata and both
	// status tiers after a successful re-extraction of an existing row.
	UpdateExtraction(ctx context.Context, id int64, doc *domain.Document) error
	// ListFingerprints hydrates the ingestion fast-path cache.
	ListFingerprints(ctx context.Context) ([]domain.FileFingerprint, error)
	// ListUnsegmented returns ok documents that have no chunks yet.
	ListUnsegmented(ctx context.Context, limit int) ([]domain.Document, error)
	// ClaimForEnrichment locks a batch of pending documents, skipping rows
	// locked by other workers, and marks them enriching before returning.
	ClaimForEnrichment(ctx context.Context, limit int) ([]domain.Document, error)
	SaveDocEnrichment(ctx context.Context, id int64, summary string, enrichment domain.DocEnrichment) error
	// ClaimForEmbedding locks a batch of enriched documents the same way.
	ClaimForEmbedding(ctx context.Context, limit int) ([]domain.Document, error)
	SaveDocEmbedding(ctx context.Context, id int64, embedding []float32) error
	SetDocStatus(ctx context.Context, id int64, status domain.DocStatus) error
	// SetStatus updates the extraction-level status, e.g. marking a fully
	// duplicated document skipped.
	SetStatus(ctx context.Context, id int64, status domain.DocumentStatus) error
	// ReleaseStale returns documents stuck in a transient claim status past
	// the threshold to their pre-claim status. Returns how many moved.
	ReleaseStale(ctx context.Context, olderThanSeconds int) (int, error)
	ResetDoc(ctx context.Context, id int64) error
}

// ChunkRepository persists chunks and their enrichment/embedding state.
type ChunkRepository interface {
	InsertBatch(ctx context.Context, chunks []domain.Chunk) error
	GetByID(ctx context.Context, id int64) (*domain.Chunk, error)
	// ExistingHashes reports which of the given content hashes are already
	// stored anywhere in the archive.
	ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error)
	// ClaimPending locks a batch of pending chunks with retry_count below
	// the limit, skipping rows locked by other workers.
	ClaimPending(ctx context.Context, limit int) ([]domain.Chunk, error)
	SaveEnrichment(ctx context.Context, chunk *domain.Chunk) error
	// RecordFailure increments retry_count and flips status to error once
	// the retry limit is reached. Returns the new count.
	RecordFailure(ctx context.Context, id int64) (int, error)
	// Release puts a claimed chunk back to pending without touching the
	// retry counter, for batches interrupted by shutdown.
	Release(ctx context.Context, id int64) error
	// ReleaseStale returns chunks stuck in the transient claim status past
	// the threshold to pending. Returns how many moved.
	ReleaseStale(ctx context.Context, olderThanSeconds int) (int, error)
	// ClaimUnembedded locks a batch of enriched chunks without embeddings.
	ClaimUnembedded(ctx context.Context, limit int) ([]domain.Chunk, error)
	SaveEmbedding(ctx context.Context, id int64, embedding []float32) error
	// ListNeedingReview returns errored chunks plus those the quality rubric
	// flagged for manual review.
	ListNeedingReview(ctx context.Context, limit int) ([]domain.Chunk, error)
	Reset(ctx context.Context, id int64) error
}

// LinkRepository stores extracted hyperlink facts.
type LinkRepository interface {
	ReplaceForDocument(ctx context.Context, documentID int64, links []domain.Link) error
}

// WorkerRepository tracks worker registration, liveness and phase flags.
type WorkerRepository interface {
	Register(ctx context.Context, worker *domain.Worker) error
	Get(ctx context.Context, id string) (*domain.Worker, error)
	List(ctx context.Context, includeStopped bool) ([]domain.Worker, error)
	Heartbeat(ctx context.Context, id string, status domain.WorkerStatus, phase domain.Phase, task string, stats map[string]float64) error
	GetConfig(ctx context.Context, id string) (domain.WorkerConfig, error)
	UpdateConfig(ctx context.Context, id string, config domain.WorkerConfig) error
	UpdateProgress(ctx context.Context, id string, phase domain.Phase, progress domain.PhaseProgress) error
	// MarkStale flips active/idle/starting workers whose heartbeat is older
	// than the threshold. Returns how many were marked.
	MarkStale(ctx context.Context, staleAfterSeconds int) (int, error)
	Deregister(ctx context.Context, id string) error
}

// SearchRepository runs the keyword/vector/hybrid SQL.
type SearchRepository interface {
	KeywordChunks(ctx context.Context, query string, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
	VectorChunks(ctx context.Context, embedding []float32, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
	HybridChunks(ctx context.Context, query string, embedding []float32, limit int, vectorWeight float64, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
	KeywordDocuments(ctx context.Context, query string, limit int) ([]domain.DocumentHit, error)
	VectorDocuments(ctx context.Context, embedding []float32, limit int) ([]domain.DocumentHit, error)
	KeywordChunksIn(ctx context.Context, query string, docIDs []int64, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
	VectorChunksIn(ctx context.Context, embedding []float32, docIDs []int64, limit int, filter domain.SearchFilter) ([]domain.RetrievedChunk, error)
	// AnyEmbeddedChunks reports whether at least one chunk of the given
	// documents carries an embedding.
	AnyEmbeddedChunks(ctx context.Context, docIDs []int64) (bool, error)
}

// LLMBackend is the narrow provider contract the pipeline consumes. A
// backend may be Ollama-, OpenAI- or Anthropic-compatible.
type LLMBackend interface {
	GenerateText(ctx context.Context, prompt, model string) (string, error)
	// GenerateJSON decodes the model response into out; a parse failure is
	// a generation failure.
	GenerateJSON(ctx context.Context, prompt, model string, out any) error
	Embed(ctx context.Context, text, model string) ([]float32, error)
	DescribeImage(ctx context.Context, path, model, prompt string) (string, error)
	Provider() domain.Provider
}

// TextExtractor runs format-specific extraction for one file.
type TextExtractor interface {
	Extract(ctx context.Context, path, ext string) (domain.Extraction, error)
	Supports(ext string) bool
}

// Thumbnailer renders a preview image for image-type files.
type Thumbnailer interface {
	Generate(ctx context.Context, sourcePath string, documentID int64) error
}

// Segmenter splits raw text into overlapping spans.
type Segmenter interface {
	Segment(text, ext string) []domain.Segment
}

// LinkExtractor pulls URL/email references out of raw text.
type LinkExtractor interface {
	ExtractLinks(text string) []domain.Link
}

// ProgressPublisher pushes phase snapshots to external observers. All
// implementations must be safe to skip (best effort).
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, workerID string, phase domain.Phase, progress domain.PhaseProgress) error
}

// LinkGraph mirrors link facts into a relationship store.
type LinkGraph interface {
	MirrorLinks(ctx context.Context, doc *domain.Document, links []domain.Link) error
}
