package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/core/ports"
)

// SegmentUseCase turns extracted documents into deduplicated chunks and
// link facts. A chunk whose normalized hash already exists anywhere in the
// archive is dropped before insert.
type SegmentUseCase struct {
	docs      ports.DocumentRepository
	chunks    ports.ChunkRepository
	links     ports.LinkRepository
	segmenter ports.Segmenter
	extractor ports.LinkExtractor
	graph     ports.LinkGraph
	logger    *slog.Logger
}

func NewSegmentUseCase(
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	links ports.LinkRepository,
	segmenter ports.Segmenter,
	extractor ports.LinkExtractor,
	graph ports.LinkGraph,
	logger *slog.Logger,
) *SegmentUseCase {
	return &SegmentUseCase{
		docs:      docs,
		chunks:    chunks,
		links:     links,
		segmenter: segmenter,
		extractor: extractor,
		graph:     graph,
		logger:    logger,
	}
}

// Run segments one batch of unsegmented documents and reports how many it
// handled. Zero means the phase is drained.
func (uc *SegmentUseCase) Run(ctx context.Context, batchSize int) (int, error) {
	docs, err := uc.docs.ListUnsegmented(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unsegmented: %w", err)
	}

	for i := range docs {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := uc.segmentDocument(ctx, &docs[i]); err != nil {
			uc.logger.Error("segmentation failed", "document_id", docs[i].ID, "error", err)
		}
	}
	return len(docs), nil
}

func (uc *SegmentUseCase) segmentDocument(ctx context.Context, doc *domain.Document) error {
	segments := uc.segmenter.Segment(doc.RawText, doc.Extension)

	candidates := make([]domain.Chunk, 0, len(segments))
	hashes := make([]string, 0, len(segments))
	seen := make(map[string]bool, len(segments))
	for i, seg := range segments {
		hash := domain.NormalizedHash(seg.Text)
		if seen[hash] {
			continue
		}
		seen[hash] = true
		candidates = append(candidates, domain.Chunk{
			DocumentID:  doc.ID,
			Ordinal:     i,
			CharStart:   seg.CharStart,
			CharEnd:     seg.CharEnd,
			Text:        seg.Text,
			ContentHash: hash,
			Status:      domain.ChunkPending,
		})
		hashes = append(hashes, hash)
	}

	existing, err := uc.chunks.ExistingHashes(ctx, hashes)
	if err != nil {
		return fmt.Errorf("check existing hashes: %w", err)
	}
	fresh := candidates[:0]
	for _, c := range candidates {
		if !existing[c.ContentHash] {
			fresh = append(fresh, c)
		}
	}

	if len(fresh) == 0 {
		// Every span already exists elsewhere in the archive. Mark the
		// document skipped so the phase does not pick it up again.
		uc.logger.Info("document fully deduplicated", "document_id", doc.ID)
		if err := uc.docs.SetStatus(ctx, doc.ID, domain.StatusSkipped); err != nil {
			return fmt.Errorf("mark duplicate document: %w", err)
		}
		return nil
	}

	if err := uc.chunks.InsertBatch(ctx, fresh); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}
	uc.logger.Info("document segmented", "document_id", doc.ID, "chunks", len(fresh), "deduplicated", len(candidates)-len(fresh))

	return uc.storeLinks(ctx, doc)
}

func (uc *SegmentUseCase) storeLinks(ctx context.Context, doc *domain.Document) error {
	links := uc.extractor.ExtractLinks(doc.RawText)
	for i := range links {
		links[i].DocumentID = doc.ID
	}
	if err := uc.links.ReplaceForDocument(ctx, doc.ID, links); err != nil {
		return fmt.Errorf("store links: %w", err)
	}
	if uc.graph != nil && len(links) > 0 {
		// The graph mirror is derived data; never fail the phase over it.
		if err := uc.graph.MirrorLinks(ctx, doc, links); err != nil {
			uc.logger.Warn("link graph mirror failed", "document_id", doc.ID, "error", err)
		}
	}
	return nil
}
