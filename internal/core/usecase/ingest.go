package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/core/ports"
)

// IngestOptions carries the resolved source-roots configuration.
type IngestOptions struct {
	Roots      []string
	Excludes   []string
	Extensions map[string]bool
}

// IngestUseCase walks the source roots and registers files as documents.
// Identity is the content hash: the same bytes under two paths collapse
// into one row, and the most recently seen path wins.
type IngestUseCase struct {
	docs      ports.DocumentRepository
	extractor ports.TextExtractor
	thumbs    ports.Thumbnailer
	llm       ports.LLMBackend
	opts      IngestOptions
	logger    *slog.Logger
}

func NewIngestUseCase(
	docs ports.DocumentRepository,
	extractor ports.TextExtractor,
	thumbs ports.Thumbnailer,
	llm ports.LLMBackend,
	opts IngestOptions,
	logger *slog.Logger,
) *IngestUseCase {
	return &IngestUseCase{
		docs:      docs,
		extractor: extractor,
		thumbs:    thumbs,
		llm:       llm,
		opts:      opts,
		logger:    logger,
	}
}

// Run performs one full ingestion pass. It is idempotent: a second pass
// over an unchanged tree only touches the fingerprint cache.
func (uc *IngestUseCase) Run(ctx context.Context) (domain.IngestCounts, error) {
	var counts domain.IngestCounts

	cache, err := uc.loadFingerprints(ctx)
	if err != nil {
		return counts, err
	}

	for _, root := range uc.opts.Roots {
		err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				uc.logger.Warn("walk error", "path", path, "error", walkErr)
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if entry.IsDir() {
				if uc.excluded(path) || strings.HasPrefix(entry.Name(), ".") && path != root {
					return fs.SkipDir
				}
				return nil
			}
			if uc.excluded(path) {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if len(uc.opts.Extensions) > 0 && !uc.opts.Extensions[ext] {
				return nil
			}
			uc.ingestFile(ctx, path, ext, entry, cache, &counts)
			return nil
		})
		if err != nil {
			return counts, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	uc.logger.Info("ingestion pass complete",
		"new", counts.New, "updated", counts.Updated,
		"skipped", counts.Skipped, "errors", counts.Errors)
	return counts, nil
}

func (uc *IngestUseCase) loadFingerprints(ctx context.Context) (map[string]domain.FileFingerprint, error) {
	fps, err := uc.docs.ListFingerprints(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fingerprint cache: %w", err)
	}
	cache := make(map[string]domain.FileFingerprint, len(fps))
	for _, fp := range fps {
		cache[fp.Path] = fp
	}
	return cache, nil
}

func (uc *IngestUseCase) ingestFile(ctx context.Context, path, ext string, entry fs.DirEntry, cache map[string]domain.FileFingerprint, counts *domain.IngestCounts) {
	info, err := entry.Info()
	if err != nil {
		uc.logger.Warn("stat failed", "path", path, "error", err)
		counts.Errors++
		return
	}

	// Fast path: identical path+mtime+size means unchanged bytes. Failed
	// extractions never take it, so they retry on every pass.
	if fp, ok := cache[path]; ok &&
		fp.MTimeUnix == info.ModTime().Unix() &&
		fp.SizeBytes == info.Size() &&
		fp.Status != domain.StatusExtractFailed {
		counts.Skipped++
		return
	}

	hash, err := hashFile(path)
	if err != nil {
		uc.logger.Warn("hash failed", "path", path, "error", err)
		counts.Errors++
		return
	}

	existing, err := uc.docs.GetBySHA256(ctx, hash)
	switch {
	case err == nil:
		if existing.Status == domain.StatusExtractFailed {
			uc.retryExtraction(ctx, existing, path, ext, info, counts)
			return
		}
		uc.repoint(ctx, existing, path, ext, info, counts)
		return
	case !domain.IsKind(err, domain.ErrNotFound):
		uc.logger.Error("hash lookup failed", "path", path, "error", err)
		counts.Errors++
		return
	}

	uc.insertNew(ctx, path, ext, hash, info, counts)
}

// repoint refreshes the canonical row's file metadata. Content already
// won; only the location and timestamps move.
func (uc *IngestUseCase) repoint(ctx context.Context, existing *domain.Document, path, ext string, info fs.FileInfo, counts *domain.IngestCounts) {
	moved := existing.Path != path
	update := *existing
	update.Path = path
	update.Filename = filepath.Base(path)
	update.Extension = ext
	update.SizeBytes = info.Size()
	update.MTime = info.ModTime()

	if err := uc.docs.RepointPath(ctx, existing.ID, &update); err != nil {
		uc.logger.Error("repoint failed", "path", path, "error", err)
		counts.Errors++
		return
	}
	if moved {
		uc.logger.Info("document repointed", "id", existing.ID, "from", existing.Path, "to", path)
		counts.Updated++
	} else {
		counts.Skipped++
	}
}

// retryExtraction re-runs extraction for a row whose previous attempt
// failed. The row keeps its identity; text, metadata and status move, and
// a success re-enters the pipeline at doc_status pending.
func (uc *IngestUseCase) retryExtraction(ctx context.Context, existing *domain.Document, path, ext string, info fs.FileInfo, counts *domain.IngestCounts) {
	update := *existing
	update.Path = path
	update.Filename = filepath.Base(path)
	update.Extension = ext
	update.SizeBytes = info.Size()
	update.MTime = info.ModTime()

	extraction, err := uc.extractor.Extract(ctx, path, ext)
	if err != nil {
		uc.logger.Warn("extraction retry failed", "path", path, "error", err)
		counts.Errors++
		if repErr := uc.docs.RepointPath(ctx, existing.ID, &update); repErr != nil {
			uc.logger.Error("repoint failed", "path", path, "error", repErr)
		}
		return
	}

	update.RawText = extraction.Text
	update.Meta = extraction.Meta
	if update.Meta == nil {
		update.Meta = map[string]any{}
	}
	update.Meta["file_type"] = extraction.FileType
	update.Status = domain.StatusOK
	update.DocStatus = domain.DocPending
	if extraction.FileType == "image" {
		uc.describeImage(ctx, path, &update)
	}

	if err := uc.docs.UpdateExtraction(ctx, existing.ID, &update); err != nil {
		uc.logger.Error("save retried extraction failed", "path", path, "error", err)
		counts.Errors++
		return
	}
	uc.logger.Info("extraction retried", "id", existing.ID, "path", path)
	counts.Updated++
}

func (uc *IngestUseCase) insertNew(ctx context.Context, path, ext, hash string, info fs.FileInfo, counts *domain.IngestCounts) {
	doc := &domain.Document{
		Path:      path,
		Filename:  filepath.Base(path),
		Extension: ext,
		SizeBytes: info.Size(),
		MTime:     info.ModTime(),
		SHA256:    hash,
		Status:    domain.StatusOK,
		DocStatus: domain.DocPending,
	}

	extraction, err := uc.extractor.Extract(ctx, path, ext)
	if err != nil {
		uc.logger.Warn("extraction failed", "path", path, "error", err)
		doc.Status = domain.StatusExtractFailed
		counts.Errors++
	} else {
		doc.RawText = extraction.Text
		doc.Meta = extraction.Meta
		if doc.Meta == nil {
			doc.Meta = map[string]any{}
		}
		doc.Meta["file_type"] = extraction.FileType
		if extraction.FileType == "image" {
			uc.describeImage(ctx, path, doc)
		}
	}

	if err := uc.docs.Insert(ctx, doc); err != nil {
		uc.logger.Error("insert failed", "path", path, "error", err)
		counts.Errors++
		return
	}
	if doc.Status == domain.StatusOK {
		counts.New++
	}
	if doc.Meta["file_type"] == "image" && uc.thumbs != nil {
		if err := uc.thumbs.Generate(ctx, path, doc.ID); err != nil {
			uc.logger.Warn("thumbnail failed", "path", path, "error", err)
		}
	}
}

// describeImage turns an image into searchable text via the vision model.
// A vision failure leaves the document ingested with empty text.
func (uc *IngestUseCase) describeImage(ctx context.Context, path string, doc *domain.Document) {
	if uc.llm == nil || !uc.llm.Provider().Capabilities.Vision {
		return
	}
	model := uc.llm.Provider().VisionModel
	desc, err := uc.llm.DescribeImage(ctx, path, model,
		"Describe this image in detail. Mention any visible text, people, places and objects.")
	if err != nil {
		uc.logger.Warn("vision description failed", "path", path, "error", err)
		return
	}
	doc.RawText = desc
}

func (uc *IngestUseCase) excluded(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range uc.opts.Excludes {
		if strings.Contains(pattern, "/") {
			if strings.Contains(path, strings.Trim(pattern, "/")) {
				return true
			}
			continue
		}
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
