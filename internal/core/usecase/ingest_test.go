package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}

func newIngestUC(docs *docRepoFake, extractor *extractorFake, roots []string) *IngestUseCase {
	return NewIngestUseCase(docs, extractor, nil, &llmFake{}, IngestOptions{
		Roots:      roots,
		Extensions: map[string]bool{".txt": true},
	}, testLogger())
}

func TestIngestNewFile(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "note.txt", "hello archive")
	docs := newDocRepoFake()

	uc := newIngestUC(docs, &extractorFake{text: "hello archive"}, []string{dir})
	counts, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if counts.New != 1 || counts.Errors != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	if len(docs.inserted) != 1 {
		t.Fatalf("expected 1 inserted document, got %d", len(docs.inserted))
	}
	doc := docs.inserted[0]
	if doc.SHA256 == "" || doc.RawText != "hello archive" || doc.Status != domain.StatusOK {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestIngestFastPathSkipsUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "note.txt", "hello archive")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	docs := newDocRepoFake()
	docs.fingerprints = []domain.FileFingerprint{{
		DocumentID: 1,
		Path:       path,
		MTimeUnix:  info.ModTime().Unix(),
		SizeBytes:  info.Size(),
		Status:     domain.StatusOK,
	}}

	uc := newIngestUC(docs, &extractorFake{text: "hello archive"}, []string{dir})
	counts, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if counts.Skipped != 1 || counts.New != 0 {
		t.Fatalf("expected fast-path skip, got %+v", counts)
	}
	if len(docs.inserted) != 0 {
		t.Fatalf("did not expect an insert")
	}
}

func TestIngestRepointsMovedContent(t *testing.T) {
	dir := t.TempDir()
	newPath := writeTestFile(t, dir, "moved.txt", "hello archive")

	docs := newDocRepoFake()
	// Same bytes were already ingested under the old path.
	hash, err := hashFile(newPath)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	docs.add(&domain.Document{Path: filepath.Join(dir, "old.txt"), Filename: "old.txt", SHA256: hash})

	uc := newIngestUC(docs, &extractorFake{text: "hello archive"}, []string{dir})
	counts, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if counts.Updated != 1 || counts.New != 0 {
		t.Fatalf("expected repoint, got %+v", counts)
	}
	if len(docs.repointed) != 1 {
		t.Fatalf("expected 1 repoint call, got %d", len(docs.repointed))
	}
	if docs.byID[1].Path != newPath {
		t.Fatalf("expected canonical row repointed to %s, got %s", newPath, docs.byID[1].Path)
	}
}

func TestIngestRetriesFailedExtraction(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "flaky.txt", "hello archive")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	hash, err := hashFile(path)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	docs := newDocRepoFake()
	// A previous pass ingested the same bytes but could not extract them.
	docs.add(&domain.Document{
		Path: path, Filename: "flaky.txt", SHA256: hash,
		Status: domain.StatusExtractFailed,
	})
	docs.fingerprints = []domain.FileFingerprint{{
		DocumentID: 1,
		Path:       path,
		MTimeUnix:  info.ModTime().Unix(),
		SizeBytes:  info.Size(),
		Status:     domain.StatusExtractFailed,
	}}

	uc := newIngestUC(docs, &extractorFake{text: "hello archive"}, []string{dir})
	counts, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if counts.Updated != 1 || counts.Errors != 0 {
		t.Fatalf("expected extraction retry, got %+v", counts)
	}
	if len(docs.reextracted) != 1 || len(docs.repointed) != 0 {
		t.Fatalf("expected re-extraction instead of bare repoint, got reextracted=%v repointed=%v", docs.reextracted, docs.repointed)
	}
	doc := docs.byID[1]
	if doc.RawText != "hello archive" || doc.Status != domain.StatusOK || doc.DocStatus != domain.DocPending {
		t.Fatalf("unexpected document after retry %+v", doc)
	}
}

func TestIngestExtractFailureStillRecordsDocument(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "broken.txt", "binary junk")

	docs := newDocRepoFake()
	uc := newIngestUC(docs, &extractorFake{err: errors.New("cannot parse")}, []string{dir})

	counts, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if counts.Errors != 1 || counts.New != 0 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	if len(docs.inserted) != 1 || docs.inserted[0].Status != domain.StatusExtractFailed {
		t.Fatalf("expected extract_failed document, got %+v", docs.inserted)
	}
}

func TestIngestIgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "binary.exe", "junk")

	docs := newDocRepoFake()
	uc := newIngestUC(docs, &extractorFake{text: "x"}, []string{dir})
	counts, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if counts.New != 0 || len(docs.inserted) != 0 {
		t.Fatalf("expected extension filter to skip file, got %+v", counts)
	}
}

func TestIngestImageGetsVisionDescriptionAndThumbnail(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "photo.txt", "fake image bytes")

	docs := newDocRepoFake()
	thumbs := &thumbnailerFake{}
	llm := &llmFake{described: "A photo of a greenhouse."}
	uc := NewIngestUseCase(docs, &extractorFake{fileType: "image"}, thumbs, llm, IngestOptions{
		Roots:      []string{dir},
		Extensions: map[string]bool{".txt": true},
	}, testLogger())

	counts, err := uc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if counts.New != 1 {
		t.Fatalf("unexpected counts %+v", counts)
	}
	if docs.inserted[0].RawText != "A photo of a greenhouse." {
		t.Fatalf("expected vision description as text, got %q", docs.inserted[0].RawText)
	}
	if len(thumbs.generated) != 1 {
		t.Fatalf("expected a thumbnail, got %d", len(thumbs.generated))
	}
}
