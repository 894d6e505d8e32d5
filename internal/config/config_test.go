package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadUsesFallbacks(t *testing.T) {
	t.Setenv("MAX_ENTRY_LENGTH", "")
	t.Setenv("VECTOR_WEIGHT", "")

	cfg := Load()
	if cfg.MaxEntryLength != 4000 {
		t.Fatalf("expected default MaxEntryLength 4000, got %d", cfg.MaxEntryLength)
	}
	if cfg.VectorWeight != 0.7 {
		t.Fatalf("expected default VectorWeight 0.7, got %f", cfg.VectorWeight)
	}
	if cfg.RRFK != 60 {
		t.Fatalf("expected default RRFK 60, got %d", cfg.RRFK)
	}
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("ENRICH_BATCH_SIZE", "not-a-number")
	t.Setenv("LLM_REQUESTS_PER_SECOND", "fast")

	cfg := Load()
	if cfg.EnrichBatchSize != 100 {
		t.Fatalf("expected fallback batch size 100, got %d", cfg.EnrichBatchSize)
	}
	if cfg.LLMRequestsPerSecond != 8 {
		t.Fatalf("expected fallback rate 8, got %f", cfg.LLMRequestsPerSecond)
	}
}

func TestLoadSourcesNormalizesExtensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	content := []byte("include:\n  - /archive\nexclude:\n  - \"*.bak\"\nextensions:\n  - txt\n  - .MD\n")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}

	s, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources() error = %v", err)
	}
	set := s.ExtensionSet()
	if !set[".txt"] || !set[".md"] {
		t.Fatalf("expected normalized extensions, got %v", s.Extensions)
	}
}

func TestLoadSourcesMissingFile(t *testing.T) {
	_, err := LoadSources(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}
