package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

func TestEnrichDocumentsSavesCombinedSummary(t *testing.T) {
	docs := newDocRepoFake()
	docs.claimEnrich = []domain.Document{{ID: 1, Filename: "notes.txt", RawText: "long text about gardens"}}
	llm := &llmFake{genJSON: func(_ string, out any) error {
		return json.Unmarshal([]byte(`{"doc_title":"Garden Notes","doc_summary":"Notes about the garden.","doc_themes":["gardens"],"doc_type":"note","content_warning":""}`), out)
	}}

	uc := NewEnrichDocumentsUseCase(docs, llm, "gen-model", testLogger())
	n, err := uc.Run(context.Background(), 10)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 document, got %d", n)
	}
	want := "Garden Notes. Notes about the garden. Themes: gardens."
	if docs.savedSummary[1] != want {
		t.Fatalf("saved summary = %q, want %q", docs.savedSummary[1], want)
	}
}

func TestEnrichDocumentsFailureIsTerminal(t *testing.T) {
	docs := newDocRepoFake()
	docs.claimEnrich = []domain.Document{{ID: 2, Filename: "x.txt", RawText: "text"}}
	llm := &llmFake{genJSON: func(string, any) error { return errors.New("model offline") }}

	uc := NewEnrichDocumentsUseCase(docs, llm, "gen-model", testLogger())
	if _, err := uc.Run(context.Background(), 10); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if docs.docStatuses[2] != domain.DocError {
		t.Fatalf("expected terminal error status, got %s", docs.docStatuses[2])
	}
	if _, saved := docs.savedSummary[2]; saved {
		t.Fatalf("did not expect a saved summary")
	}
}

func TestEnrichDocumentsEmptyTextSkipsModel(t *testing.T) {
	docs := newDocRepoFake()
	docs.claimEnrich = []domain.Document{{ID: 3, Filename: "photo.jpg", RawText: "  "}}
	called := false
	llm := &llmFake{genJSON: func(string, any) error { called = true; return nil }}

	uc := NewEnrichDocumentsUseCase(docs, llm, "gen-model", testLogger())
	if _, err := uc.Run(context.Background(), 10); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if called {
		t.Fatalf("model should not be called for empty text")
	}
	if docs.savedSummary[3] != "photo.jpg" {
		t.Fatalf("expected filename summary, got %q", docs.savedSummary[3])
	}
}

func TestSampleDocumentSplitsHeadMiddleTail(t *testing.T) {
	text := strings.Repeat("a", 10000) + strings.Repeat("b", 10000) + strings.Repeat("c", 10000)
	sample := sampleDocument(text)

	if len(sample) > docSampleChars+20 {
		t.Fatalf("sample too long: %d", len(sample))
	}
	if !strings.HasPrefix(sample, "a") || !strings.HasSuffix(sample, "c") {
		t.Fatalf("sample should keep head and tail")
	}
	if !strings.Contains(sample, "b") {
		t.Fatalf("sample should include the middle")
	}
}

func TestSampleDocumentShortTextUnchanged(t *testing.T) {
	if got := sampleDocument("short"); got != "short" {
		t.Fatalf("sampleDocument() = %q", got)
	}
}
