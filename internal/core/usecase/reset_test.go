package usecase

import (
	"context"
	"testing"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

func TestReviewQueueDefaultsLimit(t *testing.T) {
	chunks := newChunkRepoFake()
	chunks.review = []domain.Chunk{{ID: 3, Status: domain.ChunkError}}
	uc := NewResetUseCase(newDocRepoFake(), chunks, testLogger())

	out, err := uc.ReviewQueue(context.Background(), 0)
	if err != nil {
		t.Fatalf("ReviewQueue() error = %v", err)
	}
	if chunks.reviewLimit != 50 {
		t.Fatalf("expected default limit 50, got %d", chunks.reviewLimit)
	}
	if len(out) != 1 || out[0].ID != 3 {
		t.Fatalf("unexpected queue %+v", out)
	}
}

func TestResetChunkDelegates(t *testing.T) {
	chunks := newChunkRepoFake()
	uc := NewResetUseCase(newDocRepoFake(), chunks, testLogger())

	if err := uc.ResetChunk(context.Background(), 7); err != nil {
		t.Fatalf("ResetChunk() error = %v", err)
	}
	if len(chunks.resets) != 1 || chunks.resets[0] != 7 {
		t.Fatalf("expected chunk 7 reset, got %v", chunks.resets)
	}
}

func TestResetDocumentDelegates(t *testing.T) {
	docs := newDocRepoFake()
	uc := NewResetUseCase(docs, newChunkRepoFake(), testLogger())

	if err := uc.ResetDocument(context.Background(), 9); err != nil {
		t.Fatalf("ResetDocument() error = %v", err)
	}
	if len(docs.resets) != 1 || docs.resets[0] != 9 {
		t.Fatalf("expected document 9 reset, got %v", docs.resets)
	}
}
