package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

func TestSetPhaseEnabledRoundTrip(t *testing.T) {
	repo := newWorkerRepoFake()
	c := NewWorkerCoordinator(repo, newDocRepoFake(), newChunkRepoFake(), nil, 120, testLogger())

	if err := c.SetPhaseEnabled(context.Background(), "w1", domain.PhaseEnrich, false); err != nil {
		t.Fatalf("SetPhaseEnabled() error = %v", err)
	}
	if c.PhaseEnabled(context.Background(), "w1", domain.PhaseEnrich) {
		t.Fatalf("expected enrich disabled")
	}
	if !c.PhaseEnabled(context.Background(), "w1", domain.PhaseEmbed) {
		t.Fatalf("expected untouched phases enabled")
	}

	if err := c.SetPhaseEnabled(context.Background(), "w1", domain.PhaseEnrich, true); err != nil {
		t.Fatalf("SetPhaseEnabled() error = %v", err)
	}
	if !c.PhaseEnabled(context.Background(), "w1", domain.PhaseEnrich) {
		t.Fatalf("expected enrich re-enabled")
	}
}

func TestPhaseEnabledAssumesEnabledOnReadFailure(t *testing.T) {
	repo := newWorkerRepoFake()
	repo.configErr = errors.New("db down")
	c := NewWorkerCoordinator(repo, newDocRepoFake(), newChunkRepoFake(), nil, 120, testLogger())

	if !c.PhaseEnabled(context.Background(), "w1", domain.PhaseIngest) {
		t.Fatalf("flag read failure must not halt the pipeline")
	}
}

func TestHeartbeatSweepsStaleWorkers(t *testing.T) {
	repo := newWorkerRepoFake()
	c := NewWorkerCoordinator(repo, newDocRepoFake(), newChunkRepoFake(), nil, 120, testLogger())

	if err := c.Heartbeat(context.Background(), "w1", domain.WorkerActive, domain.PhaseEnrich, "", nil); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if repo.heartbeats != 1 || repo.staleCalls != 1 {
		t.Fatalf("expected heartbeat + stale sweep, got %d/%d", repo.heartbeats, repo.staleCalls)
	}
}

func TestHeartbeatReclaimsAbandonedClaims(t *testing.T) {
	repo := newWorkerRepoFake()
	docs := newDocRepoFake()
	docs.staleDocs = 1
	chunks := newChunkRepoFake()
	chunks.staleChunks = 2
	c := NewWorkerCoordinator(repo, docs, chunks, nil, 120, testLogger())

	if err := c.Heartbeat(context.Background(), "w1", domain.WorkerActive, domain.PhaseEnrich, "", nil); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if chunks.staleChunkCalls != 1 || docs.staleDocCalls != 1 {
		t.Fatalf("expected claim reclaim on sweep, got chunks=%d docs=%d", chunks.staleChunkCalls, docs.staleDocCalls)
	}
}

func TestListWorkersSweepsFirst(t *testing.T) {
	repo := newWorkerRepoFake()
	repo.listed = []domain.Worker{{ID: "w1"}}
	c := NewWorkerCoordinator(repo, newDocRepoFake(), newChunkRepoFake(), nil, 120, testLogger())

	workers, err := c.ListWorkers(context.Background(), false)
	if err != nil {
		t.Fatalf("ListWorkers() error = %v", err)
	}
	if len(workers) != 1 || repo.staleCalls != 1 {
		t.Fatalf("expected 1 worker after sweep, got %d workers, %d sweeps", len(workers), repo.staleCalls)
	}
}
