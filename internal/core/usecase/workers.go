package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/core/ports"
)

// WorkerCoordinator mediates all worker liveness and control state through
// the database. There is no direct worker-to-worker channel: registration,
// heartbeats, phase flags and staleness all live on the workers table.
type WorkerCoordinator struct {
	workers        ports.WorkerRepository
	docs           ports.DocumentRepository
	chunks         ports.ChunkRepository
	progress       ports.ProgressPublisher
	staleThreshold int
	logger         *slog.Logger
}

func NewWorkerCoordinator(
	workers ports.WorkerRepository,
	docs ports.DocumentRepository,
	chunks ports.ChunkRepository,
	progress ports.ProgressPublisher,
	staleThresholdSeconds int,
	logger *slog.Logger,
) *WorkerCoordinator {
	if staleThresholdSeconds <= 0 {
		staleThresholdSeconds = 120
	}
	return &WorkerCoordinator{
		workers:        workers,
		docs:           docs,
		chunks:         chunks,
		progress:       progress,
		staleThreshold: staleThresholdSeconds,
		logger:         logger,
	}
}

func (c *WorkerCoordinator) Register(ctx context.Context, id, name string) error {
	worker := &domain.Worker{
		ID:     id,
		Name:   name,
		Status: domain.WorkerStarting,
	}
	if err := c.workers.Register(ctx, worker); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	c.logger.Info("worker registered", "worker_id", id, "name", name)
	return nil
}

// Heartbeat refreshes liveness and opportunistically sweeps for stale
// peers, so any live worker keeps the directory honest.
func (c *WorkerCoordinator) Heartbeat(ctx context.Context, id string, status domain.WorkerStatus, phase domain.Phase, task string, stats map[string]float64) error {
	if err := c.workers.Heartbeat(ctx, id, status, phase, task, stats); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	c.sweepStale(ctx)
	return nil
}

// sweepStale marks dead workers and puts their abandoned claims back into
// the queue, so rows stuck in a transient status recover without a
// dedicated janitor process.
func (c *WorkerCoordinator) sweepStale(ctx context.Context) {
	if n, err := c.workers.MarkStale(ctx, c.staleThreshold); err != nil {
		c.logger.Warn("stale sweep failed", "error", err)
	} else if n > 0 {
		c.logger.Warn("marked stale workers", "count", n)
	}
	if n, err := c.chunks.ReleaseStale(ctx, c.staleThreshold); err != nil {
		c.logger.Warn("stale chunk reclaim failed", "error", err)
	} else if n > 0 {
		c.logger.Warn("reclaimed abandoned chunk claims", "count", n)
	}
	if n, err := c.docs.ReleaseStale(ctx, c.staleThreshold); err != nil {
		c.logger.Warn("stale document reclaim failed", "error", err)
	} else if n > 0 {
		c.logger.Warn("reclaimed abandoned document claims", "count", n)
	}
}

// PhaseEnabled re-reads the stored flag. Workers call this between
// sub-batches so an operator toggle takes effect mid-phase.
func (c *WorkerCoordinator) PhaseEnabled(ctx context.Context, id string, phase domain.Phase) bool {
	config, err := c.workers.GetConfig(ctx, id)
	if err != nil {
		c.logger.Warn("phase flag read failed, assuming enabled", "worker_id", id, "phase", phase, "error", err)
		return true
	}
	return config.Enabled(phase)
}

func (c *WorkerCoordinator) ReportProgress(ctx context.Context, id string, phase domain.Phase, progress domain.PhaseProgress) {
	if err := c.workers.UpdateProgress(ctx, id, phase, progress); err != nil {
		c.logger.Warn("progress update failed", "worker_id", id, "phase", phase, "error", err)
	}
	if c.progress != nil {
		if err := c.progress.PublishProgress(ctx, id, phase, progress); err != nil {
			c.logger.Warn("progress publish failed", "worker_id", id, "error", err)
		}
	}
}

func (c *WorkerCoordinator) Deregister(ctx context.Context, id string) error {
	if err := c.workers.Deregister(ctx, id); err != nil {
		return fmt.Errorf("deregister worker: %w", err)
	}
	c.logger.Info("worker deregistered", "worker_id", id)
	return nil
}

func (c *WorkerCoordinator) ListWorkers(ctx context.Context, includeStopped bool) ([]domain.Worker, error) {
	c.sweepStale(ctx)
	workers, err := c.workers.List(ctx, includeStopped)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return workers, nil
}

func (c *WorkerCoordinator) SetPhaseEnabled(ctx context.Context, workerID string, phase domain.Phase, enabled bool) error {
	config, err := c.workers.GetConfig(ctx, workerID)
	if err != nil {
		return fmt.Errorf("read worker config: %w", err)
	}
	if config.Phases == nil {
		config.Phases = make(map[domain.Phase]bool, len(domain.Phases))
	}
	config.Phases[phase] = enabled
	if err := c.workers.UpdateConfig(ctx, workerID, config); err != nil {
		return fmt.Errorf("update worker config: %w", err)
	}
	c.logger.Info("phase flag updated", "worker_id", workerID, "phase", phase, "enabled", enabled)
	return nil
}
