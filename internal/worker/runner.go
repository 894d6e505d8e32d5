// Package worker drives the processing pipeline as a single loop over the
// ordered phases. All coordination with other workers goes through the
// database: phases are claimed row-by-row with SKIP LOCKED inside the
// repositories, and the runner only has to keep its heartbeat fresh and
// honor the per-phase enable flags between sub-batches.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/observability/metrics"
)

// coordinator is the slice of the worker coordinator the runner consumes.
type coordinator interface {
	Register(ctx context.Context, id, name string) error
	Heartbeat(ctx context.Context, id string, status domain.WorkerStatus, phase domain.Phase, task string, stats map[string]float64) error
	PhaseEnabled(ctx context.Context, id string, phase domain.Phase) bool
	ReportProgress(ctx context.Context, id string, phase domain.Phase, progress domain.PhaseProgress)
	Deregister(ctx context.Context, id string) error
}

// PhaseFunc processes up to batchSize units and reports how many it
// actually handled. Zero means the phase has drained.
type PhaseFunc func(ctx context.Context, batchSize int) (int, error)

// PhaseSpec binds one pipeline phase to its batch size. Once marks phases
// that do a full pass per cycle (the filesystem walk) instead of draining
// sub-batch by sub-batch.
type PhaseSpec struct {
	Name  domain.Phase
	Batch int
	Once  bool
	Run   PhaseFunc
}

type Options struct {
	HeartbeatInterval time.Duration
	IdleWait          time.Duration
}

type Runner struct {
	id      string
	name    string
	coord   coordinator
	phases  []PhaseSpec
	metrics *metrics.PipelineMetrics
	opts    Options
	logger  *slog.Logger

	mu     sync.Mutex
	status domain.WorkerStatus
	phase  domain.Phase
	task   string
}

func NewRunner(id, name string, coord coordinator, phases []PhaseSpec, m *metrics.PipelineMetrics, opts Options, logger *slog.Logger) *Runner {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = 15 * time.Second
	}
	return &Runner{
		id:      id,
		name:    name,
		coord:   coord,
		phases:  phases,
		metrics: m,
		opts:    opts,
		logger:  logger,
		status:  domain.WorkerStarting,
	}
}

// Run cycles through the phases until the context is canceled. A cycle
// that moves no units parks the runner as idle for the configured wait.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.coord.Register(ctx, r.id, r.name); err != nil {
		return err
	}
	defer r.deregister()

	go r.heartbeatLoop(ctx)

	for {
		worked := 0
		for _, spec := range r.phases {
			n, err := r.runPhase(ctx, spec)
			worked += n
			if err != nil && ctx.Err() == nil {
				r.logger.Error("phase failed", "phase", spec.Name, "error", err)
			}
			if ctx.Err() != nil {
				return nil
			}
		}
		if worked == 0 {
			r.setState(domain.WorkerIdle, "", "")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.opts.IdleWait):
			}
		}
	}
}

func (r *Runner) runPhase(ctx context.Context, spec PhaseSpec) (int, error) {
	if !r.coord.PhaseEnabled(ctx, r.id, spec.Name) {
		return 0, nil
	}
	r.setState(domain.WorkerActive, spec.Name, "")

	total := 0
	for {
		start := time.Now()
		if r.metrics != nil {
			r.metrics.StartBatch(string(spec.Name))
		}
		n, err := spec.Run(ctx, spec.Batch)
		if r.metrics != nil {
			r.metrics.FinishBatch(string(spec.Name), n, time.Since(start), err)
		}
		total += n
		if err != nil {
			r.report(ctx, spec.Name, total, "error")
			return total, err
		}
		if total > 0 {
			r.report(ctx, spec.Name, total, "running")
		}
		if n == 0 || spec.Once || ctx.Err() != nil {
			break
		}
		// The flag is re-read between sub-batches so an operator toggle
		// takes effect mid-phase.
		if !r.coord.PhaseEnabled(ctx, r.id, spec.Name) {
			r.logger.Info("phase disabled mid-run", "phase", spec.Name, "processed", total)
			break
		}
	}
	if total > 0 {
		r.report(ctx, spec.Name, total, "done")
	}
	return total, nil
}

func (r *Runner) report(ctx context.Context, phase domain.Phase, current int, status string) {
	r.coord.ReportProgress(ctx, r.id, phase, domain.PhaseProgress{
		Current:   current,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	})
}

func (r *Runner) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.opts.HeartbeatInterval)
	defer ticker.Stop()

	r.beat(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.beat(ctx)
		}
	}
}

func (r *Runner) beat(ctx context.Context) {
	status, phase, task := r.state()
	if err := r.coord.Heartbeat(ctx, r.id, status, phase, task, nil); err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("heartbeat failed", "error", err)
		}
		return
	}
	if r.metrics != nil {
		r.metrics.ObserveHeartbeat()
	}
}

func (r *Runner) deregister() {
	// The run context is already canceled at this point.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.coord.Deregister(ctx, r.id); err != nil {
		r.logger.Warn("deregister failed", "worker_id", r.id, "error", err)
	}
}

func (r *Runner) setState(status domain.WorkerStatus, phase domain.Phase, task string) {
	r.mu.Lock()
	r.status, r.phase, r.task = status, phase, task
	r.mu.Unlock()
}

func (r *Runner) state() (domain.WorkerStatus, domain.Phase, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.phase, r.task
}
