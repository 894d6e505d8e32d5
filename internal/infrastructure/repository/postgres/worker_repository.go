package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

type WorkerRepository struct {
	db *sql.DB
}

func NewWorkerRepository(db *sql.DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

const workerColumns = `id, name, status, COALESCE(current_phase, ''), COALESCE(current_task, ''), config, progress, stats, last_heartbeat, started_at`

func scanWorker(row rowScanner) (*domain.Worker, error) {
	var w domain.Worker
	var status, phase string
	var configRaw, progressRaw, statsRaw []byte

	err := row.Scan(
		&w.ID, &w.Name, &status, &phase, &w.CurrentTask,
		&configRaw, &progressRaw, &statsRaw, &w.LastHeartbeat, &w.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(configRaw) > 0 {
		if err := json.Unmarshal(configRaw, &w.Config); err != nil {
			return nil, fmt.Errorf("unmarshal worker config: %w", err)
		}
	}
	if len(progressRaw) > 0 {
		if err := json.Unmarshal(progressRaw, &w.Progress); err != nil {
			return nil, fmt.Errorf("unmarshal worker progress: %w", err)
		}
	}
	if len(statsRaw) > 0 {
		if err := json.Unmarshal(statsRaw, &w.Stats); err != nil {
			return nil, fmt.Errorf("unmarshal worker stats: %w", err)
		}
	}
	w.Status = domain.WorkerStatus(status)
	w.CurrentPhase = domain.Phase(phase)
	return &w, nil
}

// Register upserts the worker row. The id is stable across restarts, and a
// restart keeps the stored phase flags: operators pause phases on the row,
// not on the process.
func (r *WorkerRepository) Register(ctx context.Context, worker *domain.Worker) error {
	configJSON, err := json.Marshal(worker.Config)
	if err != nil {
		return fmt.Errorf("marshal worker config: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO workers (id, name, status, config, progress, stats, last_heartbeat, started_at)
VALUES ($1,$2,$3,$4,'{}'::jsonb,'{}'::jsonb, now(), now())
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	status = EXCLUDED.status,
	current_phase = NULL,
	current_task = NULL,
	progress = '{}'::jsonb,
	stats = '{}'::jsonb,
	last_heartbeat = now(),
	started_at = now()
`, worker.ID, worker.Name, string(worker.Status), configJSON)
	if err != nil {
		return fmt.Errorf("register worker: %w", err)
	}
	return nil
}

func (r *WorkerRepository) Get(ctx context.Context, id string) (*domain.Worker, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = $1`, id)
	w, err := scanWorker(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get worker", fmt.Errorf("id %s", id))
		}
		return nil, fmt.Errorf("scan worker: %w", err)
	}
	return w, nil
}

func (r *WorkerRepository) List(ctx context.Context, includeStopped bool) ([]domain.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers`
	if !includeStopped {
		query += ` WHERE status <> 'stopped'`
	}
	query += ` ORDER BY started_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var out []domain.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan worker: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

func (r *WorkerRepository) Heartbeat(ctx context.Context, id string, status domain.WorkerStatus, phase domain.Phase, task string, stats map[string]float64) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal worker stats: %w", err)
	}
	if stats == nil {
		statsJSON = []byte(`{}`)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE workers
SET status = $2, current_phase = NULLIF($3, ''), current_task = NULLIF($4, ''), stats = $5, last_heartbeat = now()
WHERE id = $1
`, id, string(status), string(phase), task, statsJSON)
	if err != nil {
		return fmt.Errorf("worker heartbeat: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "worker heartbeat", fmt.Errorf("id %s", id))
	}
	return nil
}

func (r *WorkerRepository) GetConfig(ctx context.Context, id string) (domain.WorkerConfig, error) {
	var configRaw []byte
	err := r.db.QueryRowContext(ctx, `SELECT config FROM workers WHERE id = $1`, id).Scan(&configRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WorkerConfig{}, domain.WrapError(domain.ErrNotFound, "get worker config", fmt.Errorf("id %s", id))
		}
		return domain.WorkerConfig{}, fmt.Errorf("get worker config: %w", err)
	}
	var config domain.WorkerConfig
	if len(configRaw) > 0 {
		if err := json.Unmarshal(configRaw, &config); err != nil {
			return domain.WorkerConfig{}, fmt.Errorf("unmarshal worker config: %w", err)
		}
	}
	return config, nil
}

func (r *WorkerRepository) UpdateConfig(ctx context.Context, id string, config domain.WorkerConfig) error {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal worker config: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE workers SET config = $2 WHERE id = $1
`, id, configJSON)
	if err != nil {
		return fmt.Errorf("update worker config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update worker config", fmt.Errorf("id %s", id))
	}
	return nil
}

func (r *WorkerRepository) UpdateProgress(ctx context.Context, id string, phase domain.Phase, progress domain.PhaseProgress) error {
	patch, err := json.Marshal(map[domain.Phase]domain.PhaseProgress{phase: progress})
	if err != nil {
		return fmt.Errorf("marshal worker progress: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE workers SET progress = progress || $2 WHERE id = $1
`, id, patch)
	if err != nil {
		return fmt.Errorf("update worker progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapError(domain.ErrNotFound, "update worker progress", fmt.Errorf("id %s", id))
	}
	return nil
}

// MarkStale is run opportunistically by any live worker or api request so
// dead processes surface without a dedicated janitor.
func (r *WorkerRepository) MarkStale(ctx context.Context, staleAfterSeconds int) (int, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE workers
SET status = 'stale'
WHERE status IN ('active', 'idle', 'starting')
  AND last_heartbeat < now() - make_interval(secs => $1)
`, staleAfterSeconds)
	if err != nil {
		return 0, fmt.Errorf("mark stale workers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale rows affected: %w", err)
	}
	return int(n), nil
}

func (r *WorkerRepository) Deregister(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE workers SET status = 'stopped', current_phase = NULL, current_task = NULL, last_heartbeat = now() WHERE id = $1
`, id)
	if err != nil {
		return fmt.Errorf("deregister worker: %w", err)
	}
	return nil
}
