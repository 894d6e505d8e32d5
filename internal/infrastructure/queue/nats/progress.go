// Package nats publishes pipeline progress snapshots for external
// dashboards. Publishing is best effort: the database stays the only
// coordination channel, and a NATS outage never blocks a worker.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

type ProgressPublisher struct {
	conn    *nats.Conn
	subject string
}

func NewProgressPublisher(url, subject string) (*ProgressPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("archive-brain"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &ProgressPublisher{conn: conn, subject: subject}, nil
}

type progressEvent struct {
	WorkerID string               `json:"worker_id"`
	Phase    domain.Phase         `json:"phase"`
	Progress domain.PhaseProgress `json:"progress"`
	At       time.Time            `json:"at"`
}

func (p *ProgressPublisher) PublishProgress(ctx context.Context, workerID string, phase domain.Phase, progress domain.PhaseProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(progressEvent{
		WorkerID: workerID,
		Phase:    phase,
		Progress: progress,
		At:       time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal progress event: %w", err)
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

func (p *ProgressPublisher) Close() {
	_ = p.conn.Drain()
}
