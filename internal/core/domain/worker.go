package domain

import "time"

// WorkerStatus is the lifecycle state of a registered worker process.
type WorkerStatus string

const (
	WorkerStarting WorkerStatus = "starting"
	WorkerActive   WorkerStatus = "active"
	WorkerIdle     WorkerStatus = "idle"
	WorkerStale    WorkerStatus = "stale"
	WorkerStopped  WorkerStatus = "stopped"
)

// Phase names one stage of the processing pipeline.
type Phase string

const (
	PhaseIngest     Phase = "ingest"
	PhaseSegment    Phase = "segment"
	PhaseEnrichDocs Phase = "enrich_docs"
	PhaseEnrich     Phase = "enrich"
	PhaseEmbedDocs  Phase = "embed_docs"
	PhaseEmbed      Phase = "embed"
)

// Phases lists all pipeline phases in execution order.
var Phases = []Phase{PhaseIngest, PhaseSegment, PhaseEnrichDocs, PhaseEnrich, PhaseEmbedDocs, PhaseEmbed}

// WorkerConfig carries the per-phase enable flags. A missing entry means
// the phase is enabled.
type WorkerConfig struct {
	Phases map[Phase]bool `json:"phases"`
}

// Enabled reports whether a phase may run under this config.
func (c WorkerConfig) Enabled(phase Phase) bool {
	if c.Phases == nil {
		return true
	}
	enabled, ok := c.Phases[phase]
	if !ok {
		return true
	}
	return enabled
}

// PhaseProgress is the per-phase snapshot exposed to the dashboard.
type PhaseProgress struct {
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Worker is one registered worker process. The id is stable across
// restarts; liveness is judged from LastHeartbeat by any observer.
type Worker struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name"`
	Status        WorkerStatus            `json:"status"`
	CurrentPhase  Phase                   `json:"current_phase,omitempty"`
	CurrentTask   string                  `json:"current_task,omitempty"`
	Config        WorkerConfig            `json:"config"`
	Progress      map[Phase]PhaseProgress `json:"progress"`
	Stats         map[string]float64      `json:"stats,omitempty"`
	LastHeartbeat time.Time               `json:"last_heartbeat"`
	StartedAt     time.Time               `json:"started_at"`
}
