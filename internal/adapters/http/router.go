package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/core/ports"
)

type Router struct {
	search  ports.ArchiveSearcher
	workers ports.WorkerDirectory
	reset   ports.Resetter
	logger  *slog.Logger
}

func NewRouter(search ports.ArchiveSearcher, workers ports.WorkerDirectory, reset ports.Resetter, logger *slog.Logger) *Router {
	return &Router{
		search:  search,
		workers: workers,
		reset:   reset,
		logger:  logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.searchArchive)
	mux.HandleFunc("/v1/workers", rt.listWorkers)
	mux.HandleFunc("/v1/workers/", rt.workerPhases)
	mux.HandleFunc("/v1/review", rt.reviewQueue)
	mux.HandleFunc("/v1/chunks/", rt.resetChunk)
	mux.HandleFunc("/v1/documents/", rt.resetDocument)
	return requestIDMiddleware(accessLogMiddleware(rt.logger, mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) searchArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query  string              `json:"query"`
		Mode   string              `json:"mode"`
		Limit  int                 `json:"limit"`
		Filter domain.SearchFilter `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	result, err := rt.search.Search(r.Context(), req.Query, domain.SearchMode(req.Mode), req.Limit, req.Filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) listWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	includeStopped := r.URL.Query().Get("include_stopped") == "true"
	workers, err := rt.workers.ListWorkers(r.Context(), includeStopped)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workers": workers})
}

// workerPhases toggles one per-phase flag on a worker row. Workers re-read
// the flags between sub-batches, so the toggle lands without a restart.
func (rt *Router) workerPhases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/workers/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "phases" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	workerID := parts[0]

	var req struct {
		Phase   string `json:"phase"`
		Enabled *bool  `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	phase, ok := knownPhase(req.Phase)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown phase"})
		return
	}
	if req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "enabled is required"})
		return
	}

	if err := rt.workers.SetPhaseEnabled(r.Context(), workerID, phase, *req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"worker_id": workerID, "phase": phase, "enabled": *req.Enabled})
}

func (rt *Router) reviewQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	chunks, err := rt.reset.ReviewQueue(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": chunks})
}

func (rt *Router) resetChunk(w http.ResponseWriter, r *http.Request) {
	id, ok := resetTarget(w, r, "/v1/chunks/")
	if !ok {
		return
	}
	if err := rt.reset.ResetChunk(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunk_id": id, "status": "pending"})
}

func (rt *Router) resetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := resetTarget(w, r, "/v1/documents/")
	if !ok {
		return
	}
	if err := rt.reset.ResetDocument(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "status": "pending"})
}

// resetTarget parses "/<prefix><id>/reset" and enforces POST.
func resetTarget(w http.ResponseWriter, r *http.Request, prefix string) (int64, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return 0, false
	}
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "reset" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return 0, false
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func knownPhase(name string) (domain.Phase, bool) {
	for _, phase := range domain.Phases {
		if string(phase) == name {
			return phase, true
		}
	}
	return "", false
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
