package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ryanlane/archive-brain/internal/bootstrap"
	"github.com/ryanlane/archive-brain/internal/config"
	"github.com/ryanlane/archive-brain/internal/core/domain"
	"github.com/ryanlane/archive-brain/internal/observability/metrics"
	"github.com/ryanlane/archive-brain/internal/worker"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, "archive-worker")
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = uuid.NewString()
	}
	workerName := cfg.WorkerName
	if workerName == "" {
		if host, err := os.Hostname(); err == nil {
			workerName = host
		} else {
			workerName = workerID
		}
	}

	pipelineMetrics := metrics.NewPipelineMetrics(workerID)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsHandler(pipelineMetrics),
	}
	go func() {
		log.Printf("metrics listening on :%s", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	phases := []worker.PhaseSpec{
		{Name: domain.PhaseIngest, Once: true, Run: func(ctx context.Context, _ int) (int, error) {
			counts, err := app.IngestUC.Run(ctx)
			return counts.New + counts.Updated, err
		}},
		{Name: domain.PhaseSegment, Batch: cfg.SegmentBatchSize, Run: app.SegmentUC.Run},
		{Name: domain.PhaseEnrichDocs, Batch: cfg.DocEnrichBatchSize, Run: app.EnrichDocsUC.Run},
		{Name: domain.PhaseEnrich, Batch: cfg.EnrichBatchSize, Run: app.EnrichUC.Run},
		{Name: domain.PhaseEmbedDocs, Batch: cfg.DocEmbedBatchSize, Run: app.EmbedUC.RunDocuments},
		{Name: domain.PhaseEmbed, Batch: cfg.EmbedBatchSize, Run: app.EmbedUC.RunChunks},
	}

	runner := worker.NewRunner(workerID, workerName, app.Coordinator, phases, pipelineMetrics, worker.Options{
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalSeconds) * time.Second,
	}, app.Logger)

	log.Printf("worker %s starting", workerID)
	if err := runner.Run(ctx); err != nil {
		log.Fatalf("worker error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics shutdown error: %v", err)
	}
}

func metricsHandler(m *metrics.PipelineMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return mux
}
