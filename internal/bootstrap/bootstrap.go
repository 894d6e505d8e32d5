package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ryanlane/archive-brain/internal/config"
	"github.com/ryanlane/archive-brain/internal/core/ports"
	"github.com/ryanlane/archive-brain/internal/core/usecase"
	"github.com/ryanlane/archive-brain/internal/infrastructure/chunking"
	"github.com/ryanlane/archive-brain/internal/infrastructure/extractor"
	"github.com/ryanlane/archive-brain/internal/infrastructure/graph/neo4j"
	"github.com/ryanlane/archive-brain/internal/infrastructure/llm/anthropic"
	"github.com/ryanlane/archive-brain/internal/infrastructure/llm/ollama"
	"github.com/ryanlane/archive-brain/internal/infrastructure/llm/openai"
	"github.com/ryanlane/archive-brain/internal/infrastructure/queue/nats"
	"github.com/ryanlane/archive-brain/internal/infrastructure/repository/postgres"
	"github.com/ryanlane/archive-brain/internal/observability/logging"
)

type App struct {
	Config config.Config
	Logger *slog.Logger
	DB     *sql.DB
	LLM    ports.LLMBackend

	IngestUC     *usecase.IngestUseCase
	SegmentUC    *usecase.SegmentUseCase
	EnrichDocsUC *usecase.EnrichDocumentsUseCase
	EnrichUC     *usecase.EnrichChunksUseCase
	EmbedUC      *usecase.EmbedUseCase
	SearchUC     *usecase.SearchUseCase
	ResetUC      *usecase.ResetUseCase
	Coordinator  *usecase.WorkerCoordinator

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, service string) (*App, error) {
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	docRepo := postgres.NewDocumentRepository(db)
	chunkRepo := postgres.NewChunkRepository(db)
	linkRepo := postgres.NewLinkRepository(db)
	workerRepo := postgres.NewWorkerRepository(db)
	searchRepo := postgres.NewSearchRepository(db)

	llm, err := newLLMBackend(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// The sources file only matters for the ingest walk; the API can run
	// without one.
	sources, err := config.LoadSources(cfg.SourcesFile)
	if err != nil {
		logger.Warn("sources file unavailable, ingest will walk nothing", "path", cfg.SourcesFile, "error", err)
	}

	thumbnailer, err := extractor.NewThumbnailer(cfg.ThumbnailDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init thumbnailer: %w", err)
	}

	textExtractor := extractor.New()
	segmenter := chunking.NewSegmenter(cfg.MaxEntryLength, cfg.MinEntryLength, cfg.OverlapLength)
	linkExtractor := chunking.NewLinkExtractor()

	closers := []func(){func() { _ = db.Close() }}

	var progress ports.ProgressPublisher
	if cfg.NATSURL != "" {
		publisher, err := nats.NewProgressPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Warn("nats unavailable, progress events disabled", "url", cfg.NATSURL, "error", err)
		} else {
			progress = publisher
			closers = append(closers, publisher.Close)
		}
	}

	var linkGraph ports.LinkGraph
	if cfg.Neo4jURI != "" {
		graph, err := neo4j.NewLinkGraph(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
		if err != nil {
			logger.Warn("neo4j unavailable, link graph disabled", "uri", cfg.Neo4jURI, "error", err)
		} else {
			linkGraph = graph
			closers = append(closers, func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = graph.Close(closeCtx)
			})
		}
	}

	ingestUC := usecase.NewIngestUseCase(docRepo, textExtractor, thumbnailer, llm, usecase.IngestOptions{
		Roots:      sources.Include,
		Excludes:   sources.Exclude,
		Extensions: sources.ExtensionSet(),
	}, logger)
	segmentUC := usecase.NewSegmentUseCase(docRepo, chunkRepo, linkRepo, segmenter, linkExtractor, linkGraph, logger)
	enrichDocsUC := usecase.NewEnrichDocumentsUseCase(docRepo, llm, cfg.GenModel, logger)
	enrichUC := usecase.NewEnrichChunksUseCase(docRepo, chunkRepo, llm, cfg.GenModel, cfg.EnrichMaxChars, cfg.EnrichWorkers, logger)
	embedUC := usecase.NewEmbedUseCase(docRepo, chunkRepo, llm, cfg.EmbedModel, cfg.EmbeddingMaxChars, cfg.EmbedWorkers, logger)
	searchUC := usecase.NewSearchUseCase(searchRepo, llm, cfg.EmbedModel, usecase.SearchOptions{
		VectorWeight:     cfg.VectorWeight,
		RRFK:             cfg.RRFK,
		Stage1Docs:       cfg.Stage1Docs,
		CandidatesPerLeg: cfg.CandidatesPerLeg,
	}, logger)
	resetUC := usecase.NewResetUseCase(docRepo, chunkRepo, logger)
	coordinator := usecase.NewWorkerCoordinator(workerRepo, docRepo, chunkRepo, progress, cfg.StaleThresholdSeconds, logger)

	return &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		LLM:    llm,

		IngestUC:     ingestUC,
		SegmentUC:    segmentUC,
		EnrichDocsUC: enrichDocsUC,
		EnrichUC:     enrichUC,
		EmbedUC:      embedUC,
		SearchUC:     searchUC,
		ResetUC:      resetUC,
		Coordinator:  coordinator,

		closeFn: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func newLLMBackend(cfg config.Config) (ports.LLMBackend, error) {
	genTimeout := time.Duration(cfg.GenTimeoutSeconds) * time.Second
	embedTimeout := time.Duration(cfg.EmbedTimeoutSeconds) * time.Second

	switch cfg.LLMProvider {
	case "ollama", "":
		return ollama.New(cfg.OllamaURL, cfg.GenModel, cfg.EmbedModel, cfg.VisionModel, ollama.Options{
			GenTimeout:        genTimeout,
			EmbedTimeout:      embedTimeout,
			VisionTimeout:     time.Duration(cfg.VisionTimeoutSeconds) * time.Second,
			RequestsPerSecond: cfg.LLMRequestsPerSecond,
		}), nil
	case "openai":
		return openai.New(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.GenModel, cfg.EmbedModel, cfg.VisionModel,
			genTimeout, embedTimeout, cfg.LLMRequestsPerSecond), nil
	case "anthropic":
		return anthropic.New(cfg.AnthropicURL, cfg.AnthropicAPIKey, cfg.GenModel, cfg.VisionModel,
			genTimeout, cfg.LLMRequestsPerSecond), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
