package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"NewsRadar/internal/api"
	"NewsRadar/internal/config"
	"NewsRadar/internal/infrastructure/feeds"
	"NewsRadar/internal/infrastructure/llm"
	"NewsRadar/internal/infrastructure/ner"
	"NewsRadar/internal/infrastructure/storage"
	"NewsRadar/internal/infrastructure/storage/memory"
	"NewsRadar/internal/infrastructure/teaser"
	"NewsRadar/internal/logging"
	"NewsRadar/internal/metrics"
	"NewsRadar/internal/ports"
	"NewsRadar/internal/usecase"
)

// Application wires config to the ingestion loop, the read API, and the
// metrics listener.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	ingestor *usecase.Ingestor
	server   *api.Server
	metrics  *metrics.Metrics
	cleanup  func() error
}

// New builds a runnable application. Without a database DSN it falls back to
// the in-memory store, which is enough for local runs and demos.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	var (
		eventStore ports.EventStore
		readStore  ports.ReadStore
		cleanup    = func() error { return nil }
	)
	if cfg.Database.DSN != "" {
		db, err := storage.Open(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		pg := storage.NewPostgresStore(db)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prepare schema: %w", err)
		}
		eventStore, readStore = pg, pg
		cleanup = db.Close
	} else {
		baseLogger.Warn("no database configured, using in-memory store")
		mem := memory.NewStore()
		eventStore, readStore = mem, mem
	}

	chat := llm.NewChatClient(cfg.OpenAI)
	m := metrics.New()

	ingestor := usecase.NewIngestor(
		eventStore,
		feeds.NewFetcher(nil),
		teaser.NewExtractor(nil),
		ner.NewClient(cfg.NER, baseLogger.With("component", "ner")),
		llm.NewClassifier(chat, baseLogger.With("component", "classifier")),
		m,
		cfg.Ingest,
		baseLogger.With("component", "ingest"),
	)

	server := api.NewServer(
		cfg.API,
		readStore,
		llm.NewWriter(chat, nil, baseLogger.With("component", "drafts")),
		llm.NewTranslator(chat, cfg.Redis.URL, baseLogger.With("component", "translate")),
		baseLogger.With("component", "api"),
	)

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		ingestor: ingestor,
		server:   server,
		metrics:  m,
		cleanup:  cleanup,
	}, nil
}

// Run starts the API, the metrics listener, and the periodic ingestion loop,
// and blocks until the context is cancelled or a component fails.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		if err := a.cleanup(); err != nil {
			a.logger.Warn("cleanup failed", "error", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.metrics.Serve(ctx, a.cfg.API.MetricsAddr, a.logger.With("component", "metrics")) })
	g.Go(func() error { return a.ingestLoop(ctx) })
	return g.Wait()
}

// RunOnce performs a single ingestion pass, for one-shot invocations.
func (a *Application) RunOnce(ctx context.Context) error {
	defer func() {
		if err := a.cleanup(); err != nil {
			a.logger.Warn("cleanup failed", "error", err)
		}
	}()
	_, err := a.ingestor.Run(ctx, a.cfg.Sources)
	return err
}

func (a *Application) ingestLoop(ctx context.Context) error {
	if len(a.cfg.Sources) == 0 {
		a.logger.Warn("no sources configured, ingestion loop idle")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(a.cfg.Ingest.Interval)
	defer ticker.Stop()

	for {
		if _, err := a.ingestor.Run(ctx, a.cfg.Sources); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Error("ingest pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
