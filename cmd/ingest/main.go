package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/sensor-reading-engine/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/sensor-reading-engine/internal/adapter/kafka"
	"github.com/couchcryptid/sensor-reading-engine/internal/adapter/postgres"
	"github.com/couchcryptid/sensor-reading-engine/internal/analytics"
	"github.com/couchcryptid/sensor-reading-engine/internal/config"
	"github.com/couchcryptid/sensor-reading-engine/internal/domain"
	"github.com/couchcryptid/sensor-reading-engine/internal/observability"
	"github.com/couchcryptid/sensor-reading-engine/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	db, err := postgres.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	readings := postgres.NewReadingStore(db)
	samples := postgres.NewSampleStore(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := domain.LoadRegistry(ctx, readings)
	if err != nil {
		logger.Error("failed to load reading registry", "error", err)
		os.Exit(1)
	}
	metrics.RegistryVersion.Set(float64(registry.Version()))
	logger.Info("reading registry loaded", "version", registry.Version(), "readings", registry.Snapshot().Len())

	tags := domain.NewCanonicalizer(postgres.NewTagStore(db), cfg.TagDistanceThreshold)
	sensors := domain.NewSensorRegistrar(tags, postgres.NewSensorStore(db))

	series := analytics.NewService(registry, samples, cfg.SeriesCacheSize, logger, metrics)
	ingestor := domain.NewIngestor(registry, nil)
	transformer := pipeline.NewTransformer(ingestor, readings, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	loaders := []pipeline.NamedLoader{{Name: "kafka", Loader: writer}}
	if cfg.PersistSamples {
		loaders = append(loaders, pipeline.NamedLoader{Name: "postgres", Loader: samples})
	} else {
		logger.Info("sample persistence disabled")
	}

	loader := pipeline.NewTrackingLoader(pipeline.NewFanOutLoader(loaders...), series)
	p := pipeline.New(reader, transformer, loader, logger, metrics, cfg.BatchSize)

	reloader := pipeline.NewRegistryReloader(registry, readings, cfg.RegistryReloadInterval,
		clockwork.NewRealClock(), logger, metrics, series.Purge, tags.Reload)

	api := httpadapter.NewAPI(series, registry, sensors, readings, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, readiness{p, db}, api, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start registry reloads.
	go reloader.Run(ctx)

	// Start ingestion pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// readiness is ready when every checker is.
type readiness []sharedobs.ReadinessChecker

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
