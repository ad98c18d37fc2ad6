package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/andrewnakas/nbm-to-zarr-data/internal/adapter/http"
	kafkaadapter "github.com/andrewnakas/nbm-to-zarr-data/internal/adapter/kafka"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/archive"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/config"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/domain"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/extract"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/gridfile"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/observability"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/pipeline"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/template"
	"github.com/andrewnakas/nbm-to-zarr-data/internal/zarrstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	fetcher := archive.NewFetcher(cfg.BaseURL, cfg.DownloadDir, cfg.DownloadTimeout, logger, metrics)
	extractor := extract.New(gridfile.GDALReader{}, logger, metrics)

	tmplCfg := template.DefaultConfig()
	tmplCfg.MaxForecastHour = cfg.MaxForecastHour

	processor := pipeline.New(tmplCfg, fetcher, extractor, logger, metrics,
		pipeline.WithRegionCode(cfg.RegionCode),
		pipeline.WithProgress(func(ev pipeline.Event) {
			if ev.Err != nil {
				return
			}
			logger.Debug("source file processed",
				"coord", ev.Coord.String(),
				"index", ev.Index,
				"total", ev.Total)
		}))

	writer, err := zarrstore.NewWriter(logger)
	if err != nil {
		logger.Error("failed to create store writer", "error", err)
		os.Exit(1)
	}

	// Run-report notifications are feature-flagged via KAFKA_NOTIFY_ENABLED.
	var publisher pipeline.Publisher
	var notifier *kafkaadapter.Notifier
	if cfg.KafkaNotifyEnabled {
		notifier = kafkaadapter.NewNotifier(cfg, logger)
		publisher = notifier
		logger.Info("run-report notifications enabled", "topic", cfg.KafkaRunTopic)
	} else {
		logger.Info("run-report notifications disabled")
	}

	runner := pipeline.NewRunner(processor, writer, publisher, cfg.StorePath,
		cfg.UpdateInterval, clock, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Backfill() {
		runBackfill(ctx, cfg, runner, notifier, logger)
		return
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, runner, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := runner.Run(ctx); err != nil {
			logger.Error("runner error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if notifier != nil {
		if err := notifier.Close(); err != nil {
			logger.Error("kafka notifier close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// runBackfill processes the configured historical window as a single run
// and exits, skipping the HTTP surface and the update loop.
func runBackfill(ctx context.Context, cfg *config.Config, runner *pipeline.Runner, notifier *kafkaadapter.Notifier, logger *slog.Logger) {
	region := domain.ProcessingRegion{
		InitTimeStart: cfg.BackfillStart,
		InitTimeEnd:   cfg.BackfillEnd,
	}
	logger.Info("backfill starting",
		"init_time_start", region.InitTimeStart,
		"init_time_end", region.InitTimeEnd)

	err := runner.RunOnce(ctx, region)
	if notifier != nil {
		if cerr := notifier.Close(); cerr != nil {
			logger.Error("kafka notifier close error", "error", cerr)
		}
	}
	if err != nil {
		logger.Error("backfill failed", "error", err)
		os.Exit(1)
	}
	logger.Info("backfill complete")
}
