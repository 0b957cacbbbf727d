package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/Xenocryptix/inference-webapp/internal/config"
	"github.com/Xenocryptix/inference-webapp/internal/handlers"
	"github.com/Xenocryptix/inference-webapp/internal/logging"
	"github.com/Xenocryptix/inference-webapp/internal/metrics"
	"github.com/Xenocryptix/inference-webapp/internal/model"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := model.NewRuntime(cfg.OnnxLibrary)
	if err != nil {
		return err
	}
	defer runtime.Close()

	models, err := model.LoadModels(ctx,
		model.ModelFiles{Model: cfg.Resolve(cfg.ClassifierModel), Metadata: cfg.Resolve(cfg.ClassifierMetadata)},
		model.ModelFiles{Model: cfg.Resolve(cfg.DenoiseModel), Metadata: cfg.Resolve(cfg.DenoiseMetadata)},
		logger)
	if err != nil {
		return err
	}
	defer models.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler := handlers.NewHandler(models.Classifier, models.Denoiser, handlers.Options{
		Logger:         logger,
		Metrics:        metrics.New(reg),
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigin:     cfg.CORSOrigin,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Infof("Server starting on port %d", cfg.Port)
	logger.Info("Endpoints:")
	logger.Info("  GET  /health  - Health check")
	logger.Info("  POST /predict - Classify an uploaded image")
	logger.Info("  POST /denoise - Denoise an uploaded image, returns PNG")
	logger.Info("  GET  /metrics - Prometheus metrics")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
