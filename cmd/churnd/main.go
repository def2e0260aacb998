package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"churn-service/internal/api"
	"churn-service/internal/cfg"
	"churn-service/internal/dashboard"
	"churn-service/internal/inference"
	"churn-service/internal/metrics"
	"churn-service/internal/ml"
	"churn-service/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	setupLogging(c)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model, err := ml.LoadArtifacts(c.ModelPath, c.SchemaPath)
	if err != nil {
		log.Fatal().Err(err).
			Str("model", c.ModelPath).
			Str("schema", c.SchemaPath).
			Msg("failed to load model artifacts")
	}

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	var sinks []inference.Sink
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
		sinks = append(sinks, store)
	}

	var hub *dashboard.Hub
	if c.DashboardEnabled {
		hub = dashboard.NewHub(mw.WSClients())
		sinks = append(sinks, hub)
	}

	svc, err := inference.New(model, c.Threshold, mw, sinks...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create inference service")
	}

	info := svc.Info()
	log.Info().
		Str("type", info.Type).
		Str("version", info.Version).
		Int("n_features", info.Width).
		Float64("threshold", info.Threshold).
		Msg("churn service ready")

	var wg sync.WaitGroup
	startMetricsServer(ctx, &wg, c)
	startModelAgeReporter(ctx, &wg, model, mw)

	apiServer := api.NewServer(svc, api.Options{
		Port:           c.APIPort,
		RequestTimeout: c.RequestTimeout,
		MaxBatchSize:   c.MaxBatchSize,
		Observer:       mw,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("prediction API failed")
			cancel()
		}
	}()

	var dash *dashboard.Dashboard
	if c.DashboardEnabled {
		var history dashboard.History
		if store != nil {
			history = store
		}
		dash = dashboard.NewDashboard(svc, history, hub, dashboard.Options{
			Port:     c.DashboardPort,
			Timeout:  c.RequestTimeout,
			Observer: mw,
		})
		if err := dash.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start dashboard")
		}
	}

	waitForShutdown(ctx, cancel)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown prediction API")
	}
	if dash != nil {
		if err := dash.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop dashboard")
		}
	}

	// Wait for all goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}

func setupLogging(c cfg.Settings) {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// initializeStorage opens the prediction log if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath != "" {
		store, err := storage.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, continuing without prediction log")
			return nil
		}
		return store
	}
	return nil
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, wg *sync.WaitGroup, c cfg.Settings) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", c.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		if err := server.Shutdown(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to shutdown metrics server")
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// startModelAgeReporter keeps the model age gauge current between predictions.
func startModelAgeReporter(ctx context.Context, wg *sync.WaitGroup, model *ml.Model, m *metrics.MetricsWrapper) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		m.ModelAgeSet(model.Age().Seconds())
		for {
			select {
			case <-ticker.C:
				m.ModelAgeSet(model.Age().Seconds())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func waitForShutdown(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()
}
