package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/uni-comb/app/api"
	"github.com/lysyi3m/uni-comb/app/cfg"
	"github.com/lysyi3m/uni-comb/app/metrics"
	"github.com/lysyi3m/uni-comb/app/pipeline"
	"github.com/lysyi3m/uni-comb/app/source"
	"github.com/lysyi3m/uni-comb/app/staging"
	"github.com/lysyi3m/uni-comb/app/tasks"
	"github.com/lysyi3m/uni-comb/app/university"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	setupLogging(appCfg.Debug)

	if err := run(appCfg); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Uni Comb server",
		"version", appCfg.Version,
		"data_dir", appCfg.DataDir,
		"countries", len(appCfg.Countries),
		"schedule", appCfg.RefreshSchedule,
		"overlap_policy", appCfg.OverlapPolicy)

	store := staging.NewStore(appCfg.DataDir)
	if err := store.EnsureDir(); err != nil {
		return err
	}

	m := metrics.New()

	gateway := source.NewGateway(source.Options{
		BaseURL:        appCfg.SourceURL,
		Countries:      appCfg.Countries,
		UserAgent:      appCfg.UserAgent,
		RequestTimeout: appCfg.RequestTimeout,
		RequestRate:    appCfg.RequestRate,
		RequestBurst:   appCfg.RequestBurst,
		Metrics:        m,
	})

	orchestrator := pipeline.NewOrchestrator(gateway, university.NewNormalizer(), store,
		pipeline.WithMetrics(m),
		pipeline.WithOverlapPolicy(appCfg.OverlapPolicy))

	// The first generation is staged before any request is served.
	initial := orchestrator.Run(context.Background(), pipeline.TriggerStartup)
	if initial.Success {
		slog.Info("Initial refresh completed", "records", initial.RecordCount, "duration", initial.Duration())
	} else {
		slog.Warn("Initial refresh failed", "error", initial.Error)
	}

	scheduler, err := tasks.NewScheduler(orchestrator, appCfg.RefreshSchedule)
	if err != nil {
		return err
	}
	scheduler.Start()

	handler := api.NewHandler(orchestrator, store, m.Handler(), scheduler.NextRun, appCfg.Version)
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      api.NewServer(handler, appCfg.Debug),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	if appCfg.ShutdownTimeout <= 0 {
		// In-flight requests and pipeline runs are abandoned.
		if err := httpServer.Close(); err != nil {
			slog.Error("HTTP server close error", "error", err)
		}
		slog.Info("Server stopped")
		return runErr
	}

	slog.Info("Shutting down gracefully", "timeout", appCfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	stopped := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		slog.Info("Scheduler stopped")
	case <-shutdownCtx.Done():
		slog.Warn("Scheduler did not stop before the shutdown deadline")
	}

	slog.Info("Server shutdown complete")
	return runErr
}
