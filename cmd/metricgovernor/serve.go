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

	"metricgovernor/internal/aggregator"
	"metricgovernor/internal/api"
	"metricgovernor/internal/config"
	"metricgovernor/internal/governor"
	"metricgovernor/internal/logger"
	"metricgovernor/internal/models"
	"metricgovernor/internal/observability"
	"metricgovernor/internal/reporter"
	"metricgovernor/internal/storage"
	"metricgovernor/internal/version"

	"github.com/spf13/cobra"
)

const defaultFlushInterval = 15 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the governor API, reporter and config watcher",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().StringP("input", "i", "", `JSON-lines metric stream to govern ("-" for stdin)`)
	cmd.Flags().Duration("flush-interval", defaultFlushInterval, "How often accepted metrics are flushed from the aggregator")
	cmd.Flags().Bool("watch", true, "Reload limiter rules when the config file changes")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, err := configFlag(cmd)
	if err != nil {
		return err
	}
	inputPath, err := cmd.Flags().GetString("input")
	if err != nil {
		return fmt.Errorf("failed to get input flag: %w", err)
	}
	flushInterval, err := cmd.Flags().GetDuration("flush-interval")
	if err != nil {
		return fmt.Errorf("failed to get flush-interval flag: %w", err)
	}
	watch, err := cmd.Flags().GetBool("watch")
	if err != nil {
		return fmt.Errorf("failed to get watch flag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ver := version.GetInfo()
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	store, err := initializeStorage(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	rules, err := config.RuleSet(cfg)
	if err != nil {
		return err
	}
	registry := governor.NewRegistry(rules)

	govOpts := []governor.Option{governor.WithName(cfg.Governor.Name)}
	repOpts := []reporter.Option{
		reporter.WithLogger(log),
		reporter.WithInstanceID(ver.InstanceID),
		reporter.WithSchedule(cfg.Reporting.Schedule),
	}
	if cfg.Metrics.Enabled {
		govMetrics, err := observability.NewGovernorMetrics(nil)
		if err != nil {
			return fmt.Errorf("failed to create governor metrics: %w", err)
		}
		govOpts = append(govOpts, governor.WithObserver(govMetrics))
		repOpts = append(repOpts, reporter.WithRecorder(govMetrics))
	}

	gov := governor.New(registry, govOpts...)
	agg := aggregator.New(gov)
	rep := reporter.New(gov, store, repOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("Starting metricgovernor",
		"governor", gov.Name(),
		"limiters", rules.Len(),
		"storage", cfg.Storage.Type,
	)

	if cfg.Reporting.Enabled {
		if err := rep.Start(ctx); err != nil {
			return err
		}
		defer func() {
			rep.Stop()
			// The last partial interval is reported before exit.
			if _, err := rep.Collect(context.Background()); err != nil {
				log.Error("Final status collection failed", "error", err)
			}
		}()
	}

	if watch && configPath != "" {
		watcher, err := config.NewWatcher(configPath, registry, log)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			watcher.Stop()
			return err
		}
		defer watcher.Stop()
	}

	go flushLoop(ctx, agg, flushInterval, log)

	if inputPath != "" {
		go streamInput(ctx, agg, inputPath, cmd, log)
	}

	handlers := api.NewHandlers(api.Dependencies{
		Limiters:  gov,
		Store:     store,
		Collector: collectorFor(cfg, rep),
		Submitter: agg,
		Version:   ver,
	})
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.SetupRoutes(handlers, routeOpts...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", server.Addr, "tls", cfg.Server.TLSEnabled)
		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down server")
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Metrics server forced to shutdown", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server shutdown complete", "stats", agg.Stats())
	return runErr
}

// initializeStorage creates the report store, instrumented when metrics are
// enabled.
func initializeStorage(cfg *models.Config) (storage.Storage, error) {
	store, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if !cfg.Metrics.Enabled {
		return store, nil
	}

	instrumented, err := observability.NewInstrumentedStorage(store)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create instrumented storage: %w", err)
	}
	return instrumented, nil
}

// collectorFor exposes on-demand collection only when reporting is enabled.
func collectorFor(cfg *models.Config, rep *reporter.Reporter) api.Collector {
	if !cfg.Reporting.Enabled {
		return nil
	}
	return rep
}

// flushLoop drains accepted metrics from the aggregator. Forwarding them to a
// backend is outside this service; the flush keeps the buffer bounded.
func flushLoop(ctx context.Context, agg *aggregator.Aggregator, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if flushed := agg.Flush(); len(flushed) > 0 {
				log.Debug("Flushed accepted metrics", "count", len(flushed))
			}
		}
	}
}

// streamInput governs a JSON-lines stream until it ends or ctx is cancelled.
func streamInput(ctx context.Context, agg *aggregator.Aggregator, path string, cmd *cobra.Command, log *slog.Logger) {
	input := cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			log.Error("Failed to open metric input", "path", path, "error", err)
			return
		}
		defer f.Close()
		input = f
	}

	log.Info("Reading metric input", "path", path)
	if err := replay(ctx, agg, input, log); err != nil {
		log.Error("Metric input failed", "path", path, "error", err)
		return
	}
	log.Info("Metric input finished", "path", path, "stats", agg.Stats())
}
