package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonwraymond/failguard/internal/probe"
	"github.com/jonwraymond/failguard/observe"
	"github.com/jonwraymond/failguard/resilience"
)

const shutdownTimeout = 5 * time.Second

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Probe an HTTP target and serve health, stats and metrics",
		Long: `probe fetches --target every --interval through the selected policy
bundle and serves /healthz, /readyz, /health, /stats and /metrics on --listen.

Flags default to FAILGUARD_PROBE_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: runProbe,
	}

	// Environment values become the flag defaults; errors surface in RunE.
	env, _ := probe.ConfigFromEnv()
	if env.Bundle == "" {
		env.Bundle = "http"
	}
	if env.Interval <= 0 {
		env.Interval = 10 * time.Second
	}
	if env.Listen == "" {
		env.Listen = ":9090"
	}

	cmd.Flags().StringP("config", "c", env.BundlesFile, "Path to a bundle file")
	cmd.Flags().StringP("target", "t", env.Target, "URL to probe")
	cmd.Flags().StringP("bundle", "b", env.Bundle, "Bundle name or preset (http, file_io, database, external_api)")
	cmd.Flags().Duration("interval", env.Interval, "Time between probes")
	cmd.Flags().String("listen", env.Listen, "Address of the health and metrics server")
	return cmd
}

func probeConfig(cmd *cobra.Command) (probe.Config, error) {
	if _, err := probe.ConfigFromEnv(); err != nil {
		return probe.Config{}, err
	}

	var cfg probe.Config
	var err error
	flags := cmd.Flags()
	if cfg.BundlesFile, err = flags.GetString("config"); err != nil {
		return cfg, err
	}
	if cfg.Target, err = flags.GetString("target"); err != nil {
		return cfg, err
	}
	if cfg.Bundle, err = flags.GetString("bundle"); err != nil {
		return cfg, err
	}
	if cfg.Interval, err = flags.GetDuration("interval"); err != nil {
		return cfg, err
	}
	if cfg.Listen, err = flags.GetString("listen"); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func observeConfig(cmd *cobra.Command) (observe.Config, error) {
	cfg, err := observe.ConfigFromEnv()
	if err != nil {
		return cfg, err
	}

	level, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return cfg, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	if cmd.Flags().Changed("log-level") || os.Getenv(observe.EnvPrefix+"_LOG_LEVEL") == "" {
		cfg.Logging.Level = level
	}

	// /metrics is always served; export through Prometheus unless another
	// exporter was chosen.
	if !cfg.Metrics.Enabled || cfg.Metrics.Exporter == "" || cfg.Metrics.Exporter == "none" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Exporter = "prometheus"
	}
	return cfg, cfg.Validate()
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := probeConfig(cmd)
	if err != nil {
		return err
	}
	obsCfg, err := observeConfig(cmd)
	if err != nil {
		return err
	}
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observe.NewObserver(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = obs.Shutdown(sctx)
	}()
	logger := obs.Logger()

	engine := resilience.NewEngine(resilience.WithObserver(obs))
	runner, err := probe.NewRunner(engine, policy, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           probe.NewHandler(engine, runner, probe.NewAggregator(engine, policy, runner), prometheus.DefaultGatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info(ctx, "serving health and metrics", observe.Field{Key: "listen", Value: cfg.Listen})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return runner.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	return g.Wait()
}
