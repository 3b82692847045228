// Command recodex-worker is the evaluation worker daemon: it connects to
// the broker, waits for "eval" dispatches, and drives each one through the
// download/build/run/upload pipeline. Grounded on
// original_source/src/worker.cpp's main loop and
// services/orchestrator/main.go's startup/shutdown shape (signal-driven
// context, OTel init, an optional promhttp mount).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/recodex/worker/internal/broker"
	"github.com/recodex/worker/internal/cache"
	"github.com/recodex/worker/internal/config"
	"github.com/recodex/worker/internal/evaluator"
	"github.com/recodex/worker/internal/fetcher"
	"github.com/recodex/worker/internal/logging"
	"github.com/recodex/worker/internal/otelinit"
	"github.com/recodex/worker/internal/progress"
	"github.com/recodex/worker/internal/receiver"
	"github.com/recodex/worker/internal/sandbox"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:           "recodex-worker",
		Short:         "Evaluation worker for the ReCodEx grading broker",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "/etc/recodex/worker-config.yml", "path to worker-config.yml")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /health and /metrics on")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func serve(configPath, metricsAddr string) error {
	cfg, err := config.LoadWorkerConfig(configPath)
	if err != nil {
		return fmt.Errorf("load worker config: %w", err)
	}

	service := fmt.Sprintf("recodex-worker-%d", cfg.WorkerID)
	logger := logging.Init(service)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTrace := otelinit.InitTracer(ctx, service)
	shutdownMetrics, _ := otelinit.InitMetrics(ctx, service)
	defer otelinit.Flush(context.Background(), shutdownTrace)
	defer otelinit.Flush(context.Background(), shutdownMetrics)

	c, err := cache.New(ctx, cfg.FileCache.CacheDir)
	if err != nil {
		return fmt.Errorf("open file cache: %w", err)
	}

	var auths []fetcher.BasicAuth
	for _, fm := range cfg.FileManagers {
		auths = append(auths, fetcher.BasicAuth{
			URLPrefix: fm.Hostname,
			Username:  fm.Username,
			Password:  fm.Password,
		})
	}
	f := fetcher.New(c, auths)

	executor := sandbox.NewIsolate("", cfg.WorkingDirectory)

	prog := make(chan broker.ProgressMsg, 64)
	emitter := progress.New(prog, logger)
	eval := evaluator.New(cfg, f, executor, logger, emitter)

	brokerCfg := broker.Config{
		WorkerID:     cfg.WorkerID,
		BrokerURI:    cfg.BrokerURI,
		HWGroup:      cfg.HWGroup,
		Headers:      cfg.Headers.Pairs(),
		Description:  cfg.WorkerDescription,
		PingInterval: cfg.BrokerPingInterval,
		MaxLiveness:  cfg.MaxBrokerLiveness,
	}
	conn, err := broker.Connect(brokerCfg, logger)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	defer conn.Close()

	jobs := make(chan broker.EvalMsg, 1)
	done := make(chan broker.DoneMsg, 1)

	go receiver.Run(ctx, eval, jobs, done, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker ready", "worker_id", cfg.WorkerID, "hwgroup", cfg.HWGroup, "broker_uri", cfg.BrokerURI)

	if err := conn.Run(ctx, jobs, done, prog); err != nil && ctx.Err() == nil {
		return fmt.Errorf("broker connection: %w", err)
	}

	logger.Info("worker shutting down")
	return nil
}
