package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"wormchat/internal/devserver"
	"wormchat/internal/logging"
)

var (
	stubAddr   string
	stubAPIKey string
)

var stubBackendCmd = &cobra.Command{
	Use:   "stub-backend",
	Short: "Run a local stub of the PostWormAPI backend",
	Long: `Serves POST /api/PostWormAPI with the same contract as the real backend,
answering every message with a markdown echo. Useful for trying the client
without an AI service.

  wormchat stub-backend --addr 127.0.0.1:7071
  wormchat --api-base-url http://127.0.0.1:7071

Also serves GET /healthz and GET /metrics.`,
	Args: cobra.NoArgs,
	RunE: runStubBackend,
}

func init() {
	stubBackendCmd.Flags().StringVar(&stubAddr, "addr", "", "Listen address (default: StubBackend.Addr from config)")
	stubBackendCmd.Flags().StringVar(&stubAPIKey, "require-key", "", "Reject requests without this x-functions-key")
}

func runStubBackend(cmd *cobra.Command, args []string) error {
	addr := cfg.StubBackend.Addr
	if stubAddr != "" {
		addr = stubAddr
	}
	key := cfg.StubBackend.APIKey
	if stubAPIKey != "" {
		key = stubAPIKey
	}

	// The stub owns the terminal, so it logs to stderr.
	zc := zap.NewProductionConfig()
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := devserver.New(devserver.Config{
		APIKey:   key,
		Logger:   logger,
		Registry: reg,
	})

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, addr)
	})
	g.Go(func() error {
		if err := waitHealthy(gctx, "http://"+addr); err != nil {
			return nil
		}
		logger.Info("stub backend ready",
			zap.String("api_base_url", "http://"+addr),
			zap.Bool("requires_key", key != ""))
		logging.Server("stub backend ready", zap.String("addr", addr))
		return nil
	})

	return g.Wait()
}

// waitHealthy polls /healthz until it answers 200 or ctx ends.
func waitHealthy(ctx context.Context, base string) error {
	client := resty.New().SetBaseURL(base).SetTimeout(time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		resp, err := client.R().SetContext(ctx).Get("/healthz")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
