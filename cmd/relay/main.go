// Command relay runs a guild relay node: it serves the relay endpoints on the
// configured bus and exposes health and metrics over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/drblury/guildrelay/internal/runtime"
	"github.com/drblury/guildrelay/internal/runtime/backend"
	configpkg "github.com/drblury/guildrelay/internal/runtime/config"
	"github.com/drblury/guildrelay/internal/runtime/endpoints"
	"github.com/drblury/guildrelay/internal/runtime/gateway"
	"github.com/drblury/guildrelay/internal/runtime/jobs"
	loggingpkg "github.com/drblury/guildrelay/internal/runtime/logging"
	"github.com/drblury/guildrelay/internal/runtime/progress"
	"github.com/drblury/guildrelay/internal/runtime/progress/etcdstore"
	"github.com/drblury/guildrelay/internal/runtime/progress/natskv"
	"github.com/drblury/guildrelay/internal/runtime/tasks"
	"github.com/drblury/guildrelay/transport"
	_ "github.com/drblury/guildrelay/transport/transports"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "relay:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("relay", pflag.ExitOnError)
	flags := configpkg.NewFlags(fs)
	snapshot := fs.String("snapshot", "", "YAML guild snapshot to seed the cache with")
	_ = fs.Parse(os.Args[1:])

	cfg, err := configpkg.LoadWithFlags(flags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	zl, err := loggingpkg.NewZap(cfg.LogLevel, zap.String("node", cfg.Hostname), zap.String("release", cfg.Release))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := loggingpkg.NewZapServiceLogger(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openProgressStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	ledger := progress.NewLedger(store, cfg.ProgressTTL)

	var metrics *runtime.Metrics
	if cfg.MetricsEnabled {
		metrics = runtime.NewMetrics(prometheus.DefaultRegisterer)
	}
	// Detached from ctx: Shutdown decides when tasks are cancelled.
	group := tasks.NewGroup(context.Background(), logger, metrics.TaskHooks())
	engine := jobs.NewEngine(ledger, logger, jobs.WithDelay(cfg.ChunkDelay), jobs.WithHooks(metrics.JobHooks()))

	cache := gateway.NewCache()
	if *snapshot != "" {
		n, err := cache.LoadSnapshot(*snapshot)
		if err != nil {
			return err
		}
		logger.Info("Loaded guild snapshot", loggingpkg.LogFields{"path": *snapshot, "guilds": n})
	}
	logger.Info("Shard assignment", loggingpkg.LogFields{
		"node_id": cfg.NodeID(),
		"shards":  gateway.ShardRange(cfg.NodeID(), cfg.ShardsPerNode, cfg.ShardCount),
	})

	client := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Auth:    cfg.BackendAuth,
		Timeout: cfg.BackendTimeout,
	})

	registry, err := runtime.Discover(logger, endpoints.Registrations(endpoints.Deps{
		State:   cache,
		Backend: client,
		Ledger:  ledger,
		Engine:  engine,
		Tasks:   group,
		NodeID:  cfg.NodeID(),
		Cache:   cache,
		Release: cfg.Release,
	})...)
	if err != nil {
		return err
	}

	tr, err := transport.Build(ctx, cfg, loggingpkg.NewWatermillAdapter(logger))
	if err != nil {
		return fmt.Errorf("build %s transport: %w", cfg.PubSubSystem, err)
	}
	if caps := transport.GetCapabilities(cfg.PubSubSystem); !caps.SupportsBroadcast {
		logger.Warn("Transport does not broadcast, requests are split between nodes", loggingpkg.LogFields{"pubsub_system": caps.Name})
	}
	defer func() {
		if err := tr.Close(); err != nil {
			logger.Error("Failed to close transport", err, nil)
		}
	}()

	svc, err := runtime.NewService(ctx, cfg, logger, tr, registry, runtime.ServiceDependencies{
		Tasks:      group,
		Metrics:    metrics,
		Registerer: prometheus.DefaultRegisterer,
		Hooks:      runtime.LoggingHooks(logger),
	})
	if err != nil {
		return err
	}

	httpServer := runtime.NewHTTPServer(svc, prometheus.DefaultGatherer)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error("HTTP server stopped", err, nil)
			stop()
		}
	}()

	runErr := svc.Run(ctx)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", err, nil)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Error("Tasks did not stop in time", err, nil)
	}
	logger.Info("Relay stopped", nil)
	return runErr
}

func openProgressStore(cfg *configpkg.Config, logger loggingpkg.ServiceLogger) (progress.Store, error) {
	switch cfg.ProgressStore {
	case configpkg.ProgressStoreMemory, "":
		return progress.NewMemoryStore(), nil
	case configpkg.ProgressStoreNATS:
		return natskv.Open(natskv.Config{
			URL:    cfg.NATSURL,
			Bucket: cfg.NATSKVBucket,
			TTL:    cfg.ProgressTTL,
			Name:   cfg.Hostname + "-progress",
		}, logger)
	case configpkg.ProgressStoreEtcd:
		return etcdstore.Open(etcdstore.Config{
			Endpoints: cfg.EtcdEndpoints,
			OpTimeout: cfg.EtcdTimeout,
		})
	default:
		return nil, errors.New("unknown progress store " + cfg.ProgressStore)
	}
}
