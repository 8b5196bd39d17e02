package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"royaltyPool/internal/chain"
	"royaltyPool/internal/config"
	"royaltyPool/internal/indexer"
	"royaltyPool/internal/ledgerlog"
	"royaltyPool/internal/metrics"
	"royaltyPool/internal/model"
	"royaltyPool/internal/storage"
	"royaltyPool/internal/storage/postgres"
)

const metricsNamespace = "royalty_pool"

func main() {
	root := &cobra.Command{
		Use:          "poolctl",
		Short:        "Royalty exchange pool simulator and log tooling",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Apply an operations script to a simulated pool",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("genesis", "", "genesis YAML path")
	simulateCmd.Flags().String("ops", "", "operations JSONL path")
	simulateCmd.Flags().String("out", "./data/logs.jsonl", "output logs JSONL (appended)")
	simulateCmd.Flags().String("errors", "./data/op_errors.jsonl", "rejected operations JSONL")
	simulateCmd.Flags().String("state-file", "", "ledger snapshot file (defaults to Postgres when --pg-dsn is set)")
	simulateCmd.Flags().String("state-name", "ledger", "snapshot name in Postgres")
	simulateCmd.Flags().String("pg-dsn", "", "Postgres DSN for logs and snapshots")
	simulateCmd.Flags().Bool("resume", true, "resume from the stored snapshot when present")
	simulateCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(simulateCmd)

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Index pool logs from an RPC node",
		RunE:  runIndex,
	}

	indexCmd.Flags().String("rpc", "", "RPC URL")
	indexCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	indexCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	indexCmd.Flags().StringSlice("pool", nil, "pool addresses (comma-separated)")
	indexCmd.Flags().StringSlice("user", nil, "only logs for these users (comma-separated)")
	indexCmd.Flags().StringSlice("event", nil, "event names or topic0 hashes, default TokensSwapped,TokensRedeemed")
	indexCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	indexCmd.Flags().String("out", "./data/logs.jsonl", "output JSONL path")
	indexCmd.Flags().String("pg-dsn", "", "also write logs to Postgres")
	indexCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	indexCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	indexCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	indexCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	indexCmd.Flags().String("metrics-file", "", "write Prometheus metrics to this textfile")
	indexCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(indexCmd)

	decodeCmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw logs into typed events",
		RunE:  runDecode,
	}

	decodeCmd.Flags().String("rpc", "", "RPC URL, required for pools not described by --genesis")
	decodeCmd.Flags().String("genesis", "", "genesis YAML describing a simulated pool")
	decodeCmd.Flags().String("in", "", "input raw logs JSONL")
	decodeCmd.Flags().String("out", "./data/typed_events.jsonl", "output typed events JSONL")
	decodeCmd.Flags().String("errors", "./data/decode_errors.jsonl", "decode errors JSONL")
	decodeCmd.Flags().String("topic0-map", "", "extra topic0->event mappings (comma-separated key=value)")
	decodeCmd.Flags().Bool("include-live-meta", false, "include rate/royalty/reserve state (requires archive RPC for historical accuracy)")
	decodeCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(decodeCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List deposits and withdrawals, newest first",
		RunE:  runHistory,
	}

	historyCmd.Flags().String("in", "./data/typed_events.jsonl", "input typed events JSONL")
	historyCmd.Flags().String("user", "", "only this user")
	historyCmd.Flags().Int("limit", 0, "maximum rows, 0 means all")
	historyCmd.Flags().String("out", "", "output JSONL path, stdout when empty")
	historyCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(historyCmd)

	aggregateCmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Aggregate typed events into window metrics",
		RunE:  runAggregate,
	}

	aggregateCmd.Flags().String("rpc", "", "RPC URL for reserve snapshots (optional)")
	aggregateCmd.Flags().String("in", "", "input typed events JSONL")
	aggregateCmd.Flags().String("window", "5m", "aggregation window (e.g. 1m, 5m, 1h)")
	aggregateCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	aggregateCmd.Flags().Int("batch-size", 1000, "batch size for DB writes")
	aggregateCmd.Flags().String("state-file", "", "optional local state file for progress tracking")
	aggregateCmd.Flags().String("state-name", "aggregate", "state row name prefix in Postgres")
	aggregateCmd.Flags().String("recompute-from", "", "recompute from timestamp (unix seconds or RFC3339)")
	aggregateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(aggregateCmd)

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Read a deployed pool's state over RPC",
		RunE:  runInspect,
	}

	inspectCmd.Flags().String("rpc", "", "RPC URL")
	inspectCmd.Flags().String("pool", "", "pool address")
	inspectCmd.Flags().String("user", "", "also report balances and allowances of this user")
	inspectCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	inspectCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(inspectCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIndex(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadIndex(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	pools, err := indexer.ParseAddresses(cfg.Pools)
	if err != nil {
		return err
	}
	if len(pools) == 0 {
		return fmt.Errorf("pool address list is required")
	}
	users, err := indexer.ParseAddresses(cfg.Users)
	if err != nil {
		return err
	}

	eventNames := cfg.Events
	if len(eventNames) == 0 {
		eventNames = []string{model.EventTokensSwapped, model.EventTokensRedeemed}
	}
	topic0, err := indexer.ParseEventTopics(eventNames, ledgerlog.EventTopic)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	sinks := storage.MultiSink{storage.NewJsonlStorage(cfg.Out)}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Addresses:         pools,
		Topic0:            topic0,
		Users:             users,
		BatchSize:         cfg.BatchSize,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, sinks, logger)

	var collector *metrics.Collector
	if cfg.MetricsFile != "" {
		collector = metrics.NewCollector(metricsNamespace)
		runner.SetObserver(collector)
	}

	logger.Info("index start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("pools", len(pools)),
		zap.Int("users", len(users)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	runErr := runner.Run(ctx)
	if collector != nil {
		if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("write metrics failed", zap.Error(err))
		}
	}
	return runErr
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	return "***"
}
