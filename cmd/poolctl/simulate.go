package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"royaltyPool/internal/config"
	"royaltyPool/internal/metrics"
	"royaltyPool/internal/sim"
	"royaltyPool/internal/storage"
	"royaltyPool/internal/storage/postgres"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Genesis == "" {
		return fmt.Errorf("genesis path is required")
	}
	if cfg.Ops == "" {
		return fmt.Errorf("ops path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
	}

	genesis, err := sim.LoadGenesis(cfg.Genesis)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinks := storage.MultiSink{storage.NewJsonlStorage(cfg.Out)}
	var stateStore sim.StateStore
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
		stateStore = &sim.DBStateStore{DB: store, Name: cfg.StateName}
	}
	if cfg.StateFile != "" {
		stateStore = &sim.FileStateStore{Path: cfg.StateFile}
	}

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, true)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	collector := metrics.NewCollector(metricsNamespace)
	simulator, err := sim.New(ctx, sim.Config{
		Genesis:  genesis,
		Sink:     sinks,
		Errors:   errWriter,
		Observer: collector,
		Emitter:  collector,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	if cfg.Resume && stateStore != nil {
		snap, ok, err := stateStore.Load(ctx)
		if err != nil {
			return err
		}
		if ok {
			if err := simulator.Resume(ctx, snap); err != nil {
				return err
			}
		}
	}
	pool := simulator.Ledger().Pool
	collector.SetPoolState(pool.Rate(ctx), pool.RoyaltyBalance(ctx))

	logger.Info("simulate start",
		zap.String("run_id", simulator.RunID()),
		zap.String("genesis", cfg.Genesis),
		zap.String("ops", cfg.Ops),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.String("pool", pool.Address().Hex()),
		zap.Uint64("start_seq", simulator.Seq()),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)

	summary, runErr := simulator.RunFile(ctx, cfg.Ops)

	// Persist whatever was applied, including on interrupt.
	if stateStore != nil {
		snap, err := simulator.Snapshot(context.Background())
		if err != nil {
			return err
		}
		if err := stateStore.Save(context.Background(), snap); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
	}
	if cfg.MetricsFile != "" {
		if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("write metrics failed", zap.Error(err))
		}
	}

	logger.Info("simulate complete",
		zap.Int("applied", summary.Applied),
		zap.Int("rejected", summary.Rejected),
		zap.Int("logs", summary.Logs),
		zap.Uint64("last_seq", summary.LastSeq),
		zap.String("royalty_balance", pool.RoyaltyBalance(context.Background()).String()),
	)
	return runErr
}
