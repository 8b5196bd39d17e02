package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"royaltyPool/internal/chain"
	"royaltyPool/internal/storage"
)

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock         uint64
	ToBlock           uint64
	Addresses         []common.Address
	Topic0            []common.Hash
	Users             []common.Address
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// BatchObserver is notified after every stored batch.
type BatchObserver interface {
	ObserveIndexedLogs(count int, lastBlock uint64)
}

// Runner streams pool logs from the chain and writes them to storage.
type Runner struct {
	cfg        RunConfig
	chain      chain.LogSource
	storage    storage.LogSink
	logger     *zap.Logger
	observer   BatchObserver
	retry      retryPolicy
	seen       map[string]struct{}
	checkpoint *CheckpointStore
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, source chain.LogSource, sink storage.LogSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      source,
		storage:    sink,
		logger:     logger,
		retry:      newRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff),
		seen:       make(map[string]struct{}),
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// SetObserver installs an optional batch observer.
func (r *Runner) SetObserver(observer BatchObserver) {
	r.observer = observer
}

// Run executes the indexing loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.storage == nil {
		return fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if len(r.cfg.Addresses) == 0 {
		return fmt.Errorf("at least one pool address is required")
	}

	chainID, err := r.chain.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}
	if !chainID.IsUint64() {
		return fmt.Errorf("chain id does not fit in uint64: %s", chainID)
	}
	chainIDValue := chainID.Uint64()
	filter := FilterFingerprint(r.cfg.Addresses, r.cfg.Topic0, r.cfg.Users)

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		latest, err := r.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	cp, ok, err := r.checkpoint.Load()
	if err != nil {
		return err
	}
	switch {
	case !ok:
	case !cp.Matches(chainIDValue, filter):
		r.logger.Warn("checkpoint ignored, filter or chain changed",
			zap.Uint64("checkpoint_chain_id", cp.ChainID),
			zap.Uint64("chain_id", chainIDValue),
			zap.Uint64("last_processed", cp.LastProcessedBlock),
		)
	case cp.LastProcessedBlock >= from:
		from = cp.LastProcessedBlock + 1
		r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", cp.LastProcessedBlock), zap.Uint64("from", from))
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return nil
	}

	cursor, err := newRangeCursor(from, to, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for blockRange, more := cursor.Next(); more; blockRange, more = cursor.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.logger.Info("fetch logs",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Uint64("remaining", cursor.Remaining()),
		)

		logs, err := r.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
		if err != nil {
			return fmt.Errorf("filter logs: %w", err)
		}

		records, err := r.buildRecords(ctx, chainIDValue, logs)
		if err != nil {
			return err
		}
		if err := r.storage.PutLogBatch(ctx, records); err != nil {
			return fmt.Errorf("store logs: %w", err)
		}

		if err := r.checkpoint.Save(Checkpoint{ChainID: chainIDValue, Filter: filter, LastProcessedBlock: blockRange.To}); err != nil {
			return err
		}
		if r.observer != nil {
			r.observer.ObserveIndexedLogs(len(records), blockRange.To)
		}

		r.logger.Info("batch complete", zap.Int("logs", len(records)), zap.Uint64("from", blockRange.From), zap.Uint64("to", blockRange.To))
	}

	return nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	filter := chain.LogFilter{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Addresses: r.cfg.Addresses,
		Topic0:    r.cfg.Topic0,
		Users:     r.cfg.Users,
	}
	var logs []types.Log
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, filter)
		return err
	}, func(attempt int, err error) {
		r.logger.Warn("filter logs failed", zap.Error(err), zap.Int("attempt", attempt), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.retry.do(ctx, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		return err
	}, func(attempt int, err error) {
		r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Int("attempt", attempt), zap.Uint64("block_number", blockNumber))
	})
	return ts, err
}
