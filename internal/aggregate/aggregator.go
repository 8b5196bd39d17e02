package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"royaltyPool/internal/ledgerlog"
	"royaltyPool/internal/model"
	"royaltyPool/internal/storage"
)

// MetricsStore persists aggregation output. *postgres.Store satisfies it.
type MetricsStore interface {
	UpsertPools(ctx context.Context, pools []model.Pool) error
	UpsertWindowMetrics(ctx context.Context, metrics []model.PoolWindowMetrics) error
}

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	StateStore    StateStore
}

// Aggregator aggregates typed pool events into window metrics. The contract caller is optional;
// without it windows carry no reserve snapshot and decimals come from the event metadata.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	caller       ledgerlog.ContractCaller
	logger       *zap.Logger
	tokens       *ledgerlog.TokenMetaCache
	accumulators map[string]*Accumulator
	poolSeen     map[string]model.Pool
}

func NewAggregator(cfg Config, store MetricsStore, caller ledgerlog.ContractCaller, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Aggregator{
		cfg:          cfg,
		store:        store,
		caller:       caller,
		logger:       logger,
		tokens:       ledgerlog.NewTokenMetaCache(),
		accumulators: make(map[string]*Accumulator),
		poolSeen:     make(map[string]model.Pool),
	}
}

type runState struct {
	batch   []model.PoolWindowMetrics
	pools   []model.Pool
	maxTs   uint64
	total   int
	flushed int
	skipped int
	failed  int
}

// Run executes aggregation over a typed events JSONL file.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	st := &runState{
		batch: make([]model.PoolWindowMetrics, 0, a.cfg.BatchSize),
		pools: make([]model.Pool, 0, 16),
		maxTs: startTs,
	}

	err = storage.ScanJSONL(inputPath, func(line []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		st.total++

		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			st.failed++
			a.logger.Warn("decode typed event", zap.Error(err))
			return nil
		}
		if record.Timestamp <= startTs {
			st.skipped++
			return nil
		}
		return a.process(ctx, st, record)
	})
	if err != nil {
		return err
	}

	for _, acc := range a.accumulators {
		a.collect(ctx, st, acc)
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(st.batch) > 0 || len(st.pools) > 0 {
		if err := a.flushBatches(ctx, st.batch, st.pools); err != nil {
			return err
		}
	}

	a.cfg.RecomputeFrom = st.maxTs
	if err := a.saveState(ctx); err != nil {
		return err
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", st.total),
		zap.Int("windows", st.flushed),
		zap.Int("skipped", st.skipped),
		zap.Int("failed", st.failed),
	)

	return nil
}

func (a *Aggregator) process(ctx context.Context, st *runState, record model.TypedEventRecord) error {
	windowStart := windowStart(record.Timestamp, a.cfg.WindowSeconds)
	windowEnd := windowStart + a.cfg.WindowSeconds

	accKey := poolKey(record.Address)
	acc := a.accumulators[accKey]
	if acc == nil {
		acc = NewAccumulator(record, windowStart, windowEnd)
		a.accumulators[accKey] = acc
	} else if acc.WindowStart != windowStart {
		a.collect(ctx, st, acc)
		acc = NewAccumulator(record, windowStart, windowEnd)
		a.accumulators[accKey] = acc
	}

	if err := acc.AddEvent(record); err != nil {
		st.failed++
		a.logger.Warn("aggregate event", zap.Error(err), zap.String("pool", record.Address), zap.String("event", record.EventName))
		return nil
	}

	if record.Timestamp > st.maxTs {
		st.maxTs = record.Timestamp
	}

	if len(st.batch) >= a.cfg.BatchSize {
		if err := a.flushBatches(ctx, st.batch, st.pools); err != nil {
			return err
		}
		st.batch = st.batch[:0]
		st.pools = st.pools[:0]

		if err := a.saveState(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *Aggregator) collect(ctx context.Context, st *runState, acc *Accumulator) {
	metrics, pool := a.flushAccumulator(ctx, acc)
	if metrics != nil {
		st.batch = append(st.batch, *metrics)
		st.flushed++
	}
	if pool != nil {
		st.pools = append(st.pools, *pool)
	}
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

func (a *Aggregator) saveState(ctx context.Context) error {
	if a.cfg.StateStore == nil {
		return nil
	}

	if len(a.accumulators) == 0 {
		return a.cfg.StateStore.Save(ctx, a.cfg.RecomputeFrom)
	}

	safeTs := minOpenWindowStart(a.accumulators)
	if safeTs > 0 {
		safeTs = safeTs - 1
	}
	if safeTs == 0 {
		safeTs = a.cfg.RecomputeFrom
	}
	return a.cfg.StateStore.Save(ctx, safeTs)
}

func (a *Aggregator) flushBatches(ctx context.Context, batch []model.PoolWindowMetrics, pools []model.Pool) error {
	if len(pools) > 0 {
		if err := a.store.UpsertPools(ctx, pools); err != nil {
			return fmt.Errorf("upsert pools: %w", err)
		}
	}
	if len(batch) > 0 {
		if err := a.store.UpsertWindowMetrics(ctx, batch); err != nil {
			return fmt.Errorf("upsert window metrics: %w", err)
		}
	}
	return nil
}

func (a *Aggregator) flushAccumulator(ctx context.Context, acc *Accumulator) (*model.PoolWindowMetrics, *model.Pool) {
	if acc == nil {
		return nil, nil
	}

	poolMeta := acc.PoolMeta
	if poolMeta.ReserveToken.Address == "" || poolMeta.SecondaryToken.Address == "" {
		a.logger.Warn("missing pool meta", zap.String("pool", acc.PoolAddress))
		return nil, nil
	}

	poolRecord := a.registerPool(acc)

	reserveDecimals := a.tokenDecimals(ctx, poolMeta.ReserveToken)
	secondaryDecimals := a.tokenDecimals(ctx, poolMeta.SecondaryToken)

	metrics := &model.PoolWindowMetrics{
		ChainID:         acc.ChainID,
		PoolAddress:     acc.PoolAddress,
		WindowSizeSecs:  int64(a.cfg.WindowSeconds),
		WindowStart:     time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:       time.Unix(int64(acc.WindowEnd), 0).UTC(),
		DepositCount:    acc.DepositCount,
		RedeemCount:     acc.RedeemCount,
		UniqueUsers:     acc.UniqueUsers(),
		ReserveIn:       formatTokenAmount(acc.ReserveIn, reserveDecimals),
		ReserveOut:      formatTokenAmount(acc.ReserveOut, reserveDecimals),
		SecondaryMinted: formatTokenAmount(acc.SecondaryMinted, secondaryDecimals),
		SecondaryBurned: formatTokenAmount(acc.SecondaryBurned, secondaryDecimals),
		RoyaltyAccrued:  formatTokenAmount(acc.RoyaltyAccrued, reserveDecimals),
		SnapshotMethod:  snapshotMethodNone,
	}

	if a.caller != nil && acc.LastBlock > 0 {
		state, method, err := a.fetchReserveSnapshot(ctx, acc.PoolAddress, poolMeta.ReserveToken.Address, acc.LastBlock)
		if err != nil {
			a.logger.Warn("reserve snapshot failed", zap.String("pool", acc.PoolAddress), zap.Error(err))
		} else {
			metrics.Custody = formatOptional(state.Custody, reserveDecimals)
			metrics.RoyaltyBalance = formatOptional(state.RoyaltyBalance, reserveDecimals)
			metrics.AvailableReserve = formatOptional(state.AvailableReserve, reserveDecimals)
			if state.Rate != "" {
				rate := state.Rate
				metrics.Rate = &rate
			}
		}
		metrics.SnapshotMethod = method
	}

	return metrics, poolRecord
}

func (a *Aggregator) registerPool(acc *Accumulator) *model.Pool {
	key := poolKey(acc.PoolAddress)
	pool := model.Pool{
		ChainID:        acc.ChainID,
		Address:        acc.PoolAddress,
		ReserveToken:   acc.PoolMeta.ReserveToken.Address,
		SecondaryToken: acc.PoolMeta.SecondaryToken.Address,
		FirstSeenBlock: acc.FirstBlock,
	}

	existing, ok := a.poolSeen[key]
	if ok {
		if existing.FirstSeenBlock <= pool.FirstSeenBlock {
			return nil
		}
	}

	a.poolSeen[key] = pool
	return &pool
}

// tokenDecimals prefers decimals carried by the event, then the cache, then an eth_call.
func (a *Aggregator) tokenDecimals(ctx context.Context, meta model.TokenMeta) uint8 {
	if meta.Decimals > 0 {
		return meta.Decimals
	}
	if !common.IsHexAddress(meta.Address) {
		return 0
	}
	addr := common.HexToAddress(meta.Address)
	if cached, ok := a.tokens.Get(addr); ok {
		return cached.Decimals
	}
	if a.caller == nil {
		return 0
	}
	fetched, err := ledgerlog.FetchTokenMeta(ctx, a.caller, addr, a.logger)
	if err != nil {
		a.logger.Warn("token decimals", zap.String("token", meta.Address), zap.Error(err))
		return 0
	}
	a.tokens.Set(addr, fetched)
	return fetched.Decimals
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func poolKey(address string) string {
	return strings.ToLower(address)
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if min == 0 || entry.WindowStart < min {
			min = entry.WindowStart
		}
	}
	return min
}
