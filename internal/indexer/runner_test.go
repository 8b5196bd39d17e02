package indexer

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"royaltyPool/internal/chain"
	"royaltyPool/internal/model"
)

type fakeSource struct {
	chainID    int64
	latest     uint64
	logs       []types.Log
	filters    []chain.LogFilter
	tsCalls    map[uint64]int
	failFilter int
}

func (f *fakeSource) GetChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(f.chainID), nil
}

func (f *fakeSource) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeSource) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	if f.tsCalls == nil {
		f.tsCalls = make(map[uint64]int)
	}
	f.tsCalls[number]++
	return 1_700_000_000 + number, nil
}

func (f *fakeSource) FilterLogs(ctx context.Context, filter chain.LogFilter) ([]types.Log, error) {
	if f.failFilter > 0 {
		f.failFilter--
		return nil, errors.New("rpc unavailable")
	}
	f.filters = append(f.filters, filter)
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= filter.FromBlock && log.BlockNumber <= filter.ToBlock {
			out = append(out, log)
		}
	}
	return out, nil
}

type memSink struct {
	batches [][]model.LogRecord
}

func (s *memSink) PutLogBatch(ctx context.Context, logs []model.LogRecord) error {
	s.batches = append(s.batches, logs)
	return nil
}

func (s *memSink) all() []model.LogRecord {
	var out []model.LogRecord
	for _, batch := range s.batches {
		out = append(out, batch...)
	}
	return out
}

type countingObserver struct {
	logs      int
	lastBlock uint64
}

func (o *countingObserver) ObserveIndexedLogs(count int, lastBlock uint64) {
	o.logs += count
	o.lastBlock = lastBlock
}

var testPool = common.HexToAddress("0x00000000000000000000000000000000000000c2")

func poolLog(block uint64, index uint, tx byte, removed bool) types.Log {
	return types.Log{
		Address:     testPool,
		Topics:      []common.Hash{common.HexToHash("0x01")},
		Data:        []byte{0x2a},
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{tx}),
		Index:       index,
		Removed:     removed,
	}
}

func baseConfig() RunConfig {
	return RunConfig{
		FromBlock:    10,
		ToBlock:      19,
		Addresses:    []common.Address{testPool},
		BatchSize:    4,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
}

func TestRunnerStoresLogs(t *testing.T) {
	source := &fakeSource{
		chainID: 31337,
		logs: []types.Log{
			poolLog(10, 0, 1, false),
			poolLog(10, 1, 1, false),
			poolLog(12, 0, 2, true),
			poolLog(15, 0, 3, false),
			poolLog(15, 0, 3, false),
		},
	}
	sink := &memSink{}
	observer := &countingObserver{}
	runner := NewRunner(baseConfig(), source, sink, nil)
	runner.SetObserver(observer)

	if err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(source.filters) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(source.filters))
	}
	if last := source.filters[2]; last.FromBlock != 18 || last.ToBlock != 19 {
		t.Fatalf("unexpected last batch: %+v", last)
	}

	records := sink.all()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, record := range records {
		if record.Removed {
			t.Fatalf("removed log stored: %+v", record)
		}
		if record.ChainID != 31337 || record.Source != model.SourceChain {
			t.Fatalf("unexpected record: %+v", record)
		}
		if record.Timestamp != 1_700_000_000+record.BlockNumber {
			t.Fatalf("timestamp mismatch: %+v", record)
		}
	}
	if source.tsCalls[10] != 1 {
		t.Fatalf("expected one timestamp fetch for block 10, got %d", source.tsCalls[10])
	}
	if observer.logs != 3 || observer.lastBlock != 19 {
		t.Fatalf("observer mismatch: %+v", observer)
	}
}

func TestRunnerLatestBlock(t *testing.T) {
	source := &fakeSource{chainID: 1, latest: 11}
	cfg := baseConfig()
	cfg.ToBlock = 0
	if err := NewRunner(cfg, source, &memSink{}, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(source.filters) != 1 || source.filters[0].ToBlock != 11 {
		t.Fatalf("unexpected filters: %+v", source.filters)
	}
}

func TestRunnerRetriesFilterLogs(t *testing.T) {
	source := &fakeSource{chainID: 1, failFilter: 2, logs: []types.Log{poolLog(10, 0, 1, false)}}
	sink := &memSink{}
	cfg := baseConfig()
	cfg.ToBlock = 10
	if err := NewRunner(cfg, source, sink, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(sink.all()) != 1 {
		t.Fatalf("expected 1 record after retries")
	}

	source = &fakeSource{chainID: 1, failFilter: 5}
	if err := NewRunner(cfg, source, &memSink{}, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error once retries are exhausted")
	}
}

func TestRunnerCheckpointResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	cfg := baseConfig()
	cfg.CheckpointPath = path
	cfg.CheckpointEnabled = true

	source := &fakeSource{chainID: 5}
	if err := NewRunner(cfg, source, &memSink{}, nil).Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	cp, ok, err := NewCheckpointStore(path, true).Load()
	if err != nil || !ok {
		t.Fatalf("load checkpoint: ok=%v err=%v", ok, err)
	}
	if cp.LastProcessedBlock != 19 || cp.ChainID != 5 || cp.UpdatedAt == "" {
		t.Fatalf("unexpected checkpoint: %+v", cp)
	}

	cfg.ToBlock = 25
	source = &fakeSource{chainID: 5}
	if err := NewRunner(cfg, source, &memSink{}, nil).Run(context.Background()); err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if len(source.filters) == 0 || source.filters[0].FromBlock != 20 {
		t.Fatalf("expected resume from 20, got %+v", source.filters)
	}

	cfg.Addresses = append(cfg.Addresses, common.HexToAddress("0x00000000000000000000000000000000000000c3"))
	source = &fakeSource{chainID: 5}
	if err := NewRunner(cfg, source, &memSink{}, nil).Run(context.Background()); err != nil {
		t.Fatalf("changed filter run: %v", err)
	}
	if source.filters[0].FromBlock != 10 {
		t.Fatalf("expected restart from 10 after filter change, got %d", source.filters[0].FromBlock)
	}
}

func TestRunnerNothingToSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	store := NewCheckpointStore(path, true)
	cfg := baseConfig()
	filter := FilterFingerprint(cfg.Addresses, cfg.Topic0, cfg.Users)
	if err := store.Save(Checkpoint{ChainID: 1, Filter: filter, LastProcessedBlock: 30}); err != nil {
		t.Fatalf("save: %v", err)
	}
	cfg.CheckpointPath = path
	cfg.CheckpointEnabled = true

	source := &fakeSource{chainID: 1}
	if err := NewRunner(cfg, source, &memSink{}, nil).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(source.filters) != 0 {
		t.Fatalf("expected no fetches, got %d", len(source.filters))
	}
}

func TestRunnerValidation(t *testing.T) {
	cfg := baseConfig()
	cfg.Addresses = nil
	if err := NewRunner(cfg, &fakeSource{}, &memSink{}, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error without pool addresses")
	}
	cfg = baseConfig()
	cfg.BatchSize = 0
	if err := NewRunner(cfg, &fakeSource{}, &memSink{}, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
	if err := NewRunner(baseConfig(), nil, &memSink{}, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error for nil chain")
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRunner(baseConfig(), &fakeSource{chainID: 1}, &memSink{}, nil).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
