package aggregate

import (
	"context"
	"encoding/json"
	"math/big"
	"path/filepath"
	"testing"

	"royaltyPool/internal/model"
	"royaltyPool/internal/storage"
)

const (
	testPool      = "0x1111111111111111111111111111111111111111"
	testReserve   = "0xaAaAaAaaAaAaAaaAaAAAAAAAAaaaAaAaAaaAaaAa"
	testSecondary = "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB"
)

type fakeMetricsStore struct {
	pools   []model.Pool
	metrics []model.PoolWindowMetrics
}

func (f *fakeMetricsStore) UpsertPools(_ context.Context, pools []model.Pool) error {
	f.pools = append(f.pools, pools...)
	return nil
}

func (f *fakeMetricsStore) UpsertWindowMetrics(_ context.Context, metrics []model.PoolWindowMetrics) error {
	f.metrics = append(f.metrics, metrics...)
	return nil
}

func exchangeRecord(t *testing.T, name string, block, ts uint64, user string, reserve, secondary, royalty int64) model.TypedEvent {
	t.Helper()
	return model.TypedEvent{
		ChainID:     1,
		BlockNumber: block,
		TxHash:      "0x01",
		Address:     testPool,
		EventName:   name,
		Timestamp:   ts,
		Decoded: model.ExchangeEventData{
			User:            user,
			ReserveAmount:   big.NewInt(reserve).String(),
			SecondaryAmount: big.NewInt(secondary).String(),
			RoyaltyAmount:   big.NewInt(royalty).String(),
		},
		PoolMeta: model.PoolMeta{
			ReserveToken:   model.TokenMeta{Address: testReserve, Decimals: 6, Symbol: "USDC"},
			SecondaryToken: model.TokenMeta{Address: testSecondary, Decimals: 6, Symbol: "BLTM"},
		},
	}
}

func writeEvents(t *testing.T, events ...model.TypedEvent) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "typed.jsonl")
	w, err := storage.NewJSONLWriter(path, false)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for _, evt := range events {
		if err := w.Write(evt); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return path
}

func toRecord(t *testing.T, evt model.TypedEvent) model.TypedEventRecord {
	t.Helper()
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var record model.TypedEventRecord
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return record
}

func TestAccumulatorDepositAndRedeem(t *testing.T) {
	alice := "0x00000000000000000000000000000000000000a1"
	bob := "0x00000000000000000000000000000000000000b2"

	deposit := toRecord(t, exchangeRecord(t, model.EventTokensSwapped, 10, 100, alice, 100, 1000, 2))
	redeem := toRecord(t, exchangeRecord(t, model.EventTokensRedeemed, 12, 120, bob, 98, 1000, 2))
	again := toRecord(t, exchangeRecord(t, model.EventTokensSwapped, 11, 110, alice, 50, 500, 1))

	acc := NewAccumulator(deposit, 0, 300)
	for _, record := range []model.TypedEventRecord{deposit, redeem, again} {
		if err := acc.AddEvent(record); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	if acc.DepositCount != 2 || acc.RedeemCount != 1 {
		t.Fatalf("counts mismatch: %d %d", acc.DepositCount, acc.RedeemCount)
	}
	if acc.ReserveIn.Int64() != 150 || acc.ReserveOut.Int64() != 98 {
		t.Fatalf("reserve mismatch: %s %s", acc.ReserveIn, acc.ReserveOut)
	}
	if acc.SecondaryMinted.Int64() != 1500 || acc.SecondaryBurned.Int64() != 1000 {
		t.Fatalf("secondary mismatch: %s %s", acc.SecondaryMinted, acc.SecondaryBurned)
	}
	if acc.RoyaltyAccrued.Int64() != 5 {
		t.Fatalf("royalty mismatch: %s", acc.RoyaltyAccrued)
	}
	if acc.UniqueUsers() != 2 {
		t.Fatalf("unique users mismatch: %d", acc.UniqueUsers())
	}
	if acc.LastBlock != 12 || acc.FirstBlock != 10 {
		t.Fatalf("block bounds mismatch: %d %d", acc.FirstBlock, acc.LastBlock)
	}
}

func TestAccumulatorRejectsBadAmounts(t *testing.T) {
	record := toRecord(t, exchangeRecord(t, model.EventTokensSwapped, 1, 1, "", 1, 1, 0))
	acc := NewAccumulator(record, 0, 60)

	bad := record
	bad.Decoded = json.RawMessage(`{"reserve_amount":"-5"}`)
	if err := acc.AddEvent(bad); err == nil {
		t.Fatalf("expected error for negative amount")
	}
	bad.Decoded = json.RawMessage(`{"reserve_amount":"abc"}`)
	if err := acc.AddEvent(bad); err == nil {
		t.Fatalf("expected error for invalid amount")
	}

	other := record
	other.EventName = "Transfer"
	if err := acc.AddEvent(other); err != nil {
		t.Fatalf("unrelated events are ignored: %v", err)
	}
	if acc.DepositCount != 0 {
		t.Fatalf("unexpected deposit count %d", acc.DepositCount)
	}
}

func TestAggregatorWindows(t *testing.T) {
	user := "0x00000000000000000000000000000000000000a1"
	path := writeEvents(t,
		exchangeRecord(t, model.EventTokensSwapped, 10, 100, user, 1_000_000, 10_000_000, 20_000),
		exchangeRecord(t, model.EventTokensRedeemed, 11, 200, user, 490_000, 5_000_000, 10_000),
		exchangeRecord(t, model.EventTokensSwapped, 20, 400, user, 2_000_000, 20_000_000, 40_000),
	)

	store := &fakeMetricsStore{}
	state := &FileStateStore{Path: filepath.Join(t.TempDir(), "state.json"), WindowSeconds: 300}
	agg := NewAggregator(Config{WindowSeconds: 300, StateStore: state}, store, nil, nil)
	if err := agg.Run(context.Background(), path); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.metrics) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(store.metrics))
	}
	first := store.metrics[0]
	if first.WindowStart.Unix() != 0 || first.WindowEnd.Unix() != 300 {
		t.Fatalf("window bounds mismatch: %v %v", first.WindowStart, first.WindowEnd)
	}
	if first.DepositCount != 1 || first.RedeemCount != 1 || first.UniqueUsers != 1 {
		t.Fatalf("counts mismatch: %+v", first)
	}
	if first.ReserveIn != "1.000000" || first.ReserveOut != "0.490000" || first.RoyaltyAccrued != "0.030000" {
		t.Fatalf("amounts mismatch: %+v", first)
	}
	if first.SecondaryMinted != "10.000000" || first.SecondaryBurned != "5.000000" {
		t.Fatalf("secondary mismatch: %+v", first)
	}
	if first.SnapshotMethod != snapshotMethodNone || first.Custody != nil {
		t.Fatalf("snapshot should be unavailable without rpc: %+v", first)
	}

	if len(store.pools) != 1 || store.pools[0].FirstSeenBlock != 10 || store.pools[0].ReserveToken != testReserve {
		t.Fatalf("pool registry mismatch: %+v", store.pools)
	}

	last, ok, err := state.Load(context.Background())
	if err != nil || !ok || last != 400 {
		t.Fatalf("state mismatch: %d %v %v", last, ok, err)
	}

	// A second run resumes after the saved timestamp and finds nothing new.
	store2 := &fakeMetricsStore{}
	agg2 := NewAggregator(Config{WindowSeconds: 300, StateStore: state}, store2, nil, nil)
	if err := agg2.Run(context.Background(), path); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(store2.metrics) != 0 {
		t.Fatalf("expected no windows on rerun, got %d", len(store2.metrics))
	}
}

func TestAggregatorRecomputeFrom(t *testing.T) {
	user := "0x00000000000000000000000000000000000000a1"
	path := writeEvents(t,
		exchangeRecord(t, model.EventTokensSwapped, 10, 100, user, 100, 1000, 2),
		exchangeRecord(t, model.EventTokensSwapped, 20, 400, user, 100, 1000, 2),
	)
	store := &fakeMetricsStore{}
	agg := NewAggregator(Config{WindowSeconds: 300, RecomputeFrom: 300}, store, nil, nil)
	if err := agg.Run(context.Background(), path); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.metrics) != 1 || store.metrics[0].WindowStart.Unix() != 300 {
		t.Fatalf("expected only the second window: %+v", store.metrics)
	}
}

func TestFormatTokenAmount(t *testing.T) {
	cases := []struct {
		value    int64
		decimals uint8
		want     string
	}{
		{1_500_000, 6, "1.500000"},
		{42, 0, "42"},
		{-5, 2, "-0.05"},
	}
	for _, tc := range cases {
		if got := formatTokenAmount(big.NewInt(tc.value), tc.decimals); got != tc.want {
			t.Fatalf("format %d/%d: got %s want %s", tc.value, tc.decimals, got, tc.want)
		}
	}
	if got := formatOptional("", 6); got != nil {
		t.Fatalf("expected nil for empty value")
	}
}
