package aggregate

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFileStateStorePerWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "aggregate.json")
	hourly := &FileStateStore{Path: path, WindowSeconds: 3600}
	daily := &FileStateStore{Path: path, WindowSeconds: 86400}
	ctx := context.Background()

	if _, ok, err := hourly.Load(ctx); err != nil || ok {
		t.Fatalf("expected empty state, ok=%v err=%v", ok, err)
	}
	if err := hourly.Save(ctx, 100); err != nil {
		t.Fatalf("save hourly: %v", err)
	}
	if err := daily.Save(ctx, 50); err != nil {
		t.Fatalf("save daily: %v", err)
	}

	if ts, ok, err := hourly.Load(ctx); err != nil || !ok || ts != 100 {
		t.Fatalf("hourly mismatch: %d %v %v", ts, ok, err)
	}
	if ts, ok, err := daily.Load(ctx); err != nil || !ok || ts != 50 {
		t.Fatalf("daily mismatch: %d %v %v", ts, ok, err)
	}
}

type memWatermarks map[string]uint64

func (m memWatermarks) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	ts, ok := m[name]
	return ts, ok, nil
}

func (m memWatermarks) SaveState(ctx context.Context, name string, ts uint64) error {
	m[name] = ts
	return nil
}

func TestDBStateStoreKey(t *testing.T) {
	db := memWatermarks{}
	store := &DBStateStore{DB: db, Name: "aggregate", WindowSeconds: 300}
	if err := store.Save(context.Background(), 42); err != nil {
		t.Fatalf("save: %v", err)
	}
	if db["aggregate:300"] != 42 {
		t.Fatalf("unexpected keys: %v", db)
	}

	var nilStore *DBStateStore
	if _, ok, err := nilStore.Load(context.Background()); ok || err != nil {
		t.Fatalf("nil store should load nothing")
	}
}
