package sim

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"royaltyPool/internal/model"
	"royaltyPool/internal/storage/postgres"
)

// StateStore persists ledger snapshots between simulation runs.
type StateStore interface {
	Load(ctx context.Context) (model.LedgerSnapshot, bool, error)
	Save(ctx context.Context, snap model.LedgerSnapshot) error
}

// FileStateStore stores the snapshot in a local JSON file.
type FileStateStore struct {
	Path string
}

func (s *FileStateStore) Load(ctx context.Context) (model.LedgerSnapshot, bool, error) {
	if s == nil || s.Path == "" {
		return model.LedgerSnapshot{}, false, nil
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.LedgerSnapshot{}, false, nil
		}
		return model.LedgerSnapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap model.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *FileStateStore) Save(ctx context.Context, snap model.LedgerSnapshot) error {
	if s == nil || s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// SnapshotDB is the subset of the postgres store used for ledger snapshots.
type SnapshotDB interface {
	LoadSnapshot(ctx context.Context, name string) ([]byte, bool, error)
	SaveSnapshot(ctx context.Context, name string, data []byte) error
}

var _ SnapshotDB = (*postgres.Store)(nil)

// DBStateStore stores the snapshot in the ledger_snapshots table.
type DBStateStore struct {
	DB   SnapshotDB
	Name string
}

func (s *DBStateStore) Load(ctx context.Context) (model.LedgerSnapshot, bool, error) {
	if s == nil || s.DB == nil {
		return model.LedgerSnapshot{}, false, nil
	}
	data, ok, err := s.DB.LoadSnapshot(ctx, s.Name)
	if err != nil || !ok {
		return model.LedgerSnapshot{}, false, err
	}
	var snap model.LedgerSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return model.LedgerSnapshot{}, false, fmt.Errorf("parse snapshot %s: %w", s.Name, err)
	}
	return snap, true, nil
}

func (s *DBStateStore) Save(ctx context.Context, snap model.LedgerSnapshot) error {
	if s == nil || s.DB == nil {
		return nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.DB.SaveSnapshot(ctx, s.Name, data)
}
