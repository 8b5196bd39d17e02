package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"royaltyPool/internal/storage/postgres"
)

// StateStore persists the aggregation watermark: the last event timestamp whose windows are final.
type StateStore interface {
	Load(ctx context.Context) (uint64, bool, error)
	Save(ctx context.Context, ts uint64) error
}

type watermark struct {
	LastProcessed uint64 `json:"last_processed_ts"`
	UpdatedAt     string `json:"updated_at"`
}

// FileStateStore keeps one watermark per window size in a local JSON file, so runs with
// different windows can share the file.
type FileStateStore struct {
	Path          string
	WindowSeconds uint64
}

func (s *FileStateStore) key() string {
	return strconv.FormatUint(s.WindowSeconds, 10)
}

func (s *FileStateStore) read() (map[string]watermark, error) {
	marks := make(map[string]watermark)
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return marks, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, &marks); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	return marks, nil
}

func (s *FileStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.Path == "" {
		return 0, false, nil
	}
	marks, err := s.read()
	if err != nil {
		return 0, false, err
	}
	mark, ok := marks[s.key()]
	return mark.LastProcessed, ok, nil
}

func (s *FileStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.Path == "" {
		return nil
	}
	marks, err := s.read()
	if err != nil {
		return err
	}
	marks[s.key()] = watermark{LastProcessed: ts, UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano)}

	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(marks, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// WatermarkDB is the subset of the postgres store backing DBStateStore.
type WatermarkDB interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, ts uint64) error
}

var _ WatermarkDB = (*postgres.Store)(nil)

// DBStateStore keeps the watermark in indexer_state under "<name>:<window seconds>".
type DBStateStore struct {
	DB            WatermarkDB
	Name          string
	WindowSeconds uint64
}

func (s *DBStateStore) key() string {
	return fmt.Sprintf("%s:%d", s.Name, s.WindowSeconds)
}

func (s *DBStateStore) Load(ctx context.Context) (uint64, bool, error) {
	if s == nil || s.DB == nil {
		return 0, false, nil
	}
	return s.DB.LoadState(ctx, s.key())
}

func (s *DBStateStore) Save(ctx context.Context, ts uint64) error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.SaveState(ctx, s.key(), ts)
}
