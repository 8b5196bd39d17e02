package indexer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Checkpoint records how far a given filter has been scanned on a given chain.
type Checkpoint struct {
	ChainID            uint64 `json:"chain_id"`
	Filter             string `json:"filter"`
	LastProcessedBlock uint64 `json:"last_processed_block"`
	UpdatedAt          string `json:"updated_at"`
}

// Matches reports whether cp was written for the same chain and filter.
func (cp Checkpoint) Matches(chainID uint64, filter string) bool {
	return cp.ChainID == chainID && cp.Filter == filter
}

// CheckpointStore persists checkpoints to disk. A disabled store never loads or saves.
type CheckpointStore struct {
	path    string
	enabled bool
}

func NewCheckpointStore(path string, enabled bool) *CheckpointStore {
	return &CheckpointStore{path: path, enabled: enabled && path != ""}
}

func (c *CheckpointStore) Load() (Checkpoint, bool, error) {
	if c == nil || !c.enabled {
		return Checkpoint{}, false, nil
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, false, nil
		}
		return Checkpoint{}, false, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("parse checkpoint: %w", err)
	}
	return cp, true, nil
}

func (c *CheckpointStore) Save(cp Checkpoint) error {
	if c == nil || !c.enabled {
		return nil
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}

	cp.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// FilterFingerprint hashes the pools, topics and users of a run, independent of order, so that a
// checkpoint is only reused for the filter that produced it.
func FilterFingerprint(addresses []common.Address, topic0 []common.Hash, users []common.Address) string {
	part := func(items [][]byte) []byte {
		sort.Slice(items, func(i, j int) bool { return bytes.Compare(items[i], items[j]) < 0 })
		return bytes.Join(items, nil)
	}
	addrBytes := make([][]byte, 0, len(addresses))
	for _, addr := range addresses {
		addrBytes = append(addrBytes, addr.Bytes())
	}
	topicBytes := make([][]byte, 0, len(topic0))
	for _, topic := range topic0 {
		topicBytes = append(topicBytes, topic.Bytes())
	}
	userBytes := make([][]byte, 0, len(users))
	for _, user := range users {
		userBytes = append(userBytes, user.Bytes())
	}
	return crypto.Keccak256Hash(part(addrBytes), []byte{0}, part(topicBytes), []byte{0}, part(userBytes)).Hex()
}
