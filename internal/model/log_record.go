package model

import (
	"fmt"
	"strings"
)

// Log sources.
const (
	SourceChain     = "chain"
	SourceSimulated = "sim"
)

// LogRecord is the normalized representation of a pool log for storage. Logs scanned from a
// node and logs produced by a simulation run share this shape.
type LogRecord struct {
	ChainID     uint64   `json:"chain_id"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed"`
	Timestamp   uint64   `json:"timestamp"`
	IngestedAt  string   `json:"ingested_at"`
	Source      string   `json:"source,omitempty"`
}

// Topic0 returns the event signature topic or "".
func (lr LogRecord) Topic0() string {
	if len(lr.Topics) == 0 {
		return ""
	}
	return lr.Topics[0]
}

// Key identifies the log for de-duplication.
func (lr LogRecord) Key() string {
	return fmt.Sprintf("%d:%s:%d", lr.BlockNumber, strings.ToLower(lr.TxHash), lr.LogIndex)
}
