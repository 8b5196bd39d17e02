package model

import (
	"encoding/json"
	"fmt"
)

// TypedEventRecord is the JSON representation of a TypedEvent read back for history and
// aggregation.
type TypedEventRecord struct {
	ChainID     uint64          `json:"chain_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   string          `json:"block_hash"`
	TxHash      string          `json:"tx_hash"`
	LogIndex    uint64          `json:"log_index"`
	Address     string          `json:"address"`
	EventName   string          `json:"event_name"`
	Timestamp   uint64          `json:"timestamp"`
	Decoded     json.RawMessage `json:"decoded"`
	PoolMeta    PoolMeta        `json:"pool_meta"`
	Source      string          `json:"source,omitempty"`
	Raw         *RawLogRef      `json:"raw,omitempty"`
}

// ExchangeData decodes the payload of a TokensSwapped or TokensRedeemed record.
func (r TypedEventRecord) ExchangeData() (ExchangeEventData, error) {
	switch r.EventName {
	case EventTokensSwapped, EventTokensRedeemed:
	default:
		return ExchangeEventData{}, fmt.Errorf("not an exchange event: %s", r.EventName)
	}
	var data ExchangeEventData
	if err := json.Unmarshal(r.Decoded, &data); err != nil {
		return ExchangeEventData{}, fmt.Errorf("decode %s: %w", r.EventName, err)
	}
	return data, nil
}
