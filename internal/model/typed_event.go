package model

import "strings"

// TypedEvent is a decoded TokensSwapped or TokensRedeemed log enriched with the pool's token
// metadata.
type TypedEvent struct {
	ChainID     uint64            `json:"chain_id"`
	BlockNumber uint64            `json:"block_number"`
	BlockHash   string            `json:"block_hash"`
	TxHash      string            `json:"tx_hash"`
	LogIndex    uint64            `json:"log_index"`
	Address     string            `json:"address"`
	EventName   string            `json:"event_name"`
	Timestamp   uint64            `json:"timestamp"`
	Decoded     ExchangeEventData `json:"decoded"`
	PoolMeta    PoolMeta          `json:"pool_meta"`
	Source      string            `json:"source,omitempty"`
	Raw         *RawLogRef        `json:"raw,omitempty"`
}

// IsDeposit reports whether the event records reserve flowing into the pool.
func (e TypedEvent) IsDeposit() bool {
	return e.EventName == EventTokensSwapped
}

// Key identifies the event the same way LogRecord.Key identifies its log.
func (e TypedEvent) Key() string {
	return LogRecord{BlockNumber: e.BlockNumber, TxHash: strings.ToLower(e.TxHash), LogIndex: e.LogIndex}.Key()
}

// RawLogRef keeps topic0 and data of the source log.
type RawLogRef struct {
	Topic0 string `json:"topic0"`
	Data   string `json:"data"`
}
