package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"royaltyPool/internal/model"
)

// buildRecords drops removed and already-seen logs and stamps the rest with their block time.
// Timestamps are fetched once per block.
func (r *Runner) buildRecords(ctx context.Context, chainID uint64, logs []types.Log) ([]model.LogRecord, error) {
	ingestedAt := time.Now().UTC()
	timestamps := make(map[uint64]uint64)
	records := make([]model.LogRecord, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		ts, ok := timestamps[log.BlockNumber]
		if !ok {
			var err error
			ts, err = r.blockTimestampWithRetry(ctx, log.BlockNumber)
			if err != nil {
				return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			timestamps[log.BlockNumber] = ts
		}
		record := toLogRecord(chainID, log, ts, ingestedAt)
		if r.isDuplicate(record) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (r *Runner) isDuplicate(record model.LogRecord) bool {
	id := record.Key()
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}

// toLogRecord normalizes a node log into a chain-sourced LogRecord.
func toLogRecord(chainID uint64, log types.Log, timestamp uint64, ingestedAt time.Time) model.LogRecord {
	topics := make([]string, len(log.Topics))
	for i, topic := range log.Topics {
		topics[i] = topic.Hex()
	}
	return model.LogRecord{
		ChainID:     chainID,
		BlockNumber: log.BlockNumber,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		TxIndex:     uint64(log.TxIndex),
		LogIndex:    uint64(log.Index),
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
		Timestamp:   timestamp,
		IngestedAt:  ingestedAt.UTC().Format(time.RFC3339Nano),
		Source:      model.SourceChain,
	}
}
