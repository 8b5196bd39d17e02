package history

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"royaltyPool/internal/model"
	"royaltyPool/internal/storage"
)

// Options filter and bound a history listing. An empty User keeps every user.
type Options struct {
	User  string
	Limit int
}

// FromRecord converts a decoded pool event into a transaction row. ok is false for events that
// are not swaps.
func FromRecord(record model.TypedEventRecord) (tx model.Transaction, ok bool, err error) {
	var kind string
	switch record.EventName {
	case model.EventTokensSwapped:
		kind = model.TransactionDeposit
	case model.EventTokensRedeemed:
		kind = model.TransactionWithdraw
	default:
		return model.Transaction{}, false, nil
	}

	data, err := record.ExchangeData()
	if err != nil {
		return model.Transaction{}, false, err
	}

	reserveLabel := record.PoolMeta.ReserveToken.Label()
	secondaryLabel := record.PoolMeta.SecondaryToken.Label()

	tx = model.Transaction{
		Type:        kind,
		User:        data.User,
		Pool:        record.Address,
		Royalty:     data.RoyaltyAmount,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Timestamp:   record.Timestamp,
	}
	if kind == model.TransactionDeposit {
		tx.Given, tx.GivenToken = data.ReserveAmount, reserveLabel
		tx.Received, tx.ReceivedToken = data.SecondaryAmount, secondaryLabel
	} else {
		tx.Given, tx.GivenToken = data.SecondaryAmount, secondaryLabel
		tx.Received, tx.ReceivedToken = data.ReserveAmount, reserveLabel
	}
	return tx, true, nil
}

// Build returns the transactions in records matching opts, newest first.
func Build(records []model.TypedEventRecord, opts Options) ([]model.Transaction, error) {
	user := strings.ToLower(strings.TrimSpace(opts.User))
	out := make([]model.Transaction, 0, len(records))
	for _, record := range records {
		tx, ok, err := FromRecord(record)
		if err != nil {
			return nil, fmt.Errorf("block %d log %d: %w", record.BlockNumber, record.LogIndex, err)
		}
		if !ok {
			continue
		}
		if user != "" && strings.ToLower(tx.User) != user {
			continue
		}
		out = append(out, tx)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Timestamp != b.Timestamp {
			return a.Timestamp > b.Timestamp
		}
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber > b.BlockNumber
		}
		return a.LogIndex > b.LogIndex
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Load reads typed events from a JSONL file and builds the history.
func Load(path string, opts Options) ([]model.Transaction, error) {
	var records []model.TypedEventRecord
	err := storage.ScanJSONL(path, func(line []byte) error {
		var record model.TypedEventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return fmt.Errorf("parse typed event: %w", err)
		}
		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Build(records, opts)
}
