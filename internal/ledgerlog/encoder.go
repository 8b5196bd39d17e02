package ledgerlog

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"royaltyPool/internal/events"
	"royaltyPool/internal/model"
	"royaltyPool/internal/pool"
)

// LogPosition places an encoded log in a (possibly synthetic) chain history.
type LogPosition struct {
	BlockNumber uint64
	BlockHash   common.Hash
	TxHash      common.Hash
	TxIndex     uint64
	LogIndex    uint64
	Timestamp   uint64
}

// Encoder turns pool swap events into the log records a deployed pool would have produced.
type Encoder struct {
	poolABI abi.ABI
	chainID uint64
	source  string
}

// NewEncoder builds an Encoder that stamps records with chainID and source.
func NewEncoder(chainID uint64, source string) (*Encoder, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	return &Encoder{poolABI: poolABI, chainID: chainID, source: source}, nil
}

// Encode returns the log record for evt. ok is false for events that have no on-chain log.
func (e *Encoder) Encode(evt events.Event, pos LogPosition) (record model.LogRecord, ok bool, err error) {
	var (
		name                        string
		poolAddr, user              common.Address
		reserve, secondary, royalty *big.Int
	)
	switch typed := evt.(type) {
	case pool.Swapped:
		name = model.EventTokensSwapped
		poolAddr, user = typed.Pool, typed.User
		reserve, secondary, royalty = typed.ReserveAmount, typed.SecondaryAmount, typed.Royalty
	case pool.Redeemed:
		name = model.EventTokensRedeemed
		poolAddr, user = typed.Pool, typed.User
		reserve, secondary, royalty = typed.ReserveAmount, typed.SecondaryAmount, typed.Royalty
	default:
		return model.LogRecord{}, false, nil
	}

	event := e.poolABI.Events[name]
	data, err := event.Inputs.NonIndexed().Pack(reserve, secondary, royalty)
	if err != nil {
		return model.LogRecord{}, false, fmt.Errorf("pack %s: %w", name, err)
	}

	return model.LogRecord{
		ChainID:     e.chainID,
		BlockNumber: pos.BlockNumber,
		BlockHash:   pos.BlockHash.Hex(),
		TxHash:      pos.TxHash.Hex(),
		TxIndex:     pos.TxIndex,
		LogIndex:    pos.LogIndex,
		Address:     poolAddr.Hex(),
		Topics: []string{
			event.ID.Hex(),
			common.BytesToHash(user.Bytes()).Hex(),
		},
		Data:       hexutil.Encode(data),
		Timestamp:  pos.Timestamp,
		IngestedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Source:     e.source,
	}, true, nil
}

// EventTopic returns the signature hash of a pool event.
func EventTopic(name string) (common.Hash, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return common.Hash{}, err
	}
	event, ok := poolABI.Events[name]
	if !ok {
		return common.Hash{}, fmt.Errorf("unknown pool event: %s", name)
	}
	return event.ID, nil
}

// UserTopic encodes an address as an indexed topic.
func UserTopic(user common.Address) common.Hash {
	return common.BytesToHash(user.Bytes())
}

// PackSwap returns the calldata of the pool function that performs a swap in direction.
func PackSwap(direction pool.Direction, amount *big.Int) ([]byte, error) {
	switch direction {
	case pool.DirectionReserveToSecondary:
		return packPoolCall("swapUSDCForBLTM", amount)
	case pool.DirectionSecondaryToReserve:
		return packPoolCall("swapBLTMForUSDC", amount)
	default:
		return nil, fmt.Errorf("unknown direction: %d", direction)
	}
}

// PackSetRate returns updateExchangeRate calldata.
func PackSetRate(rate *big.Int) ([]byte, error) {
	return packPoolCall("updateExchangeRate", rate)
}

// PackWithdrawRoyalties returns withdrawRoyalties calldata.
func PackWithdrawRoyalties(amount *big.Int) ([]byte, error) {
	return packPoolCall("withdrawRoyalties", amount)
}

func packPoolCall(method string, args ...interface{}) ([]byte, error) {
	poolABI, err := PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	data, err := poolABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}
