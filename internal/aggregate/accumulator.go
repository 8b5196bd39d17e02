package aggregate

import (
	"fmt"
	"math/big"
	"strings"

	"royaltyPool/internal/model"
)

// Accumulator holds aggregate values for a pool window.
type Accumulator struct {
	ChainID         uint64
	PoolAddress     string
	PoolMeta        model.PoolMeta
	WindowStart     uint64
	WindowEnd       uint64
	DepositCount    uint64
	RedeemCount     uint64
	ReserveIn       *big.Int
	ReserveOut      *big.Int
	SecondaryMinted *big.Int
	SecondaryBurned *big.Int
	RoyaltyAccrued  *big.Int
	LastBlock       uint64
	LastTS          uint64
	FirstBlock      uint64

	users map[string]struct{}
}

func NewAccumulator(record model.TypedEventRecord, windowStart, windowEnd uint64) *Accumulator {
	return &Accumulator{
		ChainID:         record.ChainID,
		PoolAddress:     record.Address,
		PoolMeta:        record.PoolMeta,
		WindowStart:     windowStart,
		WindowEnd:       windowEnd,
		ReserveIn:       big.NewInt(0),
		ReserveOut:      big.NewInt(0),
		SecondaryMinted: big.NewInt(0),
		SecondaryBurned: big.NewInt(0),
		RoyaltyAccrued:  big.NewInt(0),
		LastBlock:       record.BlockNumber,
		LastTS:          record.Timestamp,
		FirstBlock:      record.BlockNumber,
		users:           make(map[string]struct{}),
	}
}

// UniqueUsers counts distinct users seen in the window.
func (a *Accumulator) UniqueUsers() uint64 {
	return uint64(len(a.users))
}

func (a *Accumulator) AddEvent(record model.TypedEventRecord) error {
	if record.Timestamp >= a.LastTS {
		a.LastTS = record.Timestamp
		a.LastBlock = record.BlockNumber
	}
	if a.FirstBlock == 0 || record.BlockNumber < a.FirstBlock {
		a.FirstBlock = record.BlockNumber
	}
	if a.PoolMeta.ReserveToken.Address == "" && record.PoolMeta.ReserveToken.Address != "" {
		a.PoolMeta = record.PoolMeta
	}

	switch record.EventName {
	case model.EventTokensSwapped, model.EventTokensRedeemed:
	default:
		return nil
	}

	data, err := record.ExchangeData()
	if err != nil {
		return err
	}
	reserve, err := parseBigInt(data.ReserveAmount)
	if err != nil {
		return err
	}
	secondary, err := parseBigInt(data.SecondaryAmount)
	if err != nil {
		return err
	}
	royalty, err := parseBigInt(data.RoyaltyAmount)
	if err != nil {
		return err
	}

	if record.EventName == model.EventTokensSwapped {
		a.DepositCount++
		a.ReserveIn.Add(a.ReserveIn, reserve)
		a.SecondaryMinted.Add(a.SecondaryMinted, secondary)
	} else {
		a.RedeemCount++
		a.ReserveOut.Add(a.ReserveOut, reserve)
		a.SecondaryBurned.Add(a.SecondaryBurned, secondary)
	}
	a.RoyaltyAccrued.Add(a.RoyaltyAccrued, royalty)
	if data.User != "" {
		a.users[strings.ToLower(data.User)] = struct{}{}
	}
	return nil
}

func parseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid int: %s", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %s", value)
	}
	return parsed, nil
}
