package model

import "time"

// PoolWindowMetrics stores aggregated exchange activity for a pool window.
type PoolWindowMetrics struct {
	ChainID          uint64
	PoolAddress      string
	WindowSizeSecs   int64
	WindowStart      time.Time
	WindowEnd        time.Time
	DepositCount     uint64
	RedeemCount      uint64
	UniqueUsers      uint64
	ReserveIn        string
	ReserveOut       string
	SecondaryMinted  string
	SecondaryBurned  string
	RoyaltyAccrued   string
	Custody          *string
	RoyaltyBalance   *string
	AvailableReserve *string
	Rate             *string
	SnapshotMethod   string
}
