package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	EventTypeSwapped            = "pool.swapped"
	EventTypeRedeemed           = "pool.redeemed"
	EventTypeRateUpdated        = "pool.rate_updated"
	EventTypeRoyaltiesWithdrawn = "pool.royalties_withdrawn"
)

// Swapped is emitted once per successful reserve to secondary swap. ReserveAmount is the gross
// amount taken from the user.
type Swapped struct {
	Pool            common.Address
	User            common.Address
	ReserveAmount   *big.Int
	SecondaryAmount *big.Int
	Royalty         *big.Int
}

func (Swapped) EventType() string { return EventTypeSwapped }

// Redeemed is emitted once per successful secondary to reserve swap. ReserveAmount is the net
// amount paid out.
type Redeemed struct {
	Pool            common.Address
	User            common.Address
	ReserveAmount   *big.Int
	SecondaryAmount *big.Int
	Royalty         *big.Int
}

func (Redeemed) EventType() string { return EventTypeRedeemed }

type RateUpdated struct {
	Pool    common.Address
	Caller  common.Address
	OldRate *big.Int
	NewRate *big.Int
}

func (RateUpdated) EventType() string { return EventTypeRateUpdated }

type RoyaltiesWithdrawn struct {
	Pool   common.Address
	To     common.Address
	Amount *big.Int
}

func (RoyaltiesWithdrawn) EventType() string { return EventTypeRoyaltiesWithdrawn }
