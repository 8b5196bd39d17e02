package model

// PoolMeta captures the tokens a pool trades with optional live state.
type PoolMeta struct {
	ReserveToken   TokenMeta  `json:"reserve_token"`
	SecondaryToken TokenMeta  `json:"secondary_token"`
	State          *PoolState `json:"state,omitempty"`
}

// PoolState is the pool's read-only state at a block. Amounts are base-10 strings in token units.
type PoolState struct {
	BlockNumber      uint64 `json:"block_number,omitempty"`
	Rate             string `json:"rate"`
	RoyaltyBalance   string `json:"royalty_balance"`
	AvailableReserve string `json:"available_reserve"`
	Custody          string `json:"custody,omitempty"`
}
