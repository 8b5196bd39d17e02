package model

// TokenSnapshot is the persisted form of a token ledger. Amounts are base-10 strings.
type TokenSnapshot struct {
	Name        string                       `json:"name"`
	Symbol      string                       `json:"symbol"`
	Decimals    uint8                        `json:"decimals"`
	TotalSupply string                       `json:"total_supply"`
	Balances    map[string]string            `json:"balances"`
	Allowances  map[string]map[string]string `json:"allowances,omitempty"`
	Paused      bool                         `json:"paused,omitempty"`
	Roles       map[string]uint8             `json:"roles,omitempty"`
}

// PoolSnapshot is the persisted form of the state owned by a pool.
type PoolSnapshot struct {
	Address        string           `json:"address"`
	Rate           string           `json:"rate"`
	RoyaltyBalance string           `json:"royalty_balance"`
	Roles          map[string]uint8 `json:"roles"`
}

// LedgerSnapshot bundles a pool with the two tokens it trades so that a simulation can resume.
type LedgerSnapshot struct {
	RunID     string        `json:"run_id"`
	ChainID   uint64        `json:"chain_id"`
	LastSeq   uint64        `json:"last_seq"`
	Pool      PoolSnapshot  `json:"pool"`
	Reserve   TokenSnapshot `json:"reserve"`
	Secondary TokenSnapshot `json:"secondary"`
	UpdatedAt string        `json:"updated_at"`
}
