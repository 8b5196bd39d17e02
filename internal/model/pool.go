package model

// Pool is an exchange pool registry record for storage.
type Pool struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	ReserveToken   string `json:"reserve_token"`
	SecondaryToken string `json:"secondary_token"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}
