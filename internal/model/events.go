package model

// Event names as they appear in the pool ABI.
const (
	EventTokensSwapped  = "TokensSwapped"
	EventTokensRedeemed = "TokensRedeemed"
)

// ExchangeEventData is the decoded payload shared by TokensSwapped and TokensRedeemed.
// For TokensSwapped ReserveAmount is the gross deposit; for TokensRedeemed it is the net payout.
type ExchangeEventData struct {
	User            string `json:"user"`
	ReserveAmount   string `json:"reserve_amount"`
	SecondaryAmount string `json:"secondary_amount"`
	RoyaltyAmount   string `json:"royalty_amount"`
}
