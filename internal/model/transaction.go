package model

// Transaction kinds shown in a user's history.
const (
	TransactionDeposit  = "Deposit"
	TransactionWithdraw = "Withdraw"
)

// Transaction is one row of a user's exchange history. Given is what the user paid, Received is
// what the user got back.
type Transaction struct {
	Type          string `json:"type"`
	User          string `json:"user"`
	Pool          string `json:"pool"`
	Given         string `json:"given"`
	GivenToken    string `json:"given_token"`
	Received      string `json:"received"`
	ReceivedToken string `json:"received_token"`
	Royalty       string `json:"royalty"`
	BlockNumber   uint64 `json:"block_number"`
	TxHash        string `json:"tx_hash"`
	LogIndex      uint64 `json:"log_index"`
	Timestamp     uint64 `json:"timestamp"`
}
