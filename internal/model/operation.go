package model

// Operation kinds accepted by the ledger simulator.
const (
	OpApprove           = "approve"
	OpSwap              = "swap"
	OpSwapReserve       = "swap_reserve"
	OpSwapSecondary     = "swap_secondary"
	OpSetRate           = "set_rate"
	OpWithdrawRoyalties = "withdraw_royalties"
	OpGrantRole         = "grant_role"
	OpRevokeRole        = "revoke_role"
	OpPause             = "pause"
	OpUnpause           = "unpause"
	OpTransfer          = "transfer"
	OpFaucet            = "faucet"
	OpQuote             = "quote"
)

// Operation is one line of a simulation script. Amounts are base-10 strings in token units.
type Operation struct {
	Op     string `json:"op"`
	Caller string `json:"caller"`
	// Token selects "reserve" or "secondary" for approve and transfer; role targets use
	// "pool" or "secondary".
	Token   string `json:"token,omitempty"`
	Target  string `json:"target,omitempty"`
	Account string `json:"account,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Role    string `json:"role,omitempty"`
	// Direction is required by swap and quote: reserve_to_secondary or secondary_to_reserve.
	Direction string `json:"direction,omitempty"`
	// Timestamp overrides the synthetic block time, in unix seconds.
	Timestamp uint64 `json:"timestamp,omitempty"`
}
