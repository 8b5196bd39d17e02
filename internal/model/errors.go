package model

// DecodeError records a decode failure for a log line.
type DecodeError struct {
	ChainID     uint64 `json:"chain_id"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Error       string `json:"error"`
}

// OperationError records a ledger operation that was rejected during a simulation run.
type OperationError struct {
	RunID string    `json:"run_id"`
	Seq   uint64    `json:"seq"`
	Op    Operation `json:"op"`
	Code  string    `json:"code"`
	Error string    `json:"error"`
	At    string    `json:"at"`
}
