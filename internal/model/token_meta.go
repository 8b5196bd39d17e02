package model

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

// Label returns the symbol, or the address when the symbol is unknown.
func (m TokenMeta) Label() string {
	if m.Symbol != "" {
		return m.Symbol
	}
	return m.Address
}
