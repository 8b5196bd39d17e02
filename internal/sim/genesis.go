package sim

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"

	"royaltyPool/internal/access"
	"royaltyPool/internal/model"
)

const (
	defaultChainID   = 31337
	defaultStartTime = 1_700_000_000
	defaultBlockTime = 2
)

// TokenSpec describes one genesis token. An empty Address is derived from the deployer.
type TokenSpec struct {
	Address  string `yaml:"address"`
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals uint8  `yaml:"decimals"`
}

// RoleGrant is an extra role assignment applied by the deployer at genesis. Target is "pool" or
// "secondary".
type RoleGrant struct {
	Target  string `yaml:"target"`
	Role    string `yaml:"role"`
	Account string `yaml:"account"`
}

// Genesis describes the initial ledger: tokens, pool, rate and funded accounts. Amounts are
// base-10 strings in token units.
type Genesis struct {
	ChainID    uint64            `yaml:"chain_id"`
	Deployer   string            `yaml:"deployer"`
	Pool       string            `yaml:"pool"`
	Rate       string            `yaml:"rate"`
	Reserve    TokenSpec         `yaml:"reserve"`
	Secondary  TokenSpec         `yaml:"secondary"`
	Balances   map[string]string `yaml:"balances"`
	Roles      []RoleGrant       `yaml:"roles"`
	StartBlock uint64            `yaml:"start_block"`
	StartTime  uint64            `yaml:"start_time"`
	BlockTime  uint64            `yaml:"block_time"`
}

// LoadGenesis reads and validates a YAML genesis file.
func LoadGenesis(path string) (Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, fmt.Errorf("read genesis: %w", err)
	}
	return ParseGenesis(data)
}

// ParseGenesis decodes YAML, applies defaults and validates addresses and amounts.
func ParseGenesis(data []byte) (Genesis, error) {
	var g Genesis
	if err := yaml.Unmarshal(data, &g); err != nil {
		return Genesis{}, fmt.Errorf("parse genesis: %w", err)
	}
	if err := g.normalize(); err != nil {
		return Genesis{}, err
	}
	return g, nil
}

func (g *Genesis) normalize() error {
	if !common.IsHexAddress(g.Deployer) {
		return fmt.Errorf("genesis deployer is not an address: %q", g.Deployer)
	}
	deployer := common.HexToAddress(g.Deployer)
	g.Deployer = deployer.Hex()

	if g.ChainID == 0 {
		g.ChainID = defaultChainID
	}
	if g.StartTime == 0 {
		g.StartTime = defaultStartTime
	}
	if g.BlockTime == 0 {
		g.BlockTime = defaultBlockTime
	}

	rate, ok := new(big.Int).SetString(strings.TrimSpace(g.Rate), 10)
	if !ok || rate.Sign() <= 0 {
		return fmt.Errorf("genesis rate must be a positive integer: %q", g.Rate)
	}
	g.Rate = rate.String()

	// Contract addresses default to what the deployer's first three deployments would produce.
	var err error
	if g.Reserve.Address, err = addressOrDerived(g.Reserve.Address, deployer, 0); err != nil {
		return fmt.Errorf("reserve: %w", err)
	}
	if g.Secondary.Address, err = addressOrDerived(g.Secondary.Address, deployer, 1); err != nil {
		return fmt.Errorf("secondary: %w", err)
	}
	if g.Pool, err = addressOrDerived(g.Pool, deployer, 2); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if g.Reserve.Address == g.Secondary.Address || g.Reserve.Address == g.Pool || g.Secondary.Address == g.Pool {
		return fmt.Errorf("genesis contract addresses must be distinct")
	}

	if g.Reserve.Name == "" {
		g.Reserve.Name = "USD Coin"
	}
	if g.Reserve.Symbol == "" {
		g.Reserve.Symbol = "USDC"
	}
	if g.Reserve.Decimals == 0 {
		g.Reserve.Decimals = 6
	}
	if g.Secondary.Name == "" {
		g.Secondary.Name = "BLTM"
	}
	if g.Secondary.Symbol == "" {
		g.Secondary.Symbol = "BLTM"
	}
	if g.Secondary.Decimals == 0 {
		g.Secondary.Decimals = 6
	}

	for account, amount := range g.Balances {
		if !common.IsHexAddress(account) {
			return fmt.Errorf("genesis balance account is not an address: %q", account)
		}
		value, ok := new(big.Int).SetString(amount, 10)
		if !ok || value.Sign() < 0 {
			return fmt.Errorf("genesis balance for %s is invalid: %q", account, amount)
		}
	}
	for i, grant := range g.Roles {
		if _, ok := access.ParseRole(grant.Role); !ok {
			return fmt.Errorf("genesis role %d: unknown role %q", i, grant.Role)
		}
		if !common.IsHexAddress(grant.Account) {
			return fmt.Errorf("genesis role %d: account is not an address: %q", i, grant.Account)
		}
		switch strings.ToLower(grant.Target) {
		case targetPool, targetSecondary:
		default:
			return fmt.Errorf("genesis role %d: unknown target %q", i, grant.Target)
		}
	}
	return nil
}

func addressOrDerived(value string, deployer common.Address, nonce uint64) (string, error) {
	if value == "" {
		return crypto.CreateAddress(deployer, nonce).Hex(), nil
	}
	if !common.IsHexAddress(value) {
		return "", fmt.Errorf("not an address: %q", value)
	}
	return common.HexToAddress(value).Hex(), nil
}

// PoolAddress returns the pool address.
func (g Genesis) PoolAddress() common.Address {
	return common.HexToAddress(g.Pool)
}

// PoolMeta describes the genesis pool the way a decoder would read it from chain.
func (g Genesis) PoolMeta() model.PoolMeta {
	return model.PoolMeta{
		ReserveToken: model.TokenMeta{
			Address:  g.Reserve.Address,
			Decimals: g.Reserve.Decimals,
			Symbol:   g.Reserve.Symbol,
			Name:     g.Reserve.Name,
		},
		SecondaryToken: model.TokenMeta{
			Address:  g.Secondary.Address,
			Decimals: g.Secondary.Decimals,
			Symbol:   g.Secondary.Symbol,
			Name:     g.Secondary.Name,
		},
	}
}
