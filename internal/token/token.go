// Package token implements the in-memory fungible tokens the exchange ledger trades: a plain
// ERC-20 style reserve token and a mintable, burnable, pausable secondary token.
//
// Every method takes a context so the same contract can be satisfied by a remote token.
package token

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"

	"royaltyPool/internal/model"
	"royaltyPool/internal/poolerr"
)

// Token is a standard balance/allowance ledger.
type Token struct {
	name     string
	symbol   string
	decimals uint8

	mu          sync.RWMutex
	balances    map[common.Address]*big.Int
	allowances  map[common.Address]map[common.Address]*big.Int
	totalSupply *big.Int

	// beforeUpdate runs under the write lock before any balance change.
	beforeUpdate func() error
}

// New creates an empty token.
func New(name, symbol string, decimals uint8) *Token {
	return &Token{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		balances:    make(map[common.Address]*big.Int),
		allowances:  make(map[common.Address]map[common.Address]*big.Int),
		totalSupply: big.NewInt(0),
	}
}

func (t *Token) Name() string    { return t.name }
func (t *Token) Symbol() string  { return t.symbol }
func (t *Token) Decimals() uint8 { return t.decimals }

// TotalSupply returns a copy of the current supply.
func (t *Token) TotalSupply(ctx context.Context) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.totalSupply), nil
}

// BalanceOf returns a copy of account's balance.
func (t *Token) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balanceLocked(account), nil
}

// Allowance returns how much spender may move on behalf of owner.
func (t *Token) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.allowanceLocked(owner, spender), nil
}

// Approve sets spender's allowance over owner's balance.
func (t *Token) Approve(ctx context.Context, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return poolerr.ErrInvalidAmount
	}
	if spender == (common.Address{}) {
		return poolerr.Wrapf(poolerr.ErrInvalidRecipient, "zero spender")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	spenders := t.allowances[owner]
	if spenders == nil {
		spenders = make(map[common.Address]*big.Int)
		t.allowances[owner] = spenders
	}
	spenders[spender] = new(big.Int).Set(amount)
	return nil
}

// Transfer moves amount from the caller to to.
func (t *Token) Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return poolerr.Wrapf(poolerr.ErrInvalidRecipient, "zero recipient")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updateLocked(from, to, amount)
}

// TransferFrom moves amount from from to to, spending spender's allowance. An allowance of
// 2^256-1 is treated as unlimited and never decremented.
func (t *Token) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return poolerr.Wrapf(poolerr.ErrInvalidRecipient, "zero recipient")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	allowance := t.allowanceLocked(from, spender)
	if allowance.Cmp(amount) < 0 {
		return poolerr.Wrapf(poolerr.ErrInsufficientAllowance, "%s allows %s, need %s", from.Hex(), allowance, amount)
	}
	if err := t.updateLocked(from, to, amount); err != nil {
		return err
	}
	if amount.Sign() > 0 && allowance.Cmp(ethmath.MaxBig256) != 0 {
		t.allowances[from][spender] = allowance.Sub(allowance, amount)
	}
	return nil
}

// Faucet credits to with freshly created supply. It is meant for genesis funding of a reserve
// token; the exchange ledger never calls it.
func (t *Token) Faucet(ctx context.Context, to common.Address, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return poolerr.Wrapf(poolerr.ErrInvalidRecipient, "zero recipient")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updateLocked(common.Address{}, to, amount)
}

// updateLocked moves amount between accounts. The zero address on either side mints or burns.
func (t *Token) updateLocked(from, to common.Address, amount *big.Int) error {
	if t.beforeUpdate != nil {
		if err := t.beforeUpdate(); err != nil {
			return err
		}
	}

	zero := common.Address{}
	if from != zero {
		balance := t.balanceLocked(from)
		if balance.Cmp(amount) < 0 {
			return poolerr.Wrapf(poolerr.ErrInsufficientBalance, "%s holds %s %s, need %s", from.Hex(), balance, t.symbol, amount)
		}
		t.setBalanceLocked(from, balance.Sub(balance, amount))
	} else {
		t.totalSupply = new(big.Int).Add(t.totalSupply, amount)
	}

	if to != zero {
		balance := t.balanceLocked(to)
		t.setBalanceLocked(to, balance.Add(balance, amount))
	} else {
		t.totalSupply = new(big.Int).Sub(t.totalSupply, amount)
	}
	return nil
}

func (t *Token) balanceLocked(account common.Address) *big.Int {
	if balance, ok := t.balances[account]; ok {
		return new(big.Int).Set(balance)
	}
	return big.NewInt(0)
}

func (t *Token) setBalanceLocked(account common.Address, balance *big.Int) {
	if balance.Sign() == 0 {
		delete(t.balances, account)
		return
	}
	t.balances[account] = balance
}

func (t *Token) allowanceLocked(owner, spender common.Address) *big.Int {
	if spenders, ok := t.allowances[owner]; ok {
		if allowance, ok := spenders[spender]; ok {
			return new(big.Int).Set(allowance)
		}
	}
	return big.NewInt(0)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return poolerr.ErrInvalidAmount
	}
	return nil
}

// Export captures balances, allowances and supply.
func (t *Token) Export() model.TokenSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := model.TokenSnapshot{
		Name:        t.name,
		Symbol:      t.symbol,
		Decimals:    t.decimals,
		TotalSupply: t.totalSupply.String(),
		Balances:    make(map[string]string, len(t.balances)),
		Allowances:  make(map[string]map[string]string, len(t.allowances)),
	}
	for account, balance := range t.balances {
		snap.Balances[account.Hex()] = balance.String()
	}
	for owner, spenders := range t.allowances {
		inner := make(map[string]string, len(spenders))
		for spender, allowance := range spenders {
			inner[spender.Hex()] = allowance.String()
		}
		snap.Allowances[owner.Hex()] = inner
	}
	return snap
}

// Import replaces the ledger with snap. The sum of balances must equal the total supply.
func (t *Token) Import(snap model.TokenSnapshot) error {
	supply, err := parseAmount(snap.TotalSupply)
	if err != nil {
		return fmt.Errorf("total supply: %w", err)
	}

	balances := make(map[common.Address]*big.Int, len(snap.Balances))
	sum := big.NewInt(0)
	for key, value := range snap.Balances {
		if !common.IsHexAddress(key) {
			return fmt.Errorf("invalid balance address: %s", key)
		}
		amount, err := parseAmount(value)
		if err != nil {
			return fmt.Errorf("balance %s: %w", key, err)
		}
		if amount.Sign() == 0 {
			continue
		}
		balances[common.HexToAddress(key)] = amount
		sum.Add(sum, amount)
	}
	if sum.Cmp(supply) != 0 {
		return fmt.Errorf("balances sum %s does not match total supply %s", sum, supply)
	}

	allowances := make(map[common.Address]map[common.Address]*big.Int, len(snap.Allowances))
	for ownerKey, spenders := range snap.Allowances {
		if !common.IsHexAddress(ownerKey) {
			return fmt.Errorf("invalid allowance owner: %s", ownerKey)
		}
		inner := make(map[common.Address]*big.Int, len(spenders))
		for spenderKey, value := range spenders {
			if !common.IsHexAddress(spenderKey) {
				return fmt.Errorf("invalid allowance spender: %s", spenderKey)
			}
			amount, err := parseAmount(value)
			if err != nil {
				return fmt.Errorf("allowance %s/%s: %w", ownerKey, spenderKey, err)
			}
			inner[common.HexToAddress(spenderKey)] = amount
		}
		allowances[common.HexToAddress(ownerKey)] = inner
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.name = snap.Name
	t.symbol = snap.Symbol
	t.decimals = snap.Decimals
	t.totalSupply = supply
	t.balances = balances
	t.allowances = allowances
	return nil
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return big.NewInt(0), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok || parsed.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}
