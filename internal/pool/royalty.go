package pool

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"royaltyPool/internal/access"
	"royaltyPool/internal/poolerr"
)

// RoyaltyPercent is the share of every reserve-denominated leg kept by the pool.
const RoyaltyPercent = 2

var (
	royaltyNumerator   = big.NewInt(RoyaltyPercent)
	royaltyDenominator = big.NewInt(100)
)

// ComputeRoyalty splits amount into floor(amount*2/100) and the remainder.
func ComputeRoyalty(amount *big.Int) (royalty, net *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	royalty = new(big.Int).Mul(amount, royaltyNumerator)
	royalty.Quo(royalty, royaltyDenominator)
	net = new(big.Int).Sub(amount, royalty)
	return royalty, net
}

// RoyaltyBalance returns the accrued, not yet withdrawn royalty.
func (p *Pool) RoyaltyBalance(ctx context.Context) *big.Int {
	if guarded(ctx, p) {
		return new(big.Int).Set(p.royalty)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.royalty)
}

// AvailableReserve is the custody balance of the reserve token minus accrued royalty, floored
// at zero. Redemptions are paid only from this amount.
func (p *Pool) AvailableReserve(ctx context.Context) (*big.Int, error) {
	if guarded(ctx, p) {
		return p.availableLocked(ctx)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.availableLocked(ctx)
}

// Custody returns the pool's reserve token balance.
func (p *Pool) Custody(ctx context.Context) (*big.Int, error) {
	balance, err := p.reserve.BalanceOf(ctx, p.address)
	if err != nil {
		return nil, fmt.Errorf("read custody: %w", err)
	}
	return balance, nil
}

func (p *Pool) availableLocked(ctx context.Context) (*big.Int, error) {
	custody, err := p.Custody(ctx)
	if err != nil {
		return nil, err
	}
	available := custody.Sub(custody, p.royalty)
	if available.Sign() < 0 {
		available.SetInt64(0)
	}
	return available, nil
}

// WithdrawRoyalties sends amount of the accrued royalty to caller. Owner only.
func (p *Pool) WithdrawRoyalties(ctx context.Context, caller common.Address, amount *big.Int) error {
	if guarded(ctx, p) {
		return p.reject("withdraw_royalties", caller, poolerr.ErrReentrantCall)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.gate.Require(caller, access.RoleOwner); err != nil {
		return p.reject("withdraw_royalties", caller, err)
	}
	if amount == nil || amount.Sign() <= 0 {
		return p.reject("withdraw_royalties", caller, poolerr.ErrInvalidAmount)
	}
	if amount.Cmp(p.royalty) > 0 {
		return p.reject("withdraw_royalties", caller,
			poolerr.Wrapf(poolerr.ErrExceedsRoyaltyBalance, "requested %s, accrued %s", amount, p.royalty))
	}

	p.royalty = new(big.Int).Sub(p.royalty, amount)

	ictx := guard(ctx, p)
	if err := p.reserve.Transfer(ictx, p.address, caller, amount); err != nil {
		p.royalty = new(big.Int).Add(p.royalty, amount)
		return p.reject("withdraw_royalties", caller, fmt.Errorf("transfer royalty: %w", err))
	}

	p.emit(RoyaltiesWithdrawn{
		Pool:   p.address,
		To:     caller,
		Amount: new(big.Int).Set(amount),
	})
	p.logger.Info("royalties withdrawn",
		zap.String("to", caller.Hex()),
		zap.String("amount", amount.String()),
		zap.String("remaining", p.royalty.String()),
	)
	return nil
}
