package pool

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"royaltyPool/internal/access"
	"royaltyPool/internal/poolerr"
)

// Rate returns the number of secondary units issued per reserve unit.
func (p *Pool) Rate(ctx context.Context) *big.Int {
	if guarded(ctx, p) {
		return new(big.Int).Set(p.rate)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return new(big.Int).Set(p.rate)
}

// SetRate replaces the exchange rate. Owner only; the rate must be positive.
func (p *Pool) SetRate(ctx context.Context, caller common.Address, newRate *big.Int) error {
	if guarded(ctx, p) {
		return p.reject("set_rate", caller, poolerr.ErrReentrantCall)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.gate.Require(caller, access.RoleOwner); err != nil {
		return p.reject("set_rate", caller, err)
	}
	if newRate == nil || newRate.Sign() <= 0 {
		return p.reject("set_rate", caller, poolerr.Wrapf(poolerr.ErrInvalidRate, "rate %v", newRate))
	}

	old := p.rate
	p.rate = new(big.Int).Set(newRate)
	p.emit(RateUpdated{
		Pool:    p.address,
		Caller:  caller,
		OldRate: new(big.Int).Set(old),
		NewRate: new(big.Int).Set(newRate),
	})
	p.logger.Info("exchange rate updated",
		zap.String("caller", caller.Hex()),
		zap.String("old", old.String()),
		zap.String("new", newRate.String()),
	)
	return nil
}

// Quote previews a swap at the current rate without touching balances or liquidity.
type Quote struct {
	Direction Direction
	// In is the amount the caller gives, in source token units.
	In *big.Int
	// Out is the amount the caller receives, in target token units.
	Out *big.Int
	// Royalty is the reserve amount the pool keeps.
	Royalty *big.Int
}

// Quote computes what Swap would deliver for amount at the current rate.
func (p *Pool) Quote(ctx context.Context, direction Direction, amount *big.Int) (Quote, error) {
	if amount == nil || amount.Sign() <= 0 {
		return Quote{}, poolerr.ErrInvalidAmount
	}
	rate := p.Rate(ctx)
	switch direction {
	case DirectionReserveToSecondary:
		royalty, _ := ComputeRoyalty(amount)
		return Quote{
			Direction: direction,
			In:        new(big.Int).Set(amount),
			Out:       new(big.Int).Mul(amount, rate),
			Royalty:   royalty,
		}, nil
	case DirectionSecondaryToReserve:
		equiv := new(big.Int).Quo(amount, rate)
		if equiv.Sign() == 0 {
			return Quote{}, poolerr.Wrapf(poolerr.ErrInvalidAmount, "%s is below the rate %s", amount, rate)
		}
		royalty, net := ComputeRoyalty(equiv)
		return Quote{
			Direction: direction,
			In:        new(big.Int).Set(amount),
			Out:       net,
			Royalty:   royalty,
		}, nil
	default:
		return Quote{}, poolerr.Wrapf(poolerr.ErrInvalidAmount, "unknown direction %d", direction)
	}
}
