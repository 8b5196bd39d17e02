package pool

import (
	"context"
	"fmt"
	"math/big"

	"royaltyPool/internal/access"
	"royaltyPool/internal/model"
	"royaltyPool/internal/poolerr"
)

// Snapshot captures the state the pool owns. Token balances are captured by the tokens.
func (p *Pool) Snapshot(ctx context.Context) (model.PoolSnapshot, error) {
	if guarded(ctx, p) {
		return model.PoolSnapshot{}, poolerr.ErrReentrantCall
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := model.PoolSnapshot{
		Address:        p.address.Hex(),
		Rate:           p.rate.String(),
		RoyaltyBalance: p.royalty.String(),
		Roles:          make(map[string]uint8),
	}
	for account, role := range p.gate.Export() {
		snap.Roles[account] = uint8(role)
	}
	return snap, nil
}

// Restore replaces rate, royalty and roles with snap. The address must match.
func (p *Pool) Restore(ctx context.Context, snap model.PoolSnapshot) error {
	if guarded(ctx, p) {
		return poolerr.ErrReentrantCall
	}
	if snap.Address != "" && snap.Address != p.address.Hex() {
		return fmt.Errorf("snapshot belongs to pool %s, not %s", snap.Address, p.address.Hex())
	}
	rate, ok := new(big.Int).SetString(snap.Rate, 10)
	if !ok || rate.Sign() <= 0 {
		return poolerr.Wrapf(poolerr.ErrInvalidRate, "snapshot rate %q", snap.Rate)
	}
	royalty := big.NewInt(0)
	if snap.RoyaltyBalance != "" {
		royalty, ok = new(big.Int).SetString(snap.RoyaltyBalance, 10)
		if !ok || royalty.Sign() < 0 {
			return fmt.Errorf("invalid snapshot royalty: %s", snap.RoyaltyBalance)
		}
	}
	roles := make(map[string]access.Role, len(snap.Roles))
	for account, role := range snap.Roles {
		roles[account] = access.Role(role)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = rate
	p.royalty = royalty
	p.gate.Import(roles)
	return nil
}
