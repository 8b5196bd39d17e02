package token

import (
	"context"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"royaltyPool/internal/access"
	"royaltyPool/internal/model"
	"royaltyPool/internal/poolerr"
)

// Mintable is a Token whose supply can be minted and burned by Minter accounts and whose
// balance updates can be frozen by Pauser accounts.
type Mintable struct {
	*Token
	gate   *access.Gate
	paused atomic.Bool
}

// NewMintable creates a token and grants the deployer Owner, Minter and Pauser.
func NewMintable(name, symbol string, decimals uint8, deployer common.Address) *Mintable {
	m := &Mintable{
		Token: New(name, symbol, decimals),
		gate:  access.NewGate(deployer, access.RoleOwner, access.RoleMinter, access.RolePauser),
	}
	m.Token.beforeUpdate = m.checkPaused
	return m
}

// Gate exposes the token's role assignments for grant and revoke.
func (m *Mintable) Gate() *access.Gate {
	return m.gate
}

func (m *Mintable) checkPaused() error {
	if m.paused.Load() {
		return poolerr.ErrPaused
	}
	return nil
}

// Mint creates amount tokens for to.
func (m *Mintable) Mint(ctx context.Context, caller, to common.Address, amount *big.Int) error {
	if err := m.gate.Require(caller, access.RoleMinter); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return poolerr.Wrapf(poolerr.ErrInvalidRecipient, "zero recipient")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(common.Address{}, to, amount)
}

// Burn destroys amount tokens held by from.
func (m *Mintable) Burn(ctx context.Context, caller, from common.Address, amount *big.Int) error {
	if err := m.gate.Require(caller, access.RoleMinter); err != nil {
		return err
	}
	if err := checkAmount(amount); err != nil {
		return err
	}
	if from == (common.Address{}) {
		return poolerr.Wrapf(poolerr.ErrInvalidRecipient, "zero holder")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(from, common.Address{}, amount)
}

// Pause blocks every balance update until Unpause.
func (m *Mintable) Pause(ctx context.Context, caller common.Address) error {
	if err := m.gate.Require(caller, access.RolePauser); err != nil {
		return err
	}
	m.paused.Store(true)
	return nil
}

// Unpause lifts Pause.
func (m *Mintable) Unpause(ctx context.Context, caller common.Address) error {
	if err := m.gate.Require(caller, access.RolePauser); err != nil {
		return err
	}
	m.paused.Store(false)
	return nil
}

// Paused reports whether balance updates are blocked.
func (m *Mintable) Paused(ctx context.Context) (bool, error) {
	return m.paused.Load(), nil
}

// Export captures the ledger, pause flag and roles.
func (m *Mintable) Export() model.TokenSnapshot {
	snap := m.Token.Export()
	snap.Paused = m.paused.Load()
	snap.Roles = make(map[string]uint8)
	for account, role := range m.gate.Export() {
		snap.Roles[account] = uint8(role)
	}
	return snap
}

// Import restores a snapshot produced by Export.
func (m *Mintable) Import(snap model.TokenSnapshot) error {
	if err := m.Token.Import(snap); err != nil {
		return err
	}
	roles := make(map[string]access.Role, len(snap.Roles))
	for account, role := range snap.Roles {
		roles[account] = access.Role(role)
	}
	m.gate.Import(roles)
	m.paused.Store(snap.Paused)
	return nil
}
