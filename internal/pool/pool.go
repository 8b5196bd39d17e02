// Package pool implements the royalty exchange ledger: a single-owner state machine that swaps a
// reserve token for a mintable secondary token at an owner-set integer rate and keeps a fixed
// percentage of every reserve-denominated leg as withdrawable royalty.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"royaltyPool/internal/access"
	"royaltyPool/internal/events"
	"royaltyPool/internal/poolerr"
)

// ReserveToken is the externally issued token held in custody.
type ReserveToken interface {
	BalanceOf(ctx context.Context, account common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	Transfer(ctx context.Context, from, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
}

// SecondaryToken is the token the pool mints on deposit and burns on redemption. The pool
// address must hold its Minter role.
type SecondaryToken interface {
	ReserveToken
	Mint(ctx context.Context, caller, to common.Address, amount *big.Int) error
	Burn(ctx context.Context, caller, from common.Address, amount *big.Int) error
	Paused(ctx context.Context) (bool, error)
}

// Direction selects the swap leg.
type Direction uint8

const (
	DirectionReserveToSecondary Direction = iota + 1
	DirectionSecondaryToReserve
)

func (d Direction) String() string {
	switch d {
	case DirectionReserveToSecondary:
		return "reserve_to_secondary"
	case DirectionSecondaryToReserve:
		return "secondary_to_reserve"
	default:
		return "unknown"
	}
}

// ParseDirection accepts the String form plus the deposit/redeem aliases.
func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "reserve_to_secondary", "deposit", "usdc_to_bltm":
		return DirectionReserveToSecondary, nil
	case "secondary_to_reserve", "redeem", "withdraw", "bltm_to_usdc":
		return DirectionSecondaryToReserve, nil
	default:
		return 0, fmt.Errorf("unknown direction: %s", value)
	}
}

// Config describes a pool deployment.
type Config struct {
	Address   common.Address
	Deployer  common.Address
	Reserve   ReserveToken
	Secondary SecondaryToken
	Rate      *big.Int
	Emitter   events.Emitter
	Logger    *zap.Logger
}

// Pool owns the exchange rate and the royalty balance. Every mutating call holds mu for its whole
// duration, so callers observe operations one at a time.
type Pool struct {
	address   common.Address
	reserve   ReserveToken
	secondary SecondaryToken
	gate      *access.Gate
	emitter   events.Emitter
	logger    *zap.Logger

	mu      sync.RWMutex
	rate    *big.Int
	royalty *big.Int
}

// Deploy creates a pool with the deployer as Owner and a zero royalty balance.
func Deploy(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("pool address is required")
	}
	if cfg.Reserve == nil || cfg.Secondary == nil {
		return nil, fmt.Errorf("reserve and secondary tokens are required")
	}
	if cfg.Rate == nil || cfg.Rate.Sign() <= 0 {
		return nil, poolerr.Wrapf(poolerr.ErrInvalidRate, "initial rate %v", cfg.Rate)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}

	p := &Pool{
		address:   cfg.Address,
		reserve:   cfg.Reserve,
		secondary: cfg.Secondary,
		gate:      access.NewGate(cfg.Deployer, access.RoleOwner),
		emitter:   emitter,
		logger:    logger.With(zap.String("pool", cfg.Address.Hex())),
		rate:      new(big.Int).Set(cfg.Rate),
		royalty:   big.NewInt(0),
	}
	p.logger.Info("pool deployed",
		zap.String("deployer", cfg.Deployer.Hex()),
		zap.String("rate", cfg.Rate.String()),
	)
	return p, nil
}

// Address is the pool's custody account.
func (p *Pool) Address() common.Address {
	return p.address
}

// Gate exposes the pool's role assignments.
func (p *Pool) Gate() *access.Gate {
	return p.gate
}

// SwapReserveForSecondary deposits amount reserve and mints amount*rate secondary to caller.
func (p *Pool) SwapReserveForSecondary(ctx context.Context, caller common.Address, amount *big.Int) error {
	return p.Swap(ctx, caller, amount, DirectionReserveToSecondary)
}

// SwapSecondaryForReserve burns amount secondary and pays caller the reserve equivalent net of
// royalty.
func (p *Pool) SwapSecondaryForReserve(ctx context.Context, caller common.Address, amount *big.Int) error {
	return p.Swap(ctx, caller, amount, DirectionSecondaryToReserve)
}

// Swap runs one swap leg. All checks happen before the royalty is booked and before any token
// call; a token failure after that point is compensated so the call has no effect.
func (p *Pool) Swap(ctx context.Context, caller common.Address, amount *big.Int, direction Direction) error {
	op := "swap_" + direction.String()
	if guarded(ctx, p) {
		return p.reject(op, caller, poolerr.ErrReentrantCall)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return p.reject(op, caller, poolerr.ErrInvalidAmount)
	}
	paused, err := p.secondary.Paused(ctx)
	if err != nil {
		return p.reject(op, caller, fmt.Errorf("read pause state: %w", err))
	}
	if paused {
		return p.reject(op, caller, poolerr.ErrPaused)
	}

	switch direction {
	case DirectionReserveToSecondary:
		err = p.deposit(ctx, caller, amount)
	case DirectionSecondaryToReserve:
		err = p.redeem(ctx, caller, amount)
	default:
		err = poolerr.Wrapf(poolerr.ErrInvalidAmount, "unknown direction %d", direction)
	}
	if err != nil {
		return p.reject(op, caller, err)
	}
	return nil
}

func (p *Pool) deposit(ctx context.Context, caller common.Address, amount *big.Int) error {
	if err := p.requireFunds(ctx, p.reserve, caller, amount); err != nil {
		return err
	}

	royalty, _ := ComputeRoyalty(amount)
	minted := new(big.Int).Mul(amount, p.rate)

	p.royalty = new(big.Int).Add(p.royalty, royalty)

	ictx := guard(ctx, p)
	if err := p.reserve.TransferFrom(ictx, p.address, caller, p.address, amount); err != nil {
		p.royalty = new(big.Int).Sub(p.royalty, royalty)
		return fmt.Errorf("collect reserve: %w", err)
	}
	if err := p.secondary.Mint(ictx, p.address, caller, minted); err != nil {
		p.royalty = new(big.Int).Sub(p.royalty, royalty)
		if refundErr := p.reserve.Transfer(ictx, p.address, caller, amount); refundErr != nil {
			p.logger.Error("refund after failed mint", zap.String("user", caller.Hex()), zap.Error(refundErr))
			return errors.Join(fmt.Errorf("mint secondary: %w", err), fmt.Errorf("refund reserve: %w", refundErr))
		}
		return fmt.Errorf("mint secondary: %w", err)
	}

	p.emit(Swapped{
		Pool:            p.address,
		User:            caller,
		ReserveAmount:   new(big.Int).Set(amount),
		SecondaryAmount: minted,
		Royalty:         royalty,
	})
	p.logger.Debug("reserve swapped for secondary",
		zap.String("user", caller.Hex()),
		zap.String("reserve", amount.String()),
		zap.String("secondary", minted.String()),
		zap.String("royalty", royalty.String()),
	)
	return nil
}

func (p *Pool) redeem(ctx context.Context, caller common.Address, amount *big.Int) error {
	equiv := new(big.Int).Quo(amount, p.rate)
	if equiv.Sign() == 0 {
		return poolerr.Wrapf(poolerr.ErrInvalidAmount, "%s is below the rate %s", amount, p.rate)
	}
	if err := p.requireFunds(ctx, p.secondary, caller, amount); err != nil {
		return err
	}

	royalty, net := ComputeRoyalty(equiv)
	available, err := p.availableLocked(ctx)
	if err != nil {
		return err
	}
	if available.Cmp(net) < 0 {
		return poolerr.Wrapf(poolerr.ErrInsufficientLiquidity, "available %s, need %s", available, net)
	}

	p.royalty = new(big.Int).Add(p.royalty, royalty)

	ictx := guard(ctx, p)
	if err := p.secondary.Burn(ictx, p.address, caller, amount); err != nil {
		p.royalty = new(big.Int).Sub(p.royalty, royalty)
		return fmt.Errorf("burn secondary: %w", err)
	}
	if err := p.reserve.Transfer(ictx, p.address, caller, net); err != nil {
		p.royalty = new(big.Int).Sub(p.royalty, royalty)
		if restoreErr := p.secondary.Mint(ictx, p.address, caller, amount); restoreErr != nil {
			p.logger.Error("restore after failed payout", zap.String("user", caller.Hex()), zap.Error(restoreErr))
			return errors.Join(fmt.Errorf("pay reserve: %w", err), fmt.Errorf("restore secondary: %w", restoreErr))
		}
		return fmt.Errorf("pay reserve: %w", err)
	}

	p.emit(Redeemed{
		Pool:            p.address,
		User:            caller,
		ReserveAmount:   net,
		SecondaryAmount: new(big.Int).Set(amount),
		Royalty:         royalty,
	})
	p.logger.Debug("secondary swapped for reserve",
		zap.String("user", caller.Hex()),
		zap.String("secondary", amount.String()),
		zap.String("reserve", net.String()),
		zap.String("royalty", royalty.String()),
	)
	return nil
}

// requireFunds checks that owner holds amount of tok and has approved the pool for it.
func (p *Pool) requireFunds(ctx context.Context, tok ReserveToken, owner common.Address, amount *big.Int) error {
	balance, err := tok.BalanceOf(ctx, owner)
	if err != nil {
		return fmt.Errorf("read balance: %w", err)
	}
	if balance.Cmp(amount) < 0 {
		return poolerr.Wrapf(poolerr.ErrInsufficientBalance, "%s holds %s, need %s", owner.Hex(), balance, amount)
	}
	allowance, err := tok.Allowance(ctx, owner, p.address)
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	if allowance.Cmp(amount) < 0 {
		return poolerr.Wrapf(poolerr.ErrInsufficientAllowance, "%s allows %s, need %s", owner.Hex(), allowance, amount)
	}
	return nil
}

func (p *Pool) emit(evt events.Event) {
	p.emitter.Emit(evt)
}

func (p *Pool) reject(op string, caller common.Address, err error) error {
	p.logger.Info("operation rejected",
		zap.String("op", op),
		zap.String("caller", caller.Hex()),
		zap.String("code", poolerr.CodeOf(err)),
		zap.Error(err),
	)
	return err
}
