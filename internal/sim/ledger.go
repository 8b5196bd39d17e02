package sim

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"royaltyPool/internal/access"
	"royaltyPool/internal/events"
	"royaltyPool/internal/model"
	"royaltyPool/internal/pool"
	"royaltyPool/internal/token"
)

const (
	targetPool      = "pool"
	targetSecondary = "secondary"
)

// Ledger is a deployed pool together with the two tokens it trades.
type Ledger struct {
	Genesis   Genesis
	Reserve   *token.Token
	Secondary *token.Mintable
	Pool      *pool.Pool
}

// NewLedger deploys the genesis ledger: tokens, pool, the pool's Minter grant, extra roles and
// faucet balances. emitter receives every pool event.
func NewLedger(ctx context.Context, g Genesis, emitter events.Emitter, logger *zap.Logger) (*Ledger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deployer := common.HexToAddress(g.Deployer)
	rate, ok := new(big.Int).SetString(g.Rate, 10)
	if !ok {
		return nil, fmt.Errorf("invalid genesis rate: %s", g.Rate)
	}

	reserve := token.New(g.Reserve.Name, g.Reserve.Symbol, g.Reserve.Decimals)
	secondary := token.NewMintable(g.Secondary.Name, g.Secondary.Symbol, g.Secondary.Decimals, deployer)

	p, err := pool.Deploy(ctx, pool.Config{
		Address:   g.PoolAddress(),
		Deployer:  deployer,
		Reserve:   reserve,
		Secondary: secondary,
		Rate:      rate,
		Emitter:   emitter,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("deploy pool: %w", err)
	}

	l := &Ledger{Genesis: g, Reserve: reserve, Secondary: secondary, Pool: p}
	if err := secondary.Gate().Grant(deployer, access.RoleMinter, p.Address()); err != nil {
		return nil, fmt.Errorf("grant pool minter: %w", err)
	}
	for _, grant := range g.Roles {
		role, _ := access.ParseRole(grant.Role)
		gate, err := l.gate(grant.Target)
		if err != nil {
			return nil, err
		}
		if err := gate.Grant(deployer, role, common.HexToAddress(grant.Account)); err != nil {
			return nil, fmt.Errorf("grant %s %s: %w", grant.Target, grant.Role, err)
		}
	}

	accounts := make([]string, 0, len(g.Balances))
	for account := range g.Balances {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)
	for _, account := range accounts {
		amount, _ := new(big.Int).SetString(g.Balances[account], 10)
		if err := reserve.Faucet(ctx, common.HexToAddress(account), amount); err != nil {
			return nil, fmt.Errorf("fund %s: %w", account, err)
		}
	}

	logger.Info("genesis applied",
		zap.Uint64("chain_id", g.ChainID),
		zap.String("pool", g.Pool),
		zap.String("reserve", g.Reserve.Address),
		zap.String("secondary", g.Secondary.Address),
		zap.Int("funded", len(accounts)),
	)
	return l, nil
}

func (l *Ledger) gate(target string) (*access.Gate, error) {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case targetPool, "":
		return l.Pool.Gate(), nil
	case targetSecondary:
		return l.Secondary.Gate(), nil
	default:
		return nil, fmt.Errorf("unknown role target: %q", target)
	}
}

// Snapshot captures the whole ledger.
func (l *Ledger) Snapshot(ctx context.Context, runID string, lastSeq uint64) (model.LedgerSnapshot, error) {
	poolSnap, err := l.Pool.Snapshot(ctx)
	if err != nil {
		return model.LedgerSnapshot{}, err
	}
	return model.LedgerSnapshot{
		RunID:     runID,
		ChainID:   l.Genesis.ChainID,
		LastSeq:   lastSeq,
		Pool:      poolSnap,
		Reserve:   l.Reserve.Export(),
		Secondary: l.Secondary.Export(),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Restore replaces the ledger state with snap.
func (l *Ledger) Restore(ctx context.Context, snap model.LedgerSnapshot) error {
	if snap.ChainID != 0 && snap.ChainID != l.Genesis.ChainID {
		return fmt.Errorf("snapshot chain id %d does not match genesis %d", snap.ChainID, l.Genesis.ChainID)
	}
	if err := l.Reserve.Import(snap.Reserve); err != nil {
		return fmt.Errorf("restore reserve: %w", err)
	}
	if err := l.Secondary.Import(snap.Secondary); err != nil {
		return fmt.Errorf("restore secondary: %w", err)
	}
	if err := l.Pool.Restore(ctx, snap.Pool); err != nil {
		return fmt.Errorf("restore pool: %w", err)
	}
	return nil
}
