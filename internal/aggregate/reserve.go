package aggregate

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"royaltyPool/internal/ledgerlog"
	"royaltyPool/internal/model"
)

const (
	snapshotMethodBlock  = "state_at_block"
	snapshotMethodLatest = "state_latest"
	snapshotMethodNone   = "unavailable"
)

// fetchReserveSnapshot reads the pool state at blockNumber, falling back to the latest block for
// nodes without archive state.
func (a *Aggregator) fetchReserveSnapshot(ctx context.Context, poolAddr, reserveToken string, blockNumber uint64) (model.PoolState, string, error) {
	if a.caller == nil {
		return model.PoolState{}, snapshotMethodNone, fmt.Errorf("contract caller is nil")
	}
	if !common.IsHexAddress(poolAddr) || !common.IsHexAddress(reserveToken) {
		return model.PoolState{}, snapshotMethodNone, fmt.Errorf("invalid address")
	}
	pool := common.HexToAddress(poolAddr)
	reserve := common.HexToAddress(reserveToken)

	state, err := ledgerlog.FetchPoolState(ctx, a.caller, pool, reserve, blockNumber)
	if err == nil {
		return state, snapshotMethodBlock, nil
	}
	a.logger.Debug("state at block failed", zap.String("pool", poolAddr), zap.Uint64("block", blockNumber), zap.Error(err))

	state, err = ledgerlog.FetchPoolState(ctx, a.caller, pool, reserve, 0)
	if err == nil {
		return state, snapshotMethodLatest, nil
	}
	return model.PoolState{}, snapshotMethodNone, fmt.Errorf("pool state: %w", err)
}
