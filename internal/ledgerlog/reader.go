package ledgerlog

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"royaltyPool/internal/model"
)

// ContractCaller performs read-only contract calls. *chain.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// PoolMetaCache caches pool metadata by address.
type PoolMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.PoolMeta
}

func NewPoolMetaCache() *PoolMetaCache {
	return &PoolMetaCache{data: make(map[common.Address]model.PoolMeta)}
}

func (c *PoolMetaCache) Get(address common.Address) (model.PoolMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *PoolMetaCache) Set(address common.Address, meta model.PoolMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// TokenMetaCache caches token metadata by address.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// PoolTokens reads the reserve and secondary token addresses of a deployed pool.
func PoolTokens(ctx context.Context, caller ContractCaller, poolAddr common.Address) (reserve, secondary common.Address, err error) {
	if caller == nil {
		return common.Address{}, common.Address{}, fmt.Errorf("contract caller is nil")
	}
	poolABI, err := PoolABI()
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := callMethod(ctx, caller, poolAddr, poolABI, "usdc", nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	reserve, err = asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("usdc: %w", err)
	}

	values, err = callMethod(ctx, caller, poolAddr, poolABI, "bltm", nil)
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	secondary, err = asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("bltm: %w", err)
	}
	return reserve, secondary, nil
}

// FetchPoolMeta loads the metadata of both pool tokens, consulting tokenCache first.
func FetchPoolMeta(ctx context.Context, caller ContractCaller, poolAddr common.Address, tokenCache *TokenMetaCache, logger *zap.Logger) (model.PoolMeta, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	reserve, secondary, err := PoolTokens(ctx, caller, poolAddr)
	if err != nil {
		return model.PoolMeta{}, err
	}

	load := func(token common.Address) model.TokenMeta {
		if tokenCache != nil {
			if meta, ok := tokenCache.Get(token); ok {
				return meta
			}
		}
		meta, err := FetchTokenMeta(ctx, caller, token, logger)
		if err != nil {
			logger.Warn("token metadata fetch failed", zap.String("token", token.Hex()), zap.Error(err))
		}
		if tokenCache != nil {
			tokenCache.Set(token, meta)
		}
		return meta
	}

	return model.PoolMeta{
		ReserveToken:   load(reserve),
		SecondaryToken: load(secondary),
	}, nil
}

// FetchPoolState reads rate, royalty, available reserve and custody at blockNumber (0 = latest).
func FetchPoolState(ctx context.Context, caller ContractCaller, poolAddr common.Address, reserveToken common.Address, blockNumber uint64) (model.PoolState, error) {
	if caller == nil {
		return model.PoolState{}, fmt.Errorf("contract caller is nil")
	}
	poolABI, err := PoolABI()
	if err != nil {
		return model.PoolState{}, fmt.Errorf("parse pool abi: %w", err)
	}

	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}

	read := func(method string) (*big.Int, error) {
		values, err := callMethod(ctx, caller, poolAddr, poolABI, method, block)
		if err != nil {
			return nil, err
		}
		return asBigInt(values[0])
	}

	rate, err := read("exchangeRate")
	if err != nil {
		return model.PoolState{}, err
	}
	royalty, err := read("royaltiesBalance")
	if err != nil {
		return model.PoolState{}, err
	}
	available, err := read("getAvailableUSDC")
	if err != nil {
		return model.PoolState{}, err
	}

	state := model.PoolState{
		BlockNumber:      blockNumber,
		Rate:             rate.String(),
		RoyaltyBalance:   royalty.String(),
		AvailableReserve: available.String(),
	}
	if reserveToken != (common.Address{}) {
		custody, err := BalanceOf(ctx, caller, reserveToken, poolAddr, blockNumber)
		if err != nil {
			return model.PoolState{}, err
		}
		state.Custody = custody.String()
	}
	return state, nil
}

// BalanceOf reads an ERC20 balance at blockNumber (0 = latest).
func BalanceOf(ctx context.Context, caller ContractCaller, token, owner common.Address, blockNumber uint64) (*big.Int, error) {
	return erc20Uint(ctx, caller, token, blockNumber, "balanceOf", owner)
}

// Allowance reads an ERC20 allowance at the latest block.
func Allowance(ctx context.Context, caller ContractCaller, token, owner, spender common.Address) (*big.Int, error) {
	return erc20Uint(ctx, caller, token, 0, "allowance", owner, spender)
}

// TotalSupply reads an ERC20 total supply at the latest block.
func TotalSupply(ctx context.Context, caller ContractCaller, token common.Address) (*big.Int, error) {
	return erc20Uint(ctx, caller, token, 0, "totalSupply")
}

// Paused reads the pause flag of a pausable token.
func Paused(ctx context.Context, caller ContractCaller, token common.Address) (bool, error) {
	if caller == nil {
		return false, fmt.Errorf("contract caller is nil")
	}
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return false, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := callMethod(ctx, caller, token, parsed, "paused", nil)
	if err != nil {
		return false, err
	}
	paused, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("paused unexpected type %T", values[0])
	}
	return paused, nil
}

func erc20Uint(ctx context.Context, caller ContractCaller, token common.Address, blockNumber uint64, method string, args ...interface{}) (*big.Int, error) {
	if caller == nil {
		return nil, fmt.Errorf("contract caller is nil")
	}
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}
	values, err := callMethod(ctx, caller, token, parsed, method, block, args...)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// FetchTokenMeta loads token metadata via ERC20 calls. Tokens that return bytes32 names are
// supported.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("contract caller is nil")
	}

	stringABI, err := erc20ABIStringInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20ABIBytes32Instance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := callMethod(ctx, caller, token, stringABI, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, err := asUint8(values[0])
	if err != nil {
		return meta, err
	}
	meta.Decimals = decimals

	meta.Symbol = readText(ctx, caller, token, stringABI, bytes32ABI, "symbol", logger)
	meta.Name = readText(ctx, caller, token, stringABI, bytes32ABI, "name", logger)
	return meta, nil
}

func readText(ctx context.Context, caller ContractCaller, token common.Address, stringABI, bytes32ABI abi.ABI, method string, logger *zap.Logger) string {
	if values, err := callMethod(ctx, caller, token, stringABI, method, nil); err == nil {
		if text, ok := values[0].(string); ok {
			return text
		}
	}
	values, err := callMethod(ctx, caller, token, bytes32ABI, method, nil)
	if err == nil {
		if text, ok := bytes32ToString(values[0]); ok {
			return text
		}
	}
	if logger != nil {
		logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	return ""
}

func callMethod(ctx context.Context, caller ContractCaller, to common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unsupported address type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		return new(big.Int).Set(v), nil
	case big.Int:
		return new(big.Int).Set(&v), nil
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	default:
		return nil, fmt.Errorf("unsupported int type %T", value)
	}
}

func asUint8(value interface{}) (uint8, error) {
	switch v := value.(type) {
	case uint8:
		return v, nil
	case *big.Int:
		return uint8(v.Uint64()), nil
	default:
		return 0, fmt.Errorf("unsupported uint8 type %T", value)
	}
}
