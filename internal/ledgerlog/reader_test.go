package ledgerlog

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"royaltyPool/internal/model"
)

// fakeCaller answers contract calls from canned responses keyed by target and calldata.
type fakeCaller struct {
	t         *testing.T
	responses map[string][]byte
}

func newFakeCaller(t *testing.T) *fakeCaller {
	return &fakeCaller{t: t, responses: make(map[string][]byte)}
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	key := callKey(*msg.To, msg.Data)
	resp, ok := f.responses[key]
	if !ok {
		return nil, fmt.Errorf("execution reverted")
	}
	return resp, nil
}

func callKey(to common.Address, data []byte) string {
	return to.Hex() + ":" + hexutil.Encode(data)
}

func (f *fakeCaller) set(to common.Address, parsed abi.ABI, method string, args []interface{}, outputs ...interface{}) {
	f.t.Helper()
	data, err := parsed.Pack(method, args...)
	if err != nil {
		f.t.Fatalf("pack %s: %v", method, err)
	}
	resp, err := parsed.Methods[method].Outputs.Pack(outputs...)
	if err != nil {
		f.t.Fatalf("pack %s outputs: %v", method, err)
	}
	f.responses[callKey(to, data)] = resp
}

func (f *fakeCaller) poolTokens(poolAddr, reserve, secondary common.Address) {
	poolABI, err := PoolABI()
	if err != nil {
		f.t.Fatalf("abi: %v", err)
	}
	f.set(poolAddr, poolABI, "usdc", nil, reserve)
	f.set(poolAddr, poolABI, "bltm", nil, secondary)
}

func (f *fakeCaller) poolState(poolAddr common.Address, rate, royalty, available int64) {
	poolABI, err := PoolABI()
	if err != nil {
		f.t.Fatalf("abi: %v", err)
	}
	f.set(poolAddr, poolABI, "exchangeRate", nil, big.NewInt(rate))
	f.set(poolAddr, poolABI, "royaltiesBalance", nil, big.NewInt(royalty))
	f.set(poolAddr, poolABI, "getAvailableUSDC", nil, big.NewInt(available))
}

func (f *fakeCaller) token(addr common.Address, name, symbol string, decimals uint8) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		f.t.Fatalf("abi: %v", err)
	}
	f.set(addr, parsed, "decimals", nil, decimals)
	f.set(addr, parsed, "name", nil, name)
	f.set(addr, parsed, "symbol", nil, symbol)
}

func (f *fakeCaller) balance(tokenAddr, owner common.Address, amount int64) {
	parsed, err := erc20ABIStringInstance()
	if err != nil {
		f.t.Fatalf("abi: %v", err)
	}
	f.set(tokenAddr, parsed, "balanceOf", []interface{}{owner}, big.NewInt(amount))
}

func TestFetchTokenMetaBytes32Fallback(t *testing.T) {
	caller := newFakeCaller(t)
	stringABI, _ := erc20ABIStringInstance()
	bytes32ABI, _ := erc20ABIBytes32Instance()
	token := common.HexToAddress("0x3333333333333333333333333333333333333333")

	var symbol, name [32]byte
	copy(symbol[:], "MKR")
	copy(name[:], "Maker")
	caller.set(token, stringABI, "decimals", nil, uint8(18))
	caller.set(token, bytes32ABI, "symbol", nil, symbol)
	caller.set(token, bytes32ABI, "name", nil, name)

	meta, err := FetchTokenMeta(context.Background(), caller, token, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.Symbol != "MKR" || meta.Name != "Maker" || meta.Decimals != 18 {
		t.Fatalf("meta mismatch: %+v", meta)
	}
	if meta.Label() != "MKR" {
		t.Fatalf("label mismatch: %s", meta.Label())
	}
}

func TestFetchTokenMetaMissingDecimals(t *testing.T) {
	caller := newFakeCaller(t)
	token := common.HexToAddress("0x4444444444444444444444444444444444444444")
	meta, err := FetchTokenMeta(context.Background(), caller, token, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if meta.Address != token.Hex() || meta.Label() != token.Hex() {
		t.Fatalf("address fallback mismatch: %+v", meta)
	}
}

func TestFetchPoolMetaUsesTokenCache(t *testing.T) {
	caller := newFakeCaller(t)
	caller.poolTokens(testPool, testReserve, testSecondary)
	caller.token(testSecondary, "BLTM", "BLTM", 6)

	tokens := NewTokenMetaCache()
	tokens.Set(testReserve, model.TokenMeta{Address: testReserve.Hex(), Symbol: "USDC", Decimals: 6})

	meta, err := FetchPoolMeta(context.Background(), caller, testPool, tokens, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.ReserveToken.Symbol != "USDC" || meta.SecondaryToken.Symbol != "BLTM" {
		t.Fatalf("meta mismatch: %+v", meta)
	}
	if _, ok := tokens.Get(testSecondary); !ok {
		t.Fatalf("secondary token not cached")
	}
}

func TestFetchPoolStateWithoutReserve(t *testing.T) {
	caller := newFakeCaller(t)
	caller.poolState(testPool, 5, 0, 0)
	state, err := FetchPoolState(context.Background(), caller, testPool, common.Address{}, 0)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.Rate != "5" || state.Custody != "" {
		t.Fatalf("state mismatch: %+v", state)
	}
}

func TestERC20Reads(t *testing.T) {
	caller := newFakeCaller(t)
	parsed, _ := erc20ABIStringInstance()
	caller.balance(testReserve, testUser, 42)
	caller.set(testReserve, parsed, "allowance", []interface{}{testUser, testPool}, big.NewInt(7))
	caller.set(testReserve, parsed, "totalSupply", nil, big.NewInt(1000))
	caller.set(testSecondary, parsed, "paused", nil, true)

	ctx := context.Background()
	if bal, err := BalanceOf(ctx, caller, testReserve, testUser, 0); err != nil || bal.Int64() != 42 {
		t.Fatalf("balance: %v %v", bal, err)
	}
	if allowance, err := Allowance(ctx, caller, testReserve, testUser, testPool); err != nil || allowance.Int64() != 7 {
		t.Fatalf("allowance: %v %v", allowance, err)
	}
	if supply, err := TotalSupply(ctx, caller, testReserve); err != nil || supply.Int64() != 1000 {
		t.Fatalf("supply: %v %v", supply, err)
	}
	if paused, err := Paused(ctx, caller, testSecondary); err != nil || !paused {
		t.Fatalf("paused: %v %v", paused, err)
	}
	if _, err := BalanceOf(ctx, nil, testReserve, testUser, 0); err == nil {
		t.Fatalf("expected nil caller error")
	}
}
