package pool

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"royaltyPool/internal/access"
	"royaltyPool/internal/events"
	"royaltyPool/internal/poolerr"
	"royaltyPool/internal/token"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	user     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	stranger = common.HexToAddress("0x00000000000000000000000000000000000000c3")
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000f0")
)

type fixture struct {
	ctx       context.Context
	reserve   *token.Token
	secondary *token.Mintable
	pool      *Pool
	recorder  *events.Recorder
}

func newFixture(t *testing.T, rate int64) *fixture {
	t.Helper()
	return newFixtureWithReserve(t, rate, nil)
}

func newFixtureWithReserve(t *testing.T, rate int64, wrap func(*token.Token) ReserveToken) *fixture {
	t.Helper()
	ctx := context.Background()
	reserve := token.New("USD Coin", "USDC", 6)
	secondary := token.NewMintable("BLTM", "BLTM", 6, owner)
	recorder := &events.Recorder{}

	var reserveToken ReserveToken = reserve
	if wrap != nil {
		reserveToken = wrap(reserve)
	}
	p, err := Deploy(ctx, Config{
		Address:   poolAddr,
		Deployer:  owner,
		Reserve:   reserveToken,
		Secondary: secondary,
		Rate:      big.NewInt(rate),
		Emitter:   recorder,
	})
	require.NoError(t, err)
	require.NoError(t, secondary.Gate().Grant(owner, access.RoleMinter, poolAddr))

	require.NoError(t, reserve.Faucet(ctx, user, big.NewInt(1_000_000)))
	require.NoError(t, reserve.Approve(ctx, user, poolAddr, big.NewInt(1_000_000)))
	require.NoError(t, secondary.Approve(ctx, user, poolAddr, big.NewInt(1_000_000_000)))

	return &fixture{ctx: ctx, reserve: reserve, secondary: secondary, pool: p, recorder: recorder}
}

func (f *fixture) reserveOf(t *testing.T, account common.Address) int64 {
	t.Helper()
	bal, err := f.reserve.BalanceOf(f.ctx, account)
	require.NoError(t, err)
	return bal.Int64()
}

func (f *fixture) secondaryOf(t *testing.T, account common.Address) int64 {
	t.Helper()
	bal, err := f.secondary.BalanceOf(f.ctx, account)
	require.NoError(t, err)
	return bal.Int64()
}

func (f *fixture) available(t *testing.T) int64 {
	t.Helper()
	available, err := f.pool.AvailableReserve(f.ctx)
	require.NoError(t, err)
	return available.Int64()
}

func (f *fixture) royalty() int64 {
	return f.pool.RoyaltyBalance(f.ctx).Int64()
}

func TestDeployRejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()
	reserve := token.New("USD Coin", "USDC", 6)
	secondary := token.NewMintable("BLTM", "BLTM", 6, owner)

	_, err := Deploy(ctx, Config{Address: poolAddr, Deployer: owner, Reserve: reserve, Secondary: secondary, Rate: big.NewInt(0)})
	require.ErrorIs(t, err, poolerr.ErrInvalidRate)

	_, err = Deploy(ctx, Config{Deployer: owner, Reserve: reserve, Secondary: secondary, Rate: big.NewInt(1)})
	require.Error(t, err)

	p, err := Deploy(ctx, Config{Address: poolAddr, Deployer: owner, Reserve: reserve, Secondary: secondary, Rate: big.NewInt(3)})
	require.NoError(t, err)
	require.EqualValues(t, 3, p.Rate(ctx).Int64())
	require.EqualValues(t, 0, p.RoyaltyBalance(ctx).Int64())
	require.True(t, p.Gate().HasRole(owner, access.RoleOwner))
	require.False(t, p.Gate().HasRole(owner, access.RoleMinter))
}

func TestComputeRoyalty(t *testing.T) {
	for amount := int64(1); amount <= 1000; amount++ {
		royalty, net := ComputeRoyalty(big.NewInt(amount))
		require.EqualValues(t, amount*2/100, royalty.Int64())
		require.EqualValues(t, amount, new(big.Int).Add(royalty, net).Int64())
	}

	huge, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	royalty, net := ComputeRoyalty(huge)
	require.Zero(t, new(big.Int).Add(royalty, net).Cmp(huge))
}

func TestSwapReserveForSecondary(t *testing.T) {
	f := newFixture(t, 2)

	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(100)))

	require.EqualValues(t, 1_000_000-100, f.reserveOf(t, user))
	require.EqualValues(t, 200, f.secondaryOf(t, user))
	require.EqualValues(t, 100, f.reserveOf(t, poolAddr))
	require.EqualValues(t, 2, f.royalty())
	require.EqualValues(t, 98, f.available(t))

	recorded := f.recorder.Events()
	require.Len(t, recorded, 1)
	swapped, ok := recorded[0].(Swapped)
	require.True(t, ok)
	require.Equal(t, user, swapped.User)
	require.Equal(t, poolAddr, swapped.Pool)
	require.EqualValues(t, 100, swapped.ReserveAmount.Int64())
	require.EqualValues(t, 200, swapped.SecondaryAmount.Int64())
	require.EqualValues(t, 2, swapped.Royalty.Int64())
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t, 2)
	start := f.reserveOf(t, user)

	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(100)))
	require.EqualValues(t, 2, f.royalty())
	require.EqualValues(t, 200, f.secondaryOf(t, user))

	require.NoError(t, f.pool.SwapSecondaryForReserve(f.ctx, user, big.NewInt(200)))
	require.EqualValues(t, 4, f.royalty())
	require.EqualValues(t, 0, f.secondaryOf(t, user))
	require.EqualValues(t, start-100+98, f.reserveOf(t, user))
	require.EqualValues(t, 2, f.reserveOf(t, poolAddr))
	require.EqualValues(t, 0, f.available(t))

	recorded := f.recorder.Events()
	require.Len(t, recorded, 2)
	redeemed, ok := recorded[1].(Redeemed)
	require.True(t, ok)
	require.EqualValues(t, 98, redeemed.ReserveAmount.Int64())
	require.EqualValues(t, 200, redeemed.SecondaryAmount.Int64())
	require.EqualValues(t, 2, redeemed.Royalty.Int64())

	supply, err := f.secondary.TotalSupply(f.ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, supply.Int64())
}

func TestRedeemRequiresAvailableReserve(t *testing.T) {
	f := newFixture(t, 2)
	require.NoError(t, f.secondary.Mint(f.ctx, owner, user, big.NewInt(200)))

	err := f.pool.SwapSecondaryForReserve(f.ctx, user, big.NewInt(200))
	require.ErrorIs(t, err, poolerr.ErrInsufficientLiquidity)
	require.EqualValues(t, 200, f.secondaryOf(t, user))
	require.EqualValues(t, 0, f.royalty())
	require.Empty(t, f.recorder.Events())
}

func TestRedeemIgnoresRoyaltyForLiquidity(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(1000)))
	require.EqualValues(t, 980, f.available(t))

	// A second holder tries to drain the royalty as well.
	require.NoError(t, f.secondary.Mint(f.ctx, owner, stranger, big.NewInt(2000)))
	require.NoError(t, f.secondary.Approve(f.ctx, stranger, poolAddr, big.NewInt(2000)))

	err := f.pool.SwapSecondaryForReserve(f.ctx, stranger, big.NewInt(1001))
	require.ErrorIs(t, err, poolerr.ErrInsufficientLiquidity)

	require.NoError(t, f.pool.SwapSecondaryForReserve(f.ctx, stranger, big.NewInt(1000)))
	require.EqualValues(t, 980, f.reserveOf(t, stranger))
	require.EqualValues(t, 40, f.royalty())
}

func TestRedeemBelowRateIsInvalid(t *testing.T) {
	f := newFixture(t, 10)
	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(100)))

	err := f.pool.SwapSecondaryForReserve(f.ctx, user, big.NewInt(9))
	require.ErrorIs(t, err, poolerr.ErrInvalidAmount)
	require.EqualValues(t, 1000, f.secondaryOf(t, user))
}

func TestRedeemBurnsDust(t *testing.T) {
	f := newFixture(t, 3)
	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(1000)))

	before := f.reserveOf(t, user)
	require.NoError(t, f.pool.SwapSecondaryForReserve(f.ctx, user, big.NewInt(302)))
	// 302/3 = 100 reserve equivalent, 2 royalty, 98 paid. All 302 units are burned.
	require.EqualValues(t, before+98, f.reserveOf(t, user))
	require.EqualValues(t, 3000-302, f.secondaryOf(t, user))
	require.EqualValues(t, 20+2, f.royalty())
}

func TestSwapRejectsBadInput(t *testing.T) {
	f := newFixture(t, 2)

	for _, amount := range []*big.Int{nil, big.NewInt(0), big.NewInt(-5)} {
		require.ErrorIs(t, f.pool.SwapReserveForSecondary(f.ctx, user, amount), poolerr.ErrInvalidAmount)
		require.ErrorIs(t, f.pool.SwapSecondaryForReserve(f.ctx, user, amount), poolerr.ErrInvalidAmount)
	}

	err := f.pool.SwapReserveForSecondary(f.ctx, stranger, big.NewInt(10))
	require.ErrorIs(t, err, poolerr.ErrInsufficientBalance)

	require.NoError(t, f.reserve.Faucet(f.ctx, stranger, big.NewInt(10)))
	err = f.pool.SwapReserveForSecondary(f.ctx, stranger, big.NewInt(10))
	require.ErrorIs(t, err, poolerr.ErrInsufficientAllowance)

	err = f.pool.Swap(f.ctx, user, big.NewInt(10), Direction(9))
	require.ErrorIs(t, err, poolerr.ErrInvalidAmount)

	require.EqualValues(t, 0, f.royalty())
	require.EqualValues(t, 0, f.reserveOf(t, poolAddr))
	require.Empty(t, f.recorder.Events())
}

func TestRedeemChecksSecondaryAllowance(t *testing.T) {
	f := newFixture(t, 2)
	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(100)))
	require.NoError(t, f.secondary.Approve(f.ctx, user, poolAddr, big.NewInt(10)))

	err := f.pool.SwapSecondaryForReserve(f.ctx, user, big.NewInt(200))
	require.ErrorIs(t, err, poolerr.ErrInsufficientAllowance)

	err = f.pool.SwapSecondaryForReserve(f.ctx, user, big.NewInt(201))
	require.ErrorIs(t, err, poolerr.ErrInsufficientBalance)
}

func TestSwapWhilePaused(t *testing.T) {
	f := newFixture(t, 2)
	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(100)))
	require.NoError(t, f.secondary.Pause(f.ctx, owner))

	require.ErrorIs(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(100)), poolerr.ErrPaused)
	require.ErrorIs(t, f.pool.SwapSecondaryForReserve(f.ctx, user, big.NewInt(100)), poolerr.ErrPaused)
	require.EqualValues(t, 2, f.royalty())
	require.EqualValues(t, 100, f.reserveOf(t, poolAddr))
	require.Len(t, f.recorder.Events(), 1)

	require.NoError(t, f.secondary.Unpause(f.ctx, owner))
	require.NoError(t, f.pool.SwapSecondaryForReserve(f.ctx, user, big.NewInt(100)))
}

func TestMintFailureIsCompensated(t *testing.T) {
	f := newFixture(t, 2)
	require.NoError(t, f.secondary.Gate().Revoke(owner, access.RoleMinter, poolAddr))

	err := f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(100))
	require.ErrorIs(t, err, poolerr.ErrUnauthorized)
	require.EqualValues(t, 1_000_000, f.reserveOf(t, user))
	require.EqualValues(t, 0, f.reserveOf(t, poolAddr))
	require.EqualValues(t, 0, f.royalty())
	require.Empty(t, f.recorder.Events())
}

func TestSetRate(t *testing.T) {
	f := newFixture(t, 2)

	require.ErrorIs(t, f.pool.SetRate(f.ctx, user, big.NewInt(5)), poolerr.ErrUnauthorized)
	require.ErrorIs(t, f.pool.SetRate(f.ctx, owner, big.NewInt(0)), poolerr.ErrInvalidRate)
	require.ErrorIs(t, f.pool.SetRate(f.ctx, owner, nil), poolerr.ErrInvalidRate)
	require.EqualValues(t, 2, f.pool.Rate(f.ctx).Int64())

	require.NoError(t, f.pool.SetRate(f.ctx, owner, big.NewInt(5)))
	require.EqualValues(t, 5, f.pool.Rate(f.ctx).Int64())

	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(10)))
	require.EqualValues(t, 50, f.secondaryOf(t, user))

	recorded := f.recorder.Events()
	require.Len(t, recorded, 2)
	updated, ok := recorded[0].(RateUpdated)
	require.True(t, ok)
	require.EqualValues(t, 2, updated.OldRate.Int64())
	require.EqualValues(t, 5, updated.NewRate.Int64())
}

func TestWithdrawRoyalties(t *testing.T) {
	f := newFixture(t, 2)
	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(1000)))
	require.EqualValues(t, 20, f.royalty())
	availableBefore := f.available(t)

	require.ErrorIs(t, f.pool.WithdrawRoyalties(f.ctx, user, big.NewInt(1)), poolerr.ErrUnauthorized)
	require.ErrorIs(t, f.pool.WithdrawRoyalties(f.ctx, owner, big.NewInt(0)), poolerr.ErrInvalidAmount)
	require.ErrorIs(t, f.pool.WithdrawRoyalties(f.ctx, owner, big.NewInt(21)), poolerr.ErrExceedsRoyaltyBalance)

	require.NoError(t, f.pool.WithdrawRoyalties(f.ctx, owner, f.pool.RoyaltyBalance(f.ctx)))
	require.EqualValues(t, 0, f.royalty())
	require.EqualValues(t, 20, f.reserveOf(t, owner))
	require.EqualValues(t, availableBefore, f.available(t))

	recorded := f.recorder.Events()
	require.Len(t, recorded, 2)
	withdrawn, ok := recorded[1].(RoyaltiesWithdrawn)
	require.True(t, ok)
	require.EqualValues(t, 20, withdrawn.Amount.Int64())
}

func TestWithdrawRollsBackWhenCustodyIsShort(t *testing.T) {
	f := newFixture(t, 2)
	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(100)))
	require.NoError(t, f.pool.SwapSecondaryForReserve(f.ctx, user, big.NewInt(200)))
	require.EqualValues(t, 4, f.royalty())
	require.EqualValues(t, 2, f.reserveOf(t, poolAddr))

	err := f.pool.WithdrawRoyalties(f.ctx, owner, big.NewInt(4))
	require.ErrorIs(t, err, poolerr.ErrInsufficientBalance)
	require.EqualValues(t, 4, f.royalty())

	require.NoError(t, f.pool.WithdrawRoyalties(f.ctx, owner, big.NewInt(2)))
	require.EqualValues(t, 2, f.royalty())
	require.EqualValues(t, 0, f.reserveOf(t, poolAddr))
}

func TestAvailableReserveInvariant(t *testing.T) {
	f := newFixture(t, 4)
	check := func() {
		t.Helper()
		custody := f.reserveOf(t, poolAddr)
		require.EqualValues(t, custody-f.royalty(), f.available(t))
	}

	check()
	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(5000)))
	check()
	require.NoError(t, f.pool.SwapSecondaryForReserve(f.ctx, user, big.NewInt(4000)))
	check()
	require.NoError(t, f.pool.WithdrawRoyalties(f.ctx, owner, big.NewInt(50)))
	check()
	require.NoError(t, f.pool.SetRate(f.ctx, owner, big.NewInt(7)))
	check()
}

type reentrantReserve struct {
	*token.Token
	onTransferFrom func(ctx context.Context)
}

func (r *reentrantReserve) TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error {
	if r.onTransferFrom != nil {
		r.onTransferFrom(ctx)
	}
	return r.Token.TransferFrom(ctx, spender, from, to, amount)
}

func TestReentrantCallsAreRejected(t *testing.T) {
	var wrapper *reentrantReserve
	f := newFixtureWithReserve(t, 2, func(tok *token.Token) ReserveToken {
		wrapper = &reentrantReserve{Token: tok}
		return wrapper
	})

	var nestedErrs []error
	var nestedRate, nestedRoyalty int64
	wrapper.onTransferFrom = func(ctx context.Context) {
		nestedErrs = append(nestedErrs,
			f.pool.SwapReserveForSecondary(ctx, user, big.NewInt(10)),
			f.pool.SwapSecondaryForReserve(ctx, user, big.NewInt(10)),
			f.pool.SetRate(ctx, owner, big.NewInt(9)),
			f.pool.WithdrawRoyalties(ctx, owner, big.NewInt(1)),
		)
		nestedRate = f.pool.Rate(ctx).Int64()
		nestedRoyalty = f.pool.RoyaltyBalance(ctx).Int64()
	}

	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(100)))

	require.Len(t, nestedErrs, 4)
	for _, err := range nestedErrs {
		require.ErrorIs(t, err, poolerr.ErrReentrantCall)
	}
	require.EqualValues(t, 2, nestedRate)
	require.EqualValues(t, 2, nestedRoyalty)

	require.EqualValues(t, 2, f.pool.Rate(f.ctx).Int64())
	require.EqualValues(t, 2, f.royalty())
	require.EqualValues(t, 200, f.secondaryOf(t, user))
	require.Len(t, f.recorder.Events(), 1)
}

func TestConcurrentSwapsSerialize(t *testing.T) {
	f := newFixture(t, 3)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(100)))
		}()
	}
	wg.Wait()

	require.EqualValues(t, 50*2, f.royalty())
	require.EqualValues(t, 50*100, f.reserveOf(t, poolAddr))
	require.EqualValues(t, 50*300, f.secondaryOf(t, user))
	require.Len(t, f.recorder.Events(), 50)
}

func TestQuote(t *testing.T) {
	f := newFixture(t, 2)

	q, err := f.pool.Quote(f.ctx, DirectionReserveToSecondary, big.NewInt(100))
	require.NoError(t, err)
	require.EqualValues(t, 200, q.Out.Int64())
	require.EqualValues(t, 2, q.Royalty.Int64())

	q, err = f.pool.Quote(f.ctx, DirectionSecondaryToReserve, big.NewInt(200))
	require.NoError(t, err)
	require.EqualValues(t, 98, q.Out.Int64())
	require.EqualValues(t, 2, q.Royalty.Int64())

	_, err = f.pool.Quote(f.ctx, DirectionSecondaryToReserve, big.NewInt(1))
	require.ErrorIs(t, err, poolerr.ErrInvalidAmount)
	_, err = f.pool.Quote(f.ctx, DirectionReserveToSecondary, big.NewInt(0))
	require.ErrorIs(t, err, poolerr.ErrInvalidAmount)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("deposit")
	require.NoError(t, err)
	require.Equal(t, DirectionReserveToSecondary, d)

	d, err = ParseDirection(DirectionSecondaryToReserve.String())
	require.NoError(t, err)
	require.Equal(t, DirectionSecondaryToReserve, d)

	_, err = ParseDirection("sideways")
	require.Error(t, err)
}

func TestSnapshotRestore(t *testing.T) {
	f := newFixture(t, 2)
	require.NoError(t, f.pool.SwapReserveForSecondary(f.ctx, user, big.NewInt(1000)))
	require.NoError(t, f.pool.Gate().Grant(owner, access.RoleOwner, stranger))

	snap, err := f.pool.Snapshot(f.ctx)
	require.NoError(t, err)
	require.Equal(t, "2", snap.Rate)
	require.Equal(t, "20", snap.RoyaltyBalance)

	other := newFixture(t, 9)
	bad := snap
	bad.Rate = "0"
	require.ErrorIs(t, other.pool.Restore(other.ctx, bad), poolerr.ErrInvalidRate)
	bad = snap
	bad.Address = stranger.Hex()
	require.Error(t, other.pool.Restore(other.ctx, bad))

	require.NoError(t, other.pool.Restore(other.ctx, snap))
	require.EqualValues(t, 2, other.pool.Rate(other.ctx).Int64())
	require.EqualValues(t, 20, other.royalty())
	require.True(t, other.pool.Gate().HasRole(stranger, access.RoleOwner))
}
