package forge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-forge/internal/asset"
	"token-forge/internal/domain"
	"token-forge/internal/roles"
	"token-forge/internal/storage"
	"token-forge/internal/storage/memory"
)

// fakeClock is a manually advanced clock for time-lock tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1704067200000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fixture wires an engine against in-memory collaborators.
type fixture struct {
	engine   *Engine
	clock    *fakeClock
	bank     *asset.Bank
	gupc     *asset.Token
	gupcAddr domain.Address

	admin        domain.Address
	alice        domain.Address
	bob          domain.Address
	feeRecipient domain.Address
	users        []domain.Address
}

var (
	ethFee  = uint256.MustFromDecimal("20000000000000000") // 0.02 * 1e18
	gupcFee = uint256.MustFromDecimal("10000000000000000") // 0.01 * 1e18
)

const (
	ipfsHash1 = "Qmbd1guB9bi3hKEYGGvQJYNvDUpCeuW3y4J7ydJtHfYMF6"
	ipfsHash2 = "QmTo5Vo3q2xF7Q4vCqkEN3iEuowVyo8rJtBXXQJw5rnXMB"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		clock:        newFakeClock(),
		bank:         asset.NewBank(),
		gupc:         asset.NewToken("GUPC"),
		gupcAddr:     domain.MustGenerateAddress(),
		admin:        domain.MustGenerateAddress(),
		alice:        domain.MustGenerateAddress(),
		bob:          domain.MustGenerateAddress(),
		feeRecipient: domain.MustGenerateAddress(),
	}
	for i := 0; i < 3; i++ {
		f.users = append(f.users, domain.MustGenerateAddress())
	}

	registry := asset.NewRegistry()
	registry.Register(f.gupcAddr, f.gupc)

	// Fund buyers: plenty of native for alice, 1000 GUPC for alice and bob
	require.NoError(t, f.bank.Deposit(ctx, f.alice, uint256.MustFromDecimal("10000000000000000000"))) // 10e18
	thousand := uint256.MustFromDecimal("1000000000000000000000")
	require.NoError(t, f.gupc.Mint(ctx, f.alice, thousand))
	require.NoError(t, f.gupc.Mint(ctx, f.bob, thousand))

	engine, err := New(ctx, Options{
		Stores: Stores{
			Records:   memory.NewTokenRecordStore(),
			Balances:  memory.NewBalanceStore(),
			Roles:     memory.NewRoleStore(),
			Config:    memory.NewConfigStore(),
			Approvals: memory.NewApprovalStore(),
		},
		Self:  domain.MustGenerateAddress(),
		Admin: f.admin,
		Fees: &domain.FeeConfig{
			NativeFee:    ethFee,
			FungibleFee:  gupcFee,
			FeeRecipient: f.feeRecipient,
		},
		Bank:         f.bank,
		PaymentToken: f.gupc,
		Oracle:       registry,
		Now:          f.clock.Now,
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

// expiryIn returns an expiry timestamp d after the fixture clock's now.
func (f *fixture) expiryIn(d time.Duration) int64 {
	return f.clock.Now().Add(d).UnixMilli()
}

// cost returns fee × quantity.
func cost(fee *uint256.Int, quantity uint64) *uint256.Int {
	return new(uint256.Int).Mul(fee, uint256.NewInt(quantity))
}

func TestEngine_InitialValues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cfg, err := f.engine.Fees(ctx)
	require.NoError(t, err)
	assert.Zero(t, ethFee.Cmp(cfg.NativeFee))
	assert.Zero(t, gupcFee.Cmp(cfg.FungibleFee))
	assert.Equal(t, f.feeRecipient, cfg.FeeRecipient)

	id, err := f.engine.CurrentTokenID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	held, err := f.engine.HasRole(ctx, roles.Admin, f.admin)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestEngine_BuyWithNative_RejectsUnderpayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := PurchaseRequest{
		Quantity:        50,
		ThresholdAsset:  &f.gupcAddr,
		ThresholdAmount: uint256.NewInt(2),
		Expiry:          f.expiryIn(10 * time.Second),
		ContentRef:      ipfsHash1,
	}

	_, err := f.engine.BuyWithNative(ctx, f.alice, req, uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	// Nothing minted, nothing paid
	id, _ := f.engine.CurrentTokenID(ctx)
	assert.Equal(t, uint64(0), id)
	recipientBal, _ := f.bank.BalanceOf(ctx, f.feeRecipient)
	assert.True(t, recipientBal.IsZero())
}

func TestEngine_BuyWithNative_ExactPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buyerBefore, _ := f.bank.BalanceOf(ctx, f.alice)
	paid := cost(ethFee, 50)

	req := PurchaseRequest{
		Quantity:        50,
		ThresholdAsset:  &f.gupcAddr,
		ThresholdAmount: uint256.MustFromDecimal("2000000000000000000"), // 2 GUPC
		Expiry:          f.expiryIn(10 * time.Second),
		ContentRef:      ipfsHash1,
	}

	id, err := f.engine.BuyWithNative(ctx, f.alice, req, paid)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	balance, err := f.engine.BalanceOf(ctx, 0, f.alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), balance)

	// Exactly quantity × fee left the buyer
	buyerAfter, _ := f.bank.BalanceOf(ctx, f.alice)
	spent := new(uint256.Int).Sub(buyerBefore, buyerAfter)
	assert.Zero(t, paid.Cmp(spent))

	recipientBal, _ := f.bank.BalanceOf(ctx, f.feeRecipient)
	assert.Zero(t, paid.Cmp(recipientBal))
}

func TestEngine_BuyWithNative_OverpaymentForwardedInFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := cost(ethFee, 2)
	req := PurchaseRequest{
		Quantity:   1,
		Expiry:     f.expiryIn(10 * time.Second),
		ContentRef: ipfsHash1,
	}

	_, err := f.engine.BuyWithNative(ctx, f.alice, req, paid)
	require.NoError(t, err)

	recipientBal, _ := f.bank.BalanceOf(ctx, f.feeRecipient)
	assert.Zero(t, paid.Cmp(recipientBal))
}

func TestEngine_BuyWithFungible_RequiresAllowance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := PurchaseRequest{
		Quantity:   50,
		Expiry:     f.expiryIn(10 * time.Second),
		ContentRef: ipfsHash2,
	}

	_, err := f.engine.BuyWithFungible(ctx, f.bob, req)
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	id, _ := f.engine.CurrentTokenID(ctx)
	assert.Equal(t, uint64(0), id)
}

func TestEngine_BuyWithFungible(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// id 0 via native first, so the fungible purchase gets id 1
	_, err := f.engine.BuyWithNative(ctx, f.alice, PurchaseRequest{
		Quantity:        50,
		ThresholdAsset:  &f.gupcAddr,
		ThresholdAmount: uint256.MustFromDecimal("2000000000000000000"),
		Expiry:          f.expiryIn(10 * time.Second),
		ContentRef:      ipfsHash1,
	}, cost(ethFee, 50))
	require.NoError(t, err)

	total := cost(gupcFee, 50)
	require.NoError(t, f.gupc.Approve(ctx, f.bob, f.engine.Self(), total))

	id, err := f.engine.BuyWithFungible(ctx, f.bob, PurchaseRequest{
		Quantity:   50,
		Expiry:     f.expiryIn(10 * time.Second),
		ContentRef: ipfsHash2,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	balance, _ := f.engine.BalanceOf(ctx, 1, f.bob)
	assert.Equal(t, uint64(50), balance)

	recipientBal, _ := f.gupc.BalanceOf(ctx, f.feeRecipient)
	assert.Zero(t, total.Cmp(recipientBal))

	// Freshly minted, time lock still running
	ok, err := f.engine.CanBurn(ctx, 1, f.bob)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_BuyWithFungible_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// An approved buyer with no payment-token balance
	pauper := domain.MustGenerateAddress()
	require.NoError(t, f.gupc.Approve(ctx, pauper, f.engine.Self(), cost(gupcFee, 5)))

	_, err := f.engine.BuyWithFungible(ctx, pauper, PurchaseRequest{
		Quantity:   5,
		Expiry:     f.expiryIn(10 * time.Second),
		ContentRef: ipfsHash2,
	})
	assert.ErrorIs(t, err, ErrInsufficientPayment)

	id, _ := f.engine.CurrentTokenID(ctx)
	assert.Equal(t, uint64(0), id)
	recipientBal, _ := f.gupc.BalanceOf(ctx, f.feeRecipient)
	assert.True(t, recipientBal.IsZero())
}

func TestEngine_TokenIDsStrictlyIncreasing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for want := uint64(0); want < 4; want++ {
		var (
			id  uint64
			err error
		)
		if want%2 == 0 {
			id, err = f.engine.BuyWithNative(ctx, f.alice, PurchaseRequest{
				Quantity:   1,
				Expiry:     f.expiryIn(10 * time.Second),
				ContentRef: ipfsHash1,
			}, cost(ethFee, 1))
		} else {
			require.NoError(t, f.gupc.Approve(ctx, f.bob, f.engine.Self(), cost(gupcFee, 1)))
			id, err = f.engine.BuyWithFungible(ctx, f.bob, PurchaseRequest{
				Quantity:   1,
				Expiry:     f.expiryIn(10 * time.Second),
				ContentRef: ipfsHash2,
			})
		}
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestEngine_BuyRejectsZeroQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.BuyWithNative(ctx, f.alice, PurchaseRequest{
		Quantity:   0,
		Expiry:     f.expiryIn(10 * time.Second),
		ContentRef: ipfsHash1,
	}, uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = f.engine.BuyWithFungible(ctx, f.bob, PurchaseRequest{
		Quantity:   0,
		Expiry:     f.expiryIn(10 * time.Second),
		ContentRef: ipfsHash2,
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

// mintGated mints one token id gated on 2 GUPC with a 10s time lock and
// hands one unit each to the three fixture users.
func (f *fixture) mintGated(t *testing.T) uint64 {
	t.Helper()
	ctx := context.Background()

	id, err := f.engine.BuyWithNative(ctx, f.alice, PurchaseRequest{
		Quantity:        50,
		ThresholdAsset:  &f.gupcAddr,
		ThresholdAmount: uint256.MustFromDecimal("2000000000000000000"),
		Expiry:          f.expiryIn(10 * time.Second),
		ContentRef:      ipfsHash1,
	}, cost(ethFee, 50))
	require.NoError(t, err)

	for _, user := range f.users {
		require.NoError(t, f.engine.Transfer(ctx, f.alice, f.alice, user, id, 1))
	}
	return id
}

func TestEngine_CanBurn_TimeLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)

	// Before expiry: never eligible, whatever the balances
	ok, err := f.engine.CanBurn(ctx, id, f.users[0])
	require.NoError(t, err)
	assert.False(t, ok)

	f.clock.Advance(11 * time.Second)

	// After expiry with balance below threshold: eligible
	ok, err = f.engine.CanBurn(ctx, id, f.users[0])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngine_CanBurn_ThresholdExemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)
	f.clock.Advance(11 * time.Second)

	// Fund user to exactly the threshold: exempt
	twoGUPC := uint256.MustFromDecimal("2000000000000000000")
	require.NoError(t, f.gupc.Mint(ctx, f.users[0], twoGUPC))

	ok, err := f.engine.CanBurn(ctx, id, f.users[0])
	require.NoError(t, err)
	assert.False(t, ok, "holding the threshold amount must exempt the holder")

	// Dropping strictly below the threshold restores eligibility
	require.NoError(t, f.gupc.Transfer(ctx, f.users[0], f.alice, uint256.NewInt(1)))

	ok, err = f.engine.CanBurn(ctx, id, f.users[0])
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngine_CanBurn_NoThresholdAsset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No threshold asset: only the time lock gates burning
	id, err := f.engine.BuyWithNative(ctx, f.alice, PurchaseRequest{
		Quantity:   1,
		Expiry:     f.expiryIn(10 * time.Second),
		ContentRef: ipfsHash2,
	}, cost(ethFee, 1))
	require.NoError(t, err)

	ok, err := f.engine.CanBurn(ctx, id, f.alice)
	require.NoError(t, err)
	assert.False(t, ok)

	f.clock.Advance(11 * time.Second)

	ok, err = f.engine.CanBurn(ctx, id, f.alice)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEngine_CanBurn_UnknownToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.CanBurn(context.Background(), 42, f.alice)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestEngine_BurnOne_AuthorizationBeforeEligibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)

	// Non-burner, token not yet eligible: authorization failure wins
	err := f.engine.BurnOne(ctx, f.alice, id, f.users[0])
	assert.ErrorIs(t, err, ErrUnauthorized)

	f.clock.Advance(11 * time.Second)

	// Non-burner, token eligible: still unauthorized
	err = f.engine.BurnOne(ctx, f.alice, id, f.users[0])
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEngine_BurnOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)
	require.NoError(t, f.engine.GrantRole(ctx, f.admin, roles.Burner, f.admin))

	// Burner but not yet eligible
	err := f.engine.BurnOne(ctx, f.admin, id, f.users[0])
	assert.ErrorIs(t, err, ErrNotYetEligible)

	f.clock.Advance(11 * time.Second)

	supplyBefore, _ := f.engine.TotalSupply(ctx, id)

	require.NoError(t, f.engine.BurnOne(ctx, f.admin, id, f.users[0]))

	balance, _ := f.engine.BalanceOf(ctx, id, f.users[0])
	assert.Equal(t, uint64(0), balance)

	supplyAfter, _ := f.engine.TotalSupply(ctx, id)
	assert.Equal(t, supplyBefore-1, supplyAfter)

	// The drained holder has nothing left to burn
	err = f.engine.BurnOne(ctx, f.admin, id, f.users[0])
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestEngine_BurnBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)
	require.NoError(t, f.engine.GrantRole(ctx, f.admin, roles.Burner, f.admin))
	f.clock.Advance(11 * time.Second)

	ids := []uint64{id, id, id}
	holders := []domain.Address{f.users[0], f.users[1], f.users[2]}

	require.NoError(t, f.engine.BurnBatch(ctx, f.admin, ids, holders))

	for _, user := range f.users {
		balance, _ := f.engine.BalanceOf(ctx, id, user)
		assert.Equal(t, uint64(0), balance)
	}
}

func TestEngine_BurnBatch_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)
	require.NoError(t, f.engine.GrantRole(ctx, f.admin, roles.Burner, f.admin))
	f.clock.Advance(11 * time.Second)

	// Exempt the middle holder; the whole batch must be rejected
	twoGUPC := uint256.MustFromDecimal("2000000000000000000")
	require.NoError(t, f.gupc.Mint(ctx, f.users[1], twoGUPC))

	ids := []uint64{id, id, id}
	holders := []domain.Address{f.users[0], f.users[1], f.users[2]}

	err := f.engine.BurnBatch(ctx, f.admin, ids, holders)
	assert.ErrorIs(t, err, ErrNotYetEligible)

	for _, user := range f.users {
		balance, _ := f.engine.BalanceOf(ctx, id, user)
		assert.Equal(t, uint64(1), balance, "no balance may change when the batch fails")
	}
}

func TestEngine_BurnBatch_DuplicatePairsNeedBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)
	require.NoError(t, f.engine.GrantRole(ctx, f.admin, roles.Burner, f.admin))
	f.clock.Advance(11 * time.Second)

	// users[0] holds a single unit; burning it twice in one batch must fail
	ids := []uint64{id, id}
	holders := []domain.Address{f.users[0], f.users[0]}

	err := f.engine.BurnBatch(ctx, f.admin, ids, holders)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	balance, _ := f.engine.BalanceOf(ctx, id, f.users[0])
	assert.Equal(t, uint64(1), balance)
}

func TestEngine_BurnBatch_LengthMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)
	require.NoError(t, f.engine.GrantRole(ctx, f.admin, roles.Burner, f.admin))

	err := f.engine.BurnBatch(ctx, f.admin, []uint64{id}, nil)
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestEngine_Transfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.engine.BuyWithNative(ctx, f.alice, PurchaseRequest{
		Quantity:        50,
		ThresholdAsset:  &f.gupcAddr,
		ThresholdAmount: uint256.NewInt(2),
		Expiry:          f.expiryIn(10 * time.Second),
		ContentRef:      ipfsHash1,
	}, cost(ethFee, 50))
	require.NoError(t, err)

	for _, user := range f.users {
		require.NoError(t, f.engine.Transfer(ctx, f.alice, f.alice, user, id, 1))
		balance, _ := f.engine.BalanceOf(ctx, id, user)
		assert.Equal(t, uint64(1), balance)
	}

	aliceBalance, _ := f.engine.BalanceOf(ctx, id, f.alice)
	assert.Equal(t, uint64(47), aliceBalance)
}

func TestEngine_Transfer_PreservesTokenRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)

	before, err := f.engine.TokenRecord(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.engine.Transfer(ctx, f.alice, f.alice, f.bob, id, 5))

	after, err := f.engine.TokenRecord(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before.Expiry, after.Expiry)
	assert.Equal(t, *before.ThresholdAsset, *after.ThresholdAsset)
	assert.Zero(t, before.ThresholdAmount.Cmp(after.ThresholdAmount))
	assert.Equal(t, before.ContentRef, after.ContentRef)
}

func TestEngine_Transfer_RequiresOwnerOrOperator(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)

	err := f.engine.Transfer(ctx, f.bob, f.alice, f.bob, id, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.engine.SetApprovalForAll(ctx, f.alice, f.bob, true))
	require.NoError(t, f.engine.Transfer(ctx, f.bob, f.alice, f.bob, id, 1))

	bobBalance, _ := f.engine.BalanceOf(ctx, id, f.bob)
	assert.Equal(t, uint64(1), bobBalance)

	require.NoError(t, f.engine.SetApprovalForAll(ctx, f.alice, f.bob, false))
	err = f.engine.Transfer(ctx, f.bob, f.alice, f.bob, id, 1)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEngine_Transfer_RejectsZeroAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)

	supplyBefore, err := f.engine.TotalSupply(ctx, id)
	require.NoError(t, err)
	balanceBefore, err := f.engine.BalanceOf(ctx, id, f.alice)
	require.NoError(t, err)

	err = f.engine.Transfer(ctx, f.alice, f.alice, domain.ZeroAddress, id, 5)
	assert.ErrorIs(t, err, ErrZeroAddress)

	err = f.engine.Transfer(ctx, domain.ZeroAddress, domain.ZeroAddress, f.bob, id, 5)
	assert.ErrorIs(t, err, ErrZeroAddress)

	// The failed calls must not have touched any balance
	balanceAfter, err := f.engine.BalanceOf(ctx, id, f.alice)
	require.NoError(t, err)
	assert.Equal(t, balanceBefore, balanceAfter)

	supplyAfter, err := f.engine.TotalSupply(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, supplyBefore, supplyAfter)
}

func TestEngine_Transfer_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.mintGated(t)

	err := f.engine.Transfer(ctx, f.bob, f.bob, f.alice, id, 1)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestEngine_Roles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	held, err := f.engine.HasRole(ctx, roles.Burner, f.bob)
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, f.engine.GrantRole(ctx, f.admin, roles.Burner, f.bob))

	held, _ = f.engine.HasRole(ctx, roles.Burner, f.bob)
	assert.True(t, held)

	require.NoError(t, f.engine.RevokeRole(ctx, f.admin, roles.Burner, f.bob))

	held, _ = f.engine.HasRole(ctx, roles.Burner, f.bob)
	assert.False(t, held)
}

func TestEngine_Roles_AdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.GrantRole(ctx, f.alice, roles.Burner, f.alice)
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = f.engine.RevokeRole(ctx, f.alice, roles.Admin, f.admin)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestEngine_SetFees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.SetFees(ctx, f.alice, uint256.NewInt(1), uint256.NewInt(2))
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.engine.SetFees(ctx, f.admin, uint256.NewInt(1), uint256.NewInt(2)))

	cfg, err := f.engine.Fees(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.NativeFee.Uint64())
	assert.Equal(t, uint64(2), cfg.FungibleFee.Uint64())
	assert.Equal(t, f.feeRecipient, cfg.FeeRecipient)
}

func TestEngine_SetFeeRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	next := domain.MustGenerateAddress()

	err := f.engine.SetFeeRecipient(ctx, f.alice, next)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.engine.SetFeeRecipient(ctx, f.admin, next))

	cfg, _ := f.engine.Fees(ctx)
	assert.Equal(t, next, cfg.FeeRecipient)
}

func TestEngine_ContractURI(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.engine.SetContractURI(ctx, f.alice, "https://forge.example/")
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.engine.SetContractURI(ctx, f.admin, "https://forge.example/"))

	uri, err := f.engine.ContractURI(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://forge.example/", uri)
}

// insertFailRecordStore fails every Insert, simulating a storage outage
// between the payment leg and the mint.
type insertFailRecordStore struct {
	storage.TokenRecordStore
}

func (s insertFailRecordStore) Insert(context.Context, *domain.TokenRecord) error {
	return errors.New("record store unavailable")
}

func TestEngine_PurchaseRefundedWhenMintFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stores := f.engine.stores
	stores.Records = insertFailRecordStore{stores.Records}

	registry := asset.NewRegistry()
	registry.Register(f.gupcAddr, f.gupc)

	broken, err := New(ctx, Options{
		Stores: stores,
		Self:   f.engine.Self(),
		Admin:  f.admin,
		Fees: &domain.FeeConfig{
			NativeFee:    ethFee,
			FungibleFee:  gupcFee,
			FeeRecipient: f.feeRecipient,
		},
		Bank:         f.bank,
		PaymentToken: f.gupc,
		Oracle:       registry,
		Now:          f.clock.Now,
	})
	require.NoError(t, err)

	nativeBefore, _ := f.bank.BalanceOf(ctx, f.alice)
	_, err = broken.BuyWithNative(ctx, f.alice, PurchaseRequest{
		Quantity:   1,
		Expiry:     f.expiryIn(10 * time.Second),
		ContentRef: ipfsHash1,
	}, cost(ethFee, 1))
	require.Error(t, err)

	nativeAfter, _ := f.bank.BalanceOf(ctx, f.alice)
	assert.Zero(t, nativeBefore.Cmp(nativeAfter), "native payment must be refunded")
	recipientNative, _ := f.bank.BalanceOf(ctx, f.feeRecipient)
	assert.True(t, recipientNative.IsZero())

	fungibleBefore, _ := f.gupc.BalanceOf(ctx, f.bob)
	require.NoError(t, f.gupc.Approve(ctx, f.bob, broken.Self(), cost(gupcFee, 1)))
	_, err = broken.BuyWithFungible(ctx, f.bob, PurchaseRequest{
		Quantity:   1,
		Expiry:     f.expiryIn(10 * time.Second),
		ContentRef: ipfsHash2,
	})
	require.Error(t, err)

	fungibleAfter, _ := f.gupc.BalanceOf(ctx, f.bob)
	assert.Zero(t, fungibleBefore.Cmp(fungibleAfter), "fungible payment must be refunded")
	recipientFungible, _ := f.gupc.BalanceOf(ctx, f.feeRecipient)
	assert.True(t, recipientFungible.IsZero())
}

func TestEngine_PersistedFeesSurviveRestart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Rebuild an engine over the same stores with different initial fees;
	// the persisted configuration must win.
	registry := asset.NewRegistry()
	registry.Register(f.gupcAddr, f.gupc)

	stores := f.engine.stores
	rebuilt, err := New(ctx, Options{
		Stores: stores,
		Self:   f.engine.Self(),
		Admin:  f.admin,
		Fees: &domain.FeeConfig{
			NativeFee:    uint256.NewInt(999),
			FungibleFee:  uint256.NewInt(999),
			FeeRecipient: f.bob,
		},
		Bank:         f.bank,
		PaymentToken: f.gupc,
		Oracle:       registry,
		Now:          f.clock.Now,
	})
	require.NoError(t, err)

	cfg, err := rebuilt.Fees(ctx)
	require.NoError(t, err)
	assert.Zero(t, ethFee.Cmp(cfg.NativeFee))
	assert.Equal(t, f.feeRecipient, cfg.FeeRecipient)
}
