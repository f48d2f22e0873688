// Package forge implements the token sale and time-locked burn engine:
// uniquely priced batch mints paid in the native asset or the companion
// fungible token, and role-gated destruction once a token's time lock has
// expired and the holder's threshold-asset balance has fallen below the
// recorded minimum.
package forge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"token-forge/internal/asset"
	"token-forge/internal/domain"
	"token-forge/internal/events"
	"token-forge/internal/observability"
	"token-forge/internal/roles"
	"token-forge/internal/storage"
)

// BalanceOracle reports a holder's balance of an arbitrary fungible asset.
// Threshold assets recorded at mint time are resolved through it.
type BalanceOracle interface {
	BalanceOf(ctx context.Context, assetAddr, holder domain.Address) (*uint256.Int, error)
}

// Stores bundles the persistence interfaces the engine binds to. The host
// may rebind implementations (memory, postgres) without touching the engine.
type Stores struct {
	Records   storage.TokenRecordStore
	Balances  storage.BalanceStore
	Roles     storage.RoleStore
	Config    storage.ConfigStore
	Approvals storage.ApprovalStore
}

// Options configures a new engine.
type Options struct {
	Stores Stores

	// Self is the engine's own address: the spender of payment-token
	// allowances buyers grant before a fungible purchase.
	Self domain.Address

	// Admin receives the admin role at construction.
	Admin domain.Address

	// Fees is the initial fee configuration, applied only when the config
	// store holds none (a restarted engine keeps its persisted config).
	Fees *domain.FeeConfig

	Bank         asset.NativeBank
	PaymentToken asset.Fungible
	Oracle       BalanceOracle

	Events  *events.Broadcaster    // optional
	Metrics *observability.Metrics // optional

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// PurchaseRequest carries the buyer-supplied parameters of a mint.
type PurchaseRequest struct {
	Quantity        uint64
	ThresholdAsset  *domain.Address // nil means no fungible-balance gate
	ThresholdAmount *uint256.Int
	Expiry          int64 // unix ms
	ContentRef      string
}

// Engine is the sale-and-burn ledger core. State-changing calls are
// serialized; queries go straight to the stores.
type Engine struct {
	mu sync.Mutex

	stores  Stores
	self    domain.Address
	bank    asset.NativeBank
	payment asset.Fungible
	oracle  BalanceOracle

	events  *events.Broadcaster
	metrics *observability.Metrics
	now     func() time.Time
}

// New creates an engine, seeds the fee configuration if the store is empty,
// and grants the admin role to opts.Admin.
func New(ctx context.Context, opts Options) (*Engine, error) {
	s := opts.Stores
	if s.Records == nil || s.Balances == nil || s.Roles == nil || s.Config == nil || s.Approvals == nil {
		return nil, fmt.Errorf("forge: all stores are required")
	}
	if opts.Bank == nil || opts.PaymentToken == nil || opts.Oracle == nil {
		return nil, fmt.Errorf("forge: bank, payment token and oracle are required")
	}
	if opts.Self.IsZero() || opts.Admin.IsZero() {
		return nil, fmt.Errorf("forge: self and admin addresses are required")
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		stores:  s,
		self:    opts.Self,
		bank:    opts.Bank,
		payment: opts.PaymentToken,
		oracle:  opts.Oracle,
		events:  opts.Events,
		metrics: opts.Metrics,
		now:     now,
	}

	if _, err := s.Config.GetFees(ctx); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("forge: read fee config: %w", err)
		}
		if opts.Fees == nil {
			return nil, fmt.Errorf("forge: no persisted fee config and no initial fees")
		}
		cfg := opts.Fees.Clone()
		cfg.UpdatedAt = now().UnixMilli()
		if err := s.Config.SetFees(ctx, cfg); err != nil {
			return nil, fmt.Errorf("forge: seed fee config: %w", err)
		}
	}

	if err := s.Roles.Grant(ctx, roles.Admin, opts.Admin); err != nil {
		return nil, fmt.Errorf("forge: grant admin role: %w", err)
	}

	return e, nil
}

// Self returns the engine's own address.
func (e *Engine) Self() domain.Address {
	return e.self
}

// BuyWithNative purchases a freshly minted token id, paying with the native
// amount attached to the call. The whole attached amount is forwarded to the
// fee recipient; amounts below quantity × native fee are rejected.
func (e *Engine) BuyWithNative(ctx context.Context, buyer domain.Address, req PurchaseRequest, paid *uint256.Int) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.stores.Config.GetFees(ctx)
	if err != nil {
		return 0, fmt.Errorf("read fee config: %w", err)
	}

	cost, err := e.validatePurchase(req, cfg.NativeFee)
	if err != nil {
		e.countPurchaseError(err)
		return 0, err
	}
	if paid == nil || paid.Lt(cost) {
		e.countPurchaseError(ErrInsufficientPayment)
		return 0, ErrInsufficientPayment
	}

	if err := e.bank.Transfer(ctx, buyer, cfg.FeeRecipient, paid); err != nil {
		if errors.Is(err, asset.ErrInsufficientFunds) {
			e.countPurchaseError(ErrInsufficientPayment)
			return 0, ErrInsufficientPayment
		}
		return 0, fmt.Errorf("forward native payment: %w", err)
	}

	id, err := e.mint(ctx, buyer, req)
	if err != nil {
		// Payment settled first; a failed mint refunds it.
		if rerr := e.bank.Transfer(ctx, cfg.FeeRecipient, buyer, paid); rerr != nil {
			return 0, fmt.Errorf("%w (refund failed: %v)", err, rerr)
		}
		return 0, err
	}

	e.recordPurchase("native", req.Quantity)
	e.publish(domain.Event{
		Type:      domain.EventMinted,
		Timestamp: e.now().UnixMilli(),
		TokenID:   &id,
		To:        buyer,
		Quantity:  req.Quantity,
		Paid:      new(uint256.Int).Set(paid),
	})
	return id, nil
}

// BuyWithFungible purchases a freshly minted token id, pulling
// quantity × fungible fee of the payment token from the buyer. The buyer
// must have approved the engine for at least that amount.
func (e *Engine) BuyWithFungible(ctx context.Context, buyer domain.Address, req PurchaseRequest) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg, err := e.stores.Config.GetFees(ctx)
	if err != nil {
		return 0, fmt.Errorf("read fee config: %w", err)
	}

	cost, err := e.validatePurchase(req, cfg.FungibleFee)
	if err != nil {
		e.countPurchaseError(err)
		return 0, err
	}

	if err := e.payment.TransferFrom(ctx, e.self, buyer, cfg.FeeRecipient, cost); err != nil {
		if errors.Is(err, asset.ErrInsufficientAllowance) {
			e.countPurchaseError(ErrInsufficientAllowance)
			return 0, ErrInsufficientAllowance
		}
		if errors.Is(err, asset.ErrInsufficientFunds) {
			e.countPurchaseError(ErrInsufficientPayment)
			return 0, ErrInsufficientPayment
		}
		return 0, fmt.Errorf("pull fungible payment: %w", err)
	}

	id, err := e.mint(ctx, buyer, req)
	if err != nil {
		if rerr := e.payment.Transfer(ctx, cfg.FeeRecipient, buyer, cost); rerr != nil {
			return 0, fmt.Errorf("%w (refund failed: %v)", err, rerr)
		}
		return 0, err
	}

	e.recordPurchase("fungible", req.Quantity)
	e.publish(domain.Event{
		Type:      domain.EventMinted,
		Timestamp: e.now().UnixMilli(),
		TokenID:   &id,
		To:        buyer,
		Quantity:  req.Quantity,
		Paid:      cost,
	})
	return id, nil
}

// validatePurchase checks the request and returns quantity × fee.
func (e *Engine) validatePurchase(req PurchaseRequest, fee *uint256.Int) (*uint256.Int, error) {
	if req.Quantity == 0 {
		return nil, ErrInvalidQuantity
	}
	if req.ContentRef == "" {
		return nil, fmt.Errorf("%w: empty content ref", storage.ErrInvalidInput)
	}

	cost, overflow := new(uint256.Int).MulOverflow(fee, uint256.NewInt(req.Quantity))
	if overflow {
		return nil, ErrInvalidQuantity
	}
	return cost, nil
}

// mint allocates the next token id, writes the record and credits the buyer.
func (e *Engine) mint(ctx context.Context, buyer domain.Address, req PurchaseRequest) (uint64, error) {
	id, err := e.stores.Records.NextID(ctx)
	if err != nil {
		return 0, fmt.Errorf("allocate token id: %w", err)
	}

	record := &domain.TokenRecord{
		ID:              id,
		ContentRef:      req.ContentRef,
		ThresholdAsset:  req.ThresholdAsset,
		ThresholdAmount: req.ThresholdAmount,
		Expiry:          req.Expiry,
		CreatedAt:       e.now().UnixMilli(),
	}
	if record.ThresholdAmount == nil {
		record.ThresholdAmount = uint256.NewInt(0)
	}

	if err := e.stores.Records.Insert(ctx, record); err != nil {
		return 0, fmt.Errorf("insert token record: %w", err)
	}
	if err := e.stores.Balances.Add(ctx, id, buyer, req.Quantity); err != nil {
		return 0, fmt.Errorf("credit buyer: %w", err)
	}
	return id, nil
}

// CanBurn reports whether (tokenID, holder) is burn-eligible: the time lock
// has expired and, when a threshold asset is recorded, the holder's balance
// of it is strictly below the recorded minimum. Pure query.
func (e *Engine) CanBurn(ctx context.Context, tokenID uint64, holder domain.Address) (bool, error) {
	if e.metrics != nil {
		e.metrics.EligibilityChecks.Inc()
	}
	return e.canBurnUncounted(ctx, tokenID, holder)
}

// BurnOne destroys exactly one unit of tokenID held by holder. The caller
// must hold the burner role; authorization is checked before eligibility.
func (e *Engine) BurnOne(ctx context.Context, caller domain.Address, tokenID uint64, holder domain.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRole(ctx, roles.Burner, caller); err != nil {
		e.countBurnError(err)
		return err
	}

	if err := e.burnOneLocked(ctx, tokenID, holder); err != nil {
		e.countBurnError(err)
		return err
	}

	if e.metrics != nil {
		e.metrics.BurnsTotal.Inc()
		e.metrics.UnitsBurned.Inc()
	}
	e.publish(domain.Event{
		Type:      domain.EventBurned,
		Timestamp: e.now().UnixMilli(),
		TokenID:   &tokenID,
		From:      holder,
		Quantity:  1,
	})
	return nil
}

// BurnBatch destroys one unit per (tokenIDs[i], holders[i]) pair, atomically:
// every pair is validated before any balance is touched, and any ineligible
// pair rejects the whole batch.
func (e *Engine) BurnBatch(ctx context.Context, caller domain.Address, tokenIDs []uint64, holders []domain.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRole(ctx, roles.Burner, caller); err != nil {
		e.countBurnError(err)
		return err
	}
	if len(tokenIDs) != len(holders) || len(tokenIDs) == 0 {
		e.countBurnError(ErrInvalidQuantity)
		return ErrInvalidQuantity
	}

	// Validate every pair first. Duplicate pairs consume one unit each, so
	// the holder's balance must cover the pair's multiplicity.
	needed := make(map[string]uint64, len(tokenIDs))
	for i := range tokenIDs {
		ok, err := e.canBurnUncounted(ctx, tokenIDs[i], holders[i])
		if err != nil {
			e.countBurnError(err)
			return err
		}
		if !ok {
			e.countBurnError(ErrNotYetEligible)
			return ErrNotYetEligible
		}

		key := fmt.Sprintf("%d|%s", tokenIDs[i], holders[i])
		needed[key]++

		balance, err := e.stores.Balances.Get(ctx, tokenIDs[i], holders[i])
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		if balance < needed[key] {
			e.countBurnError(ErrInsufficientBalance)
			return ErrInsufficientBalance
		}
	}

	for i := range tokenIDs {
		if err := e.stores.Balances.Sub(ctx, tokenIDs[i], holders[i], 1); err != nil {
			return fmt.Errorf("burn unit: %w", err)
		}
		id := tokenIDs[i]
		e.publish(domain.Event{
			Type:      domain.EventBurned,
			Timestamp: e.now().UnixMilli(),
			TokenID:   &id,
			From:      holders[i],
			Quantity:  1,
		})
	}

	if e.metrics != nil {
		e.metrics.BurnsTotal.Inc()
		e.metrics.UnitsBurned.Add(float64(len(tokenIDs)))
	}
	return nil
}

// burnOneLocked applies a single burn. Caller holds the engine lock and has
// already authorized.
func (e *Engine) burnOneLocked(ctx context.Context, tokenID uint64, holder domain.Address) error {
	ok, err := e.canBurnUncounted(ctx, tokenID, holder)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotYetEligible
	}

	if err := e.stores.Balances.Sub(ctx, tokenID, holder, 1); err != nil {
		if errors.Is(err, storage.ErrInsufficientBalance) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("burn unit: %w", err)
	}
	return nil
}

// canBurnUncounted evaluates eligibility without the metrics increment.
func (e *Engine) canBurnUncounted(ctx context.Context, tokenID uint64, holder domain.Address) (bool, error) {
	record, err := e.stores.Records.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, ErrUnknownToken
		}
		return false, fmt.Errorf("read token record: %w", err)
	}

	if e.now().UnixMilli() < record.Expiry {
		return false, nil
	}

	if record.HasThreshold() {
		balance, err := e.oracle.BalanceOf(ctx, *record.ThresholdAsset, holder)
		if err != nil {
			return false, fmt.Errorf("query threshold asset: %w", err)
		}
		// Holding at least the threshold amount keeps the token burn-exempt.
		if !balance.Lt(record.ThresholdAmount) {
			return false, nil
		}
	}

	return true, nil
}

// Transfer moves quantity units of tokenID from one holder to another. The
// caller must be the sender or an approved operator. Token records are
// untouched; burning is not reachable through this path.
func (e *Engine) Transfer(ctx context.Context, caller, from, to domain.Address, tokenID uint64, quantity uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != from {
		approved, err := e.stores.Approvals.IsApproved(ctx, from, caller)
		if err != nil {
			return fmt.Errorf("check operator approval: %w", err)
		}
		if !approved {
			return ErrUnauthorized
		}
	}
	if quantity == 0 {
		return ErrInvalidQuantity
	}
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}

	if err := e.stores.Balances.Sub(ctx, tokenID, from, quantity); err != nil {
		if errors.Is(err, storage.ErrInsufficientBalance) {
			return ErrInsufficientBalance
		}
		return fmt.Errorf("debit sender: %w", err)
	}
	if err := e.stores.Balances.Add(ctx, tokenID, to, quantity); err != nil {
		return fmt.Errorf("credit recipient: %w", err)
	}

	if e.metrics != nil {
		e.metrics.TransfersTotal.Inc()
		e.metrics.UnitsMoved.Add(float64(quantity))
	}
	e.publish(domain.Event{
		Type:      domain.EventTransferred,
		Timestamp: e.now().UnixMilli(),
		TokenID:   &tokenID,
		From:      from,
		To:        to,
		Quantity:  quantity,
	})
	return nil
}

// SetApprovalForAll lets owner grant or revoke operator's right to transfer
// on their behalf.
func (e *Engine) SetApprovalForAll(ctx context.Context, owner, operator domain.Address, approved bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.stores.Approvals.Set(ctx, owner, operator, approved); err != nil {
		return fmt.Errorf("set approval: %w", err)
	}

	e.publish(domain.Event{
		Type:      domain.EventApprovalUpdated,
		Timestamp: e.now().UnixMilli(),
		From:      owner,
		To:        operator,
	})
	return nil
}

// IsApprovedForAll reports whether operator may transfer on behalf of owner.
func (e *Engine) IsApprovedForAll(ctx context.Context, owner, operator domain.Address) (bool, error) {
	return e.stores.Approvals.IsApproved(ctx, owner, operator)
}

// GrantRole adds member to role. Admin only; idempotent.
func (e *Engine) GrantRole(ctx context.Context, caller domain.Address, role roles.ID, member domain.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRole(ctx, roles.Admin, caller); err != nil {
		return err
	}
	if err := e.stores.Roles.Grant(ctx, role, member); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RoleGrants.Inc()
	}
	e.publish(domain.Event{
		Type:      domain.EventRoleGranted,
		Timestamp: e.now().UnixMilli(),
		Role:      string(role),
		Member:    member,
	})
	return nil
}

// RevokeRole removes member from role. Admin only; revoking an unheld role
// is a no-op.
func (e *Engine) RevokeRole(ctx context.Context, caller domain.Address, role roles.ID, member domain.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRole(ctx, roles.Admin, caller); err != nil {
		return err
	}
	if err := e.stores.Roles.Revoke(ctx, role, member); err != nil {
		return fmt.Errorf("revoke role: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RoleRevokes.Inc()
	}
	e.publish(domain.Event{
		Type:      domain.EventRoleRevoked,
		Timestamp: e.now().UnixMilli(),
		Role:      string(role),
		Member:    member,
	})
	return nil
}

// HasRole reports whether member holds role. Pure query.
func (e *Engine) HasRole(ctx context.Context, role roles.ID, member domain.Address) (bool, error) {
	return e.stores.Roles.Has(ctx, role, member)
}

// SetFees updates the per-unit purchase prices. Admin only.
func (e *Engine) SetFees(ctx context.Context, caller domain.Address, nativeFee, fungibleFee *uint256.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRole(ctx, roles.Admin, caller); err != nil {
		return err
	}

	cfg, err := e.stores.Config.GetFees(ctx)
	if err != nil {
		return fmt.Errorf("read fee config: %w", err)
	}
	cfg.NativeFee = new(uint256.Int).Set(nativeFee)
	cfg.FungibleFee = new(uint256.Int).Set(fungibleFee)
	cfg.UpdatedAt = e.now().UnixMilli()

	if err := e.stores.Config.SetFees(ctx, cfg); err != nil {
		return fmt.Errorf("write fee config: %w", err)
	}

	e.publish(domain.Event{Type: domain.EventFeesUpdated, Timestamp: cfg.UpdatedAt})
	return nil
}

// SetFeeRecipient updates the payment payee. Admin only.
func (e *Engine) SetFeeRecipient(ctx context.Context, caller, recipient domain.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRole(ctx, roles.Admin, caller); err != nil {
		return err
	}
	if recipient.IsZero() {
		return fmt.Errorf("%w: zero fee recipient", storage.ErrInvalidInput)
	}

	cfg, err := e.stores.Config.GetFees(ctx)
	if err != nil {
		return fmt.Errorf("read fee config: %w", err)
	}
	cfg.FeeRecipient = recipient
	cfg.UpdatedAt = e.now().UnixMilli()

	if err := e.stores.Config.SetFees(ctx, cfg); err != nil {
		return fmt.Errorf("write fee config: %w", err)
	}

	e.publish(domain.Event{Type: domain.EventFeesUpdated, Timestamp: cfg.UpdatedAt})
	return nil
}

// SetContractURI updates the contract-level metadata URI. Admin only.
func (e *Engine) SetContractURI(ctx context.Context, caller domain.Address, uri string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireRole(ctx, roles.Admin, caller); err != nil {
		return err
	}
	if err := e.stores.Config.SetContractURI(ctx, uri); err != nil {
		return fmt.Errorf("write contract uri: %w", err)
	}
	return nil
}

// ContractURI returns the contract-level metadata URI.
func (e *Engine) ContractURI(ctx context.Context) (string, error) {
	return e.stores.Config.ContractURI(ctx)
}

// Fees returns a snapshot of the current fee configuration.
func (e *Engine) Fees(ctx context.Context) (*domain.FeeConfig, error) {
	return e.stores.Config.GetFees(ctx)
}

// CurrentTokenID returns the id the next purchase will be assigned.
func (e *Engine) CurrentTokenID(ctx context.Context) (uint64, error) {
	return e.stores.Records.CurrentID(ctx)
}

// TokenRecord returns the immutable record for tokenID.
func (e *Engine) TokenRecord(ctx context.Context, tokenID uint64) (*domain.TokenRecord, error) {
	record, err := e.stores.Records.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownToken
		}
		return nil, err
	}
	return record, nil
}

// BalanceOf returns holder's quantity of tokenID.
func (e *Engine) BalanceOf(ctx context.Context, tokenID uint64, holder domain.Address) (uint64, error) {
	return e.stores.Balances.Get(ctx, tokenID, holder)
}

// TotalSupply returns the outstanding supply of tokenID.
func (e *Engine) TotalSupply(ctx context.Context, tokenID uint64) (uint64, error) {
	return e.stores.Balances.TotalSupply(ctx, tokenID)
}

// HoldingsOf returns all of holder's balance entries.
func (e *Engine) HoldingsOf(ctx context.Context, holder domain.Address) ([]*domain.BalanceEntry, error) {
	return e.stores.Balances.ListByHolder(ctx, holder)
}

// requireRole rejects the call with ErrUnauthorized unless caller holds role.
func (e *Engine) requireRole(ctx context.Context, role roles.ID, caller domain.Address) error {
	held, err := e.stores.Roles.Has(ctx, role, caller)
	if err != nil {
		return fmt.Errorf("check role: %w", err)
	}
	if !held {
		return ErrUnauthorized
	}
	return nil
}

// publish emits an event if a broadcaster is attached.
func (e *Engine) publish(event domain.Event) {
	if e.events != nil {
		e.events.Publish(event)
	}
}

func (e *Engine) recordPurchase(kind string, quantity uint64) {
	if e.metrics == nil {
		return
	}
	e.metrics.PurchasesTotal.Inc()
	e.metrics.PurchasesByKind.WithLabelValues(kind).Inc()
	e.metrics.UnitsMinted.Add(float64(quantity))
}

func (e *Engine) countPurchaseError(err error) {
	if e.metrics != nil {
		e.metrics.PurchaseErrors.WithLabelValues(errorLabel(err)).Inc()
	}
}

func (e *Engine) countBurnError(err error) {
	if e.metrics != nil {
		e.metrics.BurnErrors.WithLabelValues(errorLabel(err)).Inc()
	}
}

// errorLabel maps sentinel errors to stable metric label values.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientPayment):
		return "insufficient_payment"
	case errors.Is(err, ErrInsufficientAllowance):
		return "insufficient_allowance"
	case errors.Is(err, ErrUnknownToken):
		return "unknown_token"
	case errors.Is(err, ErrNotYetEligible):
		return "not_yet_eligible"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrZeroAddress):
		return "zero_address"
	default:
		return "other"
	}
}
