package campaign

import (
	"fmt"
	"math/big"
	"time"

	"campledger/core/events"
	"campledger/core/types"
	"campledger/native/common"
)

// PauseModule names this engine in pause views.
const PauseModule = "campaign"

// State describes the persistence the ledger engine requires. Reservation and
// fee entries are scoped per (campaign, token, holder); the per-holder
// campaign indexes back the campaign-less sweep operations.
type State interface {
	CampaignPut(c *Campaign) error
	CampaignGet(id CampaignID) (*Campaign, bool, error)

	VaultBalance(id CampaignID, token string) (*big.Int, error)
	VaultCredit(id CampaignID, token string, amt *big.Int) error
	VaultDebit(id CampaignID, token string, amt *big.Int) error

	TotalReserved(id CampaignID, token string) (*big.Int, error)
	SetTotalReserved(id CampaignID, token string, amt *big.Int) error
	ReservedAmount(id CampaignID, token string, recipient [20]byte) (*big.Int, error)
	SetReservedAmount(id CampaignID, token string, recipient [20]byte, amt *big.Int) error
	FeeAmount(id CampaignID, token string, payee [20]byte) (*big.Int, error)
	SetFeeAmount(id CampaignID, token string, payee [20]byte, amt *big.Int) error

	AccountBalance(addr [20]byte, token string) (*big.Int, error)
	SetAccountBalance(addr [20]byte, token string, amt *big.Int) error

	ReservationCampaigns(token string, recipient [20]byte) ([]CampaignID, error)
	AddReservationCampaign(token string, recipient [20]byte, id CampaignID) error
	FeeCampaigns(token string, payee [20]byte) ([]CampaignID, error)
	AddFeeCampaign(token string, payee [20]byte, id CampaignID) error
}

type campaignEvent struct {
	evt *types.Event
}

func (e campaignEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e campaignEvent) Event() *types.Event { return e.evt }

// Engine owns the campaign registry and the reservation ledger. It authorizes
// callers, dispatches to the campaign's hook, applies the returned payout and
// fee instructions and moves funds through the per-campaign custody vaults.
// The one system-wide invariant it enforces: for every campaign and token the
// custodied balance never drops below the total reserved amount. The check is
// re-derived from current state on every call, never cached.
type Engine struct {
	state    State
	emitter  events.Emitter
	identity [20]byte
	hooks    map[[20]byte]Hook
	vaults   *VaultFactory
	pauses   common.PauseView
	nowFn    func() int64
}

// NewEngine creates a ledger engine operating under the supplied identity.
// The identity is presented to hooks as the callback origin and is the only
// caller custody vaults accept.
func NewEngine(identity [20]byte) *Engine {
	return &Engine{
		identity: identity,
		emitter:  events.NoopEmitter{},
		hooks:    make(map[[20]byte]Hook),
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) {
	e.state = state
	e.vaults = NewVaultFactory(e.identity, state)
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetPauses configures the administrative pause view consulted before every
// mutating operation.
func (e *Engine) SetPauses(pauses common.PauseView) {
	e.pauses = pauses
}

func (e *Engine) guard() error {
	return common.Guard(e.pauses, PauseModule)
}

// RegisterHook makes a hook implementation addressable by campaigns.
func (e *Engine) RegisterHook(addr [20]byte, hook Hook) error {
	if isZeroAddress(addr) {
		return ErrZeroHook
	}
	if hook == nil {
		return fmt.Errorf("%w: nil hook", ErrZeroHook)
	}
	e.hooks[addr] = hook
	return nil
}

// Identity reports the ledger identity presented to hooks and vaults.
func (e *Engine) Identity() [20]byte { return e.identity }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(campaignEvent{evt: event})
}

// emitHookEvents publishes the records a hook attached to its result. Called
// only after the operation's state writes and transfers have all succeeded.
func (e *Engine) emitHookEvents(result *HookResult) {
	if result == nil {
		return
	}
	for _, event := range result.Events {
		e.emit(event)
	}
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) callContext(caller [20]byte, id CampaignID) *CallContext {
	return &CallContext{Core: e.identity, Caller: caller, Campaign: id, Now: e.now()}
}

func (e *Engine) requireState() error {
	if e == nil || e.state == nil {
		return fmt.Errorf("campaign: engine state not configured")
	}
	return nil
}

func (e *Engine) loadCampaign(id CampaignID) (*Campaign, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	c, ok, err := e.state.CampaignGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCampaignNotFound
	}
	return c, nil
}

// Campaign retrieves a campaign by id.
func (e *Engine) Campaign(id CampaignID) (*Campaign, error) {
	return e.loadCampaign(id)
}

// VaultBalance reports the custodied balance for a campaign and token.
func (e *Engine) VaultBalance(id CampaignID, token string) (*big.Int, error) {
	_, _, normalized, err := e.accountingPrologue(id, token)
	if err != nil {
		return nil, err
	}
	return e.state.VaultBalance(id, normalized)
}

// TotalReserved reports the aggregate reserved amount for a campaign and
// token.
func (e *Engine) TotalReserved(id CampaignID, token string) (*big.Int, error) {
	_, _, normalized, err := e.accountingPrologue(id, token)
	if err != nil {
		return nil, err
	}
	return e.state.TotalReserved(id, normalized)
}

func (e *Engine) hookFor(c *Campaign) (Hook, error) {
	hook, ok := e.hooks[c.Hook]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrHookNotRegistered, c.Hook)
	}
	return hook, nil
}

// PredictCampaignID computes the identifier CreateCampaign would assign for
// the supplied parameters, allowing a pre-check before creation.
func PredictCampaignID(hook [20]byte, nonce [32]byte, payload []byte) CampaignID {
	return DeriveID(hook, nonce, payload)
}

// CreateCampaign registers a new campaign bound to the given hook and invokes
// the hook's creation callback with the opaque payload. The initial status is
// Created.
func (e *Engine) CreateCampaign(caller, hookAddr [20]byte, nonce [32]byte, payload []byte) (*Campaign, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := e.requireState(); err != nil {
		return nil, err
	}
	if isZeroAddress(hookAddr) {
		return nil, ErrZeroHook
	}
	hook, ok := e.hooks[hookAddr]
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrHookNotRegistered, hookAddr)
	}
	id := DeriveID(hookAddr, nonce, payload)
	if _, exists, err := e.state.CampaignGet(id); err != nil {
		return nil, err
	} else if exists {
		return nil, ErrCampaignExists
	}
	if err := hook.OnCampaignCreated(e.callContext(caller, id), payload); err != nil {
		return nil, err
	}
	c := &Campaign{
		ID:          id,
		Hook:        hookAddr,
		Creator:     caller,
		Status:      StatusCreated,
		MetadataURI: hook.MetadataURI(id),
		CreatedAt:   e.now(),
	}
	if err := e.state.CampaignPut(c); err != nil {
		return nil, err
	}
	e.vaults.Deploy(id)
	e.emit(NewCreatedEvent(c))
	return c.Clone(), nil
}

// Deposit moves funds from the caller's account into the campaign vault.
func (e *Engine) Deposit(caller [20]byte, id CampaignID, token string, amount *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidAmount)
	}
	balance, err := e.state.AccountBalance(caller, normalized)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("%w: account balance %s below %s", ErrInsufficientFunds, balance, amt)
	}
	if err := e.state.SetAccountBalance(caller, normalized, new(big.Int).Sub(balance, amt)); err != nil {
		return err
	}
	if err := e.vaults.Deploy(id).credit(normalized, amt); err != nil {
		return err
	}
	e.emit(NewDepositEvent(c.ID, normalized, caller, amt))
	return nil
}

// UpdateMetadata forwards the payload to the hook and republishes the
// campaign's metadata URI. Finalized campaigns are immutable.
func (e *Engine) UpdateMetadata(caller [20]byte, id CampaignID, payload []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	if c.Status == StatusFinalized {
		return fmt.Errorf("%w: campaign finalized", ErrInvalidStatus)
	}
	hook, err := e.hookFor(c)
	if err != nil {
		return err
	}
	if err := hook.OnCampaignMetadataUpdated(e.callContext(caller, id), payload); err != nil {
		return err
	}
	c.MetadataURI = hook.MetadataURI(id)
	if err := e.state.CampaignPut(c); err != nil {
		return err
	}
	e.emit(NewMetadataUpdatedEvent(c.ID, caller, c.MetadataURI))
	return nil
}

// UpdateStatus transitions the campaign lifecycle. The ledger itself rejects
// no-op transitions, transitions back to Created and any transition out of
// Finalized, so no hook can bypass terminality. All remaining legality is
// delegated to the hook, which may further restrict by caller role and time.
func (e *Engine) UpdateStatus(caller [20]byte, id CampaignID, newStatus Status, payload []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, err := e.loadCampaign(id)
	if err != nil {
		return err
	}
	if !newStatus.Valid() {
		return fmt.Errorf("%w: unknown status %d", ErrInvalidStatusTransition, uint8(newStatus))
	}
	if newStatus == c.Status {
		return fmt.Errorf("%w: already %s", ErrInvalidStatusTransition, c.Status)
	}
	if newStatus == StatusCreated {
		return fmt.Errorf("%w: cannot return to created", ErrInvalidStatusTransition)
	}
	if c.Status == StatusFinalized {
		return fmt.Errorf("%w: campaign finalized", ErrInvalidStatusTransition)
	}
	hook, err := e.hookFor(c)
	if err != nil {
		return err
	}
	from := c.Status
	if err := hook.OnCampaignStatusChanged(e.callContext(caller, id), from, newStatus, payload); err != nil {
		return err
	}
	c.Status = newStatus
	if err := e.state.CampaignPut(c); err != nil {
		return err
	}
	e.emit(NewStatusChangedEvent(c.ID, caller, from, newStatus))
	return nil
}

// Reward pays hook-approved amounts out of the campaign vault immediately.
// Any fee instruction becomes a reserved, collectible balance instead of an
// allocation. The custody balance must cover the existing reservations plus
// everything the hook approved.
func (e *Engine) Reward(caller [20]byte, id CampaignID, token string, payload []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	_, hook, normalized, err := e.accountingPrologue(id, token)
	if err != nil {
		return err
	}
	result, err := hook.OnReward(e.callContext(caller, id), normalized, payload)
	if err != nil {
		return err
	}
	payouts, fees, required, err := sanitizeResult(result)
	if err != nil {
		return err
	}
	if err := e.checkSolvency(id, normalized, required); err != nil {
		return err
	}
	deferFees := result != nil && result.DeferFees
	// Bookkeeping precedes any transfer so reentrant observers only ever see
	// consistent state.
	if deferFees {
		for _, fee := range fees {
			if err := e.creditFee(id, normalized, fee.Payee, fee.Amount); err != nil {
				return err
			}
		}
	}
	vault := e.vaults.Deploy(id)
	for _, p := range payouts {
		if _, err := vault.SendTokens(e.identity, normalized, p.Recipient, p.Amount); err != nil {
			return err
		}
		e.emit(NewRewardedEvent(id, normalized, p.Recipient, p.Amount))
	}
	if !deferFees {
		for _, fee := range fees {
			if _, err := vault.SendTokens(e.identity, normalized, fee.Payee, fee.Amount); err != nil {
				return err
			}
			e.emit(NewFeeCollectedEvent(id, normalized, fee.Payee, fee.Amount))
		}
	}
	e.emitHookEvents(result)
	return nil
}

// Allocate reserves hook-approved amounts for later distribution. Nothing is
// paid out; the reservation ledger and the total reserved figure grow by the
// approved payouts and fee.
func (e *Engine) Allocate(caller [20]byte, id CampaignID, token string, payload []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	_, hook, normalized, err := e.accountingPrologue(id, token)
	if err != nil {
		return err
	}
	result, err := hook.OnAllocate(e.callContext(caller, id), normalized, payload)
	if err != nil {
		return err
	}
	payouts, fees, required, err := sanitizeResult(result)
	if err != nil {
		return err
	}
	if err := e.checkSolvency(id, normalized, required); err != nil {
		return err
	}
	for _, p := range payouts {
		reserved, err := e.state.ReservedAmount(id, normalized, p.Recipient)
		if err != nil {
			return err
		}
		if err := e.state.SetReservedAmount(id, normalized, p.Recipient, new(big.Int).Add(reserved, p.Amount)); err != nil {
			return err
		}
		if err := e.state.AddReservationCampaign(normalized, p.Recipient, id); err != nil {
			return err
		}
		e.emit(NewAllocatedEvent(id, normalized, p.Recipient, p.Amount))
	}
	for _, fee := range fees {
		if err := e.creditFee(id, normalized, fee.Payee, fee.Amount); err != nil {
			return err
		}
	}
	total, err := e.state.TotalReserved(id, normalized)
	if err != nil {
		return err
	}
	payoutSum := big.NewInt(0)
	for _, p := range payouts {
		payoutSum.Add(payoutSum, p.Amount)
	}
	if err := e.state.SetTotalReserved(id, normalized, new(big.Int).Add(total, payoutSum)); err != nil {
		return err
	}
	e.emitHookEvents(result)
	return nil
}

// Distribute releases hook-approved amounts from existing allocations and
// pays them out. An instruction that would drive a reservation entry negative
// aborts the whole operation before any state is written.
func (e *Engine) Distribute(caller [20]byte, id CampaignID, token string, payload []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	_, hook, normalized, err := e.accountingPrologue(id, token)
	if err != nil {
		return err
	}
	result, err := hook.OnDistribute(e.callContext(caller, id), normalized, payload)
	if err != nil {
		return err
	}
	payouts, _, _, err := sanitizeResult(&HookResult{Payouts: resultPayouts(result)})
	if err != nil {
		return err
	}
	releases, err := e.validateReleases(id, normalized, payouts, e.state.ReservedAmount)
	if err != nil {
		return err
	}
	feeReleases, err := e.validateFeeReleases(id, normalized, result)
	if err != nil {
		return err
	}
	for _, r := range releases {
		if err := e.state.SetReservedAmount(id, normalized, r.holder, r.remaining); err != nil {
			return err
		}
	}
	for _, r := range feeReleases {
		if err := e.state.SetFeeAmount(id, normalized, r.holder, r.remaining); err != nil {
			return err
		}
	}
	if err := e.reduceTotalReserved(id, normalized, sumReleases(releases, feeReleases)); err != nil {
		return err
	}
	vault := e.vaults.Deploy(id)
	for _, r := range releases {
		if _, err := vault.SendTokens(e.identity, normalized, r.holder, r.amount); err != nil {
			return err
		}
		e.emit(NewDistributedEvent(id, normalized, r.holder, r.amount))
	}
	for _, r := range feeReleases {
		if _, err := vault.SendTokens(e.identity, normalized, r.recipient, r.amount); err != nil {
			return err
		}
		e.emit(NewFeeCollectedEvent(id, normalized, r.recipient, r.amount))
	}
	e.emitHookEvents(result)
	return nil
}

// Deallocate releases hook-approved amounts from the reservation ledger
// without payment, e.g. reversing an allocation after a void.
func (e *Engine) Deallocate(caller [20]byte, id CampaignID, token string, payload []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	_, hook, normalized, err := e.accountingPrologue(id, token)
	if err != nil {
		return err
	}
	result, err := hook.OnDeallocate(e.callContext(caller, id), normalized, payload)
	if err != nil {
		return err
	}
	payouts, _, _, err := sanitizeResult(result)
	if err != nil {
		return err
	}
	releases, err := e.validateReleases(id, normalized, payouts, e.state.ReservedAmount)
	if err != nil {
		return err
	}
	for _, r := range releases {
		if err := e.state.SetReservedAmount(id, normalized, r.holder, r.remaining); err != nil {
			return err
		}
		e.emit(NewDeallocatedEvent(id, normalized, r.holder, r.amount))
	}
	if err := e.reduceTotalReserved(id, normalized, sumReleases(releases, nil)); err != nil {
		return err
	}
	e.emitHookEvents(result)
	return nil
}

// WithdrawFunds releases unreserved custody back to the caller after the
// hook authorizes the withdrawal. The vault balance may never dip below the
// total reserved amount.
func (e *Engine) WithdrawFunds(caller [20]byte, id CampaignID, token string, amount *big.Int, payload []byte) error {
	if err := e.guard(); err != nil {
		return err
	}
	c, hook, normalized, err := e.accountingPrologue(id, token)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidAmount)
	}
	if err := hook.OnWithdrawFunds(e.callContext(caller, id), normalized, amt, payload); err != nil {
		return err
	}
	balance, err := e.state.VaultBalance(id, normalized)
	if err != nil {
		return err
	}
	reserved, err := e.state.TotalReserved(id, normalized)
	if err != nil {
		return err
	}
	if new(big.Int).Sub(balance, amt).Cmp(reserved) < 0 {
		return fmt.Errorf("%w: withdrawal would breach reservations", ErrInsufficientFunds)
	}
	if _, err := e.vaults.Deploy(id).SendTokens(e.identity, normalized, caller, amt); err != nil {
		return err
	}
	e.emit(NewFundsWithdrawnEvent(c.ID, normalized, caller, amt))
	return nil
}

// DistributePayouts sweeps the recipient's reserved balances for the token
// across all campaigns, zeroing each entry and paying it out. No authorization
// beyond being the balance holder is required, so the funds always flow to the
// recipient themselves. Returns the total paid.
func (e *Engine) DistributePayouts(token string, recipient [20]byte) (*big.Int, error) {
	return e.sweep(token, recipient, sweepReservations)
}

// CollectFees sweeps the payee's collectible fee balances for the token across
// all campaigns. Returns the total paid.
func (e *Engine) CollectFees(token string, payee [20]byte) (*big.Int, error) {
	return e.sweep(token, payee, sweepFees)
}

type sweepKind int

const (
	sweepReservations sweepKind = iota
	sweepFees
)

func (e *Engine) sweep(token string, holder [20]byte, kind sweepKind) (*big.Int, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	if err := e.requireState(); err != nil {
		return nil, err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, err
	}
	if isZeroAddress(holder) {
		return nil, ErrZeroAddress
	}
	var ids []CampaignID
	if kind == sweepFees {
		ids, err = e.state.FeeCampaigns(normalized, holder)
	} else {
		ids, err = e.state.ReservationCampaigns(normalized, holder)
	}
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, id := range ids {
		var amount *big.Int
		if kind == sweepFees {
			amount, err = e.state.FeeAmount(id, normalized, holder)
		} else {
			amount, err = e.state.ReservedAmount(id, normalized, holder)
		}
		if err != nil {
			return nil, err
		}
		if amount.Sign() <= 0 {
			continue
		}
		if kind == sweepFees {
			err = e.state.SetFeeAmount(id, normalized, holder, big.NewInt(0))
		} else {
			err = e.state.SetReservedAmount(id, normalized, holder, big.NewInt(0))
		}
		if err != nil {
			return nil, err
		}
		if err := e.reduceTotalReserved(id, normalized, amount); err != nil {
			return nil, err
		}
		if _, err := e.vaults.Deploy(id).SendTokens(e.identity, normalized, holder, amount); err != nil {
			return nil, err
		}
		if kind == sweepFees {
			e.emit(NewFeeCollectedEvent(id, normalized, holder, amount))
		} else {
			e.emit(NewDistributedEvent(id, normalized, holder, amount))
		}
		total.Add(total, amount)
	}
	return total, nil
}

// accountingPrologue performs the shared existence and token checks in front
// of every hook accounting callback. Status legality is the hook's call here:
// withdrawals for instance are only valid after finalization, which the
// attribution hook enforces itself.
func (e *Engine) accountingPrologue(id CampaignID, token string) (*Campaign, Hook, string, error) {
	c, err := e.loadCampaign(id)
	if err != nil {
		return nil, nil, "", err
	}
	hook, err := e.hookFor(c)
	if err != nil {
		return nil, nil, "", err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return nil, nil, "", err
	}
	return c, hook, normalized, nil
}

// checkSolvency verifies custody covers existing reservations plus the newly
// required amount.
func (e *Engine) checkSolvency(id CampaignID, token string, required *big.Int) error {
	balance, err := e.state.VaultBalance(id, token)
	if err != nil {
		return err
	}
	reserved, err := e.state.TotalReserved(id, token)
	if err != nil {
		return err
	}
	needed := new(big.Int).Add(reserved, required)
	if balance.Cmp(needed) < 0 {
		return fmt.Errorf("%w: balance %s below required %s", ErrInsufficientFunds, balance, needed)
	}
	return nil
}

func (e *Engine) creditFee(id CampaignID, token string, payee [20]byte, amount *big.Int) error {
	fee, err := e.state.FeeAmount(id, token, payee)
	if err != nil {
		return err
	}
	if err := e.state.SetFeeAmount(id, token, payee, new(big.Int).Add(fee, amount)); err != nil {
		return err
	}
	if err := e.state.AddFeeCampaign(token, payee, id); err != nil {
		return err
	}
	total, err := e.state.TotalReserved(id, token)
	if err != nil {
		return err
	}
	if err := e.state.SetTotalReserved(id, token, new(big.Int).Add(total, amount)); err != nil {
		return err
	}
	e.emit(NewFeeAllocatedEvent(id, token, payee, amount))
	return nil
}

func (e *Engine) reduceTotalReserved(id CampaignID, token string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	total, err := e.state.TotalReserved(id, token)
	if err != nil {
		return err
	}
	next := new(big.Int).Sub(total, amount)
	if next.Sign() < 0 {
		return fmt.Errorf("%w: reservation underflow", ErrInsufficientFunds)
	}
	return e.state.SetTotalReserved(id, token, next)
}

type release struct {
	holder    [20]byte
	recipient [20]byte
	amount    *big.Int
	remaining *big.Int
}

func resultPayouts(result *HookResult) []Payout {
	if result == nil {
		return nil
	}
	return result.Payouts
}

// validateFeeReleases resolves fee release instructions: a nil amount releases
// the payee's entire entry, a zero recipient pays the payee.
func (e *Engine) validateFeeReleases(id CampaignID, token string, result *HookResult) ([]release, error) {
	if result == nil {
		return nil, nil
	}
	releases := make([]release, 0, len(result.Fees))
	pending := make(map[[20]byte]*big.Int, len(result.Fees))
	for _, fee := range result.Fees {
		if isZeroAddress(fee.Payee) {
			return nil, ErrZeroAddress
		}
		current, ok := pending[fee.Payee]
		if !ok {
			stored, err := e.state.FeeAmount(id, token, fee.Payee)
			if err != nil {
				return nil, err
			}
			current = new(big.Int).Set(stored)
		}
		amount := fee.Amount
		if amount == nil {
			amount = new(big.Int).Set(current)
		}
		if amount.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative fee release", ErrInvalidAmount)
		}
		if amount.Sign() == 0 {
			pending[fee.Payee] = current
			continue
		}
		remaining := new(big.Int).Sub(current, amount)
		if remaining.Sign() < 0 {
			return nil, fmt.Errorf("%w: fee entry for %x holds %s, requested %s", ErrInsufficientFunds, fee.Payee, current, amount)
		}
		recipient := fee.Recipient
		if isZeroAddress(recipient) {
			recipient = fee.Payee
		}
		pending[fee.Payee] = remaining
		releases = append(releases, release{holder: fee.Payee, recipient: recipient, amount: cloneBigInt(amount), remaining: remaining})
	}
	return releases, nil
}

// validateReleases resolves every requested decrement against current entries
// before anything is written, so a single failing instruction aborts the
// batch with state untouched.
func (e *Engine) validateReleases(id CampaignID, token string, payouts []Payout, lookup func(CampaignID, string, [20]byte) (*big.Int, error)) ([]release, error) {
	releases := make([]release, 0, len(payouts))
	pending := make(map[[20]byte]*big.Int, len(payouts))
	for _, p := range payouts {
		current, ok := pending[p.Recipient]
		if !ok {
			stored, err := lookup(id, token, p.Recipient)
			if err != nil {
				return nil, err
			}
			current = new(big.Int).Set(stored)
		}
		remaining := new(big.Int).Sub(current, p.Amount)
		if remaining.Sign() < 0 {
			return nil, fmt.Errorf("%w: entry for %x holds %s, requested %s", ErrInsufficientFunds, p.Recipient, current, p.Amount)
		}
		pending[p.Recipient] = remaining
		releases = append(releases, release{holder: p.Recipient, amount: cloneBigInt(p.Amount), remaining: remaining})
	}
	return releases, nil
}

func sumReleases(groups ...[]release) *big.Int {
	total := big.NewInt(0)
	for _, releases := range groups {
		for _, r := range releases {
			total.Add(total, r.amount)
		}
	}
	return total
}

// sanitizeResult validates a hook result and returns the cleaned payout and
// fee lists together with the total amount of new value they require.
func sanitizeResult(result *HookResult) ([]Payout, []FeeDistribution, *big.Int, error) {
	if result == nil {
		return nil, nil, big.NewInt(0), nil
	}
	required := big.NewInt(0)
	payouts := make([]Payout, 0, len(result.Payouts))
	for _, p := range result.Payouts {
		if isZeroAddress(p.Recipient) {
			return nil, nil, nil, ErrZeroAddress
		}
		amt := cloneBigInt(p.Amount)
		if amt.Sign() < 0 {
			return nil, nil, nil, fmt.Errorf("%w: negative payout", ErrInvalidAmount)
		}
		if amt.Sign() == 0 {
			continue
		}
		payouts = append(payouts, Payout{Recipient: p.Recipient, Amount: amt})
		required.Add(required, amt)
	}
	fees := make([]FeeDistribution, 0, len(result.Fees))
	for _, fee := range result.Fees {
		if isZeroAddress(fee.Payee) {
			return nil, nil, nil, ErrZeroAddress
		}
		amt := cloneBigInt(fee.Amount)
		if amt.Sign() < 0 {
			return nil, nil, nil, fmt.Errorf("%w: negative fee", ErrInvalidAmount)
		}
		if amt.Sign() == 0 {
			continue
		}
		fees = append(fees, FeeDistribution{Payee: fee.Payee, Amount: amt})
		required.Add(required, amt)
	}
	return payouts, fees, required, nil
}
