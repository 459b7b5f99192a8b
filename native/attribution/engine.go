package attribution

import (
	"fmt"
	"math/big"
	"time"

	"campledger/core/events"
	"campledger/core/types"
	"campledger/native/campaign"
)

// State describes the persistence the attribution engine requires. Conversion
// configs are stored individually so retired ids keep their history.
type State interface {
	AttributionPut(r *CampaignRecord) error
	AttributionGet(id campaign.CampaignID) (*CampaignRecord, bool, error)
	ConversionConfigPut(id campaign.CampaignID, cfg *ConversionConfig) error
	ConversionConfigGet(id campaign.CampaignID, configID uint32) (*ConversionConfig, bool, error)
}

type attributionEvent struct {
	evt *types.Event
}

func (e attributionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e attributionEvent) Event() *types.Event { return e.evt }

// Engine is the canonical attribution/conversion hook. It validates and
// batch-processes conversion events into payout and fee instructions for the
// ledger, enforces the campaign lifecycle role matrix and manages conversion
// configurations. Accounting capabilities it does not support (allocate,
// deallocate) fail closed through the embedded UnimplementedHook.
type Engine struct {
	campaign.UnimplementedHook

	state    State
	emitter  events.Emitter
	core     [20]byte
	registry ReferenceRegistry
	nowFn    func() int64
}

var _ campaign.Hook = (*Engine)(nil)

// NewEngine creates an attribution engine bound to the ledger core identity
// allowed to invoke its callbacks.
func NewEngine(core [20]byte) *Engine {
	return &Engine{
		core:    core,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state State) { e.state = state }

// SetRegistry configures the reference registry consulted during batch
// processing.
func (e *Engine) SetRegistry(registry ReferenceRegistry) { e.registry = registry }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(attributionEvent{evt: event})
}

func (e *Engine) requireState() error {
	if e == nil || e.state == nil {
		return fmt.Errorf("attribution: engine state not configured")
	}
	return nil
}

// checkCore rejects callbacks that do not originate from the registered
// ledger core.
func (e *Engine) checkCore(ctx *campaign.CallContext) error {
	if ctx == nil || ctx.Core != e.core {
		return ErrUnauthorizedCore
	}
	return nil
}

func (e *Engine) loadRecord(id campaign.CampaignID) (*CampaignRecord, error) {
	if err := e.requireState(); err != nil {
		return nil, err
	}
	record, ok, err := e.state.AttributionGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrCampaignNotFound
	}
	return record, nil
}

// Campaign retrieves the attribution record for a campaign.
func (e *Engine) Campaign(id campaign.CampaignID) (*CampaignRecord, bool) {
	record, err := e.loadRecord(id)
	if err != nil {
		return nil, false
	}
	return record, true
}

// ConversionConfig retrieves a conversion config by id.
func (e *Engine) ConversionConfig(id campaign.CampaignID, configID uint32) (*ConversionConfig, bool) {
	if e.requireState() != nil || configID == 0 {
		return nil, false
	}
	cfg, ok, err := e.state.ConversionConfigGet(id, configID)
	if err != nil || !ok {
		return nil, false
	}
	return cfg, true
}

// OnCampaignCreated registers the campaign's attribution settings from the
// creation payload.
func (e *Engine) OnCampaignCreated(ctx *campaign.CallContext, payload []byte) error {
	if err := e.checkCore(ctx); err != nil {
		return err
	}
	if err := e.requireState(); err != nil {
		return err
	}
	record, err := decodeCreatePayload(payload)
	if err != nil {
		return err
	}
	if _, exists, err := e.state.AttributionGet(ctx.Campaign); err != nil {
		return err
	} else if exists {
		return ErrCampaignExists
	}
	record.ID = ctx.Campaign
	record.Status = campaign.StatusCreated
	if err := e.state.AttributionPut(record); err != nil {
		return err
	}
	e.emit(NewCampaignRegisteredEvent(record))
	return nil
}

// MetadataURI implements the hook's read-only metadata accessor.
func (e *Engine) MetadataURI(id campaign.CampaignID) string {
	record, err := e.loadRecord(id)
	if err != nil {
		return ""
	}
	return record.MetadataURI
}

// OnCampaignMetadataUpdated lets the advertiser replace the metadata URI.
func (e *Engine) OnCampaignMetadataUpdated(ctx *campaign.CallContext, payload []byte) error {
	if err := e.checkCore(ctx); err != nil {
		return err
	}
	record, err := e.loadRecord(ctx.Campaign)
	if err != nil {
		return err
	}
	if ctx.Caller != record.Advertiser {
		return fmt.Errorf("%w: metadata updates are advertiser-only", ErrUnauthorized)
	}
	uri, err := decodeMetadataPayload(payload)
	if err != nil {
		return err
	}
	record.MetadataURI = uri
	return e.state.AttributionPut(record)
}

// OnCampaignStatusChanged enforces the transition authorization matrix for
// the two privileged roles. Entering Finalizing records the attribution
// deadline when the campaign carries a non-zero attribution window; a zero
// window leaves no deadline gate and the advertiser may finalize immediately.
func (e *Engine) OnCampaignStatusChanged(ctx *campaign.CallContext, from, to campaign.Status, payload []byte) error {
	if err := e.checkCore(ctx); err != nil {
		return err
	}
	record, err := e.loadRecord(ctx.Campaign)
	if err != nil {
		return err
	}
	caller := ctx.Caller
	if caller != record.Advertiser && caller != record.Provider {
		return fmt.Errorf("%w: caller holds no campaign role", ErrUnauthorized)
	}
	switch {
	case from == campaign.StatusCreated && to == campaign.StatusActive:
		if caller != record.Provider {
			return fmt.Errorf("%w: activation is provider-only", ErrUnauthorized)
		}
	case from == campaign.StatusActive && to == campaign.StatusFinalizing:
		if caller != record.Advertiser {
			return fmt.Errorf("%w: finalizing is advertiser-only", ErrUnauthorized)
		}
		if record.AttributionWindow > 0 {
			record.Deadline = uint64(ctx.Now) + record.AttributionWindow
			e.emit(NewDeadlineSetEvent(record.ID, record.Deadline))
		}
	case from == campaign.StatusActive && to == campaign.StatusFinalized:
		if caller != record.Provider {
			return fmt.Errorf("%w: direct finalization is provider-only", ErrUnauthorized)
		}
	case from == campaign.StatusFinalizing && to == campaign.StatusFinalized:
		if caller == record.Advertiser {
			if record.Deadline != 0 && uint64(ctx.Now) < record.Deadline {
				return ErrDeadlineNotReached
			}
		}
	case from == campaign.StatusCreated && to == campaign.StatusFinalized:
		if caller != record.Advertiser {
			return fmt.Errorf("%w: abandonment is advertiser-only", ErrUnauthorized)
		}
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
	}
	record.Status = to
	return e.state.AttributionPut(record)
}

// OnReward is the batch attribution "send" callback. Provider-only, active
// campaigns only. The whole batch is validated before any result is produced;
// a single failing event aborts everything.
func (e *Engine) OnReward(ctx *campaign.CallContext, token string, payload []byte) (*campaign.HookResult, error) {
	if err := e.checkCore(ctx); err != nil {
		return nil, err
	}
	record, err := e.loadRecord(ctx.Campaign)
	if err != nil {
		return nil, err
	}
	if ctx.Caller != record.Provider {
		return nil, fmt.Errorf("%w: conversion batches are provider-only", ErrUnauthorized)
	}
	if record.Status != campaign.StatusActive {
		return nil, fmt.Errorf("%w: campaign is %s", campaign.ErrInvalidStatus, record.Status)
	}
	conversions, err := decodeSendPayload(payload)
	if err != nil {
		return nil, err
	}

	totals := make(map[[20]byte]*big.Int, len(conversions))
	order := make([][20]byte, 0, len(conversions))
	feeTotal := big.NewInt(0)
	processed := make([]*types.Event, 0, len(conversions))

	for i := range conversions {
		ev := &conversions[i]
		recipient, net, fee, err := e.processEvent(record, ev)
		if err != nil {
			return nil, fmt.Errorf("attribution: event %d: %w", i, err)
		}
		if _, ok := totals[recipient]; !ok {
			totals[recipient] = big.NewInt(0)
			order = append(order, recipient)
		}
		totals[recipient].Add(totals[recipient], net)
		feeTotal.Add(feeTotal, fee)
		processed = append(processed, NewConversionProcessedEvent(record.ID, ev, recipient, net, fee))
	}

	// The records ride back on the result so the ledger publishes them only
	// after the operation commits; a solvency abort downstream leaves no trace
	// on the event stream.
	result := &campaign.HookResult{DeferFees: true, Events: processed}
	for _, recipient := range order {
		if totals[recipient].Sign() == 0 {
			continue
		}
		result.Payouts = append(result.Payouts, campaign.Payout{Recipient: recipient, Amount: totals[recipient]})
	}
	if feeTotal.Sign() > 0 {
		result.Fees = append(result.Fees, campaign.FeeDistribution{Payee: record.Provider, Amount: feeTotal})
	}
	return result, nil
}

// processEvent validates a single conversion event and resolves its payout
// recipient and fee split.
func (e *Engine) processEvent(record *CampaignRecord, ev *ConversionEvent) ([20]byte, *big.Int, *big.Int, error) {
	if ev.ConfigID == 0 {
		return [20]byte{}, nil, nil, ErrInvalidConversionConfigID
	}
	cfg, ok, err := e.state.ConversionConfigGet(record.ID, ev.ConfigID)
	if err != nil {
		return [20]byte{}, nil, nil, err
	}
	if !ok {
		return [20]byte{}, nil, nil, fmt.Errorf("%w: %d", ErrInvalidConversionConfigID, ev.ConfigID)
	}
	if cfg.Status == ConfigDisabled {
		return [20]byte{}, nil, nil, fmt.Errorf("%w: %d disabled", ErrInvalidConversionConfigID, ev.ConfigID)
	}
	if ev.Onchain() != (cfg.EventType == EventOnchain) {
		return [20]byte{}, nil, nil, fmt.Errorf("%w: config %d expects %s", ErrInvalidConversionType, cfg.ID, cfg.EventType)
	}
	if ev.ReferenceCode != "" {
		if e.registry == nil || !e.registry.Exists(ev.ReferenceCode) {
			return [20]byte{}, nil, nil, fmt.Errorf("%w: %q", ErrInvalidReferenceCode, ev.ReferenceCode)
		}
		if !record.allows(ev.ReferenceCode) {
			return [20]byte{}, nil, nil, fmt.Errorf("%w: %q", ErrRecipientNotAllowed, ev.ReferenceCode)
		}
	}
	recipient, err := e.resolveRecipient(ev)
	if err != nil {
		return [20]byte{}, nil, nil, err
	}
	amount := ev.PayoutAmount
	if amount == nil || amount.Sign() < 0 {
		return [20]byte{}, nil, nil, ErrInvalidAmount
	}
	// Multiply before dividing; big.Int arithmetic cannot wrap, so the guard
	// is purely against negative inputs which are rejected above.
	fee := new(big.Int).Mul(amount, big.NewInt(int64(record.FeeBps)))
	fee.Quo(fee, big.NewInt(feeDenominator))
	net := new(big.Int).Sub(amount, fee)
	return recipient, net, fee, nil
}

func (e *Engine) resolveRecipient(ev *ConversionEvent) ([20]byte, error) {
	if ev.RecipientType != RecipientPublisher {
		if ev.PayoutAddress == ([20]byte{}) {
			return [20]byte{}, ErrZeroAddress
		}
		return ev.PayoutAddress, nil
	}
	if ev.ReferenceCode == "" {
		return [20]byte{}, fmt.Errorf("%w: publisher payout without reference code", ErrInvalidReferenceCode)
	}
	if e.registry == nil {
		return [20]byte{}, fmt.Errorf("%w: %q", ErrInvalidReferenceCode, ev.ReferenceCode)
	}
	if addr, ok := e.registry.PayoutAddress(ev.ReferenceCode, ev.ChainID); ok {
		if addr == ([20]byte{}) {
			return [20]byte{}, ErrZeroAddress
		}
		return addr, nil
	}
	addr, ok := e.registry.DefaultPayoutAddress(ev.ReferenceCode)
	if !ok {
		return [20]byte{}, fmt.Errorf("%w: %q has no payout address", ErrInvalidReferenceCode, ev.ReferenceCode)
	}
	if addr == ([20]byte{}) {
		return [20]byte{}, ErrZeroAddress
	}
	return addr, nil
}

// OnDistribute is the fee distribution callback: the provider releases their
// accumulated fee balance, optionally redirecting the payment to a different
// recipient supplied in the payload.
func (e *Engine) OnDistribute(ctx *campaign.CallContext, token string, payload []byte) (*campaign.HookResult, error) {
	if err := e.checkCore(ctx); err != nil {
		return nil, err
	}
	record, err := e.loadRecord(ctx.Campaign)
	if err != nil {
		return nil, err
	}
	if ctx.Caller != record.Provider {
		return nil, fmt.Errorf("%w: fee distribution is provider-only", ErrUnauthorized)
	}
	recipient, err := decodeFeePayload(payload)
	if err != nil {
		return nil, err
	}
	return &campaign.HookResult{
		Fees: []campaign.FeeDistribution{{Payee: record.Provider, Recipient: recipient}},
	}, nil
}

// OnWithdrawFunds authorizes the advertiser to recover remaining custody
// once the campaign is finalized and no further obligations are possible.
func (e *Engine) OnWithdrawFunds(ctx *campaign.CallContext, token string, amount *big.Int, payload []byte) error {
	if err := e.checkCore(ctx); err != nil {
		return err
	}
	record, err := e.loadRecord(ctx.Campaign)
	if err != nil {
		return err
	}
	if ctx.Caller != record.Advertiser {
		return fmt.Errorf("%w: withdrawals are advertiser-only", ErrUnauthorized)
	}
	if record.Status != campaign.StatusFinalized {
		return fmt.Errorf("%w: campaign is %s", campaign.ErrInvalidStatus, record.Status)
	}
	return nil
}

// AddConversionConfig appends a new conversion configuration with the next
// sequential id. Advertiser-only; the id space never recycles.
func (e *Engine) AddConversionConfig(caller [20]byte, id campaign.CampaignID, cfg *ConversionConfig) (uint32, error) {
	record, err := e.loadRecord(id)
	if err != nil {
		return 0, err
	}
	if caller != record.Advertiser {
		return 0, fmt.Errorf("%w: config management is advertiser-only", ErrUnauthorized)
	}
	if cfg == nil {
		return 0, fmt.Errorf("attribution: nil conversion config")
	}
	// A zero next id means the counter wrapped: every uint32 id including
	// MaxUint32 has been handed out.
	if record.NextConfigID == 0 {
		return 0, ErrMaxConfigsReached
	}
	sanitized := cfg.Clone()
	if sanitized.MinBid != nil && sanitized.MinBid.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative min bid", ErrInvalidAmount)
	}
	if sanitized.MaxBid != nil && sanitized.MaxBid.Sign() < 0 {
		return 0, fmt.Errorf("%w: negative max bid", ErrInvalidAmount)
	}
	if sanitized.MinBid != nil && sanitized.MaxBid != nil && sanitized.MinBid.Cmp(sanitized.MaxBid) > 0 {
		return 0, fmt.Errorf("%w: min bid above max bid", ErrInvalidAmount)
	}
	sanitized.ID = record.NextConfigID
	sanitized.Status = ConfigActive
	if err := e.state.ConversionConfigPut(record.ID, sanitized); err != nil {
		return 0, err
	}
	record.NextConfigID++
	if err := e.state.AttributionPut(record); err != nil {
		return 0, err
	}
	e.emit(NewConfigAddedEvent(record.ID, sanitized))
	return sanitized.ID, nil
}

// DisableConversionConfig flips an active config to disabled. Advertiser-only
// and one-directional: disabled ids are permanently retired.
func (e *Engine) DisableConversionConfig(caller [20]byte, id campaign.CampaignID, configID uint32) error {
	record, err := e.loadRecord(id)
	if err != nil {
		return err
	}
	if caller != record.Advertiser {
		return fmt.Errorf("%w: config management is advertiser-only", ErrUnauthorized)
	}
	if configID == 0 {
		return ErrInvalidConversionConfigID
	}
	cfg, ok, err := e.state.ConversionConfigGet(record.ID, configID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidConversionConfigID, configID)
	}
	if cfg.Status == ConfigDisabled {
		return fmt.Errorf("%w: %d", ErrConfigDisabled, configID)
	}
	cfg.Status = ConfigDisabled
	if err := e.state.ConversionConfigPut(record.ID, cfg); err != nil {
		return err
	}
	e.emit(NewConfigDisabledEvent(record.ID, configID))
	return nil
}
