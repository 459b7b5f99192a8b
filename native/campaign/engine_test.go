package campaign

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"campledger/core/events"
	"campledger/core/types"
	"campledger/native/common"
)

type mockState struct {
	campaigns map[CampaignID]*Campaign
	vaults    map[string]*big.Int
	totals    map[string]*big.Int
	reserved  map[string]*big.Int
	fees      map[string]*big.Int
	accounts  map[string]*big.Int
	resIndex  map[string][]CampaignID
	feeIndex  map[string][]CampaignID
}

func newMockState() *mockState {
	return &mockState{
		campaigns: make(map[CampaignID]*Campaign),
		vaults:    make(map[string]*big.Int),
		totals:    make(map[string]*big.Int),
		reserved:  make(map[string]*big.Int),
		fees:      make(map[string]*big.Int),
		accounts:  make(map[string]*big.Int),
		resIndex:  make(map[string][]CampaignID),
		feeIndex:  make(map[string][]CampaignID),
	}
}

func scopeKey(id CampaignID, token string) string {
	return fmt.Sprintf("%x|%s", id, token)
}

func holderKey(id CampaignID, token string, holder [20]byte) string {
	return fmt.Sprintf("%x|%s|%x", id, token, holder)
}

func indexKey(token string, holder [20]byte) string {
	return fmt.Sprintf("%s|%x", token, holder)
}

func amountFrom(m map[string]*big.Int, key string) *big.Int {
	if amt, ok := m[key]; ok {
		return new(big.Int).Set(amt)
	}
	return big.NewInt(0)
}

func (s *mockState) CampaignPut(c *Campaign) error {
	s.campaigns[c.ID] = c.Clone()
	return nil
}

func (s *mockState) CampaignGet(id CampaignID) (*Campaign, bool, error) {
	c, ok := s.campaigns[id]
	if !ok {
		return nil, false, nil
	}
	return c.Clone(), true, nil
}

func (s *mockState) VaultBalance(id CampaignID, token string) (*big.Int, error) {
	return amountFrom(s.vaults, scopeKey(id, token)), nil
}

func (s *mockState) VaultCredit(id CampaignID, token string, amt *big.Int) error {
	key := scopeKey(id, token)
	s.vaults[key] = new(big.Int).Add(amountFrom(s.vaults, key), amt)
	return nil
}

func (s *mockState) VaultDebit(id CampaignID, token string, amt *big.Int) error {
	key := scopeKey(id, token)
	balance := amountFrom(s.vaults, key)
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("vault underflow")
	}
	s.vaults[key] = balance.Sub(balance, amt)
	return nil
}

func (s *mockState) TotalReserved(id CampaignID, token string) (*big.Int, error) {
	return amountFrom(s.totals, scopeKey(id, token)), nil
}

func (s *mockState) SetTotalReserved(id CampaignID, token string, amt *big.Int) error {
	s.totals[scopeKey(id, token)] = new(big.Int).Set(amt)
	return nil
}

func (s *mockState) ReservedAmount(id CampaignID, token string, recipient [20]byte) (*big.Int, error) {
	return amountFrom(s.reserved, holderKey(id, token, recipient)), nil
}

func (s *mockState) SetReservedAmount(id CampaignID, token string, recipient [20]byte, amt *big.Int) error {
	s.reserved[holderKey(id, token, recipient)] = new(big.Int).Set(amt)
	return nil
}

func (s *mockState) FeeAmount(id CampaignID, token string, payee [20]byte) (*big.Int, error) {
	return amountFrom(s.fees, holderKey(id, token, payee)), nil
}

func (s *mockState) SetFeeAmount(id CampaignID, token string, payee [20]byte, amt *big.Int) error {
	s.fees[holderKey(id, token, payee)] = new(big.Int).Set(amt)
	return nil
}

func (s *mockState) AccountBalance(addr [20]byte, token string) (*big.Int, error) {
	return amountFrom(s.accounts, indexKey(token, addr)), nil
}

func (s *mockState) SetAccountBalance(addr [20]byte, token string, amt *big.Int) error {
	s.accounts[indexKey(token, addr)] = new(big.Int).Set(amt)
	return nil
}

func appendCampaign(index map[string][]CampaignID, key string, id CampaignID) {
	for _, existing := range index[key] {
		if existing == id {
			return
		}
	}
	index[key] = append(index[key], id)
}

func (s *mockState) ReservationCampaigns(token string, recipient [20]byte) ([]CampaignID, error) {
	return append([]CampaignID(nil), s.resIndex[indexKey(token, recipient)]...), nil
}

func (s *mockState) AddReservationCampaign(token string, recipient [20]byte, id CampaignID) error {
	appendCampaign(s.resIndex, indexKey(token, recipient), id)
	return nil
}

func (s *mockState) FeeCampaigns(token string, payee [20]byte) ([]CampaignID, error) {
	return append([]CampaignID(nil), s.feeIndex[indexKey(token, payee)]...), nil
}

func (s *mockState) AddFeeCampaign(token string, payee [20]byte, id CampaignID) error {
	appendCampaign(s.feeIndex, indexKey(token, payee), id)
	return nil
}

type stubHook struct {
	UnimplementedHook

	result      *HookResult
	resultErr   error
	statusErr   error
	withdrawErr error
	uri         string
}

func (h *stubHook) OnCampaignCreated(*CallContext, []byte) error { return nil }

func (h *stubHook) OnCampaignMetadataUpdated(*CallContext, []byte) error { return nil }

func (h *stubHook) OnCampaignStatusChanged(*CallContext, Status, Status, []byte) error {
	return h.statusErr
}

func (h *stubHook) OnReward(*CallContext, string, []byte) (*HookResult, error) {
	return h.result, h.resultErr
}

func (h *stubHook) OnAllocate(*CallContext, string, []byte) (*HookResult, error) {
	return h.result, h.resultErr
}

func (h *stubHook) OnDistribute(*CallContext, string, []byte) (*HookResult, error) {
	return h.result, h.resultErr
}

func (h *stubHook) OnDeallocate(*CallContext, string, []byte) (*HookResult, error) {
	return h.result, h.resultErr
}

func (h *stubHook) OnWithdrawFunds(*CallContext, string, *big.Int, []byte) error {
	return h.withdrawErr
}

func (h *stubHook) MetadataURI(CampaignID) string { return h.uri }

type recordingEmitter struct {
	types []string
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.types = append(r.types, evt.EventType())
}

var (
	ledgerAddr = [20]byte{0x01}
	hookAddr   = [20]byte{0x02}
	creator    = [20]byte{0x03}
	alice      = [20]byte{0x0a}
	bob        = [20]byte{0x0b}
	feePayee   = [20]byte{0x0f}
)

func newTestEngine(t *testing.T) (*Engine, *mockState, *stubHook) {
	t.Helper()
	state := newMockState()
	hook := &stubHook{uri: "ipfs://test"}
	engine := NewEngine(ledgerAddr)
	engine.SetState(state)
	engine.SetNowFunc(func() int64 { return 42 })
	if err := engine.RegisterHook(hookAddr, hook); err != nil {
		t.Fatalf("register hook: %v", err)
	}
	return engine, state, hook
}

func createFundedCampaign(t *testing.T, engine *Engine, state *mockState, balance int64) CampaignID {
	t.Helper()
	c, err := engine.CreateCampaign(creator, hookAddr, [32]byte{0x01}, nil)
	if err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	if balance > 0 {
		state.accounts[indexKey("NHB", creator)] = big.NewInt(balance)
		if err := engine.Deposit(creator, c.ID, "NHB", big.NewInt(balance)); err != nil {
			t.Fatalf("deposit: %v", err)
		}
	}
	return c.ID
}

func TestCreateCampaignDeterministicID(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	nonce := [32]byte{0x01}
	payload := []byte(`{"hello":"world"}`)

	predicted := PredictCampaignID(hookAddr, nonce, payload)
	created, err := engine.CreateCampaign(creator, hookAddr, nonce, payload)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != predicted {
		t.Fatalf("expected id %x, got %x", predicted, created.ID)
	}
	if created.Status != StatusCreated || created.MetadataURI != "ipfs://test" {
		t.Fatalf("unexpected campaign: %+v", created)
	}
	if created.CreatedAt != 42 {
		t.Fatalf("unexpected timestamp: %d", created.CreatedAt)
	}

	if _, err := engine.CreateCampaign(creator, hookAddr, nonce, payload); !errors.Is(err, ErrCampaignExists) {
		t.Fatalf("expected ErrCampaignExists, got %v", err)
	}
}

func TestCreateCampaignRejectsBadHooks(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.CreateCampaign(creator, [20]byte{}, [32]byte{0x01}, nil); !errors.Is(err, ErrZeroHook) {
		t.Fatalf("expected ErrZeroHook, got %v", err)
	}
	if _, err := engine.CreateCampaign(creator, [20]byte{0xee}, [32]byte{0x01}, nil); !errors.Is(err, ErrHookNotRegistered) {
		t.Fatalf("expected ErrHookNotRegistered, got %v", err)
	}
}

func TestDepositMovesFunds(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 0)

	state.accounts[indexKey("NHB", creator)] = big.NewInt(1_000)
	if err := engine.Deposit(creator, id, "nhb", big.NewInt(400)); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	balance, _ := state.VaultBalance(id, "NHB")
	if balance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected vault 400, got %s", balance)
	}
	account, _ := state.AccountBalance(creator, "NHB")
	if account.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected account 600, got %s", account)
	}

	if err := engine.Deposit(creator, id, "NHB", big.NewInt(601)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := engine.Deposit(creator, id, "NHB", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestRewardPaysImmediatelyAndDefersFees(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 1_000)

	hook.result = &HookResult{
		Payouts:   []Payout{{Recipient: alice, Amount: big.NewInt(300)}},
		Fees:      []FeeDistribution{{Payee: feePayee, Amount: big.NewInt(50)}},
		DeferFees: true,
	}
	if err := engine.Reward(creator, id, "NHB", nil); err != nil {
		t.Fatalf("reward: %v", err)
	}

	aliceBalance, _ := state.AccountBalance(alice, "NHB")
	if aliceBalance.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected alice 300, got %s", aliceBalance)
	}
	vault, _ := state.VaultBalance(id, "NHB")
	if vault.Cmp(big.NewInt(700)) != 0 {
		t.Fatalf("expected vault 700, got %s", vault)
	}
	fee, _ := state.FeeAmount(id, "NHB", feePayee)
	if fee.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected fee entry 50, got %s", fee)
	}
	total, _ := state.TotalReserved(id, "NHB")
	if total.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected total reserved 50, got %s", total)
	}
}

func TestRewardImmediateFeePayment(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 1_000)

	hook.result = &HookResult{
		Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(300)}},
		Fees:    []FeeDistribution{{Payee: feePayee, Amount: big.NewInt(50)}},
	}
	if err := engine.Reward(creator, id, "NHB", nil); err != nil {
		t.Fatalf("reward: %v", err)
	}
	payeeBalance, _ := state.AccountBalance(feePayee, "NHB")
	if payeeBalance.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("expected payee 50, got %s", payeeBalance)
	}
	total, _ := state.TotalReserved(id, "NHB")
	if total.Sign() != 0 {
		t.Fatalf("expected no reservation, got %s", total)
	}
}

func TestRewardInsolventAborts(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 100)

	hook.result = &HookResult{
		Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(90)}},
		Fees:    []FeeDistribution{{Payee: feePayee, Amount: big.NewInt(20)}},
	}
	if err := engine.Reward(creator, id, "NHB", nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	vault, _ := state.VaultBalance(id, "NHB")
	if vault.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected untouched vault, got %s", vault)
	}
	aliceBalance, _ := state.AccountBalance(alice, "NHB")
	if aliceBalance.Sign() != 0 {
		t.Fatalf("expected no payment, got %s", aliceBalance)
	}
}

func TestHookEventsHeldUntilCommit(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	emitter := &recordingEmitter{}
	engine.SetEmitter(emitter)
	id := createFundedCampaign(t, engine, state, 100)

	hook.result = &HookResult{
		Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(1_000)}},
		Events:  []*types.Event{{Type: "hook.record", Attributes: map[string]string{"eventId": "ev-1"}}},
	}
	if err := engine.Reward(creator, id, "NHB", nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	for _, typ := range emitter.types {
		if typ == "hook.record" {
			t.Fatalf("hook record published for an aborted operation")
		}
	}

	hook.result = &HookResult{
		Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(40)}},
		Events:  []*types.Event{{Type: "hook.record", Attributes: map[string]string{"eventId": "ev-2"}}},
	}
	if err := engine.Reward(creator, id, "NHB", nil); err != nil {
		t.Fatalf("reward: %v", err)
	}
	found := false
	for _, typ := range emitter.types {
		if typ == "hook.record" {
			found = true
		}
	}
	if !found {
		t.Fatalf("hook record missing after commit, saw %v", emitter.types)
	}
}

func TestRewardRejectsInvalidInstructions(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 1_000)

	hook.result = &HookResult{Payouts: []Payout{{Recipient: [20]byte{}, Amount: big.NewInt(1)}}}
	if err := engine.Reward(creator, id, "NHB", nil); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	hook.result = &HookResult{Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(-1)}}}
	if err := engine.Reward(creator, id, "NHB", nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestAllocateDistributeRoundTrip(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 1_000)

	hook.result = &HookResult{
		Payouts: []Payout{
			{Recipient: alice, Amount: big.NewInt(200)},
			{Recipient: bob, Amount: big.NewInt(100)},
		},
		Fees: []FeeDistribution{{Payee: feePayee, Amount: big.NewInt(30)}},
	}
	if err := engine.Allocate(creator, id, "NHB", nil); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	total, _ := state.TotalReserved(id, "NHB")
	if total.Cmp(big.NewInt(330)) != 0 {
		t.Fatalf("expected total reserved 330, got %s", total)
	}

	hook.result = &HookResult{
		Payouts: []Payout{
			{Recipient: alice, Amount: big.NewInt(200)},
			{Recipient: bob, Amount: big.NewInt(100)},
		},
		Fees: []FeeDistribution{{Payee: feePayee, Amount: big.NewInt(30)}},
	}
	if err := engine.Distribute(creator, id, "NHB", nil); err != nil {
		t.Fatalf("distribute: %v", err)
	}

	total, _ = state.TotalReserved(id, "NHB")
	if total.Sign() != 0 {
		t.Fatalf("expected total reserved 0, got %s", total)
	}
	aliceBalance, _ := state.AccountBalance(alice, "NHB")
	bobBalance, _ := state.AccountBalance(bob, "NHB")
	payeeBalance, _ := state.AccountBalance(feePayee, "NHB")
	if aliceBalance.Cmp(big.NewInt(200)) != 0 || bobBalance.Cmp(big.NewInt(100)) != 0 || payeeBalance.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected balances: alice=%s bob=%s payee=%s", aliceBalance, bobBalance, payeeBalance)
	}
	vault, _ := state.VaultBalance(id, "NHB")
	if vault.Cmp(big.NewInt(670)) != 0 {
		t.Fatalf("expected vault 670, got %s", vault)
	}
}

func TestDistributeOverReleaseAborts(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 1_000)

	hook.result = &HookResult{Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(100)}}}
	if err := engine.Allocate(creator, id, "NHB", nil); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	hook.result = &HookResult{Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(150)}}}
	if err := engine.Distribute(creator, id, "NHB", nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	reserved, _ := state.ReservedAmount(id, "NHB", alice)
	if reserved.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected reservation untouched, got %s", reserved)
	}
	aliceBalance, _ := state.AccountBalance(alice, "NHB")
	if aliceBalance.Sign() != 0 {
		t.Fatalf("expected no payment, got %s", aliceBalance)
	}
}

func TestDistributeSplitReleaseValidatedAgainstEntry(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 1_000)

	hook.result = &HookResult{Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(100)}}}
	if err := engine.Allocate(creator, id, "NHB", nil); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	// Two instructions against the same entry: 60 + 60 exceeds the 100 held.
	hook.result = &HookResult{Payouts: []Payout{
		{Recipient: alice, Amount: big.NewInt(60)},
		{Recipient: alice, Amount: big.NewInt(60)},
	}}
	if err := engine.Distribute(creator, id, "NHB", nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	reserved, _ := state.ReservedAmount(id, "NHB", alice)
	if reserved.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected reservation untouched, got %s", reserved)
	}
}

func TestDeallocateReleasesWithoutPayment(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 1_000)

	hook.result = &HookResult{Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(100)}}}
	if err := engine.Allocate(creator, id, "NHB", nil); err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := engine.Deallocate(creator, id, "NHB", nil); err != nil {
		t.Fatalf("deallocate: %v", err)
	}
	reserved, _ := state.ReservedAmount(id, "NHB", alice)
	total, _ := state.TotalReserved(id, "NHB")
	if reserved.Sign() != 0 || total.Sign() != 0 {
		t.Fatalf("expected cleared reservations, got entry=%s total=%s", reserved, total)
	}
	aliceBalance, _ := state.AccountBalance(alice, "NHB")
	if aliceBalance.Sign() != 0 {
		t.Fatalf("expected no payment, got %s", aliceBalance)
	}
	vault, _ := state.VaultBalance(id, "NHB")
	if vault.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("expected untouched vault, got %s", vault)
	}
}

func TestDistributePayoutsSweepsAcrossCampaigns(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	first := createFundedCampaign(t, engine, state, 500)

	second, err := engine.CreateCampaign(creator, hookAddr, [32]byte{0x02}, nil)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	state.accounts[indexKey("NHB", creator)] = big.NewInt(500)
	if err := engine.Deposit(creator, second.ID, "NHB", big.NewInt(500)); err != nil {
		t.Fatalf("deposit second: %v", err)
	}

	hook.result = &HookResult{Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(120)}}}
	if err := engine.Allocate(creator, first, "NHB", nil); err != nil {
		t.Fatalf("allocate first: %v", err)
	}
	hook.result = &HookResult{Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(80)}}}
	if err := engine.Allocate(creator, second.ID, "NHB", nil); err != nil {
		t.Fatalf("allocate second: %v", err)
	}

	total, err := engine.DistributePayouts("NHB", alice)
	if err != nil {
		t.Fatalf("distribute payouts: %v", err)
	}
	if total.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected swept total 200, got %s", total)
	}
	aliceBalance, _ := state.AccountBalance(alice, "NHB")
	if aliceBalance.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("expected alice 200, got %s", aliceBalance)
	}

	// Sweeping again moves nothing.
	again, err := engine.DistributePayouts("NHB", alice)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again.Sign() != 0 {
		t.Fatalf("expected empty sweep, got %s", again)
	}
}

func TestCollectFeesSweep(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 1_000)

	hook.result = &HookResult{
		Fees:      []FeeDistribution{{Payee: feePayee, Amount: big.NewInt(75)}},
		DeferFees: true,
	}
	if err := engine.Reward(creator, id, "NHB", nil); err != nil {
		t.Fatalf("reward: %v", err)
	}

	total, err := engine.CollectFees("NHB", feePayee)
	if err != nil {
		t.Fatalf("collect fees: %v", err)
	}
	if total.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("expected 75, got %s", total)
	}
	reserved, _ := state.TotalReserved(id, "NHB")
	if reserved.Sign() != 0 {
		t.Fatalf("expected reservation released, got %s", reserved)
	}

	if _, err := engine.CollectFees("NHB", [20]byte{}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
}

func TestWithdrawGuardsReservations(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 1_000)

	hook.result = &HookResult{Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(400)}}}
	if err := engine.Allocate(creator, id, "NHB", nil); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if err := engine.WithdrawFunds(creator, id, "NHB", big.NewInt(700), nil); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if err := engine.WithdrawFunds(creator, id, "NHB", big.NewInt(600), nil); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	creatorBalance, _ := state.AccountBalance(creator, "NHB")
	if creatorBalance.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected creator 600, got %s", creatorBalance)
	}

	hook.withdrawErr = ErrUnsupportedOperation
	if err := engine.WithdrawFunds(creator, id, "NHB", big.NewInt(1), nil); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("expected hook veto, got %v", err)
	}
}

func TestUpdateStatusTerminality(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 0)

	if err := engine.UpdateStatus(creator, id, StatusCreated, nil); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected no-op rejection, got %v", err)
	}
	if err := engine.UpdateStatus(creator, id, StatusActive, nil); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := engine.UpdateStatus(creator, id, StatusCreated, nil); !errors.Is(err, ErrInvalidStatusTransition) {
		t.Fatalf("expected created rejection, got %v", err)
	}
	if err := engine.UpdateStatus(creator, id, StatusFinalized, nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	for _, next := range []Status{StatusActive, StatusFinalizing, StatusCreated} {
		if err := engine.UpdateStatus(creator, id, next, nil); !errors.Is(err, ErrInvalidStatusTransition) {
			t.Fatalf("expected terminal rejection for %s, got %v", next, err)
		}
	}
}

func TestUpdateMetadataRefreshesURI(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 0)

	hook.uri = "ipfs://updated"
	if err := engine.UpdateMetadata(creator, id, nil); err != nil {
		t.Fatalf("update metadata: %v", err)
	}
	c, _, _ := state.CampaignGet(id)
	if c.MetadataURI != "ipfs://updated" {
		t.Fatalf("expected refreshed uri, got %s", c.MetadataURI)
	}

	if err := engine.UpdateStatus(creator, id, StatusActive, nil); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := engine.UpdateStatus(creator, id, StatusFinalized, nil); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := engine.UpdateMetadata(creator, id, nil); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected finalized rejection, got %v", err)
	}
}

func TestPausedModuleRejectsWrites(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	id := createFundedCampaign(t, engine, state, 1_000)

	engine.SetPauses(common.StaticPauses{PauseModule: true})

	if _, err := engine.CreateCampaign(creator, hookAddr, [32]byte{0x09}, nil); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := engine.Deposit(creator, id, "NHB", big.NewInt(1)); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	hook.result = &HookResult{Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(1)}}}
	if err := engine.Reward(creator, id, "NHB", nil); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if _, err := engine.DistributePayouts("NHB", alice); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}

	// Reads stay available while paused.
	if _, err := engine.Campaign(id); err != nil {
		t.Fatalf("expected read to pass, got %v", err)
	}

	engine.SetPauses(nil)
	if err := engine.Reward(creator, id, "NHB", nil); err != nil {
		t.Fatalf("expected resume, got %v", err)
	}
}

func TestEventsEmitted(t *testing.T) {
	engine, state, hook := newTestEngine(t)
	emitter := &recordingEmitter{}
	engine.SetEmitter(emitter)
	id := createFundedCampaign(t, engine, state, 1_000)

	hook.result = &HookResult{Payouts: []Payout{{Recipient: alice, Amount: big.NewInt(10)}}}
	if err := engine.Reward(creator, id, "NHB", nil); err != nil {
		t.Fatalf("reward: %v", err)
	}

	want := map[string]bool{
		EventTypeCampaignCreated: false,
		EventTypeCampaignDeposit: false,
		EventTypePayoutRewarded:  false,
	}
	for _, evt := range emitter.types {
		if _, ok := want[evt]; ok {
			want[evt] = true
		}
	}
	for evt, seen := range want {
		if !seen {
			t.Fatalf("expected %s event, got %v", evt, emitter.types)
		}
	}
}
