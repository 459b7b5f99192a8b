package campaign

import "math/big"

// CallContext carries the identities relevant to a hook callback. Core is the
// ledger identity performing the callback, Caller is the account that invoked
// the ledger operation. Hooks must reject callbacks whose Core differs from
// the ledger they were bound to at construction.
type CallContext struct {
	Core     [20]byte
	Caller   [20]byte
	Campaign CampaignID
	Now      int64
}

// Hook is the capability contract campaign extension modules implement. The
// ledger invokes lifecycle callbacks around campaign mutations and accounting
// callbacks to obtain payout and fee instructions. Implementations embed
// UnimplementedHook and override only the capabilities their campaign type
// supports; everything left unimplemented is rejected, which disables the
// corresponding ledger operation for the campaign.
type Hook interface {
	OnCampaignCreated(ctx *CallContext, payload []byte) error
	OnCampaignMetadataUpdated(ctx *CallContext, payload []byte) error
	OnCampaignStatusChanged(ctx *CallContext, from, to Status, payload []byte) error

	OnReward(ctx *CallContext, token string, payload []byte) (*HookResult, error)
	OnAllocate(ctx *CallContext, token string, payload []byte) (*HookResult, error)
	OnDistribute(ctx *CallContext, token string, payload []byte) (*HookResult, error)
	OnDeallocate(ctx *CallContext, token string, payload []byte) (*HookResult, error)
	OnWithdrawFunds(ctx *CallContext, token string, amount *big.Int, payload []byte) error

	// MetadataURI reports the current metadata URI for the campaign. The
	// ledger re-reads it after every metadata update.
	MetadataURI(id CampaignID) string
}

// UnimplementedHook rejects every callback. Hook authors embed it so that
// capabilities they do not implement fail closed.
type UnimplementedHook struct{}

var _ Hook = UnimplementedHook{}

func (UnimplementedHook) OnCampaignCreated(*CallContext, []byte) error {
	return ErrUnsupportedOperation
}

func (UnimplementedHook) OnCampaignMetadataUpdated(*CallContext, []byte) error {
	return ErrUnsupportedOperation
}

func (UnimplementedHook) OnCampaignStatusChanged(*CallContext, Status, Status, []byte) error {
	return ErrUnsupportedOperation
}

func (UnimplementedHook) OnReward(*CallContext, string, []byte) (*HookResult, error) {
	return nil, ErrUnsupportedOperation
}

func (UnimplementedHook) OnAllocate(*CallContext, string, []byte) (*HookResult, error) {
	return nil, ErrUnsupportedOperation
}

func (UnimplementedHook) OnDistribute(*CallContext, string, []byte) (*HookResult, error) {
	return nil, ErrUnsupportedOperation
}

func (UnimplementedHook) OnDeallocate(*CallContext, string, []byte) (*HookResult, error) {
	return nil, ErrUnsupportedOperation
}

func (UnimplementedHook) OnWithdrawFunds(*CallContext, string, *big.Int, []byte) error {
	return ErrUnsupportedOperation
}

func (UnimplementedHook) MetadataURI(CampaignID) string { return "" }
