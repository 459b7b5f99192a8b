package campaign

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"campledger/core/types"
)

const (
	EventTypeCampaignCreated   = "campaign.created"
	EventTypeCampaignDeposit   = "campaign.deposit"
	EventTypeMetadataUpdated   = "campaign.metadata_updated"
	EventTypeStatusChanged     = "campaign.status_changed"
	EventTypePayoutRewarded    = "campaign.payout.rewarded"
	EventTypePayoutAllocated   = "campaign.payout.allocated"
	EventTypePayoutDistributed = "campaign.payout.distributed"
	EventTypePayoutDeallocated = "campaign.payout.deallocated"
	EventTypeFeeAllocated      = "campaign.fee.allocated"
	EventTypeFeeCollected      = "campaign.fee.collected"
	EventTypeFundsWithdrawn    = "campaign.funds_withdrawn"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// campaign.
func NewCreatedEvent(c *Campaign) *types.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["id"] = hex.EncodeToString(c.ID[:])
		attrs["hook"] = hex.EncodeToString(c.Hook[:])
		attrs["creator"] = hex.EncodeToString(c.Creator[:])
		attrs["createdAt"] = strconv.FormatInt(c.CreatedAt, 10)
		if c.MetadataURI != "" {
			attrs["metadataURI"] = c.MetadataURI
		}
	}
	return &types.Event{Type: EventTypeCampaignCreated, Attributes: attrs}
}

// NewDepositEvent records a funding transfer into the campaign vault.
func NewDepositEvent(id CampaignID, token string, from [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeCampaignDeposit, Attributes: map[string]string{
		"id":     hex.EncodeToString(id[:]),
		"token":  token,
		"from":   hex.EncodeToString(from[:]),
		"amount": cloneBigInt(amount).String(),
	}}
}

// NewMetadataUpdatedEvent republishes the campaign's metadata URI.
func NewMetadataUpdatedEvent(id CampaignID, caller [20]byte, uri string) *types.Event {
	return &types.Event{Type: EventTypeMetadataUpdated, Attributes: map[string]string{
		"id":          hex.EncodeToString(id[:]),
		"caller":      hex.EncodeToString(caller[:]),
		"metadataURI": uri,
	}}
}

// NewStatusChangedEvent records a lifecycle transition together with the
// caller that drove it.
func NewStatusChangedEvent(id CampaignID, caller [20]byte, from, to Status) *types.Event {
	return &types.Event{Type: EventTypeStatusChanged, Attributes: map[string]string{
		"id":     hex.EncodeToString(id[:]),
		"caller": hex.EncodeToString(caller[:]),
		"from":   from.String(),
		"to":     to.String(),
	}}
}

// NewRewardedEvent records an immediate payout.
func NewRewardedEvent(id CampaignID, token string, recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypePayoutRewarded, Attributes: amountAttributes(id, token, recipient, amount)}
}

// NewAllocatedEvent records a reserved-but-unpaid payout obligation.
func NewAllocatedEvent(id CampaignID, token string, recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypePayoutAllocated, Attributes: amountAttributes(id, token, recipient, amount)}
}

// NewDistributedEvent records the release and payment of an allocation.
func NewDistributedEvent(id CampaignID, token string, recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypePayoutDistributed, Attributes: amountAttributes(id, token, recipient, amount)}
}

// NewDeallocatedEvent records an allocation released without payment.
func NewDeallocatedEvent(id CampaignID, token string, recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypePayoutDeallocated, Attributes: amountAttributes(id, token, recipient, amount)}
}

// NewFeeAllocatedEvent records a collectible fee credited to a payee.
func NewFeeAllocatedEvent(id CampaignID, token string, payee [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeFeeAllocated, Attributes: amountAttributes(id, token, payee, amount)}
}

// NewFeeCollectedEvent records a fee balance swept to its payee.
func NewFeeCollectedEvent(id CampaignID, token string, payee [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeFeeCollected, Attributes: amountAttributes(id, token, payee, amount)}
}

// NewFundsWithdrawnEvent records unreserved custody released back to the
// advertiser.
func NewFundsWithdrawnEvent(id CampaignID, token string, recipient [20]byte, amount *big.Int) *types.Event {
	return &types.Event{Type: EventTypeFundsWithdrawn, Attributes: amountAttributes(id, token, recipient, amount)}
}

func amountAttributes(id CampaignID, token string, account [20]byte, amount *big.Int) map[string]string {
	attrs := map[string]string{
		"id":      hex.EncodeToString(id[:]),
		"token":   token,
		"account": hex.EncodeToString(account[:]),
	}
	if amount != nil {
		attrs["amount"] = amount.String()
	} else {
		attrs["amount"] = "0"
	}
	return attrs
}
