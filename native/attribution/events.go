package attribution

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"campledger/core/types"
	"campledger/native/campaign"
)

const (
	EventTypeCampaignRegistered = "attribution.campaign.registered"
	EventTypeConfigAdded        = "attribution.config.added"
	EventTypeConfigDisabled     = "attribution.config.disabled"
	EventTypeDeadlineSet        = "attribution.deadline_set"
	EventTypeConversionOnchain  = "attribution.conversion.processed.onchain"
	EventTypeConversionOffchain = "attribution.conversion.processed.offchain"
)

// NewCampaignRegisteredEvent records a campaign binding to the attribution
// engine.
func NewCampaignRegisteredEvent(r *CampaignRecord) *types.Event {
	attrs := make(map[string]string)
	if r != nil {
		attrs["id"] = hex.EncodeToString(r.ID[:])
		attrs["advertiser"] = hex.EncodeToString(r.Advertiser[:])
		attrs["provider"] = hex.EncodeToString(r.Provider[:])
		attrs["feeBps"] = strconv.FormatUint(uint64(r.FeeBps), 10)
		attrs["attributionWindow"] = strconv.FormatUint(r.AttributionWindow, 10)
	}
	return &types.Event{Type: EventTypeCampaignRegistered, Attributes: attrs}
}

// NewConfigAddedEvent records a freshly assigned conversion config.
func NewConfigAddedEvent(id campaign.CampaignID, cfg *ConversionConfig) *types.Event {
	attrs := map[string]string{
		"id": hex.EncodeToString(id[:]),
	}
	if cfg != nil {
		attrs["configId"] = strconv.FormatUint(uint64(cfg.ID), 10)
		attrs["eventType"] = cfg.EventType.String()
		if cfg.MetadataURI != "" {
			attrs["metadataURI"] = cfg.MetadataURI
		}
	}
	return &types.Event{Type: EventTypeConfigAdded, Attributes: attrs}
}

// NewConfigDisabledEvent records the permanent retirement of a config id.
func NewConfigDisabledEvent(id campaign.CampaignID, configID uint32) *types.Event {
	return &types.Event{Type: EventTypeConfigDisabled, Attributes: map[string]string{
		"id":       hex.EncodeToString(id[:]),
		"configId": strconv.FormatUint(uint64(configID), 10),
	}}
}

// NewDeadlineSetEvent records the attribution deadline entering force.
func NewDeadlineSetEvent(id campaign.CampaignID, deadline uint64) *types.Event {
	return &types.Event{Type: EventTypeDeadlineSet, Attributes: map[string]string{
		"id":       hex.EncodeToString(id[:]),
		"deadline": strconv.FormatUint(deadline, 10),
	}}
}

// NewConversionProcessedEvent records a single processed conversion,
// distinguishing onchain from offchain evidence and direct payouts from
// publisher resolutions.
func NewConversionProcessedEvent(id campaign.CampaignID, ev *ConversionEvent, recipient [20]byte, net, fee *big.Int) *types.Event {
	eventType := EventTypeConversionOffchain
	attrs := map[string]string{
		"id":        hex.EncodeToString(id[:]),
		"configId":  strconv.FormatUint(uint64(ev.ConfigID), 10),
		"eventId":   hex.EncodeToString(ev.EventID[:]),
		"recipient": hex.EncodeToString(recipient[:]),
		"net":       net.String(),
		"fee":       fee.String(),
	}
	if ev.RecipientType == RecipientPublisher {
		attrs["resolution"] = "publisher"
		attrs["referenceCode"] = ev.ReferenceCode
	} else {
		attrs["resolution"] = "direct"
	}
	if ev.Onchain() {
		eventType = EventTypeConversionOnchain
		attrs["txHash"] = hex.EncodeToString(ev.TxHash[:])
		attrs["chainId"] = strconv.FormatUint(ev.ChainID, 10)
		attrs["logIndex"] = strconv.FormatUint(uint64(ev.LogIndex), 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}
