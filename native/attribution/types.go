package attribution

import (
	"fmt"
	"math/big"

	"campledger/native/campaign"
)

// ConfigStatus tracks whether a conversion config accepts events. Disabling
// is one-directional: a retired config id is never reused or re-enabled.
type ConfigStatus uint8

const (
	ConfigActive ConfigStatus = iota
	ConfigDisabled
)

// EventType classifies the evidence a conversion config expects.
type EventType uint8

const (
	EventOnchain EventType = iota
	EventOffchain
)

func (t EventType) String() string {
	if t == EventOnchain {
		return "onchain"
	}
	return "offchain"
}

// RewardType describes how the bid values of a config are interpreted by
// off-chain bidders. The engine carries it opaquely.
type RewardType uint8

const (
	RewardFixed RewardType = iota
	RewardPercentage
)

// ConversionConfig is an advertiser-defined rule set for what counts as an
// attributable event. Identified per campaign by a sequential id starting at
// 1; id 0 is reserved and always invalid. Once created only the status may
// change, and configs are never deleted so history is preserved.
type ConversionConfig struct {
	ID          uint32
	Status      ConfigStatus
	EventType   EventType
	MetadataURI string
	MinBid      *big.Int
	MaxBid      *big.Int
	RewardType  RewardType
	Cadence     uint32
}

// Clone returns a deep copy of the config.
func (c *ConversionConfig) Clone() *ConversionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.MinBid != nil {
		clone.MinBid = new(big.Int).Set(c.MinBid)
	}
	if c.MaxBid != nil {
		clone.MaxBid = new(big.Int).Set(c.MaxBid)
	}
	return &clone
}

// RecipientType selects how the payout recipient of a conversion event is
// resolved.
type RecipientType uint8

const (
	// RecipientDirect pays the event's explicit payout address.
	RecipientDirect RecipientType = iota
	// RecipientPublisher resolves the payout address through the reference
	// registry using the event's reference code.
	RecipientPublisher
)

// ConversionEvent is a single attributed conversion inside a processing
// batch. Events are ephemeral: they exist only for the duration of the batch
// and are never persisted. Onchain evidence (a non-zero TxHash) must match
// the event type of the referenced config.
type ConversionEvent struct {
	ConfigID      uint32
	EventID       [32]byte
	PayoutAddress [20]byte
	PayoutAmount  *big.Int
	RecipientType RecipientType
	ReferenceCode string
	ClickID       string
	Timestamp     int64

	TxHash   [32]byte
	ChainID  uint64
	LogIndex uint32
}

// Onchain reports whether the event carries onchain evidence.
func (ev *ConversionEvent) Onchain() bool {
	return ev != nil && ev.TxHash != ([32]byte{})
}

// CampaignRecord is the attribution engine's per-campaign state: the two
// privileged roles, fee rate, attribution window, optional reference-code
// allowlist and the running config counter. Status mirrors the ledger's view
// and is advanced through the status callback.
type CampaignRecord struct {
	ID                campaign.CampaignID
	Advertiser        [20]byte
	Provider          [20]byte
	FeeBps            uint32
	AttributionWindow uint64
	MetadataURI       string
	Allowlist         []string
	Deadline          uint64
	NextConfigID      uint32
	Status            campaign.Status
}

// Clone returns a deep copy of the record.
func (r *CampaignRecord) Clone() *CampaignRecord {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Allowlist = append([]string(nil), r.Allowlist...)
	return &clone
}

func (r *CampaignRecord) allows(code string) bool {
	if len(r.Allowlist) == 0 {
		return true
	}
	for _, allowed := range r.Allowlist {
		if allowed == code {
			return true
		}
	}
	return false
}

func sanitizeRecord(r *CampaignRecord) (*CampaignRecord, error) {
	if r == nil {
		return nil, fmt.Errorf("attribution: nil campaign record")
	}
	clone := r.Clone()
	if clone.Advertiser == ([20]byte{}) || clone.Provider == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	if clone.FeeBps > feeDenominator {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFeeBps, clone.FeeBps)
	}
	if clone.NextConfigID == 0 {
		clone.NextConfigID = 1
	}
	return clone, nil
}

const feeDenominator = 10_000
