package campaign

import (
	"fmt"
	"math/big"
	"strings"

	"campledger/core/types"
)

// CampaignID uniquely identifies a campaign. Identifiers are derived
// deterministically from the hook reference, a caller-supplied nonce and the
// creation payload, so they can be predicted before the campaign exists.
type CampaignID [32]byte

// Status represents the lifecycle states a campaign moves through. Created is
// the initial state, Finalized is terminal. The ledger enforces terminality
// itself; everything else is delegated to the campaign's hook.
type Status uint8

const (
	StatusCreated Status = iota
	StatusActive
	StatusFinalizing
	StatusFinalized
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusCreated, StatusActive, StatusFinalizing, StatusFinalized:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusActive:
		return "active"
	case StatusFinalizing:
		return "finalizing"
	case StatusFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Campaign captures the ledger-owned view of a campaign: its identity, hook
// reference, lifecycle status and last published metadata URI. Campaigns are
// created once and never deleted.
type Campaign struct {
	ID          CampaignID
	Hook        [20]byte
	Creator     [20]byte
	Status      Status
	MetadataURI string
	CreatedAt   int64
}

// Clone returns a copy of the campaign so callers can mutate it without
// affecting the stored instance.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// Payout is a single payment instruction produced by a hook and consumed by
// the ledger.
type Payout struct {
	Recipient [20]byte
	Amount    *big.Int
}

// FeeDistribution credits or releases a collectible fee balance held by
// Payee. In distribute instructions a zero Recipient pays the payee
// themselves, and a nil Amount releases the payee's entire entry; hooks use
// that to let a fee earner redirect collection without an intermediate hop.
type FeeDistribution struct {
	Payee     [20]byte
	Recipient [20]byte
	Amount    *big.Int
}

// HookResult carries the accounting instructions a hook returns from its
// reward, allocate, distribute and deallocate callbacks. DeferFees marks the
// fee entries as accumulating for later collection instead of being paid out
// within the current operation. Events are hook-produced records the ledger
// publishes only after the operation commits, so an aborted batch leaves no
// trace on the event stream.
type HookResult struct {
	Payouts   []Payout
	Fees      []FeeDistribution
	DeferFees bool
	Events    []*types.Event
}

// NormalizeToken canonicalises a token symbol. An empty symbol is invalid;
// the native asset and ledger-tracked tokens are otherwise treated uniformly.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty symbol", ErrInvalidToken)
	}
	return trimmed, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func isZeroAddress(addr [20]byte) bool {
	return addr == ([20]byte{})
}
