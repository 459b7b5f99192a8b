package attribution

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Payload schemas for the hook callbacks. Every ledger-to-hook call carries
// an opaque byte payload; this engine decodes them as JSON with hex-encoded
// addresses and hashes and decimal-string amounts.

// CreatePayload configures a campaign at creation time.
type CreatePayload struct {
	Advertiser               string   `json:"advertiser"`
	Provider                 string   `json:"provider"`
	FeeBps                   uint32   `json:"feeBps"`
	AttributionWindowSeconds uint64   `json:"attributionWindowSeconds"`
	MetadataURI              string   `json:"metadataURI"`
	Allowlist                []string `json:"allowlist,omitempty"`
}

// MetadataPayload updates the campaign metadata URI.
type MetadataPayload struct {
	MetadataURI string `json:"metadataURI"`
}

// SendPayload carries a batch of conversion events for the reward callback.
type SendPayload struct {
	Events []ConversionEventJSON `json:"events"`
}

// ConversionEventJSON is the wire form of a ConversionEvent.
type ConversionEventJSON struct {
	ConfigID      uint32 `json:"configId"`
	EventID       string `json:"eventId"`
	PayoutAddress string `json:"payoutAddress,omitempty"`
	PayoutAmount  string `json:"payoutAmount"`
	RecipientType string `json:"recipientType"`
	ReferenceCode string `json:"referenceCode,omitempty"`
	ClickID       string `json:"clickId,omitempty"`
	Timestamp     int64  `json:"timestamp"`
	TxHash        string `json:"txHash,omitempty"`
	ChainID       uint64 `json:"chainId,omitempty"`
	LogIndex      uint32 `json:"logIndex,omitempty"`
}

// FeePayload redirects fee collection to a different recipient.
type FeePayload struct {
	Recipient string `json:"recipient"`
}

func decodeCreatePayload(payload []byte) (*CampaignRecord, error) {
	var decoded CreatePayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("attribution: decode create payload: %w", err)
	}
	advertiser, err := parseAddress(decoded.Advertiser)
	if err != nil {
		return nil, err
	}
	provider, err := parseAddress(decoded.Provider)
	if err != nil {
		return nil, err
	}
	record := &CampaignRecord{
		Advertiser:        advertiser,
		Provider:          provider,
		FeeBps:            decoded.FeeBps,
		AttributionWindow: decoded.AttributionWindowSeconds,
		MetadataURI:       decoded.MetadataURI,
		Allowlist:         normalizeCodes(decoded.Allowlist),
		NextConfigID:      1,
	}
	return sanitizeRecord(record)
}

func decodeMetadataPayload(payload []byte) (string, error) {
	var decoded MetadataPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return "", fmt.Errorf("attribution: decode metadata payload: %w", err)
	}
	return strings.TrimSpace(decoded.MetadataURI), nil
}

func decodeSendPayload(payload []byte) ([]ConversionEvent, error) {
	var decoded SendPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("attribution: decode send payload: %w", err)
	}
	events := make([]ConversionEvent, 0, len(decoded.Events))
	for i, raw := range decoded.Events {
		ev, err := decodeConversionEvent(raw)
		if err != nil {
			return nil, fmt.Errorf("attribution: event %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeConversionEvent(raw ConversionEventJSON) (ConversionEvent, error) {
	ev := ConversionEvent{
		ConfigID:      raw.ConfigID,
		ReferenceCode: strings.TrimSpace(raw.ReferenceCode),
		ClickID:       strings.TrimSpace(raw.ClickID),
		Timestamp:     raw.Timestamp,
		ChainID:       raw.ChainID,
		LogIndex:      raw.LogIndex,
	}
	if trimmed := strings.TrimSpace(raw.EventID); trimmed != "" {
		hash, err := parseHash(trimmed)
		if err != nil {
			return ConversionEvent{}, err
		}
		ev.EventID = hash
	}
	if trimmed := strings.TrimSpace(raw.PayoutAddress); trimmed != "" {
		addr, err := parseAddress(trimmed)
		if err != nil {
			return ConversionEvent{}, err
		}
		ev.PayoutAddress = addr
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw.PayoutAmount), 10)
	if !ok {
		return ConversionEvent{}, fmt.Errorf("%w: payout amount %q", ErrInvalidAmount, raw.PayoutAmount)
	}
	ev.PayoutAmount = amount
	switch strings.ToLower(strings.TrimSpace(raw.RecipientType)) {
	case "publisher":
		ev.RecipientType = RecipientPublisher
	case "direct", "":
		ev.RecipientType = RecipientDirect
	default:
		return ConversionEvent{}, fmt.Errorf("attribution: unknown recipient type %q", raw.RecipientType)
	}
	if trimmed := strings.TrimSpace(raw.TxHash); trimmed != "" {
		hash, err := parseHash(trimmed)
		if err != nil {
			return ConversionEvent{}, err
		}
		ev.TxHash = hash
	}
	return ev, nil
}

func decodeFeePayload(payload []byte) ([20]byte, error) {
	if len(payload) == 0 {
		return [20]byte{}, nil
	}
	var decoded FeePayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return [20]byte{}, fmt.Errorf("attribution: decode fee payload: %w", err)
	}
	if strings.TrimSpace(decoded.Recipient) == "" {
		return [20]byte{}, nil
	}
	return parseAddress(decoded.Recipient)
}

func parseAddress(s string) ([20]byte, error) {
	trimmed := strings.TrimSpace(s)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("attribution: invalid address %q", s)
	}
	return common.HexToAddress(trimmed), nil
}

func parseHash(s string) ([32]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("attribution: invalid hash %q", s)
	}
	var out [32]byte
	copy(out[:], raw)
	return out, nil
}

func normalizeCodes(codes []string) []string {
	normalized := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}
	return normalized
}
