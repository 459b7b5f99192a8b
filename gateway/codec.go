package gateway

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"campledger/native/campaign"
)

type createCampaignRequest struct {
	Caller  string          `json:"caller"`
	Hook    string          `json:"hook"`
	Nonce   string          `json:"nonce"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type depositRequest struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type metadataRequest struct {
	Caller  string          `json:"caller"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type statusRequest struct {
	Caller  string          `json:"caller"`
	Status  string          `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type accountingRequest struct {
	Caller  string          `json:"caller"`
	Token   string          `json:"token"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type withdrawRequest struct {
	Caller  string          `json:"caller"`
	Token   string          `json:"token"`
	Amount  string          `json:"amount"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type sweepRequest struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type campaignResponse struct {
	ID          string `json:"id"`
	Hook        string `json:"hook"`
	Creator     string `json:"creator"`
	Status      string `json:"status"`
	MetadataURI string `json:"metadataUri,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
}

type sweepResponse struct {
	Amount string `json:"amount"`
}

func newCampaignResponse(c *campaign.Campaign) campaignResponse {
	return campaignResponse{
		ID:          "0x" + hex.EncodeToString(c.ID[:]),
		Hook:        common.Address(c.Hook).Hex(),
		Creator:     common.Address(c.Creator).Hex(),
		Status:      c.Status.String(),
		MetadataURI: c.MetadataURI,
		CreatedAt:   c.CreatedAt,
	}
}

func parseAddressField(field, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("%s must be a hex address", field)
	}
	return common.HexToAddress(trimmed), nil
}

func parseCampaignID(value string) (campaign.CampaignID, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != len(campaign.CampaignID{}) {
		return campaign.CampaignID{}, fmt.Errorf("campaign id must be a 32-byte hex string")
	}
	var id campaign.CampaignID
	copy(id[:], raw)
	return id, nil
}

func parseNonce(value string) ([32]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != 32 {
		return [32]byte{}, fmt.Errorf("nonce must be a 32-byte hex string")
	}
	var nonce [32]byte
	copy(nonce[:], raw)
	return nonce, nil
}

func parseConfigID(value string) (uint32, error) {
	trimmed := strings.TrimSpace(value)
	parsed, err := strconv.ParseUint(trimmed, 10, 32)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("config id must be a positive integer")
	}
	return uint32(parsed), nil
}

func parseAmountField(field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%s must be a base-10 integer", field)
	}
	return amount, nil
}

func parseStatus(value string) (campaign.Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "created":
		return campaign.StatusCreated, nil
	case "active":
		return campaign.StatusActive, nil
	case "finalizing":
		return campaign.StatusFinalizing, nil
	case "finalized":
		return campaign.StatusFinalized, nil
	default:
		return 0, fmt.Errorf("unknown status %q", value)
	}
}
