package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"campledger/native/attribution"
	"campledger/native/campaign"
	"campledger/native/common"
	"campledger/observability/logging"
)

const maxRequestBody = 1 << 20 // 1 MiB

// Server is the HTTP front-end for the campaign ledger. Every mutating
// request carries an explicit caller address; the gateway performs no
// authentication of its own and trusts the deployment perimeter.
type Server struct {
	ledger *campaign.Engine
	hook   *attribution.Engine
	log    *slog.Logger
}

// NewServer wires the gateway against the ledger engine and, optionally, the
// attribution hook engine for conversion config management.
func NewServer(ledger *campaign.Engine, hook *attribution.Engine, log *slog.Logger) *Server {
	if ledger == nil {
		panic("gateway: ledger engine required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Server{ledger: ledger, hook: hook, log: log}
}

// Router builds the chi route tree for the gateway.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metricsHandler())

	r.Post("/campaigns", instrument("campaign_create", s.handleCreateCampaign))
	r.Route("/campaigns/{id}", func(cr chi.Router) {
		cr.Get("/", instrument("campaign_get", s.handleGetCampaign))
		cr.Post("/deposit", instrument("campaign_deposit", s.handleDeposit))
		cr.Post("/metadata", instrument("campaign_metadata", s.handleUpdateMetadata))
		cr.Post("/status", instrument("campaign_status", s.handleUpdateStatus))
		cr.Post("/reward", instrument("campaign_reward", s.accountingHandler("reward")))
		cr.Post("/allocate", instrument("campaign_allocate", s.accountingHandler("allocate")))
		cr.Post("/distribute", instrument("campaign_distribute", s.accountingHandler("distribute")))
		cr.Post("/deallocate", instrument("campaign_deallocate", s.accountingHandler("deallocate")))
		cr.Post("/withdraw", instrument("campaign_withdraw", s.handleWithdraw))
		cr.Post("/configs", instrument("config_add", s.handleAddConfig))
		cr.Post("/configs/{configID}/disable", instrument("config_disable", s.handleDisableConfig))
	})
	r.Post("/payouts/distribute", instrument("payouts_distribute", s.sweepHandler(s.ledger.DistributePayouts)))
	r.Post("/fees/collect", instrument("fees_collect", s.sweepHandler(s.ledger.CollectFees)))

	return r
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return false
	}
	if len(data) > maxRequestBody {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("request body exceeds %d bytes", maxRequestBody))
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid JSON payload: %w", err))
		return false
	}
	return true
}

func (s *Server) campaignID(w http.ResponseWriter, r *http.Request) (campaign.CampaignID, bool) {
	id, err := parseCampaignID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return campaign.CampaignID{}, false
	}
	return id, true
}

func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddressField("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	hookAddr, err := parseAddressField("hook", req.Hook)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	nonce, err := parseNonce(req.Nonce)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	created, err := s.ledger.CreateCampaign(caller, hookAddr, nonce, req.Payload)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.log.Info("campaign created",
		slog.String("campaign", fmt.Sprintf("%x", created.ID)),
		logging.MaskField("metadataUri", created.MetadataURI))
	s.writeJSON(w, http.StatusCreated, newCampaignResponse(created))
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	c, err := s.ledger.Campaign(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newCampaignResponse(c))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddressField("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.ledger.Deposit(caller, id, req.Token, amount); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	var req metadataRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddressField("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.ledger.UpdateMetadata(caller, id, req.Payload); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddressField("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	status, err := parseStatus(req.Status)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.ledger.UpdateStatus(caller, id, status, req.Payload); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": status.String()})
}

// accountingHandler serves the four token accounting operations, which share
// a request shape and differ only in the engine call.
func (s *Server) accountingHandler(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.campaignID(w, r)
		if !ok {
			return
		}
		var req accountingRequest
		if !s.decode(w, r, &req) {
			return
		}
		caller, err := parseAddressField("caller", req.Caller)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		switch op {
		case "reward":
			err = s.ledger.Reward(caller, id, req.Token, req.Payload)
		case "allocate":
			err = s.ledger.Allocate(caller, id, req.Token, req.Payload)
		case "distribute":
			err = s.ledger.Distribute(caller, id, req.Token, req.Payload)
		case "deallocate":
			err = s.ledger.Deallocate(caller, id, req.Token, req.Payload)
		default:
			err = fmt.Errorf("unknown operation %q", op)
		}
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddressField("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmountField("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.ledger.WithdrawFunds(caller, id, req.Token, amount, req.Payload); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sweepHandler serves the campaign-less settlement endpoints.
func (s *Server) sweepHandler(sweep func(string, [20]byte) (*big.Int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sweepRequest
		if !s.decode(w, r, &req) {
			return
		}
		holder, err := parseAddressField("address", req.Address)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err)
			return
		}
		total, err := sweep(req.Token, holder)
		if err != nil {
			s.writeEngineError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, sweepResponse{Amount: total.String()})
	}
}

type addConfigRequest struct {
	Caller      string `json:"caller"`
	EventType   string `json:"eventType"`
	MetadataURI string `json:"metadataUri,omitempty"`
	MinBid      string `json:"minBid,omitempty"`
	MaxBid      string `json:"maxBid,omitempty"`
	RewardType  string `json:"rewardType,omitempty"`
	Cadence     uint32 `json:"cadence,omitempty"`
}

func (s *Server) handleAddConfig(w http.ResponseWriter, r *http.Request) {
	if s.hook == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("conversion configs not supported"))
		return
	}
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	var req addConfigRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddressField("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	cfg, err := buildConversionConfig(req)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	configID, err := s.hook.AddConversionConfig(caller, id, cfg)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]uint32{"configId": configID})
}

func buildConversionConfig(req addConfigRequest) (*attribution.ConversionConfig, error) {
	cfg := &attribution.ConversionConfig{
		MetadataURI: req.MetadataURI,
		Cadence:     req.Cadence,
	}
	switch strings.ToLower(strings.TrimSpace(req.EventType)) {
	case "onchain":
		cfg.EventType = attribution.EventOnchain
	case "offchain":
		cfg.EventType = attribution.EventOffchain
	default:
		return nil, fmt.Errorf("unknown event type %q", req.EventType)
	}
	switch strings.ToLower(strings.TrimSpace(req.RewardType)) {
	case "", "fixed":
		cfg.RewardType = attribution.RewardFixed
	case "percentage":
		cfg.RewardType = attribution.RewardPercentage
	default:
		return nil, fmt.Errorf("unknown reward type %q", req.RewardType)
	}
	if req.MinBid != "" {
		bid, err := parseAmountField("minBid", req.MinBid)
		if err != nil {
			return nil, err
		}
		cfg.MinBid = bid
	}
	if req.MaxBid != "" {
		bid, err := parseAmountField("maxBid", req.MaxBid)
		if err != nil {
			return nil, err
		}
		cfg.MaxBid = bid
	}
	return cfg, nil
}

type disableConfigRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) handleDisableConfig(w http.ResponseWriter, r *http.Request) {
	if s.hook == nil {
		s.writeError(w, r, http.StatusNotFound, errors.New("conversion configs not supported"))
		return
	}
	id, ok := s.campaignID(w, r)
	if !ok {
		return
	}
	configID, err := parseConfigID(chi.URLParam(r, "configID"))
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	var req disableConfigRequest
	if !s.decode(w, r, &req) {
		return
	}
	caller, err := parseAddressField("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.hook.DisableConversionConfig(caller, id, configID); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	s.log.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeError(w, r, engineStatus(err), err)
}

// engineStatus maps engine sentinel errors onto HTTP status codes.
func engineStatus(err error) int {
	switch {
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, campaign.ErrCampaignNotFound),
		errors.Is(err, attribution.ErrCampaignNotFound):
		return http.StatusNotFound
	case errors.Is(err, campaign.ErrUnauthorized),
		errors.Is(err, attribution.ErrUnauthorized),
		errors.Is(err, attribution.ErrUnauthorizedCore):
		return http.StatusForbidden
	case errors.Is(err, campaign.ErrCampaignExists),
		errors.Is(err, attribution.ErrCampaignExists),
		errors.Is(err, campaign.ErrInsufficientFunds),
		errors.Is(err, campaign.ErrInvalidStatus),
		errors.Is(err, campaign.ErrInvalidStatusTransition),
		errors.Is(err, attribution.ErrInvalidStatusTransition),
		errors.Is(err, attribution.ErrDeadlineNotReached):
		return http.StatusConflict
	case errors.Is(err, campaign.ErrUnsupportedOperation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, campaign.ErrInvalidAmount),
		errors.Is(err, campaign.ErrInvalidToken),
		errors.Is(err, campaign.ErrZeroAddress),
		errors.Is(err, campaign.ErrZeroHook),
		errors.Is(err, campaign.ErrHookNotRegistered),
		errors.Is(err, attribution.ErrInvalidAmount),
		errors.Is(err, attribution.ErrZeroAddress),
		errors.Is(err, attribution.ErrInvalidConversionConfigID),
		errors.Is(err, attribution.ErrInvalidConversionType),
		errors.Is(err, attribution.ErrInvalidReferenceCode),
		errors.Is(err, attribution.ErrRecipientNotAllowed),
		errors.Is(err, attribution.ErrConfigDisabled),
		errors.Is(err, attribution.ErrMaxConfigsReached),
		errors.Is(err, attribution.ErrInvalidFeeBps):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
