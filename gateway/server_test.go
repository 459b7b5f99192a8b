package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"campledger/native/attribution"
	"campledger/native/campaign"
	"campledger/observability/logging"
	"campledger/state"
	"campledger/storage"
)

var (
	ledgerAddr     = [20]byte{0x01}
	hookAddr       = [20]byte{0x02}
	advertiserAddr = [20]byte{0xad}
	providerAddr   = [20]byte{0xbe}
	recipientAddr  = [20]byte{0xd1}
)

const testNonce = "0x0101010101010101010101010101010101010101010101010101010101010101"

func hexAddr(addr [20]byte) string {
	return fmt.Sprintf("0x%x", addr)
}

type testEnv struct {
	server  *httptest.Server
	manager *state.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())

	ledger := campaign.NewEngine(ledgerAddr)
	ledger.SetState(manager)
	ledger.SetNowFunc(func() int64 { return 42 })

	hook := attribution.NewEngine(ledgerAddr)
	hook.SetState(manager)
	hook.SetRegistry(attribution.NewMemoryRegistry())
	hook.SetNowFunc(func() int64 { return 42 })
	require.NoError(t, ledger.RegisterHook(hookAddr, hook))

	srv := httptest.NewServer(NewServer(ledger, hook, nil).Router())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, manager: manager}
}

func (env *testEnv) post(t *testing.T, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(env.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	decoded := make(map[string]interface{})
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func (env *testEnv) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(env.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	decoded := make(map[string]interface{})
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func createCampaign(t *testing.T, env *testEnv) string {
	t.Helper()
	resp, body := env.post(t, "/campaigns", map[string]interface{}{
		"caller": hexAddr(advertiserAddr),
		"hook":   hexAddr(hookAddr),
		"nonce":  testNonce,
		"payload": attribution.CreatePayload{
			Advertiser:  hexAddr(advertiserAddr),
			Provider:    hexAddr(providerAddr),
			FeeBps:      500,
			MetadataURI: "ipfs://campaign",
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, ok := body["id"].(string)
	require.True(t, ok, "missing campaign id in %v", body)
	return id
}

func fundCampaign(t *testing.T, env *testEnv, id string, amount int64) {
	t.Helper()
	require.NoError(t, env.manager.SetAccountBalance(advertiserAddr, "NHB", big.NewInt(amount)))
	resp, _ := env.post(t, "/campaigns/"+id+"/deposit", map[string]string{
		"caller": hexAddr(advertiserAddr),
		"token":  "NHB",
		"amount": fmt.Sprintf("%d", amount),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateAndGetCampaign(t *testing.T) {
	env := newTestEnv(t)
	id := createCampaign(t, env)

	resp, body := env.get(t, "/campaigns/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "created", body["status"])
	require.Equal(t, "ipfs://campaign", body["metadataUri"])

	resp, _ = env.get(t, "/campaigns/0x2222222222222222222222222222222222222222222222222222222222222222")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.get(t, "/campaigns/not-hex")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDuplicateCampaignConflicts(t *testing.T) {
	env := newTestEnv(t)
	createCampaign(t, env)

	resp, _ := env.post(t, "/campaigns", map[string]interface{}{
		"caller": hexAddr(advertiserAddr),
		"hook":   hexAddr(hookAddr),
		"nonce":  testNonce,
		"payload": attribution.CreatePayload{
			Advertiser:  hexAddr(advertiserAddr),
			Provider:    hexAddr(providerAddr),
			FeeBps:      500,
			MetadataURI: "ipfs://campaign",
		},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStatusTransitionsOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := createCampaign(t, env)

	// The advertiser may not activate.
	resp, _ := env.post(t, "/campaigns/"+id+"/status", map[string]string{
		"caller": hexAddr(advertiserAddr),
		"status": "active",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := env.post(t, "/campaigns/"+id+"/status", map[string]string{
		"caller": hexAddr(providerAddr),
		"status": "active",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "active", body["status"])

	resp, _ = env.post(t, "/campaigns/"+id+"/status", map[string]string{
		"caller": hexAddr(providerAddr),
		"status": "bogus",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConversionFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := createCampaign(t, env)
	fundCampaign(t, env, id, 10_000)

	resp, body := env.post(t, "/campaigns/"+id+"/configs", map[string]interface{}{
		"caller":    hexAddr(advertiserAddr),
		"eventType": "offchain",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, float64(1), body["configId"])

	resp, _ = env.post(t, "/campaigns/"+id+"/status", map[string]string{
		"caller": hexAddr(providerAddr),
		"status": "active",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = env.post(t, "/campaigns/"+id+"/reward", map[string]interface{}{
		"caller": hexAddr(providerAddr),
		"token":  "NHB",
		"payload": attribution.SendPayload{Events: []attribution.ConversionEventJSON{{
			ConfigID:      1,
			PayoutAddress: hexAddr(recipientAddr),
			PayoutAmount:  "1000",
		}}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	paid, err := env.manager.AccountBalance(recipientAddr, "NHB")
	require.NoError(t, err)
	require.Zero(t, paid.Cmp(big.NewInt(950)))

	resp, body = env.post(t, "/fees/collect", map[string]string{
		"token":   "NHB",
		"address": hexAddr(providerAddr),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "50", body["amount"])

	collected, err := env.manager.AccountBalance(providerAddr, "NHB")
	require.NoError(t, err)
	require.Zero(t, collected.Cmp(big.NewInt(50)))
}

func TestRewardRequiresActiveCampaign(t *testing.T) {
	env := newTestEnv(t)
	id := createCampaign(t, env)
	fundCampaign(t, env, id, 1_000)

	resp, _ := env.post(t, "/campaigns/"+id+"/reward", map[string]interface{}{
		"caller": hexAddr(providerAddr),
		"token":  "NHB",
		"payload": attribution.SendPayload{Events: []attribution.ConversionEventJSON{{
			ConfigID:      1,
			PayoutAddress: hexAddr(recipientAddr),
			PayoutAmount:  "10",
		}}},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWithdrawOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	id := createCampaign(t, env)
	fundCampaign(t, env, id, 1_000)

	// Withdrawal is gated on finalization.
	resp, _ := env.post(t, "/campaigns/"+id+"/withdraw", map[string]string{
		"caller": hexAddr(advertiserAddr),
		"token":  "NHB",
		"amount": "400",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	for _, step := range []string{"active", "finalized"} {
		resp, _ = env.post(t, "/campaigns/"+id+"/status", map[string]string{
			"caller": hexAddr(providerAddr),
			"status": step,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, _ = env.post(t, "/campaigns/"+id+"/withdraw", map[string]string{
		"caller": hexAddr(advertiserAddr),
		"token":  "NHB",
		"amount": "400",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	balance, err := env.manager.AccountBalance(advertiserAddr, "NHB")
	require.NoError(t, err)
	require.Zero(t, balance.Cmp(big.NewInt(400)))
}

func TestCreateLogMasksMetadataURI(t *testing.T) {
	manager := state.NewManager(storage.NewMemDB())
	ledger := campaign.NewEngine(ledgerAddr)
	ledger.SetState(manager)
	hook := attribution.NewEngine(ledgerAddr)
	hook.SetState(manager)
	hook.SetRegistry(attribution.NewMemoryRegistry())
	require.NoError(t, ledger.RegisterHook(hookAddr, hook))

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	srv := httptest.NewServer(NewServer(ledger, hook, logger).Router())
	defer srv.Close()

	payload, err := json.Marshal(map[string]interface{}{
		"caller": hexAddr(advertiserAddr),
		"hook":   hexAddr(hookAddr),
		"nonce":  testNonce,
		"payload": attribution.CreatePayload{
			Advertiser:  hexAddr(advertiserAddr),
			Provider:    hexAddr(providerAddr),
			FeeBps:      500,
			MetadataURI: "ipfs://secret-brief",
		},
	})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/campaigns", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Contains(t, logs.String(), "campaign created")
	require.Contains(t, logs.String(), logging.RedactedValue)
	require.NotContains(t, logs.String(), "ipfs://secret-brief")
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
