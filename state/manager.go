package state

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"campledger/native/attribution"
	"campledger/native/campaign"
	"campledger/storage"
)

// Manager persists ledger and attribution state in a key-value database. Keys
// are composed from a readable prefix and the record coordinates, then hashed
// with keccak256; values are RLP encoded.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	campaignRecordPrefix  = []byte("campaign/record/")
	vaultBalancePrefix    = []byte("campaign/vault/")
	totalReservedPrefix   = []byte("campaign/reserved/total/")
	reservedEntryPrefix   = []byte("campaign/reserved/entry/")
	feeEntryPrefix        = []byte("campaign/fee/entry/")
	accountBalancePrefix  = []byte("account/balance/")
	reservedIndexPrefix   = []byte("campaign/index/reserved/")
	feeIndexPrefix        = []byte("campaign/index/fee/")
	attributionRecPrefix  = []byte("attribution/record/")
	conversionCfgPrefix   = []byte("attribution/config/")
)

func hashKey(parts ...[]byte) []byte {
	size := 0
	for _, part := range parts {
		size += len(part) + 1
	}
	buf := make([]byte, 0, size)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func campaignRecordKey(id campaign.CampaignID) []byte {
	return hashKey(campaignRecordPrefix, id[:])
}

func vaultBalanceKey(id campaign.CampaignID, token string) []byte {
	return hashKey(vaultBalancePrefix, id[:], []byte(token))
}

func totalReservedKey(id campaign.CampaignID, token string) []byte {
	return hashKey(totalReservedPrefix, id[:], []byte(token))
}

func reservedEntryKey(id campaign.CampaignID, token string, holder [20]byte) []byte {
	return hashKey(reservedEntryPrefix, id[:], []byte(token), holder[:])
}

func feeEntryKey(id campaign.CampaignID, token string, holder [20]byte) []byte {
	return hashKey(feeEntryPrefix, id[:], []byte(token), holder[:])
}

func accountBalanceKey(addr [20]byte, token string) []byte {
	return hashKey(accountBalancePrefix, []byte(token), addr[:])
}

func reservedIndexKey(token string, holder [20]byte) []byte {
	return hashKey(reservedIndexPrefix, []byte(token), holder[:])
}

func feeIndexKey(token string, holder [20]byte) []byte {
	return hashKey(feeIndexPrefix, []byte(token), holder[:])
}

func attributionRecordKey(id campaign.CampaignID) []byte {
	return hashKey(attributionRecPrefix, id[:])
}

func conversionConfigKey(id campaign.CampaignID, configID uint32) []byte {
	suffix := []byte(fmt.Sprintf("%d", configID))
	return hashKey(conversionCfgPrefix, id[:], suffix)
}

func (m *Manager) put(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// get decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	data, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) getAmount(key []byte) (*big.Int, error) {
	amount := new(big.Int)
	ok, err := m.get(key, amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return amount, nil
}

func (m *Manager) setAmount(key []byte, amt *big.Int) error {
	if amt == nil {
		amt = big.NewInt(0)
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("state: negative amount")
	}
	return m.put(key, amt)
}

// appendIndex adds id to the campaign list under key, ignoring duplicates so
// the index stays deterministic.
func (m *Manager) appendIndex(key []byte, id campaign.CampaignID) error {
	var raw [][]byte
	if _, err := m.get(key, &raw); err != nil {
		return err
	}
	for _, existing := range raw {
		if bytes.Equal(existing, id[:]) {
			return nil
		}
	}
	raw = append(raw, append([]byte(nil), id[:]...))
	return m.put(key, raw)
}

func (m *Manager) readIndex(key []byte) ([]campaign.CampaignID, error) {
	var raw [][]byte
	if _, err := m.get(key, &raw); err != nil {
		return nil, err
	}
	ids := make([]campaign.CampaignID, 0, len(raw))
	for _, entry := range raw {
		if len(entry) != len(campaign.CampaignID{}) {
			return nil, fmt.Errorf("state: malformed campaign index entry")
		}
		var id campaign.CampaignID
		copy(id[:], entry)
		ids = append(ids, id)
	}
	return ids, nil
}

type storedCampaign struct {
	ID          [32]byte
	Hook        [20]byte
	Creator     [20]byte
	Status      uint8
	MetadataURI string
	CreatedAt   *big.Int
}

func newStoredCampaign(c *campaign.Campaign) *storedCampaign {
	return &storedCampaign{
		ID:          c.ID,
		Hook:        c.Hook,
		Creator:     c.Creator,
		Status:      uint8(c.Status),
		MetadataURI: c.MetadataURI,
		CreatedAt:   big.NewInt(c.CreatedAt),
	}
}

func (s *storedCampaign) toCampaign() (*campaign.Campaign, error) {
	out := &campaign.Campaign{
		ID:          s.ID,
		Hook:        s.Hook,
		Creator:     s.Creator,
		Status:      campaign.Status(s.Status),
		MetadataURI: s.MetadataURI,
	}
	if s.CreatedAt != nil {
		out.CreatedAt = s.CreatedAt.Int64()
	}
	if !out.Status.Valid() {
		return nil, fmt.Errorf("state: invalid campaign status %d", s.Status)
	}
	return out, nil
}

// CampaignPut stores a campaign record.
func (m *Manager) CampaignPut(c *campaign.Campaign) error {
	if c == nil {
		return fmt.Errorf("state: nil campaign")
	}
	return m.put(campaignRecordKey(c.ID), newStoredCampaign(c))
}

// CampaignGet retrieves a campaign record by id.
func (m *Manager) CampaignGet(id campaign.CampaignID) (*campaign.Campaign, bool, error) {
	stored := new(storedCampaign)
	ok, err := m.get(campaignRecordKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	c, err := stored.toCampaign()
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// VaultBalance reports the custodied balance for a campaign and token.
func (m *Manager) VaultBalance(id campaign.CampaignID, token string) (*big.Int, error) {
	return m.getAmount(vaultBalanceKey(id, token))
}

// VaultCredit adds amt to the campaign's custodied balance.
func (m *Manager) VaultCredit(id campaign.CampaignID, token string, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid vault credit")
	}
	key := vaultBalanceKey(id, token)
	balance, err := m.getAmount(key)
	if err != nil {
		return err
	}
	return m.setAmount(key, new(big.Int).Add(balance, amt))
}

// VaultDebit subtracts amt from the campaign's custodied balance. The balance
// never goes negative.
func (m *Manager) VaultDebit(id campaign.CampaignID, token string, amt *big.Int) error {
	if amt == nil || amt.Sign() < 0 {
		return fmt.Errorf("state: invalid vault debit")
	}
	key := vaultBalanceKey(id, token)
	balance, err := m.getAmount(key)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("state: vault balance underflow")
	}
	return m.setAmount(key, new(big.Int).Sub(balance, amt))
}

// TotalReserved reports the aggregate reserved amount for a campaign and token.
func (m *Manager) TotalReserved(id campaign.CampaignID, token string) (*big.Int, error) {
	return m.getAmount(totalReservedKey(id, token))
}

// SetTotalReserved overwrites the aggregate reserved amount.
func (m *Manager) SetTotalReserved(id campaign.CampaignID, token string, amt *big.Int) error {
	return m.setAmount(totalReservedKey(id, token), amt)
}

// ReservedAmount reports the reservation entry for a recipient.
func (m *Manager) ReservedAmount(id campaign.CampaignID, token string, recipient [20]byte) (*big.Int, error) {
	return m.getAmount(reservedEntryKey(id, token, recipient))
}

// SetReservedAmount overwrites the reservation entry for a recipient.
func (m *Manager) SetReservedAmount(id campaign.CampaignID, token string, recipient [20]byte, amt *big.Int) error {
	return m.setAmount(reservedEntryKey(id, token, recipient), amt)
}

// FeeAmount reports the reserved fee entry for a payee.
func (m *Manager) FeeAmount(id campaign.CampaignID, token string, payee [20]byte) (*big.Int, error) {
	return m.getAmount(feeEntryKey(id, token, payee))
}

// SetFeeAmount overwrites the reserved fee entry for a payee.
func (m *Manager) SetFeeAmount(id campaign.CampaignID, token string, payee [20]byte, amt *big.Int) error {
	return m.setAmount(feeEntryKey(id, token, payee), amt)
}

// AccountBalance reports the external balance held by an address.
func (m *Manager) AccountBalance(addr [20]byte, token string) (*big.Int, error) {
	return m.getAmount(accountBalanceKey(addr, token))
}

// SetAccountBalance overwrites the external balance held by an address.
func (m *Manager) SetAccountBalance(addr [20]byte, token string, amt *big.Int) error {
	return m.setAmount(accountBalanceKey(addr, token), amt)
}

// ReservationCampaigns lists campaigns holding reservation entries for the
// recipient.
func (m *Manager) ReservationCampaigns(token string, recipient [20]byte) ([]campaign.CampaignID, error) {
	return m.readIndex(reservedIndexKey(token, recipient))
}

// AddReservationCampaign records that a campaign holds a reservation entry
// for the recipient.
func (m *Manager) AddReservationCampaign(token string, recipient [20]byte, id campaign.CampaignID) error {
	return m.appendIndex(reservedIndexKey(token, recipient), id)
}

// FeeCampaigns lists campaigns holding fee entries for the payee.
func (m *Manager) FeeCampaigns(token string, payee [20]byte) ([]campaign.CampaignID, error) {
	return m.readIndex(feeIndexKey(token, payee))
}

// AddFeeCampaign records that a campaign holds a fee entry for the payee.
func (m *Manager) AddFeeCampaign(token string, payee [20]byte, id campaign.CampaignID) error {
	return m.appendIndex(feeIndexKey(token, payee), id)
}

type storedCampaignRecord struct {
	ID                [32]byte
	Advertiser        [20]byte
	Provider          [20]byte
	FeeBps            uint32
	AttributionWindow uint64
	MetadataURI       string
	Allowlist         []string
	Deadline          uint64
	NextConfigID      uint32
	Status            uint8
}

func newStoredCampaignRecord(r *attribution.CampaignRecord) *storedCampaignRecord {
	return &storedCampaignRecord{
		ID:                r.ID,
		Advertiser:        r.Advertiser,
		Provider:          r.Provider,
		FeeBps:            r.FeeBps,
		AttributionWindow: r.AttributionWindow,
		MetadataURI:       r.MetadataURI,
		Allowlist:         append([]string(nil), r.Allowlist...),
		Deadline:          r.Deadline,
		NextConfigID:      r.NextConfigID,
		Status:            uint8(r.Status),
	}
}

func (s *storedCampaignRecord) toRecord() (*attribution.CampaignRecord, error) {
	out := &attribution.CampaignRecord{
		ID:                s.ID,
		Advertiser:        s.Advertiser,
		Provider:          s.Provider,
		FeeBps:            s.FeeBps,
		AttributionWindow: s.AttributionWindow,
		MetadataURI:       s.MetadataURI,
		Allowlist:         append([]string(nil), s.Allowlist...),
		Deadline:          s.Deadline,
		NextConfigID:      s.NextConfigID,
		Status:            campaign.Status(s.Status),
	}
	if !out.Status.Valid() {
		return nil, fmt.Errorf("state: invalid attribution status %d", s.Status)
	}
	return out, nil
}

// AttributionPut stores an attribution campaign record.
func (m *Manager) AttributionPut(r *attribution.CampaignRecord) error {
	if r == nil {
		return fmt.Errorf("state: nil attribution record")
	}
	return m.put(attributionRecordKey(r.ID), newStoredCampaignRecord(r))
}

// AttributionGet retrieves an attribution campaign record by id.
func (m *Manager) AttributionGet(id campaign.CampaignID) (*attribution.CampaignRecord, bool, error) {
	stored := new(storedCampaignRecord)
	ok, err := m.get(attributionRecordKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	record, err := stored.toRecord()
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

type storedConversionConfig struct {
	ID          uint32
	Status      uint8
	EventType   uint8
	MetadataURI string
	MinBid      *big.Int
	MaxBid      *big.Int
	RewardType  uint8
	Cadence     uint32
}

func newStoredConversionConfig(cfg *attribution.ConversionConfig) *storedConversionConfig {
	stored := &storedConversionConfig{
		ID:          cfg.ID,
		Status:      uint8(cfg.Status),
		EventType:   uint8(cfg.EventType),
		MetadataURI: cfg.MetadataURI,
		MinBid:      big.NewInt(0),
		MaxBid:      big.NewInt(0),
		RewardType:  uint8(cfg.RewardType),
		Cadence:     cfg.Cadence,
	}
	if cfg.MinBid != nil {
		stored.MinBid = new(big.Int).Set(cfg.MinBid)
	}
	if cfg.MaxBid != nil {
		stored.MaxBid = new(big.Int).Set(cfg.MaxBid)
	}
	return stored
}

func (s *storedConversionConfig) toConfig() *attribution.ConversionConfig {
	out := &attribution.ConversionConfig{
		ID:          s.ID,
		Status:      attribution.ConfigStatus(s.Status),
		EventType:   attribution.EventType(s.EventType),
		MetadataURI: s.MetadataURI,
		MinBid:      big.NewInt(0),
		MaxBid:      big.NewInt(0),
		RewardType:  attribution.RewardType(s.RewardType),
		Cadence:     s.Cadence,
	}
	if s.MinBid != nil {
		out.MinBid = new(big.Int).Set(s.MinBid)
	}
	if s.MaxBid != nil {
		out.MaxBid = new(big.Int).Set(s.MaxBid)
	}
	return out
}

// ConversionConfigPut stores a conversion configuration.
func (m *Manager) ConversionConfigPut(id campaign.CampaignID, cfg *attribution.ConversionConfig) error {
	if cfg == nil {
		return fmt.Errorf("state: nil conversion config")
	}
	return m.put(conversionConfigKey(id, cfg.ID), newStoredConversionConfig(cfg))
}

// ConversionConfigGet retrieves a conversion configuration by id.
func (m *Manager) ConversionConfigGet(id campaign.CampaignID, configID uint32) (*attribution.ConversionConfig, bool, error) {
	stored := new(storedConversionConfig)
	ok, err := m.get(conversionConfigKey(id, configID), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toConfig(), true, nil
}

var (
	_ campaign.State    = (*Manager)(nil)
	_ attribution.State = (*Manager)(nil)
)
