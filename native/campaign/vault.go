package campaign

import (
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// vaultState is the slice of ledger state a custody vault needs: its own
// balance and the ability to credit recipient accounts.
type vaultState interface {
	VaultBalance(id CampaignID, token string) (*big.Int, error)
	VaultCredit(id CampaignID, token string, amt *big.Int) error
	VaultDebit(id CampaignID, token string, amt *big.Int) error
	AccountBalance(addr [20]byte, token string) (*big.Int, error)
	SetAccountBalance(addr [20]byte, token string, amt *big.Int) error
}

// VaultFactory allocates per-campaign custody records. The campaign identity
// doubles as the custody slot key, so deriving the identity up front lets
// callers predict where funds will be held before the campaign exists.
type VaultFactory struct {
	core  [20]byte
	state vaultState
}

// NewVaultFactory binds the factory to the ledger identity allowed to move
// custodied funds.
func NewVaultFactory(core [20]byte, state vaultState) *VaultFactory {
	return &VaultFactory{core: core, state: state}
}

// DeriveID computes the deterministic campaign identifier for the supplied
// hook reference, nonce and creation payload.
func DeriveID(hook [20]byte, nonce [32]byte, payload []byte) CampaignID {
	return CampaignID(ethcrypto.Keccak256Hash(hook[:], nonce[:], payload))
}

// Deploy allocates the custody record for the campaign.
func (f *VaultFactory) Deploy(id CampaignID) *Vault {
	return &Vault{campaign: id, core: f.core, state: f.state}
}

// Vault is the per-campaign fund custody primitive. It holds no business
// logic: the single guarded operation pushes custodied tokens to a recipient
// and only the ledger identity bound at construction may invoke it.
type Vault struct {
	campaign CampaignID
	core     [20]byte
	state    vaultState
}

// Balance reports the custodied amount for the token.
func (v *Vault) Balance(token string) (*big.Int, error) {
	if v == nil || v.state == nil {
		return nil, fmt.Errorf("campaign: vault state not configured")
	}
	return v.state.VaultBalance(v.campaign, token)
}

// SendTokens pushes custodied funds to the recipient. Any caller other than
// the registered ledger core is rejected. Failures are surfaced to the caller
// rather than retried; the ledger decides whether to leave the funds reserved.
func (v *Vault) SendTokens(caller [20]byte, token string, recipient [20]byte, amount *big.Int) (bool, error) {
	if v == nil || v.state == nil {
		return false, fmt.Errorf("campaign: vault state not configured")
	}
	if caller != v.core {
		return false, fmt.Errorf("%w: vault caller is not the ledger core", ErrUnauthorized)
	}
	if isZeroAddress(recipient) {
		return false, ErrZeroAddress
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return false, fmt.Errorf("%w: send amount must be positive", ErrInvalidAmount)
	}
	balance, err := v.state.VaultBalance(v.campaign, token)
	if err != nil {
		return false, err
	}
	if balance.Cmp(amt) < 0 {
		return false, fmt.Errorf("%w: vault balance %s below %s", ErrInsufficientFunds, balance, amt)
	}
	if err := v.state.VaultDebit(v.campaign, token, amt); err != nil {
		return false, err
	}
	recipientBalance, err := v.state.AccountBalance(recipient, token)
	if err != nil {
		return false, err
	}
	if err := v.state.SetAccountBalance(recipient, token, new(big.Int).Add(recipientBalance, amt)); err != nil {
		return false, err
	}
	return true, nil
}

// credit tops up the custody balance during campaign funding. Deposits flow
// through the ledger's Deposit operation, so the vault exposes no public
// credit surface.
func (v *Vault) credit(token string, amount *big.Int) error {
	if v == nil || v.state == nil {
		return fmt.Errorf("campaign: vault state not configured")
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("%w: deposit amount must be positive", ErrInvalidAmount)
	}
	return v.state.VaultCredit(v.campaign, token, amt)
}
