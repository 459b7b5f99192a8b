package campaign

import (
	"errors"
	"math/big"
	"testing"
)

func TestDeriveIDDeterministic(t *testing.T) {
	hook := [20]byte{0x01}
	nonce := [32]byte{0x02}
	payload := []byte("payload")

	first := DeriveID(hook, nonce, payload)
	second := DeriveID(hook, nonce, payload)
	if first != second {
		t.Fatalf("expected deterministic id, got %x and %x", first, second)
	}
	if DeriveID(hook, [32]byte{0x03}, payload) == first {
		t.Fatalf("expected nonce to affect id")
	}
	if DeriveID(hook, nonce, []byte("other")) == first {
		t.Fatalf("expected payload to affect id")
	}
}

func TestVaultSendTokensCapability(t *testing.T) {
	state := newMockState()
	core := [20]byte{0x01}
	intruder := [20]byte{0x66}
	recipient := [20]byte{0x0a}
	id := CampaignID{0x05}

	factory := NewVaultFactory(core, state)
	vault := factory.Deploy(id)
	if err := vault.credit("NHB", big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if _, err := vault.SendTokens(intruder, "NHB", recipient, big.NewInt(100)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	balance, _ := vault.Balance("NHB")
	if balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected untouched balance, got %s", balance)
	}

	ok, err := vault.SendTokens(core, "NHB", recipient, big.NewInt(100))
	if err != nil || !ok {
		t.Fatalf("send: ok=%v err=%v", ok, err)
	}
	balance, _ = vault.Balance("NHB")
	if balance.Cmp(big.NewInt(400)) != 0 {
		t.Fatalf("expected 400, got %s", balance)
	}
	received, _ := state.AccountBalance(recipient, "NHB")
	if received.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("expected recipient 100, got %s", received)
	}
}

func TestVaultSendTokensValidation(t *testing.T) {
	state := newMockState()
	core := [20]byte{0x01}
	id := CampaignID{0x06}
	vault := NewVaultFactory(core, state).Deploy(id)
	if err := vault.credit("NHB", big.NewInt(50)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	if _, err := vault.SendTokens(core, "NHB", [20]byte{}, big.NewInt(10)); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	if _, err := vault.SendTokens(core, "NHB", [20]byte{0x0a}, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := vault.SendTokens(core, "NHB", [20]byte{0x0a}, big.NewInt(60)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}
