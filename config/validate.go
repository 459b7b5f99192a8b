package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const zeroHexAddress = "0x0000000000000000000000000000000000000000"

// Validate checks the configuration for operational soundness. The ledger and
// hook addresses must be distinct, well-formed and non-zero.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	ledger, err := parseAddress("LedgerAddress", c.LedgerAddress)
	if err != nil {
		return err
	}
	hook, err := parseAddress("HookAddress", c.HookAddress)
	if err != nil {
		return err
	}
	if ledger == hook {
		return fmt.Errorf("config: LedgerAddress and HookAddress must differ")
	}
	return nil
}

// Ledger returns the configured ledger core identity.
func (c *Config) Ledger() [20]byte {
	addr, _ := parseAddress("LedgerAddress", c.LedgerAddress)
	return addr
}

// Hook returns the configured attribution hook address.
func (c *Config) Hook() [20]byte {
	addr, _ := parseAddress("HookAddress", c.HookAddress)
	return addr
}

func parseAddress(field, value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("config: %s is not a valid address", field)
	}
	addr := common.HexToAddress(trimmed)
	if addr == (common.Address{}) {
		return [20]byte{}, fmt.Errorf("config: %s must not be the zero address", field)
	}
	return addr, nil
}
