package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the runtime configuration of the campaign ledger service.
type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	DataDir        string `toml:"DataDir"`
	LedgerAddress  string `toml:"LedgerAddress"`
	HookAddress    string `toml:"HookAddress"`
	Environment    string `toml:"Environment"`
	ReadTimeoutSec uint   `toml:"ReadTimeoutSeconds"`
	IdleTimeoutSec uint   `toml:"IdleTimeoutSeconds"`

	// PausedModules lists native modules whose mutating operations are
	// administratively disabled at startup.
	PausedModules []string `toml:"PausedModules,omitempty"`
}

const (
	defaultListenAddress = ":8681"
	defaultDataDir       = "./campd-data"
	defaultEnvironment   = "local"
	defaultReadTimeout   = 15
	defaultIdleTimeout   = 120
)

// Load reads the configuration from the given path. A missing file is
// populated with defaults and written back so operators have a template to
// edit.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown field %q", path, undecoded[0].String())
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = defaultListenAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = defaultEnvironment
	}
	if c.ReadTimeoutSec == 0 {
		c.ReadTimeoutSec = defaultReadTimeout
	}
	if c.IdleTimeoutSec == 0 {
		c.IdleTimeoutSec = defaultIdleTimeout
	}
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		LedgerAddress: zeroHexAddress,
		HookAddress:   zeroHexAddress,
	}
	cfg.applyDefaults()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
