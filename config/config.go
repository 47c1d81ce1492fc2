package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"realchain/crypto"
)

// Config carries the daemon settings. CustodianReserve is the minimum-balance
// buffer withheld from custodian payouts, in micro-units; GenesisAlloc seeds
// ledger balances the first time a data directory is initialised.
type Config struct {
	RPCAddress        string            `toml:"RPCAddress"`
	MetricsAddress    string            `toml:"MetricsAddress"`
	DataDir           string            `toml:"DataDir"`
	NetworkName       string            `toml:"NetworkName"`
	CustodianReserve  uint64            `toml:"CustodianReserve"`
	ListingWindowDays uint32            `toml:"ListingWindowDays"`
	GenesisAlloc      map[string]uint64 `toml:"GenesisAlloc"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = defaultConfig.RPCAddress
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = defaultConfig.MetricsAddress
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultConfig.DataDir
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = defaultConfig.NetworkName
	}
	if c.ListingWindowDays == 0 {
		c.ListingWindowDays = defaultConfig.ListingWindowDays
	}
	if c.GenesisAlloc == nil {
		c.GenesisAlloc = map[string]uint64{}
	}
}

// Validate checks the loaded settings for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.CustodianReserve == 0 {
		return fmt.Errorf("CustodianReserve must be positive")
	}
	for addr := range c.GenesisAlloc {
		if _, err := crypto.DecodeAddress(addr); err != nil {
			return fmt.Errorf("GenesisAlloc address %q: %w", addr, err)
		}
	}
	return nil
}

// ListingWindowSeconds converts the configured listing lifetime to seconds.
func (c *Config) ListingWindowSeconds() int64 {
	return int64(c.ListingWindowDays) * 24 * 60 * 60
}

var defaultConfig = Config{
	RPCAddress:        ":8645",
	MetricsAddress:    ":9464",
	DataDir:           "./realchain-data",
	NetworkName:       "realchain-local",
	CustodianReserve:  1_000,
	ListingWindowDays: 30,
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig
	cfg.GenesisAlloc = map[string]uint64{}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create config directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create config file: %w", err)
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, fmt.Errorf("write default config: %w", err)
	}
	return &cfg, nil
}
