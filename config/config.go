package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	ListenAddress       string `toml:"ListenAddress"`
	DataDir             string `toml:"DataDir"`
	GenesisFile         string `toml:"GenesisFile"`
	Environment         string `toml:"Environment"`
	BlockIntervalMillis uint64 `toml:"BlockIntervalMillis"`

	Log       Log       `toml:"log"`
	RPC       RPC       `toml:"rpc"`
	Modules   Modules   `toml:"modules"`
	Telemetry Telemetry `toml:"telemetry"`
	Indexer   Indexer   `toml:"indexer"`
}

// Load loads the configuration from the given path. A default configuration
// with a freshly generated JWT secret is written when the file does not exist.
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
		return nil, fmt.Errorf("config file %s has unknown field %q", path, undecoded[0].String())
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration used for a fresh data directory.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./energy-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.BlockIntervalMillis == 0 {
		c.BlockIntervalMillis = 5000
	}
	if c.RPC.RateLimitPerSecond == 0 {
		c.RPC.RateLimitPerSecond = 20
	}
	if c.RPC.RateLimitBurst == 0 {
		c.RPC.RateLimitBurst = 40
	}
	if c.RPC.ReadHeaderTimeoutSecs == 0 {
		c.RPC.ReadHeaderTimeoutSecs = 5
	}
	if strings.TrimSpace(c.RPC.JWTIssuer) == "" {
		c.RPC.JWTIssuer = "energyd"
	}
	if strings.TrimSpace(c.Modules.SupplyCap) == "" {
		c.Modules.SupplyCap = DefaultSupplyCap
	}
	if strings.TrimSpace(c.Modules.TokenCustodian) == "" {
		c.Modules.TokenCustodian = DefaultTokenCustodian
	}
	if strings.TrimSpace(c.Modules.EscrowCustodian) == "" {
		c.Modules.EscrowCustodian = DefaultEscrowCustodian
	}
	if c.Modules.Paused == nil {
		c.Modules.Paused = []string{}
	}
}

// BlockInterval returns the configured block interval.
func (c *Config) BlockInterval() time.Duration {
	return time.Duration(c.BlockIntervalMillis) * time.Millisecond
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.RPC.JWTSecret = hex.EncodeToString(secret)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
