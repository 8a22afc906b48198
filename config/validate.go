package config

import (
	"fmt"
	"strings"
)

// MinJWTSecretLength is the shortest accepted HMAC secret.
var MinJWTSecretLength = 16

var pausableModules = map[string]struct{}{
	"token":  {},
	"escrow": {},
	"market": {},
}

// Validate rejects inconsistent configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must be set")
	}
	if c.BlockIntervalMillis == 0 {
		return fmt.Errorf("BlockIntervalMillis must be positive")
	}
	if len(c.RPC.Secret()) < MinJWTSecretLength {
		return fmt.Errorf("rpc: JWT secret must be at least %d characters", MinJWTSecretLength)
	}
	if c.RPC.RateLimitPerSecond < 0 {
		return fmt.Errorf("rpc: RateLimitPerSecond must not be negative")
	}
	if c.RPC.RateLimitPerSecond > 0 && c.RPC.RateLimitBurst <= 0 {
		return fmt.Errorf("rpc: RateLimitBurst must be positive when rate limiting is enabled")
	}
	if _, err := c.Modules.SupplyCapAmount(); err != nil {
		return err
	}
	token := strings.TrimSpace(c.Modules.TokenCustodian)
	escrow := strings.TrimSpace(c.Modules.EscrowCustodian)
	if token == "" || escrow == "" {
		return fmt.Errorf("modules: custodians must be set")
	}
	if token == escrow {
		return fmt.Errorf("modules: token and escrow custodians must differ")
	}
	for _, module := range c.Modules.Paused {
		if _, ok := pausableModules[strings.ToLower(strings.TrimSpace(module))]; !ok {
			return fmt.Errorf("modules: unknown paused module %q", module)
		}
	}
	if c.Indexer.Enabled && strings.TrimSpace(c.Indexer.DSN) == "" {
		return fmt.Errorf("indexer: DSN required when enabled")
	}
	return nil
}
