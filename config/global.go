package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"
)

// SupplyCapAmount parses the configured ledger supply cap.
func (m Modules) SupplyCapAmount() (*big.Int, error) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(m.SupplyCap), 10)
	if !ok {
		return nil, fmt.Errorf("invalid modules.SupplyCap %q", m.SupplyCap)
	}
	if value.Sign() <= 0 {
		return nil, fmt.Errorf("modules.SupplyCap must be positive")
	}
	return value, nil
}

// Secret resolves the JWT signing secret, preferring the configured
// environment variable.
func (r RPC) Secret() string {
	if name := strings.TrimSpace(r.JWTSecretEnv); name != "" {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value
		}
	}
	return strings.TrimSpace(r.JWTSecret)
}
