package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddress)
	require.Len(t, cfg.RPC.JWTSecret, 64)
	require.Equal(t, DefaultEscrowCustodian, cfg.Modules.EscrowCustodian)

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPC.JWTSecret, reloaded.RPC.JWTSecret, "default is persisted")
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `ListenAddress = "127.0.0.1:9000"
DataDir = "/var/lib/energy"
GenesisFile = "genesis.yaml"
Environment = "staging"
BlockIntervalMillis = 250

[log]
File = "/var/log/energyd.log"
MaxBackups = 3

[rpc]
JWTSecret = "`+testSecret+`"
JWTIssuer = "grid-operator"
RateLimitPerSecond = 5.5
RateLimitBurst = 10

[modules]
SupplyCap = "1000"
Paused = ["escrow"]

[telemetry]
Endpoint = "otel:4318"
Traces = true

[indexer]
Enabled = true
DSN = "postgres://energy@db/energy"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, int64(250), cfg.BlockInterval().Milliseconds())
	require.Equal(t, "/var/log/energyd.log", cfg.Log.File)
	require.Equal(t, 3, cfg.Log.MaxBackups)
	require.Equal(t, "grid-operator", cfg.RPC.JWTIssuer)
	require.Equal(t, 5.5, cfg.RPC.RateLimitPerSecond)
	require.Equal(t, []string{"escrow"}, cfg.Modules.Paused)
	require.True(t, cfg.Telemetry.Traces)
	require.True(t, cfg.Indexer.Enabled)

	limit, err := cfg.Modules.SupplyCapAmount()
	require.NoError(t, err)
	require.Equal(t, "1000", limit.String())
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "Bootnodes = []\n[rpc]\nJWTSecret = \""+testSecret+"\"\n")
	_, err := Load(path)
	require.ErrorContains(t, err, "Bootnodes")
}

func TestSecretFromEnvironment(t *testing.T) {
	t.Setenv("ENERGY_TEST_JWT", "from-env-secret-value")
	rpc := RPC{JWTSecret: "file-secret", JWTSecretEnv: "ENERGY_TEST_JWT"}
	require.Equal(t, "from-env-secret-value", rpc.Secret())

	rpc.JWTSecretEnv = "ENERGY_TEST_UNSET"
	require.Equal(t, "file-secret", rpc.Secret())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.RPC.JWTSecret = testSecret
		return cfg
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"short secret":      func(c *Config) { c.RPC.JWTSecret = "short" },
		"negative rate":     func(c *Config) { c.RPC.RateLimitPerSecond = -1 },
		"zero burst":        func(c *Config) { c.RPC.RateLimitBurst = 0 },
		"bad supply cap":    func(c *Config) { c.Modules.SupplyCap = "lots" },
		"zero supply cap":   func(c *Config) { c.Modules.SupplyCap = "0" },
		"same custodians":   func(c *Config) { c.Modules.EscrowCustodian = c.Modules.TokenCustodian },
		"unknown pause":     func(c *Config) { c.Modules.Paused = []string{"lending"} },
		"indexer no dsn":    func(c *Config) { c.Indexer.Enabled = true },
		"zero interval":     func(c *Config) { c.BlockIntervalMillis = 0 },
		"empty listen addr": func(c *Config) { c.ListenAddress = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
