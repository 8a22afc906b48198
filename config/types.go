package config

const (
	DefaultSupplyCap       = "100000000000000"
	DefaultTokenCustodian  = "ST_TOKEN_CONTRACT"
	DefaultEscrowCustodian = "ST_ESCROW_CONTRACT"
)

// Log controls the optional rotated log file.
type Log struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// RPC configures the JSON-RPC listener and its caller authentication.
type RPC struct {
	// JWTSecretEnv names an environment variable that overrides JWTSecret.
	JWTSecret             string  `toml:"JWTSecret"`
	JWTSecretEnv          string  `toml:"JWTSecretEnv"`
	JWTIssuer             string  `toml:"JWTIssuer"`
	RateLimitPerSecond    float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst        int     `toml:"RateLimitBurst"`
	ReadHeaderTimeoutSecs int     `toml:"ReadHeaderTimeoutSecs"`
}

// Modules carries the native module constants.
type Modules struct {
	SupplyCap       string   `toml:"SupplyCap"`
	TokenCustodian  string   `toml:"TokenCustodian"`
	EscrowCustodian string   `toml:"EscrowCustodian"`
	Paused          []string `toml:"Paused"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers"`
	Traces   bool   `toml:"Traces"`
	Metrics  bool   `toml:"Metrics"`
}

// Indexer configures the SQL read model. A DSN starting with postgres:// uses
// PostgreSQL; anything else is treated as a SQLite path.
type Indexer struct {
	Enabled bool   `toml:"Enabled"`
	DSN     string `toml:"DSN"`
}
