package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the settlement service configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Bridge     BridgeConfig     `mapstructure:"bridge"`
	Signers    []SignerConfig   `mapstructure:"signers"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings.
// When Enabled is false the service keeps all state in memory.
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// RateLimitConfig contains per-address admission control settings
type RateLimitConfig struct {
	Capacity     int           `mapstructure:"capacity"`
	Window       time.Duration `mapstructure:"window"`
	IdleMultiple int           `mapstructure:"idle_multiple"`
}

// ChainConfig describes a chain the bridge can route to or from
type ChainConfig struct {
	BlockTime  time.Duration `mapstructure:"block_time"`
	Congestion string        `mapstructure:"congestion"`
	GasFee     string        `mapstructure:"gas_fee"`
	// EVM connects the chain adapter to a live EVM node. Nil uses the simulated adapter.
	EVM *EVMConfig `mapstructure:"evm"`
}

// EVMConfig contains the settings of an EVM chain adapter
type EVMConfig struct {
	RPCURL          string            `mapstructure:"rpc_url"`
	ChainID         int64             `mapstructure:"chain_id"`
	BridgeContract  string            `mapstructure:"bridge_contract"`
	PrivateKey      string            `mapstructure:"private_key"`
	GasLimit        uint64            `mapstructure:"gas_limit"`
	MaxGasPrice     string            `mapstructure:"max_gas_price"`
	PollingInterval time.Duration     `mapstructure:"polling_interval"`
	Confirmations   uint64            `mapstructure:"confirmations"`
	Tokens          map[string]string `mapstructure:"tokens"`
}

// AssetConfig describes a bridgeable asset
type AssetConfig struct {
	Decimals      int32  `mapstructure:"decimals"`
	MinAmount     string `mapstructure:"min_amount"`
	MaxAmount     string `mapstructure:"max_amount"`
	FeeMultiplier string `mapstructure:"fee_multiplier"`
}

// RouteConfig lists the assets bridgeable from Source to Target.
// An empty Assets list allows every configured asset.
type RouteConfig struct {
	Source string   `mapstructure:"source"`
	Target string   `mapstructure:"target"`
	Assets []string `mapstructure:"assets"`
}

// PoolConfig seeds a liquidity pool at start-up
type PoolConfig struct {
	Source    string `mapstructure:"source"`
	Target    string `mapstructure:"target"`
	Asset     string `mapstructure:"asset"`
	Liquidity string `mapstructure:"liquidity"`
}

// BridgeConfig contains validation, fee and liquidity settings.
// Empty Chains/Assets fall back to the built-in registry.
type BridgeConfig struct {
	Chains                   map[string]ChainConfig `mapstructure:"chains"`
	Assets                   map[string]AssetConfig `mapstructure:"assets"`
	Routes                   []RouteConfig          `mapstructure:"routes"`
	Pools                    []PoolConfig           `mapstructure:"pools"`
	BaseFeeRate              string                 `mapstructure:"base_fee_rate"`
	DefaultGasFee            string                 `mapstructure:"default_gas_fee"`
	LiquidityBufferThreshold string                 `mapstructure:"liquidity_buffer_threshold"`
	SlippageWarningPct       string                 `mapstructure:"slippage_warning_pct"`
	ThinLiquidityRatio       string                 `mapstructure:"thin_liquidity_ratio"`
	ProcessingTime           time.Duration          `mapstructure:"processing_time"`
	ValidationTTL            time.Duration          `mapstructure:"validation_ttl"`
	StaleSignatureAge        time.Duration          `mapstructure:"stale_signature_age"`
}

// SignerConfig registers a designated signer. When PublicKey is empty the key is
// derived from DevSeed, which is only meant for development networks. A revoked
// signer stays registered but its signatures no longer count.
type SignerConfig struct {
	ID        string `mapstructure:"id"`
	Scheme    string `mapstructure:"scheme"`
	PublicKey string `mapstructure:"public_key"`
	DevSeed   string `mapstructure:"dev_seed"`
	Revoked   bool   `mapstructure:"revoked"`
}

// SettlementConfig contains state machine and background engine settings
type SettlementConfig struct {
	ExecutionDeadline   time.Duration `mapstructure:"execution_deadline"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout"`
	LockTimeout         time.Duration `mapstructure:"lock_timeout"`
	AutoSettle          bool          `mapstructure:"auto_settle"`
	SimulatedChains     bool          `mapstructure:"simulated_chains"`
	// OperatorToken enables the operator endpoints. Empty disables them.
	OperatorToken string `mapstructure:"operator_token"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SETTLEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.database", "bridge_settlement")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	// Rate limit defaults
	v.SetDefault("rate_limit.capacity", 100)
	v.SetDefault("rate_limit.window", "1s")
	v.SetDefault("rate_limit.idle_multiple", 5)

	// Bridge defaults
	v.SetDefault("bridge.base_fee_rate", "0.001")
	v.SetDefault("bridge.default_gas_fee", "0.01")
	v.SetDefault("bridge.liquidity_buffer_threshold", "0")
	v.SetDefault("bridge.slippage_warning_pct", "2")
	v.SetDefault("bridge.thin_liquidity_ratio", "0.5")
	v.SetDefault("bridge.processing_time", "30s")
	v.SetDefault("bridge.validation_ttl", "5m")
	v.SetDefault("bridge.stale_signature_age", "1h")

	// Settlement defaults
	v.SetDefault("settlement.execution_deadline", "30m")
	v.SetDefault("settlement.sweep_interval", "1m")
	v.SetDefault("settlement.confirmation_timeout", "10m")
	v.SetDefault("settlement.lock_timeout", "2m")
	v.SetDefault("settlement.auto_settle", true)
	v.SetDefault("settlement.simulated_chains", false)
}

func validate(config *Config) error {
	var errs []error
	if config.Server.Port <= 0 {
		errs = append(errs, errors.New("server.port must be positive"))
	}
	if config.Database.Enabled && config.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required when database is enabled"))
	}
	if config.RateLimit.Capacity <= 0 {
		errs = append(errs, errors.New("rate_limit.capacity must be positive"))
	}
	if config.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	if config.Settlement.ExecutionDeadline <= 0 {
		errs = append(errs, errors.New("settlement.execution_deadline must be positive"))
	}
	if config.Settlement.SweepInterval <= 0 {
		errs = append(errs, errors.New("settlement.sweep_interval must be positive"))
	}

	seen := make(map[string]bool, len(config.Signers))
	for i, s := range config.Signers {
		if s.ID == "" {
			errs = append(errs, fmt.Errorf("signers[%d].id is required", i))
			continue
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("signers[%d]: duplicate signer id %q", i, s.ID))
		}
		seen[s.ID] = true
		if s.Scheme == "" {
			errs = append(errs, fmt.Errorf("signers[%d].scheme is required", i))
		}
		if s.PublicKey == "" && s.DevSeed == "" {
			errs = append(errs, fmt.Errorf("signers[%d]: public_key or dev_seed is required", i))
		}
	}

	for name, c := range config.Bridge.Chains {
		if c.EVM == nil || config.Settlement.SimulatedChains {
			continue
		}
		if c.EVM.RPCURL == "" || c.EVM.BridgeContract == "" || c.EVM.PrivateKey == "" {
			errs = append(errs, fmt.Errorf("bridge.chains.%s.evm: rpc_url, bridge_contract and private_key are required", name))
		}
		if c.EVM.ChainID <= 0 {
			errs = append(errs, fmt.Errorf("bridge.chains.%s.evm.chain_id must be positive", name))
		}
	}

	for i, p := range config.Bridge.Pools {
		if p.Source == "" || p.Target == "" || p.Asset == "" {
			errs = append(errs, fmt.Errorf("bridge.pools[%d]: source, target and asset are required", i))
		}
	}
	return errors.Join(errs...)
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
