package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JuChain    ChainConfig      `mapstructure:"juchain"`
	BSC        ChainConfig      `mapstructure:"bsc"`
	Relayer    RelayerConfig    `mapstructure:"relayer"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// ChainConfig contains per-chain RPC endpoint and bridge contract settings
type ChainConfig struct {
	RPCURL        string `mapstructure:"rpc_url"`
	WSURL         string `mapstructure:"ws_url"`
	ChainID       int64  `mapstructure:"chain_id"`
	BridgeAddress string `mapstructure:"bridge_address"`
}

// RelayerConfig contains the relayer credential and transaction settings
type RelayerConfig struct {
	PrivateKey     string        `mapstructure:"private_key"`
	GasLimit       uint64        `mapstructure:"gas_limit"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

// ScanConfig contains historical scan and retry settings
type ScanConfig struct {
	MaxBlocksPerScan   int64         `mapstructure:"max_blocks_per_scan"`
	PollingInterval    time.Duration `mapstructure:"polling_interval"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	MaxRetries         int           `mapstructure:"max_retries"`
	FinalityDelay      time.Duration `mapstructure:"finality_delay"`
	ErrorSweepInterval time.Duration `mapstructure:"error_sweep_interval"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MetricsPort int  `mapstructure:"metrics_port"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 4000)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "bridge_relayer")

	// Chain defaults
	viper.SetDefault("juchain.chain_id", 66633666)
	viper.SetDefault("bsc.chain_id", 97)

	// Relayer defaults
	viper.SetDefault("relayer.gas_limit", 300000)
	viper.SetDefault("relayer.confirm_timeout", "5m")

	// Scan defaults
	viper.SetDefault("scan.max_blocks_per_scan", 500)
	viper.SetDefault("scan.polling_interval", "2m")
	viper.SetDefault("scan.retry_delay", "10s")
	viper.SetDefault("scan.max_retries", 5)
	viper.SetDefault("scan.finality_delay", "3s")
	viper.SetDefault("scan.error_sweep_interval", "5m")

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_port", 9090)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.JuChain.RPCURL == "" {
		return fmt.Errorf("juchain.rpc_url is required")
	}
	if config.BSC.RPCURL == "" {
		return fmt.Errorf("bsc.rpc_url is required")
	}
	if config.JuChain.BridgeAddress == "" {
		return fmt.Errorf("juchain.bridge_address is required")
	}
	if config.BSC.BridgeAddress == "" {
		return fmt.Errorf("bsc.bridge_address is required")
	}
	if config.Relayer.PrivateKey == "" {
		return fmt.Errorf("relayer.private_key is required")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
