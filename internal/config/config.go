package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig holds base configuration
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`     // Maximum number of open connections to the database
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`     // Maximum number of idle connections in the pool
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`  // Maximum amount of time a connection may be reused (e.g., "5m", "1h")
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"` // Maximum amount of time a connection may be idle (e.g., "10m", "30m")
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	StreamName     string        `mapstructure:"stream_name"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName string        `mapstructure:"connection_name"`
}

// ChainConfig holds per-chain RPC and custodial wallet configuration
type ChainConfig struct {
	RPCURL        string `mapstructure:"rpc_url"`
	WalletAddress string `mapstructure:"wallet_address"`
}

// MoralisConfig holds Moralis API configuration
type MoralisConfig struct {
	APIURL string `mapstructure:"api_url"`
	APIKey string `mapstructure:"api_key"`
}

// AlchemyConfig holds Alchemy NFT API configuration
type AlchemyConfig struct {
	EthereumURL string `mapstructure:"ethereum_url"`
	PolygonURL  string `mapstructure:"polygon_url"`
	APIKey      string `mapstructure:"api_key"`
}

// IngestConfig holds deposit and collection ingestion configuration
type IngestConfig struct {
	DepositInterval    time.Duration `mapstructure:"deposit_interval"`
	ConfirmInterval    time.Duration `mapstructure:"confirm_interval"`
	CollectionInterval time.Duration `mapstructure:"collection_interval"`
	GasPriceInterval   time.Duration `mapstructure:"gas_price_interval"`
	RecencyWindow      int           `mapstructure:"recency_window"`
	MaxTokensPerCycle  int           `mapstructure:"max_tokens_per_cycle"`
	MaxNftBatchAmount  int64         `mapstructure:"max_nft_batch_amount"`
}

// MediaConfig holds media cache configuration
type MediaConfig struct {
	CacheDir        string        `mapstructure:"cache_dir"`
	IPFSGateways    []string      `mapstructure:"ipfs_gateways"`
	MaxDownloadSize int64         `mapstructure:"max_download_size"`
	Interval        time.Duration `mapstructure:"interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	Worker          PoolConfig    `mapstructure:"worker"`
}

// LedgerConfig holds tip and transfer limits
type LedgerConfig struct {
	MaxTipAmount string `mapstructure:"max_tip_amount"`
}

// WithdrawConfig holds withdrawal coordinator configuration
type WithdrawConfig struct {
	ConfirmInterval time.Duration `mapstructure:"confirm_interval"`
}

// SignerConfig holds the signer sidecar endpoint
type SignerConfig struct {
	URL string `mapstructure:"url"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// PoolConfig holds worker pool sizing
type PoolConfig struct {
	PoolSize  int `mapstructure:"pool_size"`
	QueueSize int `mapstructure:"queue_size"`
}

// WorkerConfig holds configuration for the worker binary
type WorkerConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Ethereum   ChainConfig    `mapstructure:"ethereum"`
	Polygon    ChainConfig    `mapstructure:"polygon"`
	Moralis    MoralisConfig  `mapstructure:"moralis"`
	Alchemy    AlchemyConfig  `mapstructure:"alchemy"`
	Ingest     IngestConfig   `mapstructure:"ingest"`
	Media      MediaConfig    `mapstructure:"media"`
	Withdraw   WithdrawConfig `mapstructure:"withdraw"`
}

// APIConfig holds configuration for the API server
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`
	Server     ServerConfig   `mapstructure:"server"`
	Database   DatabaseConfig `mapstructure:"database"`
	Ethereum   ChainConfig    `mapstructure:"ethereum"`
	Polygon    ChainConfig    `mapstructure:"polygon"`
	Alchemy    AlchemyConfig  `mapstructure:"alchemy"`
	Ledger     LedgerConfig   `mapstructure:"ledger"`
	Signer     SignerConfig   `mapstructure:"signer"`
}

// MigrateConfig holds configuration for the migrate binary
type MigrateConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
}

// LoadWorkerConfig loads configuration for the worker binary
func LoadWorkerConfig(configFile string, envPath string) (*WorkerConfig, error) {
	v := configureViper("worker", configFile, envPath)

	// Set defaults
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "CUSTODIAN_EVENTS")
	v.SetDefault("moralis.api_url", "https://deep-index.moralis.io/api/v2.2")
	v.SetDefault("ingest.deposit_interval", "30s")
	v.SetDefault("ingest.confirm_interval", "15s")
	v.SetDefault("ingest.collection_interval", "5m")
	v.SetDefault("ingest.gas_price_interval", "1m")
	v.SetDefault("ingest.recency_window", 200)
	v.SetDefault("ingest.max_tokens_per_cycle", 500)
	v.SetDefault("ingest.max_nft_batch_amount", 1000)
	v.SetDefault("media.cache_dir", "media-cache")
	v.SetDefault("media.ipfs_gateways", []string{"ipfs.io", "cloudflare-ipfs.com"})
	v.SetDefault("media.max_download_size", 100*1024*1024) // 100MB
	v.SetDefault("media.interval", "1m")
	v.SetDefault("media.batch_size", 50)
	v.SetDefault("media.worker.pool_size", 10)
	v.SetDefault("media.worker.queue_size", 100)
	v.SetDefault("withdraw.confirm_interval", "15s")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg WorkerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}
	if cfg.Database.DBName == "" {
		return nil, errors.New("database.dbname is required")
	}

	return &cfg, nil
}

// LoadAPIConfig loads configuration for the API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("ledger.max_tip_amount", "10")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg APIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// LoadMigrateConfig loads configuration for the migrate binary
func LoadMigrateConfig(configFile string, envPath string) (*MigrateConfig, error) {
	v := configureViper("migrate", configFile, envPath)

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found, use environment variables
		} else {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg MigrateConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Database.Host == "" {
		return nil, errors.New("database.host is required")
	}

	return &cfg, nil
}

// configureViper returns a viper instance with the config file and environment variables set
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	v := viper.New()

	// Load environment variables
	loadEnv(envPath, service)

	// Set config file
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// Search for config.yaml in multiple locations:
		// 1. Current directory
		v.AddConfigPath(".")
		// 2. Service-specific directory (e.g., cmd/worker/, cmd/api/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix("CUSTODIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind all environment variables
	bindAllEnvVars(v)
	return v
}

// bindAllEnvVars explicitly binds all possible environment variables
// This is required for viper to map env vars to config struct fields when no config file exists
func bindAllEnvVars(v *viper.Viper) {
	keys := []string{
		"debug",
		"sentry_dsn",
		// Database
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// NATS
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Chains
		"ethereum.rpc_url",
		"ethereum.wallet_address",
		"polygon.rpc_url",
		"polygon.wallet_address",
		// Moralis
		"moralis.api_url",
		"moralis.api_key",
		// Alchemy
		"alchemy.ethereum_url",
		"alchemy.polygon_url",
		"alchemy.api_key",
		// Ingestion
		"ingest.deposit_interval",
		"ingest.confirm_interval",
		"ingest.collection_interval",
		"ingest.gas_price_interval",
		"ingest.recency_window",
		"ingest.max_tokens_per_cycle",
		"ingest.max_nft_batch_amount",
		// Media
		"media.cache_dir",
		"media.ipfs_gateways",
		"media.max_download_size",
		"media.interval",
		"media.batch_size",
		"media.worker.pool_size",
		"media.worker.queue_size",
		// Ledger
		"ledger.max_tip_amount",
		// Withdraw
		"withdraw.confirm_interval",
		// Signer
		"signer.url",
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
	}

	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
