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

	"github.com/feral-file/ff-patronage-indexer/internal/domain"
	"github.com/feral-file/ff-patronage-indexer/internal/epoch"
)

// ENV_PREFIX prefixes every environment variable read by the services
const ENV_PREFIX = "PATRONAGE"

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
	URL             string        `mapstructure:"url"`
	StreamName      string        `mapstructure:"stream_name"`
	ConsumerName    string        `mapstructure:"consumer_name"`
	MaxReconnects   int           `mapstructure:"max_reconnects"`
	ReconnectWait   time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName  string        `mapstructure:"connection_name"`
	AckWait         time.Duration `mapstructure:"ack_wait"`
	MaxDeliver      int           `mapstructure:"max_deliver"`
	NakDelay        time.Duration `mapstructure:"nak_delay"`
	DuplicateWindow time.Duration `mapstructure:"duplicate_window"`
}

// EthereumConfig holds Ethereum-specific configuration
type EthereumConfig struct {
	WebSocketURL         string        `mapstructure:"websocket_url"`
	RPCURL               string        `mapstructure:"rpc_url"`
	ChainID              domain.Chain  `mapstructure:"chain_id"`
	StartBlock           uint64        `mapstructure:"start_block"`
	BlockHeadTTL         time.Duration `mapstructure:"block_head_ttl"`
	BlockHeadStaleWindow time.Duration `mapstructure:"block_head_stale_window"`
	TimestampCacheSize   int           `mapstructure:"timestamp_cache_size"`
}

// ReaderConfig bounds the retries of contract reads
type ReaderConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

// CursorConfig controls how often the emitter persists its block cursor
type CursorConfig struct {
	SaveFrequency uint64        `mapstructure:"save_frequency"` // in blocks
	SaveDelay     time.Duration `mapstructure:"save_delay"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // in seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // in seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // in seconds
}

// ReplayRangeConfig holds the block range and parallelism of a replay
type ReplayRangeConfig struct {
	FromBlock   uint64 `mapstructure:"from_block"`
	ToBlock     uint64 `mapstructure:"to_block"` // 0 means the latest block
	Concurrency int    `mapstructure:"concurrency"`
}

// DeploymentsConfig is the deployment table. An empty table falls back to the mainnet deployments.
type DeploymentsConfig = epoch.Config

// EmitterConfig holds configuration for patronage-emitter
type EmitterConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Cursor      CursorConfig      `mapstructure:"cursor"`
	Deployments DeploymentsConfig `mapstructure:",squash"`
}

// LedgerWorkerConfig holds configuration for ledger-worker
type LedgerWorkerConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Database    DatabaseConfig    `mapstructure:"database"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Reader      ReaderConfig      `mapstructure:"reader"`
	Deployments DeploymentsConfig `mapstructure:",squash"`
}

// ReplayConfig holds configuration for ledger-replay
type ReplayConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Ethereum    EthereumConfig    `mapstructure:"ethereum"`
	Reader      ReaderConfig      `mapstructure:"reader"`
	Replay      ReplayRangeConfig `mapstructure:"replay"`
	Deployments DeploymentsConfig `mapstructure:",squash"`
}

// APIConfig holds configuration for API server
type APIConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Deployments DeploymentsConfig `mapstructure:",squash"`
}

func setDatabaseDefaults(v *viper.Viper) {
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
}

func setNATSDefaults(v *viper.Viper) {
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.stream_name", "PATRONAGE_EVENTS")
	v.SetDefault("nats.duplicate_window", "24h")
}

func setEthereumDefaults(v *viper.Viper) {
	v.SetDefault("ethereum.chain_id", string(domain.ChainEthereumMainnet))
	v.SetDefault("ethereum.block_head_ttl", "12s")
	v.SetDefault("ethereum.block_head_stale_window", "60s")
	v.SetDefault("ethereum.timestamp_cache_size", 4096)
}

func setReaderDefaults(v *viper.Viper) {
	v.SetDefault("reader.initial_interval", "500ms")
	v.SetDefault("reader.max_interval", "15s")
	v.SetDefault("reader.max_elapsed_time", "2m")
}

// LoadEmitterConfig loads configuration for patronage-emitter
func LoadEmitterConfig(configFile string, envPath string) (*EmitterConfig, error) {
	v := configureViper("patronage-emitter", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	setNATSDefaults(v)
	setEthereumDefaults(v)
	v.SetDefault("nats.connection_name", "patronage-emitter")
	v.SetDefault("cursor.save_frequency", 10)
	v.SetDefault("cursor.save_delay", "30s")

	var config EmitterConfig
	if err := load(v, &config); err != nil {
		return nil, err
	}
	if err := resolveDeployments(&config.Deployments); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadLedgerWorkerConfig loads configuration for ledger-worker
func LoadLedgerWorkerConfig(configFile string, envPath string) (*LedgerWorkerConfig, error) {
	v := configureViper("ledger-worker", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	setNATSDefaults(v)
	setEthereumDefaults(v)
	setReaderDefaults(v)
	v.SetDefault("nats.connection_name", "ledger-worker")
	v.SetDefault("nats.consumer_name", "ledger-worker")
	v.SetDefault("nats.ack_wait", "2m")
	v.SetDefault("nats.max_deliver", -1)
	v.SetDefault("nats.nak_delay", "5s")

	var config LedgerWorkerConfig
	if err := load(v, &config); err != nil {
		return nil, err
	}
	if err := resolveDeployments(&config.Deployments); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadReplayConfig loads configuration for ledger-replay
func LoadReplayConfig(configFile string, envPath string) (*ReplayConfig, error) {
	v := configureViper("ledger-replay", configFile, envPath)

	// Set defaults
	setDatabaseDefaults(v)
	setEthereumDefaults(v)
	setReaderDefaults(v)
	v.SetDefault("replay.concurrency", 4)

	var config ReplayConfig
	if err := load(v, &config); err != nil {
		return nil, err
	}
	if err := resolveDeployments(&config.Deployments); err != nil {
		return nil, err
	}
	if config.Replay.ToBlock != 0 && config.Replay.ToBlock < config.Replay.FromBlock {
		return nil, fmt.Errorf("replay.to_block %d is before replay.from_block %d", config.Replay.ToBlock, config.Replay.FromBlock)
	}

	return &config, nil
}

// LoadAPIConfig loads configuration for API server
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Set defaults
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.idle_timeout", 120)
	setDatabaseDefaults(v)

	var config APIConfig
	if err := load(v, &config); err != nil {
		return nil, err
	}
	if err := resolveDeployments(&config.Deployments); err != nil {
		return nil, err
	}

	return &config, nil
}

// load reads the config file when there is one and unmarshals it over the defaults
func load(v *viper.Viper, config interface{}) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found, use environment variables
	}

	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// resolveDeployments applies the mainnet table when none is configured and validates the result
func resolveDeployments(cfg *DeploymentsConfig) error {
	if len(cfg.Deployments) == 0 {
		*cfg = epoch.MainnetConfig()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid deployments: %w", err)
	}
	return nil
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
		// 2. Service-specific directory (e.g., cmd/ledger-worker/, cmd/api/)
		v.AddConfigPath(fmt.Sprintf("cmd/%s/", service))
		// 3. Config directory
		v.AddConfigPath("config/")
	}

	// Set environment variables
	v.SetEnvPrefix(ENV_PREFIX)
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
		"nats.consumer_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		"nats.ack_wait",
		"nats.max_deliver",
		"nats.nak_delay",
		"nats.duplicate_window",
		// Ethereum
		"ethereum.websocket_url",
		"ethereum.rpc_url",
		"ethereum.chain_id",
		"ethereum.start_block",
		"ethereum.block_head_ttl",
		"ethereum.block_head_stale_window",
		"ethereum.timestamp_cache_size",
		// Contract reads
		"reader.initial_interval",
		"reader.max_interval",
		"reader.max_elapsed_time",
		// Emitter cursor
		"cursor.save_frequency",
		"cursor.save_delay",
		// Replay
		"replay.from_block",
		"replay.to_block",
		"replay.concurrency",
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
