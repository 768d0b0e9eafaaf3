package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	Log         LogConfig         `mapstructure:"log"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Migrate         bool          `mapstructure:"migrate"` // apply embedded schema on startup
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// PoolSize of 0 keeps the go-redis default (10 per CPU).
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig configures validation of caller tokens issued by the auth service.
type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// MarketplaceConfig is injected into the lifecycle and wallet services.
// Money values are in currency minor units.
type MarketplaceConfig struct {
	UnlockCost           int64         `mapstructure:"unlock_cost"`
	MaxRecharge          int64         `mapstructure:"max_recharge"` // per top-up, minor units
	Currency             string        `mapstructure:"currency"`
	OperationTimeout     time.Duration `mapstructure:"operation_timeout"`
	RefundOnCancel       bool          `mapstructure:"refund_on_cancel"`
	ReconcileInterval    time.Duration `mapstructure:"reconcile_interval"`
	ReconcileTimeout     time.Duration `mapstructure:"reconcile_timeout"`
	IntelligenceCacheTTL time.Duration `mapstructure:"intelligence_cache_ttl"`
}

type NotifyConfig struct {
	Endpoint    string        `mapstructure:"endpoint"` // empty: log only
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: TML_ (Tradie Marketplace Ledger).
// Nested keys use underscore: TML_DATABASE_HOST, TML_MARKETPLACE_UNLOCK_COST, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "tradie_marketplace")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrate", false)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 0)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "tradie-marketplace-auth")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("marketplace.unlock_cost", 50)
	v.SetDefault("marketplace.max_recharge", 1000000)
	v.SetDefault("marketplace.currency", "AUD")
	v.SetDefault("marketplace.operation_timeout", "5s")
	v.SetDefault("marketplace.refund_on_cancel", true)
	v.SetDefault("marketplace.reconcile_interval", "10m")
	v.SetDefault("marketplace.reconcile_timeout", "1m")
	v.SetDefault("marketplace.intelligence_cache_ttl", "15m")
	v.SetDefault("notify.endpoint", "")
	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("notify.max_attempts", 3)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: TML_DATABASE_HOST -> database.host
	v.SetEnvPrefix("TML")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("invalid storage.driver %q (want postgres or memory)", c.Storage.Driver)
	}
	if c.Marketplace.UnlockCost <= 0 {
		return errors.New("marketplace.unlock_cost must be positive")
	}
	if c.Marketplace.MaxRecharge <= 0 {
		return errors.New("marketplace.max_recharge must be positive")
	}
	if c.Marketplace.OperationTimeout <= 0 {
		return errors.New("marketplace.operation_timeout must be positive")
	}
	if c.Notify.MaxAttempts < 1 {
		return errors.New("notify.max_attempts must be at least 1")
	}
	return nil
}
