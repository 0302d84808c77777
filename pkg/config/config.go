package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverPebble   = "pebble"
)

// Event drivers.
const (
	EventsNone  = "none"
	EventsLog   = "log"
	EventsKafka = "kafka"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Storage  StorageConfig
	Market   MarketConfig
	Listing  ListingCacheConfig
	Events   EventsConfig
	Expiry   ExpiryConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StorageConfig selects the persistence backends for entities and the ledger.
type StorageConfig struct {
	Driver          string
	LedgerDriver    string
	LedgerPebbleDir string
}

// MarketConfig holds marketplace business limits. Amounts are in the smallest currency unit.
type MarketConfig struct {
	MinPrice        int64
	MaxBidMessage   int
	MinDeposit      int64
	MinWithdrawal   int64
	WorkflowRetries int
	WorkflowBackoff time.Duration
}

// ListingCacheConfig governs caching of open-request listings.
type ListingCacheConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// EventsConfig configures after-commit event delivery.
type EventsConfig struct {
	Driver       string
	KafkaBrokers []string
	KafkaTopic   string
	Workers      int
	Retries      int
}

// ExpiryConfig schedules the sweep that cancels requests whose session time passed.
type ExpiryConfig struct {
	Enabled  bool
	Schedule string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Storage = StorageConfig{
		Driver:          strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LedgerDriver:    strings.ToLower(v.GetString("LEDGER_DRIVER")),
		LedgerPebbleDir: v.GetString("LEDGER_PEBBLE_DIR"),
	}
	if cfg.Storage.LedgerDriver == "" {
		cfg.Storage.LedgerDriver = cfg.Storage.Driver
	}

	cfg.Market = MarketConfig{
		MinPrice:        v.GetInt64("MARKET_MIN_PRICE"),
		MaxBidMessage:   v.GetInt("MARKET_MAX_BID_MESSAGE"),
		MinDeposit:      v.GetInt64("MARKET_MIN_DEPOSIT"),
		MinWithdrawal:   v.GetInt64("MARKET_MIN_WITHDRAWAL"),
		WorkflowRetries: v.GetInt("MARKET_WORKFLOW_RETRIES"),
		WorkflowBackoff: parseDuration(v.GetString("MARKET_WORKFLOW_BACKOFF"), 20*time.Millisecond),
	}

	cfg.Listing = ListingCacheConfig{
		Enabled:  v.GetBool("ENABLE_LISTING_CACHE"),
		CacheTTL: parseDuration(v.GetString("LISTING_CACHE_TTL"), time.Minute),
	}

	cfg.Events = EventsConfig{
		Driver:       strings.ToLower(v.GetString("EVENTS_DRIVER")),
		KafkaBrokers: splitAndTrim(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:   v.GetString("KAFKA_TOPIC"),
		Workers:      v.GetInt("EVENTS_WORKERS"),
		Retries:      v.GetInt("EVENTS_RETRIES"),
	}

	cfg.Expiry = ExpiryConfig{
		Enabled:  v.GetBool("ENABLE_EXPIRY"),
		Schedule: v.GetString("EXPIRY_SCHEDULE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "tutorly")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "tutorly")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORAGE_DRIVER", DriverMemory)
	v.SetDefault("LEDGER_DRIVER", "")
	v.SetDefault("LEDGER_PEBBLE_DIR", "./data/ledger")

	v.SetDefault("MARKET_MIN_PRICE", 50000)
	v.SetDefault("MARKET_MAX_BID_MESSAGE", 1000)
	v.SetDefault("MARKET_MIN_DEPOSIT", 50000)
	v.SetDefault("MARKET_MIN_WITHDRAWAL", 100000)
	v.SetDefault("MARKET_WORKFLOW_RETRIES", 3)
	v.SetDefault("MARKET_WORKFLOW_BACKOFF", "20ms")

	v.SetDefault("ENABLE_LISTING_CACHE", false)
	v.SetDefault("LISTING_CACHE_TTL", "1m")

	v.SetDefault("EVENTS_DRIVER", EventsLog)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "tutorly.marketplace")
	v.SetDefault("EVENTS_WORKERS", 2)
	v.SetDefault("EVENTS_RETRIES", 3)

	v.SetDefault("ENABLE_EXPIRY", true)
	v.SetDefault("EXPIRY_SCHEDULE", "*/5 * * * *")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
