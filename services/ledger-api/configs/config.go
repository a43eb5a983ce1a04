package configs

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/cache"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	ProviderMock = "mock"
	ProviderHTTP = "http"
)

// Config holds application configuration for ledger-api.
type Config struct {
	Port               string        `mapstructure:"PORT" validate:"required"`
	Store              string        `mapstructure:"STORE" validate:"oneof=postgres memory"`
	PrimaryDbAddr      string        `mapstructure:"PRIMARY_DB_ADDR" validate:"required_if=Store postgres"`
	ReplicaDbAddr      string        `mapstructure:"REPLICA_DB_ADDR"`
	MaxDbCons          int32         `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons          int32         `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`
	LockTimeout        time.Duration `mapstructure:"LOCK_TIMEOUT" validate:"required"`
	TransferMaxRetries uint64        `mapstructure:"TRANSFER_MAX_RETRIES" validate:"max=10"`
	DailyLimit         string        `mapstructure:"DAILY_LIMIT" validate:"required,numeric"`
	RedisAddr          string        `mapstructure:"REDIS_ADDR"`
	RedisPassword      string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB            int           `mapstructure:"REDIS_DB" validate:"min=0,max=15"`
	RedisTLS           bool          `mapstructure:"REDIS_TLS"`
	DeviceRateLimit    int           `mapstructure:"DEVICE_RATE_LIMIT" validate:"min=0"`
	DeviceRateBurst    int           `mapstructure:"DEVICE_RATE_BURST" validate:"min=1"`
	KafkaBrokers       string        `mapstructure:"KAFKA_BROKERS"`
	KafkaLedgerTopic   string        `mapstructure:"KAFKA_LEDGER_TOPIC" validate:"required_with=KafkaBrokers"`
	KafkaPartition     uint32        `mapstructure:"KAFKA_PARTITION" validate:"min=1"`
	Provider           string        `mapstructure:"PROVIDER" validate:"oneof=mock http"`
	ProviderBaseURL    string        `mapstructure:"PROVIDER_BASE_URL" validate:"required_if=Provider http"`
	ProviderAPIKey     string        `mapstructure:"PROVIDER_API_KEY"`
}

// DailyLimitAmount is DailyLimit parsed; Load has already validated it.
func (c *Config) DailyLimitAmount() decimal.Decimal {
	return decimal.RequireFromString(c.DailyLimit).Round(2)
}

// Redis is the connection for the device rate limiter.
func (c *Config) Redis() cache.Config {
	return cache.Config{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB, TLS: c.RedisTLS}
}

func Load(logger *zap.Logger) (*Config, error) {
	// A local .env is optional; real environments set APP_* directly.
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded_env_file")
	}

	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("STORE", StorePostgres)
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("LOCK_TIMEOUT", "2s")
	viper.SetDefault("TRANSFER_MAX_RETRIES", "3")
	viper.SetDefault("DAILY_LIMIT", "50.00")
	viper.SetDefault("REDIS_DB", "0")
	viper.SetDefault("DEVICE_RATE_LIMIT", "5")
	viper.SetDefault("DEVICE_RATE_BURST", "10")
	viper.SetDefault("KAFKA_LEDGER_TOPIC", "ledger.events")
	viper.SetDefault("KAFKA_PARTITION", "4")
	viper.SetDefault("PROVIDER", ProviderMock)

	if gin.ReleaseMode == gin.Mode() {
		viper.SetConfigName("config.prod")
	} else if gin.TestMode == gin.Mode() {
		logger.Warn("running_in_test_mode")
		viper.SetConfigName("config.test")
	} else {
		logger.Warn("running_in_development_mode")
		viper.SetConfigName("config.dev")
	}
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./services/ledger-api/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	if limit := cfg.DailyLimitAmount(); !limit.IsPositive() {
		return nil, fmt.Errorf("invalid configuration: APP_DAILY_LIMIT must be positive, got %s", cfg.DailyLimit)
	}
	return &cfg, nil
}
