package configs

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/cache"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/utils"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config holds application configuration for audit-worker.
type Config struct {
	MetricsAddr             string `mapstructure:"METRICS_ADDR" validate:"required"`
	PrimaryDbAddr           string `mapstructure:"PRIMARY_DB_ADDR" validate:"required"`
	ReplicaDbAddr           string `mapstructure:"REPLICA_DB_ADDR"`
	MaxDbCons               int32  `mapstructure:"MAX_DB_CONNECTIONS" validate:"min=1"`
	MinDbCons               int32  `mapstructure:"MIN_DB_CONNECTIONS" validate:"min=1"`
	RedisAddr               string `mapstructure:"REDIS_ADDR"` // optional; enables cross-replica dedupe
	RedisPassword           string `mapstructure:"REDIS_PASSWORD"`
	RedisDB                 int    `mapstructure:"REDIS_DB" validate:"min=0,max=15"`
	RedisTLS                bool   `mapstructure:"REDIS_TLS"`
	KafkaBrokers            string `mapstructure:"KAFKA_BROKERS" validate:"required"`
	KafkaPartition          uint32 `mapstructure:"KAFKA_PARTITION" validate:"min=1"`
	KafkaLedgerTopic        string `mapstructure:"KAFKA_LEDGER_TOPIC" validate:"required"`
	KafkaAuditConsumerGroup string `mapstructure:"KAFKA_AUDIT_CONSUMER_GROUP" validate:"required"`
	KafkaIntegrityDLQTopic  string `mapstructure:"KAFKA_INTEGRITY_DLQ_TOPIC" validate:"required"`
	MaxConcurrentAudits     int    `mapstructure:"MAX_CONCURRENT_AUDITS" validate:"min=1,max=256"`
}

// Redis is the connection for the audited-digest set.
func (c *Config) Redis() cache.Config {
	return cache.Config{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB, TLS: c.RedisTLS}
}

func Load(logger *zap.Logger) (*Config, error) {
	_ = godotenv.Load() // optional local .env

	viper.SetEnvPrefix("app") // Prefix for env vars
	viper.AutomaticEnv()

	viper.SetDefault("METRICS_ADDR", ":9102")
	viper.SetDefault("MAX_DB_CONNECTIONS", "10")
	viper.SetDefault("REDIS_DB", "1")
	viper.SetDefault("MIN_DB_CONNECTIONS", "2")
	viper.SetDefault("KAFKA_PARTITION", "4")
	viper.SetDefault("KAFKA_LEDGER_TOPIC", "ledger.events")
	viper.SetDefault("KAFKA_AUDIT_CONSUMER_GROUP", "ledger-audit")
	viper.SetDefault("KAFKA_INTEGRITY_DLQ_TOPIC", "ledger.integrity.dlq")
	viper.SetDefault("MAX_CONCURRENT_AUDITS", "16")

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
	viper.AddConfigPath("./services/audit-worker/configs")
	_ = viper.ReadInConfig() // Ignore if no file

	var cfg Config
	if err := utils.ParseStructEnv(&cfg); err != nil {
		return nil, err
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, utils.FormatConfigErrors(logger, err, cfg)
	}
	return &cfg, nil
}
