package configs

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoad(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("APP_PRIMARY_DB_ADDR", "ledger:secret@localhost:5432/ledger")
	t.Setenv("APP_KAFKA_BROKERS", "localhost:9092")
	t.Setenv("APP_MAX_CONCURRENT_AUDITS", "8")

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, ":9102", cfg.MetricsAddr)
	assert.Equal(t, "ledger.events", cfg.KafkaLedgerTopic)
	assert.Equal(t, "ledger-audit", cfg.KafkaAuditConsumerGroup)
	assert.Equal(t, "ledger.integrity.dlq", cfg.KafkaIntegrityDLQTopic)
	assert.Equal(t, 8, cfg.MaxConcurrentAudits)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 1, cfg.Redis().DB)
}

func TestLoad_RedisConnection(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("APP_PRIMARY_DB_ADDR", "ledger:secret@localhost:5432/ledger")
	t.Setenv("APP_KAFKA_BROKERS", "localhost:9092")
	t.Setenv("APP_REDIS_ADDR", "redis:6380")
	t.Setenv("APP_REDIS_PASSWORD", "s3cret")
	t.Setenv("APP_REDIS_DB", "4")
	t.Setenv("APP_REDIS_TLS", "true")

	cfg, err := Load(zap.NewNop())
	require.NoError(t, err)
	r := cfg.Redis()
	assert.Equal(t, "redis:6380", r.Addr)
	assert.Equal(t, "s3cret", r.Password)
	assert.Equal(t, 4, r.DB)
	assert.True(t, r.TLS)
}

func TestLoad_RequiresBrokers(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("APP_PRIMARY_DB_ADDR", "ledger:secret@localhost:5432/ledger")
	t.Setenv("APP_KAFKA_BROKERS", "")
	t.Setenv("APP_MAX_CONCURRENT_AUDITS", "1000")

	_, err := Load(zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_KAFKA_BROKERS")
	assert.Contains(t, err.Error(), "APP_MAX_CONCURRENT_AUDITS")
}
