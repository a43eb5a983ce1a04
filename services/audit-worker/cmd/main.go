package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/cache"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/database"
	kafkautils "github.com/nimeshabuddhika/resilient-ledger/pkg/kafka"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/ledger"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/store/pgstore"
	"github.com/nimeshabuddhika/resilient-ledger/services/audit-worker/configs"
	"github.com/nimeshabuddhika/resilient-ledger/services/audit-worker/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// seenTTL outlives any plausible redelivery window.
const seenTTL = 24 * time.Hour

func main() {
	pkg.InitLogger("audit-worker")
	logger := pkg.Logger
	defer logger.Sync()

	cfg, err := configs.Load(logger)
	if err != nil {
		logger.Fatal("failed_to_load_config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, disconnect, err := database.New(ctx, logger, database.Config{
		PrimaryDSN:  cfg.PrimaryDbAddr,
		ReplicaDSNs: []string{cfg.ReplicaDbAddr},
		MaxConns:    cfg.MaxDbCons,
		MinConns:    cfg.MinDbCons,
	})
	if err != nil {
		logger.Fatal("failed_to_initialize_database", zap.Error(err))
	}
	defer disconnect()

	// Only reads: the worker never opens a write unit.
	core := ledger.New(ledger.Config{Store: pgstore.New(db, logger, 0), Logger: logger})

	var seen cache.SeenSet = cache.NewLocalSeenSet(seenTTL)
	if cfg.RedisAddr != "" {
		redisClient, redisCloser, err := cache.New(ctx, cfg.Redis())
		if err != nil {
			logger.Fatal("failed_to_initialize_redis", zap.Error(err))
		}
		defer redisCloser()
		seen = cache.NewRedisSeenSet(redisClient, "audit:seen", seenTTL)
		logger.Info("redis_seen_set_enabled")
	}

	err = kafkautils.InitKafkaTopics(logger, ctx, kafkautils.KafkaConfig{
		BootstrapServers: cfg.KafkaBrokers,
		Topics:           kafkautils.LedgerTopics(cfg.KafkaLedgerTopic, cfg.KafkaIntegrityDLQTopic, int(cfg.KafkaPartition)),
	})
	if err != nil {
		logger.Fatal("failed_to_initialize_kafka_topics", zap.Error(err))
	}

	handler, err := services.NewKafkaAuditConsumer(services.KafkaAuditConfig{
		Context: ctx,
		Logger:  logger,
		Config:  cfg,
		Auditor: services.NewAuditor(services.AuditorConfig{
			Logger:  logger,
			Records: core.Ledger,
			Retry:   ledger.DefaultRetryPolicy(),
		}),
		Seen: seen,
	})
	if err != nil {
		logger.Fatal("failed_to_create_kafka_consumer", zap.Error(err))
	}
	closeConsumer := handler.Start()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics_server_started", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics_server_error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutting_down", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	cancel()
	closeConsumer()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics_shutdown_error", zap.Error(err))
	}
	logger.Info("audit_worker_stopped")
}
