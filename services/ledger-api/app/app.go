package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimeshabuddhika/resilient-ledger/pkg"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/cache"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/database"
	kafkautils "github.com/nimeshabuddhika/resilient-ledger/pkg/kafka"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/ledger"
	middleware "github.com/nimeshabuddhika/resilient-ledger/pkg/middlewares"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/provider"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/store/memstore"
	"github.com/nimeshabuddhika/resilient-ledger/pkg/store/pgstore"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/configs"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/handlers"
	"github.com/nimeshabuddhika/resilient-ledger/services/ledger-api/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies are the collaborators the HTTP layer is built from.
type Dependencies struct {
	Logger    *zap.Logger
	Core      *ledger.Core
	Provider  provider.Provider
	Publisher kafkautils.EventPublisher
	Limiter   *pkg.DistributedLimiter // optional
	DB        handlers.Pinger         // optional, used by /health
}

// NewApp wires dependencies, builds the Gin engine, and returns an *http.Server and a cleanup func.
// It reads configuration from environment variables via configs.Load.
func NewApp(ctx context.Context, logger *zap.Logger) (*http.Server, func(), error) {
	cfg, err := configs.Load(logger)
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := Dependencies{Logger: logger}

	// Ledger storage
	var store ledger.Store
	switch cfg.Store {
	case configs.StoreMemory:
		logger.Warn("ledger_store_in_memory", zap.String("note", "state is lost on restart"))
		store = memstore.New(cfg.LockTimeout)
	default:
		db, disconnect, err := database.New(ctx, logger, database.Config{
			PrimaryDSN:  cfg.PrimaryDbAddr,
			ReplicaDSNs: []string{cfg.ReplicaDbAddr},
			MaxConns:    cfg.MaxDbCons,
			MinConns:    cfg.MinDbCons,
		})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, disconnect)
		if err := database.RunMigrations(logger, cfg.PrimaryDbAddr); err != nil {
			cleanup()
			return nil, nil, err
		}
		store = pgstore.New(db, logger, cfg.LockTimeout)
		deps.DB = db
	}

	// Redis backs the device rate limiter across replicas; without it limits are per process.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		client, closeRedis, err := cache.New(ctx, cfg.Redis())
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, closeRedis)
		redisClient = client
		logger.Info("redis_client_initialized")
	}
	deps.Limiter = pkg.NewDistributedLimiter(redisClient, "ratelimit:device", cfg.DeviceRateLimit, cfg.DeviceRateBurst, time.Minute, logger)

	// Ledger events
	if cfg.KafkaBrokers != "" {
		err := kafkautils.InitKafkaTopics(logger, ctx, kafkautils.KafkaConfig{
			BootstrapServers: cfg.KafkaBrokers,
			Topics:           kafkautils.LedgerTopics(cfg.KafkaLedgerTopic, "", int(cfg.KafkaPartition)),
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		publisher, err := kafkautils.NewKafkaEventPublisher(logger, kafkautils.ProducerConfig{
			Brokers:    cfg.KafkaBrokers,
			Topic:      cfg.KafkaLedgerTopic,
			Partitions: cfg.KafkaPartition,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, publisher.Close)
		deps.Publisher = publisher
	} else {
		logger.Warn("ledger_events_disabled", zap.String("reason", "APP_KAFKA_BROKERS not set"))
		deps.Publisher = kafkautils.NoopPublisher{}
	}

	switch cfg.Provider {
	case configs.ProviderHTTP:
		deps.Provider = provider.NewHTTP(provider.HTTPConfig{BaseURL: cfg.ProviderBaseURL, APIKey: cfg.ProviderAPIKey, Logger: logger})
	default:
		deps.Provider = provider.NewMock()
	}

	retry := ledger.DefaultRetryPolicy()
	retry.MaxRetries = cfg.TransferMaxRetries
	deps.Core = ledger.New(ledger.Config{
		Store:      store,
		Logger:     logger,
		DailyLimit: cfg.DailyLimitAmount(),
		Retry:      retry,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv, cleanup, nil
}

// NewRouter builds the Gin engine over deps.
func NewRouter(deps Dependencies) *gin.Engine {
	logger := deps.Logger
	if deps.Publisher == nil {
		deps.Publisher = kafkautils.NoopPublisher{}
	}

	transferService := services.NewTransferService(services.TransferServiceConfig{
		Logger:    logger,
		Core:      deps.Core,
		Publisher: deps.Publisher,
	})
	accountService := services.NewAccountService(services.AccountServiceConfig{
		Logger:   logger,
		Core:     deps.Core,
		Provider: deps.Provider,
	})
	deviceService := services.NewDeviceService(services.DeviceServiceConfig{
		Logger:    logger,
		Core:      deps.Core,
		Transfers: transferService,
		Limiter:   deps.Limiter,
	})

	baseHandler := handlers.NewBaseHandler(logger, deps.DB)
	accountHandler := handlers.NewAccountHandler(logger, accountService)
	transferHandler := handlers.NewTransferHandler(logger, transferService)
	deviceHandler := handlers.NewDeviceHandler(logger, deviceService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	baseHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	api.Use(middleware.TraceID())
	api.Use(middleware.Metrics())

	deviceHandler.RegisterDeviceRoutes(api)

	owner := api.Group("", middleware.Principal(logger))
	accountHandler.RegisterRoutes(owner)
	transferHandler.RegisterRoutes(owner)
	deviceHandler.RegisterRoutes(owner)
	return r
}
