package app

import (
	"context"
	"log/slog"
	nethttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aq2208/orders-service/configs"
	"github.com/aq2208/orders-service/internal/adapter/cache"
	"github.com/aq2208/orders-service/internal/adapter/http"
	"github.com/aq2208/orders-service/internal/adapter/httpclient"
	"github.com/aq2208/orders-service/internal/adapter/queue"
	"github.com/aq2208/orders-service/internal/adapter/repo"
	"github.com/aq2208/orders-service/internal/logging"
	"github.com/aq2208/orders-service/internal/resilience"
	"github.com/aq2208/orders-service/internal/usecase"
)

type App struct {
	Router *gin.Engine
}

func InitWithConfig(cfg configs.Config) (*App, func(), error) {
	logger := logging.Init(cfg.App.Name, cfg.App.LogFile, cfg.App.LogLevel)
	logger.Info("orders-service: starting up")

	// init mongo
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mc, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, nil, err
	}
	if err := mc.Ping(ctx, nil); err != nil {
		return nil, nil, err
	}
	db := mc.Database(cfg.Mongo.Database)

	// init redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, nil, err
	}
	store := cache.NewRedisStore(rdb)

	// init rabbitmq: one channel per concern
	conn, err := amqp.Dial(cfg.Rabbit.URL)
	if err != nil {
		return nil, nil, err
	}
	pubCh, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	subCh, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}

	producer, err := queue.NewRabbitProducer(pubCh)
	if err != nil {
		return nil, nil, err
	}

	// remote service clients, each behind its own pipeline so a sick
	// products service cannot trip the users breaker
	rcfg := resilience.Config{
		MaxParallel:      cfg.Resilience.MaxParallel,
		MaxQueued:        cfg.Resilience.MaxQueued,
		MaxRetries:       uint64(cfg.Resilience.MaxRetries),
		RetryBaseDelay:   cfg.Resilience.RetryBaseDelay,
		BreakerThreshold: uint32(cfg.Resilience.BreakerThreshold),
		BreakerCooldown:  cfg.Resilience.BreakerCooldown,
		CallTimeout:      cfg.Resilience.CallTimeout,
	}
	hc := &nethttp.Client{Timeout: cfg.Resilience.CallTimeout + 5*time.Second}
	users := httpclient.NewUsersClient(hc, cfg.Services.UsersBaseURL,
		resilience.NewPipeline("users", rcfg, logger), store, cfg.Cache.UserTTL, logger)
	products := httpclient.NewProductsClient(hc, cfg.Services.ProductsBaseURL,
		resilience.NewPipeline("products", rcfg, logger), store, cfg.Cache.ProductTTL, logger)

	// repos
	orderRepo := repo.NewMongoOrderRepo(db)
	projectionRepo := repo.NewMongoProjectionRepo(db)
	intentRepo := repo.NewMongoIntentRepo(db)

	orders := usecase.NewOrders(orderRepo, users, products, intentRepo, producer, logger)

	// sweep stock reservations a crashed process left behind
	if err := orders.Reconcile(ctx, cfg.Saga.ReconcileAfter); err != nil {
		logger.Warn("startup reconcile failed", "error", err)
	}

	// catalog event consumer
	if err := setupCatalogConsumer(subCh, projectionRepo, store, logger); err != nil {
		return nil, nil, err
	}

	h := http.NewOrderHandler(orders)
	router := http.NewRouter(h, logging.New("http"))

	cleanup := func() {
		_ = pubCh.Close()
		_ = subCh.Close()
		_ = conn.Close()
		_ = rdb.Close()
		_ = mc.Disconnect(context.Background())
	}

	return &App{Router: router}, cleanup, nil
}

func setupCatalogConsumer(ch *amqp.Channel, projections *repo.MongoProjectionRepo, store cache.Store, logger *slog.Logger) error {
	consumer, err := queue.NewCatalogConsumer(ch, logger)
	if err != nil {
		return err
	}

	handlers := queue.NewCatalogEventHandlers(projections, store, logger)
	handlers.RegisterAll(consumer)

	return consumer.Start()
}
