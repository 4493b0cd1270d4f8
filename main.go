package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"shopchat/internal/api"
	"shopchat/internal/auth"
	"shopchat/internal/config"
	"shopchat/internal/logging"
	"shopchat/internal/redis"
	"shopchat/internal/service/assistant"
	"shopchat/internal/service/bot"
	"shopchat/internal/service/catalog"
	"shopchat/internal/service/chat"
	"shopchat/internal/storage"
	"shopchat/internal/worker"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("load .env")
	}

	cfg, err := config.Load(os.Getenv("SHOPCHAT_CONFIG"))
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log)

	dbType := os.Getenv("SHOPCHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	logrus.WithField("driver", dbType).Info("opening database")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		logrus.Fatalf("open database: %v", err)
	}
	defer db.Close()

	// Create necessary tables: users, user_tokens, sessions, messages, products
	if err := storage.Migrate(db, dbType); err != nil {
		logrus.Fatalf("migrate database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg.Redis)
		if err != nil {
			logrus.Fatalf("create redis client: %v", err)
		}
		defer rdb.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	catalogService := catalog.NewService(db, rdb, cfg.Bot.ResultLimit)
	if cfg.BasicConfig.SeedProducts {
		if err := storage.SeedProducts(ctx, db, storage.DemoProducts); err != nil {
			logrus.Fatalf("seed products: %v", err)
		}
		catalogService.InvalidateCategories(ctx)
		logrus.WithField("count", len(storage.DemoProducts)).Info("seeded demo products")
	}

	assistantService := assistant.NewService(db, cfg.Bot.Greeting)
	classifier := bot.NewClassifier(catalogService,
		bot.WithPriceBand(cfg.Bot.PriceLow, cfg.Bot.PriceHigh),
		bot.WithResultLimit(cfg.Bot.ResultLimit),
	)
	store := worker.NewCachedStore(assistantService, rdb)
	coordinator, err := chat.NewCoordinator(ctx, store, classifier)
	if err != nil {
		logrus.Fatalf("build chat coordinator: %v", err)
	}
	workerCfg := worker.DispatcherConfig{
		MinWorkers:        cfg.BasicConfig.MinWorkers,
		MaxWorkers:        cfg.BasicConfig.MaxWorkers,
		QueueSize:         cfg.BasicConfig.QueueSize,
		WorkerIdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
	}
	manager := worker.NewManager(coordinator, workerCfg, store)
	defer manager.Close()

	tokenTTL := time.Duration(cfg.BasicConfig.TokenTTLHours) * time.Hour
	authService := auth.NewService(db, rdb, tokenTTL)
	authService.StartTokenCleaner(ctx, auth.DefaultTokenCleanupInterval)

	handlers := api.NewHandler(assistantService, authService, catalogService, manager)

	router := gin.New()
	router.Use(gin.Recovery(), logging.Middleware())
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	logrus.WithField("addr", addr).Info("shopchat listening")
	if err := router.Run(addr); err != nil {
		logrus.Fatalf("server stopped: %v", err)
	}
}
