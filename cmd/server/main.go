package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/slotswap/slot-swap-api/internal/ai"
	"github.com/slotswap/slot-swap-api/internal/config"
	"github.com/slotswap/slot-swap-api/internal/database"
	"github.com/slotswap/slot-swap-api/internal/handler"
	"github.com/slotswap/slot-swap-api/internal/middleware"
	"github.com/slotswap/slot-swap-api/internal/notify"
	"github.com/slotswap/slot-swap-api/internal/queue"
	"github.com/slotswap/slot-swap-api/internal/repository"
	"github.com/slotswap/slot-swap-api/internal/router"
	"github.com/slotswap/slot-swap-api/internal/service"
)

func newLogger(env string) *zap.Logger {
	var cfg zap.Config
	if env == "prod" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	return logger
}

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win

	cfg := config.Load()
	logger := newLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting and response cache disabled")
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	slots := repository.NewSlotRepo(db)
	requests := repository.NewSwapRequestRepo(db)

	var dispatcher notify.Dispatcher = notify.NewNopDispatcher(logger)
	if cfg.AMQPURL != "" {
		amqpDisp := notify.NewAMQPDispatcher(cfg.AMQPURL, logger)
		defer amqpDisp.Close()
		dispatcher = amqpDisp
		go queue.StartSwapEventConsumer(cfg.AMQPURL, logger)
	} else {
		logger.Warn("AMQP_URL not set, swap events will not be published")
	}

	engine := service.NewSwapEngine(db, slots, requests, users, dispatcher, logger)
	aiClient := ai.NewClient(cfg.GroqAPIKey, cfg.GroqModel, "", logger)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	cacheMW := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterSlots(e, handler.NewSlotHandler(slots), cfg.JWTSecret, cacheMW)
	router.RegisterSwaps(e, handler.NewSwapHandler(engine, requests), cfg.JWTSecret)
	router.RegisterAI(e, handler.NewAIHandler(aiClient, slots), cfg.JWTSecret)

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
