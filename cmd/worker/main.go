package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/suPer8Hu/agent-squad/internal/app"
	"github.com/suPer8Hu/agent-squad/internal/classifier"
	"github.com/suPer8Hu/agent-squad/internal/config"
	"github.com/suPer8Hu/agent-squad/internal/db"
	"github.com/suPer8Hu/agent-squad/internal/jobs"
	"github.com/suPer8Hu/agent-squad/internal/store/rabbitmq"
	"github.com/suPer8Hu/agent-squad/internal/store/redisstore"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	logger, err := app.NewLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	if err := db.Migrate(gdb, app.Models()...); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var shared classifier.SharedCache
	if cfg.RedisEnabled {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rds.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, shared cache disabled", zap.Error(err))
			_ = rds.Close()
		} else {
			defer rds.Close()
			shared = rds
		}
	}

	pipeline, err := app.New(ctx, cfg, gdb, shared, logger)
	if err != nil {
		logger.Fatal("build pipeline", zap.Error(err))
	}
	pipeline.RunBackground(ctx)

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("rabbitmq", zap.Error(err))
	}
	defer consumer.Close()

	pub := consumer.Publisher()
	svc := jobs.NewService(jobs.NewRepo(gdb), pub, pipeline.Orchestrator, pub, logger)

	if err := consumer.Run(ctx, svc.Process); err != nil {
		logger.Error("worker stopped", zap.Error(err))
	}
}
