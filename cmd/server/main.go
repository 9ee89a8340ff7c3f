package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/suPer8Hu/agent-squad/internal/app"
	"github.com/suPer8Hu/agent-squad/internal/classifier"
	"github.com/suPer8Hu/agent-squad/internal/config"
	"github.com/suPer8Hu/agent-squad/internal/db"
	"github.com/suPer8Hu/agent-squad/internal/httpapi"
	"github.com/suPer8Hu/agent-squad/internal/httpapi/handlers"
	"github.com/suPer8Hu/agent-squad/internal/httpapi/middleware"
	"github.com/suPer8Hu/agent-squad/internal/jobs"
	"github.com/suPer8Hu/agent-squad/internal/store/rabbitmq"
	"github.com/suPer8Hu/agent-squad/internal/store/redisstore"
	"go.uber.org/zap"
)

func main() {
	adminToken := flag.String("admin-token", "", "print a JWT for this subject and exit (ADMIN_SUBJECT for /admin, SERVICE_SUBJECT for the gateway)")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()

	if *adminToken != "" {
		if cfg.JWTSecret == "" {
			log.Fatal("JWT_SECRET is not set")
		}
		tok, err := middleware.SignToken(*adminToken, cfg.JWTSecret, 24*time.Hour)
		if err != nil {
			log.Fatalf("sign token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	logger, err := app.NewLogger(cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		logger.Fatal("open db", zap.Error(err))
	}
	if err := db.Migrate(gdb, app.Models()...); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		shared      classifier.SharedCache
		sharedAdmin handlers.SharedCacheAdmin
	)
	if cfg.RedisEnabled {
		rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rds.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, shared cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = rds.Close()
		} else {
			defer rds.Close()
			shared, sharedAdmin = rds, rds
		}
	}

	pipeline, err := app.New(ctx, cfg, gdb, shared, logger)
	if err != nil {
		logger.Fatal("build pipeline", zap.Error(err))
	}
	pipeline.RunBackground(ctx)

	var jobsSvc *jobs.Service
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Warn("rabbitmq unavailable, async endpoint disabled", zap.Error(err))
	} else {
		defer pub.Close()
		jobsSvc = jobs.NewService(jobs.NewRepo(gdb), pub, nil, nil, logger)
	}

	h := handlers.NewHandler(handlers.Deps{
		Orchestrator:   pipeline.Orchestrator,
		Sessions:       pipeline.Sessions,
		Classifier:     pipeline.Classifier,
		Agents:         pipeline.Agents,
		Jobs:           jobsSvc,
		SharedCache:    sharedAdmin,
		ContextWindow:  cfg.ChatContextWindowSize,
		ServiceSubject: cfg.ServiceSubject,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(cfg, h, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}
