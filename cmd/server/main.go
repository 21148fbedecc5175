package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/strayaid/rescue-dispatch/internal/cleanup"
	"github.com/strayaid/rescue-dispatch/internal/config"
	"github.com/strayaid/rescue-dispatch/internal/database"
	"github.com/strayaid/rescue-dispatch/internal/diagnosis"
	"github.com/strayaid/rescue-dispatch/internal/handler"
	"github.com/strayaid/rescue-dispatch/internal/logger"
	"github.com/strayaid/rescue-dispatch/internal/notify"
	"github.com/strayaid/rescue-dispatch/internal/queue"
	"github.com/strayaid/rescue-dispatch/internal/repository"
	"github.com/strayaid/rescue-dispatch/internal/router"
	queue_publisher "github.com/strayaid/rescue-dispatch/internal/service"
	"github.com/strayaid/rescue-dispatch/internal/storage"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment

	cfg := config.Load()

	log, err := logger.New(cfg.Env, os.Getenv("LOG_LEVEL"))
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("database connection failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, rate limiting and feed cache disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Region, cfg.SignedURLTTL)
	if err != nil {
		log.Fatal("object store init failed", zap.Error(err))
	}

	cases := repository.NewCaseRepo(db)
	profiles := repository.NewProfileRepo(db)
	notifications := repository.NewNotificationRepo(db)
	idems := repository.NewIdempotencyRepo(db)

	pusher := notify.NewFCMPusher(cfg.FCMEndpoint, cfg.FCMServerKey)
	fanout := notify.NewFanout(profiles, notifications, pusher, log)
	cleaner := cleanup.NewCleaner(cases, store, cfg.CleanupRetention, cfg.CleanupBatch, log)
	pub := queue_publisher.New(cfg.AMQPURL)
	diag := diagnosis.New(cfg.DiagnosisURL)

	consumer := queue.NewConsumer(cfg.AMQPURL, cases, fanout, cleaner, store, diag, log)
	consumer.Start(ctx)
	go cleaner.Run(ctx, cfg.CleanupInterval)

	e := router.New(router.Deps{
		JWTSecret: cfg.JWTSecret,
		RateLimit: config.LoadRateLimitConfig(),
		FeedCache: config.LoadCacheConfig(),
		Redis:     rdb,

		Health:   handler.NewHealthHandler(db),
		Cases:    handler.NewCaseHandler(cases, profiles, idems, pub, log),
		Media:    handler.NewMediaHandler(cases, idems, store, cfg.SignedURLTTL, log),
		Profiles: handler.NewProfileHandler(profiles, log),

		Idempotency: idems,
	})

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
