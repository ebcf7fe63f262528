package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/time/rate"

	"github.com/EnkiSilicium/artisan-hub/internal/config"
	"github.com/EnkiSilicium/artisan-hub/internal/handler"
	loyaltyHandler "github.com/EnkiSilicium/artisan-hub/internal/handler/loyalty"
	orderHandler "github.com/EnkiSilicium/artisan-hub/internal/handler/order"
	"github.com/EnkiSilicium/artisan-hub/internal/repository/postgres"
	"github.com/EnkiSilicium/artisan-hub/internal/router"
	loyaltyService "github.com/EnkiSilicium/artisan-hub/internal/service/loyalty"
	orderService "github.com/EnkiSilicium/artisan-hub/internal/service/order"
	"github.com/EnkiSilicium/artisan-hub/pkg/alarm"
	"github.com/EnkiSilicium/artisan-hub/pkg/jobqueue"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
	redisbroker "github.com/EnkiSilicium/artisan-hub/pkg/messaging/redis"
	"github.com/EnkiSilicium/artisan-hub/pkg/metrics"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Server.Debug,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	redisClient, err := redisbroker.NewClient(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		log.Fatal(err, "failed to connect to redis")
	}
	defer redisClient.Close()

	m := metrics.NewMetrics("artisan_hub_api")

	// The API only schedules publish jobs; the worker binary consumes them.
	queue := jobqueue.New(redisClient, jobqueue.Config{
		Policy: jobqueue.RetryPolicy{
			MaxAttempts:  cfg.Outbox.MaxAttempts,
			InitialDelay: cfg.Outbox.InitialDelay,
			MaxDelay:     cfg.Outbox.MaxDelay,
		},
		HandlerTimeout: cfg.Outbox.HandlerTimeout,
	}, log, m, alarm.NewLogNotifier(log))

	outboxRepo := postgres.NewOutboxRepository(db)
	manager := uow.NewManager(db, outboxRepo, queue, log)

	orderSvc := orderService.NewService(manager, postgres.NewOrderRepository())
	loyaltySvc := loyaltyService.NewService(manager, postgres.NewLoyaltyRepository(), log)

	engine := router.New(router.Config{
		RateLimit: rate.Limit(cfg.Server.RateLimit),
		RateBurst: cfg.Server.RateBurst,
		JWTSecret: cfg.JWT.Secret,
		Debug:     cfg.Server.Debug,
	},
		handler.NewHealthHandler(db),
		orderHandler.NewHandler(orderSvc),
		loyaltyHandler.NewHandler(loyaltySvc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "graceful shutdown failed")
	}
}
