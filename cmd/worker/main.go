package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EnkiSilicium/artisan-hub/internal/config"
	"github.com/EnkiSilicium/artisan-hub/internal/repository/postgres"
	loyaltyService "github.com/EnkiSilicium/artisan-hub/internal/service/loyalty"
	"github.com/EnkiSilicium/artisan-hub/pkg/alarm"
	"github.com/EnkiSilicium/artisan-hub/pkg/consumer"
	"github.com/EnkiSilicium/artisan-hub/pkg/jobqueue"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
	"github.com/EnkiSilicium/artisan-hub/pkg/messaging"
	redisbroker "github.com/EnkiSilicium/artisan-hub/pkg/messaging/redis"
	"github.com/EnkiSilicium/artisan-hub/pkg/metrics"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
	"github.com/EnkiSilicium/artisan-hub/pkg/worker"
)

// workerEnv holds the knobs that vary per worker replica; everything else
// comes from the shared config file.
type workerEnv struct {
	ConsumerName string `envconfig:"WORKER_CONSUMER_NAME"`
	HealthPort   int    `envconfig:"WORKER_HEALTH_PORT" default:"8081"`
	Debug        bool   `envconfig:"WORKER_DEBUG"`
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	var env workerEnv
	if err := envconfig.Process("", &env); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read worker environment: %v\n", err)
		os.Exit(1)
	}
	if env.ConsumerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "worker"
		}
		env.ConsumerName = fmt.Sprintf("%s-%d", hostname, os.Getpid())
	}

	log := logger.NewLogger(&logger.Config{
		Level:      logger.InfoLevel,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     env.Debug,
	}).WithFields(map[string]interface{}{"consumer": env.ConsumerName})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal(err, "failed to connect to database")
	}
	defer db.Close()

	broker, err := redisbroker.NewStreamBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.ZL)
	if err != nil {
		log.Fatal(err, "failed to connect to redis")
	}
	defer broker.Close()

	m := metrics.NewMetrics("artisan_hub_worker")

	var exhaustedAlarm jobqueue.Alarm
	if cfg.Alarm.SMTPHost != "" {
		exhaustedAlarm = alarm.NewEmailNotifier(alarm.Config{
			SMTPHost: cfg.Alarm.SMTPHost,
			SMTPPort: cfg.Alarm.SMTPPort,
			SMTPUser: cfg.Alarm.SMTPUser,
			SMTPPass: cfg.Alarm.SMTPPass,
			From:     cfg.Alarm.From,
			To:       cfg.Alarm.To,
		}, log)
	} else {
		exhaustedAlarm = alarm.NewLogNotifier(log)
	}

	queue := jobqueue.New(broker.Client(), jobqueue.Config{
		Policy: jobqueue.RetryPolicy{
			MaxAttempts:  cfg.Outbox.MaxAttempts,
			InitialDelay: cfg.Outbox.InitialDelay,
			MaxDelay:     cfg.Outbox.MaxDelay,
		},
		HandlerTimeout: cfg.Outbox.HandlerTimeout,
	}, log, m, exhaustedAlarm)

	outboxRepo := postgres.NewOutboxRepository(db)
	dispatcher := messaging.NewDispatcher(broker, messaging.DefaultRoutingTable(), log)
	publisher := worker.NewPublisher(dispatcher, outboxRepo, log, m)

	reconciler := worker.NewReconciler(outboxRepo, queue, worker.ReconcilerConfig{
		PollInterval: cfg.Outbox.ReconcilePollEvery,
		GracePeriod:  cfg.Outbox.ReconcileGracePeriod,
		BatchSize:    cfg.Outbox.ReconcileBatchSize,
	}, log, m)

	manager := uow.NewManager(db, outboxRepo, queue, log)
	loyaltySvc := loyaltyService.NewService(manager, postgres.NewLoyaltyRepository(), log)

	inbound := consumer.New(broker.Client(), consumer.Config{
		Group:        cfg.Consumer.Group,
		ConsumerName: env.ConsumerName,
		MaxAttempts:  cfg.Consumer.MaxAttempts,
		ClaimMinIdle: cfg.Consumer.ClaimMinIdle,
	}, map[string]consumer.Handler{
		messaging.TopicOrderEvents: loyaltySvc.HandleOrderCompleted,
	}, log, m)

	startHealthServer(log, env.HealthPort, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		cancel()
	}()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		queue.Run(ctx, publisher.HandleJob)
	}()
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		inbound.Run(ctx)
	}()
	wg.Wait()
}

func startHealthServer(log *logger.Logger, port int, pinger interface {
	PingContext(ctx context.Context) error
}) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pinger.PingContext(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.Error(err, "health server failed")
			os.Exit(1)
		}
	}()
}
