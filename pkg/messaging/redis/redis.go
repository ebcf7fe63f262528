package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/EnkiSilicium/artisan-hub/pkg/circuitbreaker"
	"github.com/EnkiSilicium/artisan-hub/pkg/messaging"
)

// Stream entry field names shared with the consumer side.
const (
	FieldEvent   = "event"
	FieldKey     = "key"
	FieldPayload = "payload"
)

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
	StreamMaxLen int64
}

// StreamBroker publishes event batches onto redis streams, one stream per
// topic. Streams give the consumer side acknowledged, redeliverable
// consumption, which the DLQ interceptor depends on.
type StreamBroker struct {
	client       *redis.Client
	cb           *circuitbreaker.CircuitBreaker
	streamMaxLen int64
	logger       *zerolog.Logger
}

// NewClient connects a go-redis client, retrying the initial ping with
// exponential backoff so the worker survives a broker that is still
// starting up.
func NewClient(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.RetryBackoff
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	}
	if err := backoff.Retry(ping, bo); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func NewStreamBroker(cfg Config, logger *zerolog.Logger) (*StreamBroker, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "redis-broker",
		MaxRequests: 100,
		Interval:    10 * time.Second,
		Timeout:     5 * time.Second,
	})

	maxLen := cfg.StreamMaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}

	return &StreamBroker{
		client:       client,
		cb:           cb,
		streamMaxLen: maxLen,
		logger:       logger,
	}, nil
}

// PublishBatch appends the batch to the topic's stream in one pipeline.
// The event name and affinity key travel as entry fields.
func (b *StreamBroker) PublishBatch(ctx context.Context, topic string, msgs []messaging.BrokerMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	return b.cb.Execute(func() error {
		pipe := b.client.Pipeline()
		for _, msg := range msgs {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: topic,
				MaxLen: b.streamMaxLen,
				Approx: true,
				Values: map[string]interface{}{
					FieldEvent:   msg.EventName,
					FieldKey:     msg.Key,
					FieldPayload: string(msg.Payload),
				},
			})
		}
		_, err := pipe.Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to append batch to stream %s: %w", topic, err)
		}
		return nil
	})
}

func (b *StreamBroker) Close() error {
	return b.client.Close()
}

// Client exposes the underlying connection for components sharing it.
func (b *StreamBroker) Client() *redis.Client {
	return b.client
}
