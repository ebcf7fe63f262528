package consumer

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
	"github.com/EnkiSilicium/artisan-hub/pkg/metrics"
	redisbroker "github.com/EnkiSilicium/artisan-hub/pkg/messaging/redis"
)

// InboundMessage is one delivery presented to a handler.
type InboundMessage struct {
	ID        string
	Topic     string
	EventName string
	Key       string
	Payload   []byte
	Attempt   int
}

// Handler processes one inbound message. Returned errors are classified by
// the interceptor: retryable infra errors with budget left cause
// redelivery, everything else dead-letters.
type Handler func(ctx context.Context, msg InboundMessage) error

type Config struct {
	Group        string
	ConsumerName string
	MaxAttempts  int
	Block        time.Duration
	BatchSize    int64
	ClaimMinIdle time.Duration
	DedupeTTL    time.Duration
}

// Consumer reads topic streams through a consumer group, applying the
// dead-letter interceptor around per-topic handlers. Unacked messages stay
// pending and are reclaimed after ClaimMinIdle, which is the redelivery
// mechanism the interceptor leans on.
type Consumer struct {
	client   *redis.Client
	config   Config
	handlers map[string]Handler
	topics   []string
	seen     *gocache.Cache
	log      *logger.Logger
	metrics  *metrics.Metrics
}

func New(client *redis.Client, config Config, handlers map[string]Handler, log *logger.Logger, m *metrics.Metrics) *Consumer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.Block <= 0 {
		config.Block = 2 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.ClaimMinIdle <= 0 {
		config.ClaimMinIdle = 30 * time.Second
	}
	if config.DedupeTTL <= 0 {
		config.DedupeTTL = 10 * time.Minute
	}
	topics := make([]string, 0, len(handlers))
	for topic := range handlers {
		topics = append(topics, topic)
	}
	return &Consumer{
		client:   client,
		config:   config,
		handlers: handlers,
		topics:   topics,
		seen:     gocache.New(config.DedupeTTL, config.DedupeTTL),
		log:      log.WithComponent("consumer"),
		metrics:  m,
	}
}

// Run consumes until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) {
	if len(c.topics) == 0 {
		c.log.Warn("consumer started with no topic handlers")
		return
	}
	c.ensureGroups(ctx)
	c.log.Info("consumer started", "group", c.config.Group, "topics", strings.Join(c.topics, ","))

	claimTicker := time.NewTicker(c.config.ClaimMinIdle)
	defer claimTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer stopping")
			return
		case <-claimTicker.C:
			c.claimStale(ctx)
		default:
		}
		c.readNew(ctx)
	}
}

func (c *Consumer) ensureGroups(ctx context.Context) {
	for _, topic := range c.topics {
		err := c.client.XGroupCreateMkStream(ctx, topic, c.config.Group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			c.log.Error(err, "failed to create consumer group", "topic", topic)
		}
	}
}

func (c *Consumer) readNew(ctx context.Context) {
	streams := make([]string, 0, len(c.topics)*2)
	streams = append(streams, c.topics...)
	for range c.topics {
		streams = append(streams, ">")
	}

	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.Group,
		Consumer: c.config.ConsumerName,
		Streams:  streams,
		Count:    c.config.BatchSize,
		Block:    c.config.Block,
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			c.log.Error(err, "failed to read from streams")
			time.Sleep(time.Second)
		}
		return
	}

	for _, stream := range res {
		for _, msg := range stream.Messages {
			c.process(ctx, stream.Stream, msg, 1)
		}
	}
}

// claimStale takes over messages another (or a previous incarnation of
// this) consumer read but never acked, carrying the broker's delivery
// count as the attempt number.
func (c *Consumer) claimStale(ctx context.Context) {
	for _, topic := range c.topics {
		pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: topic,
			Group:  c.config.Group,
			Idle:   c.config.ClaimMinIdle,
			Start:  "-",
			End:    "+",
			Count:  c.config.BatchSize,
		}).Result()
		if err != nil || len(pending) == 0 {
			continue
		}

		attempts := make(map[string]int, len(pending))
		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.ID)
			attempts[p.ID] = int(p.RetryCount)
		}

		claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   topic,
			Group:    c.config.Group,
			Consumer: c.config.ConsumerName,
			MinIdle:  c.config.ClaimMinIdle,
			Messages: ids,
		}).Result()
		if err != nil {
			c.log.Error(err, "failed to claim stale messages", "topic", topic)
			continue
		}
		for _, msg := range claimed {
			attempt := attempts[msg.ID]
			if attempt < 1 {
				attempt = 1
			}
			c.process(ctx, topic, msg, attempt)
		}
	}
}

// process runs the interceptor state machine for one delivery:
// success ⇒ ack; classified retryable failure under budget ⇒ leave
// pending; anything else ⇒ dead-letter then ack. A failed dead-letter
// publish leaves the message pending so the whole decision is retried.
func (c *Consumer) process(ctx context.Context, topic string, msg redis.XMessage, attempt int) {
	dedupeKey := topic + "/" + msg.ID
	if _, dup := c.seen.Get(dedupeKey); dup {
		c.ack(ctx, topic, msg.ID)
		return
	}

	inbound := InboundMessage{
		ID:        msg.ID,
		Topic:     topic,
		EventName: stringField(msg, redisbroker.FieldEvent),
		Key:       stringField(msg, redisbroker.FieldKey),
		Payload:   []byte(stringField(msg, redisbroker.FieldPayload)),
		Attempt:   attempt,
	}

	handler := c.handlers[topic]
	err := handler(ctx, inbound)

	switch Decide(err, attempt, c.config.MaxAttempts) {
	case DecisionAck:
		c.ack(ctx, topic, msg.ID)
		c.seen.SetDefault(dedupeKey, struct{}{})
		c.metrics.InboundProcessed.WithLabelValues(topic).Inc()

	case DecisionRedeliver:
		c.metrics.InboundRedelivered.WithLabelValues(topic).Inc()
		c.log.Warn("leaving message for redelivery",
			"topic", topic, "message_id", msg.ID, "attempt", attempt, "error", err.Error())

	case DecisionDeadLetter:
		if dlqErr := c.deadLetter(ctx, topic, msg, attempt, err); dlqErr != nil {
			// No ack: redelivery retries the whole decision.
			c.log.Error(dlqErr, "dead-letter publish failed, leaving message pending",
				"topic", topic, "message_id", msg.ID)
			return
		}
		c.ack(ctx, topic, msg.ID)
		c.seen.SetDefault(dedupeKey, struct{}{})
		c.metrics.InboundDeadLettered.WithLabelValues(topic).Inc()
		c.log.Error(err, "message dead-lettered",
			"topic", topic, "message_id", msg.ID, "attempt", attempt)
	}
}

func (c *Consumer) ack(ctx context.Context, topic, id string) {
	if err := c.client.XAck(ctx, topic, c.config.Group, id).Err(); err != nil {
		c.log.Error(err, "failed to ack message", "topic", topic, "message_id", id)
	}
}

// deadLetter forwards the original message plus a compact error summary to
// the per-topic dead-letter stream.
func (c *Consumer) deadLetter(ctx context.Context, topic string, msg redis.XMessage, attempt int, cause error) error {
	values := map[string]interface{}{
		redisbroker.FieldEvent:   stringField(msg, redisbroker.FieldEvent),
		redisbroker.FieldKey:     stringField(msg, redisbroker.FieldKey),
		redisbroker.FieldPayload: stringField(msg, redisbroker.FieldPayload),
		"source_topic":           topic,
		"source_id":              msg.ID,
		"attempts":               attempt,
		"error":                  errorSummary(cause),
	}
	return c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterTopic(topic),
		Values: values,
	}).Err()
}

// DeadLetterTopic names the per-topic dead-letter destination.
func DeadLetterTopic(topic string) string {
	return topic + ".dlq"
}

func stringField(msg redis.XMessage, field string) string {
	if v, ok := msg.Values[field].(string); ok {
		return v
	}
	return ""
}
