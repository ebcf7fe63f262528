package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
	"github.com/EnkiSilicium/artisan-hub/pkg/metrics"
)

// Redis keys. ready is the work list, delayed holds jobs waiting out their
// backoff in a score-ordered set, processing tracks in-flight jobs so a
// crashed worker's work can be recovered, exhausted parks jobs that burned
// their whole attempt budget for operator inspection.
const (
	keyReady      = "publish:ready"
	keyDelayed    = "publish:delayed"
	keyProcessing = "publish:processing"
	keyExhausted  = "publish:exhausted"
)

// Handler processes one publish job. A returned error makes the queue
// redeliver the whole job after backoff.
type Handler func(ctx context.Context, job *PublishJob) error

// Alarm is notified when a job exhausts its attempt budget. Exhaustion is
// an operational alarm condition, never a silent drop.
type Alarm interface {
	PublishExhausted(ctx context.Context, job *PublishJob, cause error)
}

// Queue is a durable background job queue on redis lists. Jobs survive
// process restarts; in-flight jobs of a dead worker are re-queued by the
// orphan sweep.
type Queue struct {
	client         *redis.Client
	policy         RetryPolicy
	handlerTimeout time.Duration
	log            *logger.Logger
	metrics        *metrics.Metrics
	alarm          Alarm
}

type Config struct {
	Policy         RetryPolicy
	HandlerTimeout time.Duration
}

func New(client *redis.Client, cfg Config, log *logger.Logger, m *metrics.Metrics, alarm Alarm) *Queue {
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = DefaultRetryPolicy()
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	return &Queue{
		client:         client,
		policy:         cfg.Policy,
		handlerTimeout: cfg.HandlerTimeout,
		log:            log.WithComponent("jobqueue"),
		metrics:        m,
		alarm:          alarm,
	}
}

// SchedulePublish enqueues a durable publish job for a committed outbox
// batch. Implements uow.PublishScheduler; it must only be reached from the
// post-commit path.
func (q *Queue) SchedulePublish(ctx context.Context, msgs []*model.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	job := NewPublishJob(msgs)
	raw, err := job.marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal publish job: %w", err)
	}
	if err := q.client.LPush(ctx, keyReady, raw).Err(); err != nil {
		return fmt.Errorf("failed to enqueue publish job: %w", err)
	}
	q.metrics.PublishJobsEnqueued.Inc()
	return nil
}

// Run consumes jobs until ctx is canceled. It also promotes delayed jobs
// whose backoff elapsed and recovers orphaned in-flight jobs.
func (q *Queue) Run(ctx context.Context, handler Handler) {
	q.log.Info("job queue consumer started",
		"max_attempts", q.policy.MaxAttempts, "max_delay", q.policy.MaxDelay.String())

	q.requeueOrphans(ctx)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.log.Info("job queue consumer stopping")
			return
		case <-ticker.C:
			q.promoteDelayed(ctx)
		default:
		}

		raw, err := q.client.BLMove(ctx, keyReady, keyProcessing, "RIGHT", "LEFT", time.Second).Result()
		if err != nil {
			if err != redis.Nil && ctx.Err() == nil {
				q.log.Error(err, "failed to dequeue publish job")
				time.Sleep(time.Second)
			}
			continue
		}
		q.handleOne(ctx, handler, raw)
	}
}

func (q *Queue) handleOne(ctx context.Context, handler Handler, raw string) {
	// Whatever happens below, the in-flight copy is dropped at the end:
	// the job is either done, re-queued with backoff, or parked.
	defer q.client.LRem(context.WithoutCancel(ctx), keyProcessing, 1, raw)

	job, err := unmarshalJob([]byte(raw))
	if err != nil {
		q.log.Error(err, "dropping malformed publish job")
		return
	}
	job.Attempt++

	hctx, cancel := context.WithTimeout(ctx, q.handlerTimeout)
	err = handler(hctx, job)
	cancel()

	if err == nil {
		q.metrics.PublishJobsCompleted.Inc()
		return
	}

	q.metrics.PublishJobsFailed.Inc()
	if q.policy.Exhausted(job.Attempt) {
		q.park(ctx, job, err)
		return
	}

	delay := q.policy.Delay(job.Attempt)
	q.log.Warn("publish job failed, scheduling redelivery",
		"attempt", job.Attempt, "delay", delay.String(), "error", err.Error())
	if err := q.pushDelayed(ctx, job, delay); err != nil {
		q.log.Error(err, "failed to schedule redelivery; outbox reconciler will recover the rows")
	}
}

func (q *Queue) pushDelayed(ctx context.Context, job *PublishJob, delay time.Duration) error {
	raw, err := job.marshal()
	if err != nil {
		return err
	}
	score := float64(time.Now().Add(delay).UnixMilli())
	return q.client.ZAdd(ctx, keyDelayed, redis.Z{Score: score, Member: raw}).Err()
}

// promoteDelayed moves due jobs from the delayed set to the ready list.
func (q *Queue) promoteDelayed(ctx context.Context) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	due, err := q.client.ZRangeByScore(ctx, keyDelayed, &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil || len(due) == 0 {
		return
	}
	pipe := q.client.TxPipeline()
	for _, raw := range due {
		pipe.ZRem(ctx, keyDelayed, raw)
		pipe.LPush(ctx, keyReady, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		q.log.Error(err, "failed to promote delayed publish jobs")
	}
}

// requeueOrphans returns jobs a dead worker left in-flight to the ready
// list. Run once at startup; safe because job handling is idempotent.
func (q *Queue) requeueOrphans(ctx context.Context) {
	for {
		raw, err := q.client.RPopLPush(ctx, keyProcessing, keyReady).Result()
		if err != nil {
			if err != redis.Nil {
				q.log.Error(err, "failed to recover in-flight publish jobs")
			}
			return
		}
		q.log.Warn("recovered orphaned publish job", "job", raw)
	}
}

// park moves an exhausted job aside and raises the alarm.
func (q *Queue) park(ctx context.Context, job *PublishJob, cause error) {
	q.metrics.PublishJobsExhausted.Inc()
	q.log.Error(cause, "publish job exhausted its attempt budget",
		"attempts", job.Attempt, "outbox_ids", len(job.OutboxIDs))
	if raw, err := job.marshal(); err == nil {
		if err := q.client.LPush(ctx, keyExhausted, raw).Err(); err != nil {
			q.log.Error(err, "failed to park exhausted publish job")
		}
	}
	if q.alarm != nil {
		q.alarm.PublishExhausted(ctx, job, cause)
	}
}
