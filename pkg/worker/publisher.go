package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/pkg/jobqueue"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
	"github.com/EnkiSilicium/artisan-hub/pkg/metrics"
)

// EventDispatcher sends a committed batch to the broker, batched per topic.
type EventDispatcher interface {
	Dispatch(ctx context.Context, msgs []*model.OutboxMessage) error
}

// OutboxRemover deletes confirmed-published outbox rows.
type OutboxRemover interface {
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// Publisher handles one publish job at a time: dispatch to the broker,
// then delete the outbox rows. Delete-after-dispatch means a failure
// anywhere re-runs the whole job, trading duplicate delivery for zero
// loss; downstream consumers must tolerate duplicates.
type Publisher struct {
	dispatcher EventDispatcher
	outbox     OutboxRemover
	log        *logger.Logger
	metrics    *metrics.Metrics
}

func NewPublisher(dispatcher EventDispatcher, outbox OutboxRemover, log *logger.Logger, m *metrics.Metrics) *Publisher {
	return &Publisher{
		dispatcher: dispatcher,
		outbox:     outbox,
		log:        log.WithComponent("publisher"),
		metrics:    m,
	}
}

// HandleJob implements jobqueue.Handler.
func (p *Publisher) HandleJob(ctx context.Context, job *jobqueue.PublishJob) error {
	if len(job.Events) == 0 {
		return nil
	}

	timer := prometheus.NewTimer(p.metrics.OutboxPublishLatency)
	defer timer.ObserveDuration()

	if err := p.dispatcher.Dispatch(ctx, job.Messages()); err != nil {
		p.metrics.OutboxEventsFailed.Add(float64(len(job.Events)))
		return fmt.Errorf("dispatch failed: %w", err)
	}

	// Deletion must be confirmed before the job completes. If it fails the
	// queue re-runs dispatch+delete, which is safe under at-least-once.
	deleted, err := p.outbox.DeleteByIDs(ctx, job.OutboxIDs)
	if err != nil {
		return fmt.Errorf("failed to delete published outbox rows: %w", err)
	}

	p.metrics.OutboxEventsPublished.Add(float64(len(job.Events)))
	p.log.Debug("publish job completed",
		"events", len(job.Events), "rows_deleted", deleted, "attempt", job.Attempt)
	return nil
}
