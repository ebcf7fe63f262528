package worker

import (
	"context"
	"time"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
	"github.com/EnkiSilicium/artisan-hub/pkg/metrics"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

// OutboxLister finds committed outbox rows that outlived the grace period
// without being published and deleted.
type OutboxLister interface {
	ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.OutboxMessage, error)
}

type ReconcilerConfig struct {
	PollInterval time.Duration
	GracePeriod  time.Duration
	BatchSize    int
}

// Reconciler closes the crash window between commit and publish-job
// enqueue: any outbox row older than the grace period gets a fresh publish
// job. Redundant jobs for rows already in flight are harmless because the
// publish path is idempotent under at-least-once delivery.
type Reconciler struct {
	outbox    OutboxLister
	scheduler uow.PublishScheduler
	config    ReconcilerConfig
	log       *logger.Logger
	metrics   *metrics.Metrics
}

func NewReconciler(outbox OutboxLister, scheduler uow.PublishScheduler, config ReconcilerConfig, log *logger.Logger, m *metrics.Metrics) *Reconciler {
	if config.PollInterval <= 0 {
		config.PollInterval = 30 * time.Second
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	return &Reconciler{
		outbox:    outbox,
		scheduler: scheduler,
		config:    config,
		log:       log.WithComponent("reconciler"),
		metrics:   m,
	}
}

// Run sweeps once immediately, then on every tick until ctx is canceled.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info("outbox reconciler started",
		"poll_interval", r.config.PollInterval.String(),
		"grace_period", r.config.GracePeriod.String())

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	if err := r.sweep(ctx); err != nil {
		r.log.Error(err, "outbox reconciliation sweep failed")
	}
	for {
		select {
		case <-ctx.Done():
			r.log.Info("outbox reconciler stopping")
			return
		case <-ticker.C:
			if err := r.sweep(ctx); err != nil {
				r.log.Error(err, "outbox reconciliation sweep failed")
			}
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-r.config.GracePeriod)
	stale, err := r.outbox.ListOlderThan(ctx, cutoff, r.config.BatchSize)
	if err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	r.log.Warn("re-scheduling stale outbox rows", "rows", len(stale))
	if err := r.scheduler.SchedulePublish(ctx, stale); err != nil {
		return err
	}
	r.metrics.OutboxRowsReconciled.Add(float64(len(stale)))
	return nil
}
