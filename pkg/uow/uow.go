package uow

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
)

// Querier is the statement surface shared by the connection pool and an
// open transaction. Read paths may use either; writes must come from
// RequireTx so they always run inside a unit of work.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Tx is a transactional handle: a Querier with a lifecycle.
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Beginner opens transactional handles. *sqlx.DB is adapted to it below;
// tests substitute fakes.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
}

// OutboxStore persists staged outbox messages inside the open transaction.
type OutboxStore interface {
	InsertBatch(ctx context.Context, q Querier, msgs []*model.OutboxMessage) error
}

// PublishScheduler hands a committed batch to the background job queue. It
// must only be called after the owning transaction has durably committed.
type PublishScheduler interface {
	SchedulePublish(ctx context.Context, msgs []*model.OutboxMessage) error
}

type sqlxBeginner struct {
	db *sqlx.DB
}

func (b sqlxBeginner) BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error) {
	return b.db.BeginTxx(ctx, opts)
}

// Manager owns transaction lifecycle, hook ordering, outbox staging and the
// single bounded retry for retryable infra failures.
type Manager struct {
	begin     Beginner
	def       Querier
	outbox    OutboxStore
	scheduler PublishScheduler
	log       *logger.Logger
}

// NewManager builds a Manager on a sqlx connection pool.
func NewManager(db *sqlx.DB, outbox OutboxStore, scheduler PublishScheduler, log *logger.Logger) *Manager {
	return NewManagerWith(sqlxBeginner{db: db}, db, outbox, scheduler, log)
}

// NewManagerWith wires explicit collaborators. Tests use it to substitute
// fakes for the transaction source.
func NewManagerWith(begin Beginner, def Querier, outbox OutboxStore, scheduler PublishScheduler, log *logger.Logger) *Manager {
	return &Manager{
		begin:     begin,
		def:       def,
		outbox:    outbox,
		scheduler: scheduler,
		log:       log.WithComponent("uow"),
	}
}

// Propagation controls how Run composes with an already-active scope.
type Propagation int

const (
	// PropagationReuse joins the ambient transaction when one exists.
	// Hooks and staged outbox messages merge into the parent, so the whole
	// composite commits, publishes and rolls back as one unit.
	PropagationReuse Propagation = iota
	// PropagationRequireNew always opens an independent transaction.
	PropagationRequireNew
)

type runOptions struct {
	propagation Propagation
	isolation   sql.IsolationLevel
}

// Option tunes a single Run call.
type Option func(*runOptions)

// WithPropagation overrides the default reuse propagation.
func WithPropagation(p Propagation) Option {
	return func(o *runOptions) { o.propagation = p }
}

// WithIsolation overrides the default read-committed isolation level.
func WithIsolation(level sql.IsolationLevel) Option {
	return func(o *runOptions) { o.isolation = level }
}

func buildOptions(opts []Option) runOptions {
	o := runOptions{
		propagation: PropagationReuse,
		isolation:   sql.LevelReadCommitted,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Current returns the ambient transactional handle if one is active, else
// the non-transactional pool. Safe for reads only.
func (m *Manager) Current(ctx context.Context) Querier {
	if sc := scopeFrom(ctx); sc != nil {
		return sc.tx
	}
	return m.def
}

// Run executes fn inside a unit of work.
//
// With default propagation, an already-active scope is joined: hints merge
// into it and fn runs directly, with no second transaction and no second
// commit. Otherwise a new transaction opens and, on success, the sequence
// is: before-commit hooks in registration order, staged outbox insert in
// the same transaction, commit, publish scheduling, after-commit hooks in
// registration order. On any failure the transaction rolls back and the
// causing error is returned classified. The handle is released on every
// exit path, including panics.
func (m *Manager) Run(ctx context.Context, hints Hints, fn func(ctx context.Context) error, opts ...Option) error {
	o := buildOptions(opts)

	if sc := scopeFrom(ctx); sc != nil && o.propagation == PropagationReuse {
		sc.merge(hints)
		if err := fn(ctx); err != nil {
			return apperror.Remap(err)
		}
		return nil
	}

	tx, err := m.begin.BeginTx(ctx, &sql.TxOptions{Isolation: o.isolation})
	if err != nil {
		return apperror.Remap(err)
	}

	sc := &txScope{tx: tx}
	sc.merge(hints)
	txCtx := withScope(ctx, sc)

	committed := false
	defer func() {
		if !committed {
			// Rollback also releases the handle when fn panicked.
			_ = tx.Rollback()
		}
	}()

	if err := fn(txCtx); err != nil {
		return apperror.Remap(err)
	}

	for _, h := range sc.beforeCommit {
		if err := h(txCtx); err != nil {
			return apperror.Remap(err)
		}
	}

	if len(sc.outbox) > 0 {
		if err := m.outbox.InsertBatch(txCtx, tx, sc.outbox); err != nil {
			return apperror.Remap(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperror.Remap(err)
	}
	committed = true

	if len(sc.outbox) > 0 {
		// The commit is durable; a failed enqueue is not a failure of the
		// business operation. The outbox reconciler re-schedules rows whose
		// publish job never made it onto the queue.
		if err := m.scheduler.SchedulePublish(ctx, sc.outbox); err != nil {
			m.log.Error(err, "failed to schedule outbox publish; reconciler will pick the rows up",
				"messages", len(sc.outbox), "correlation_id", sc.correlationID)
		}
	}

	for _, h := range sc.afterCommit {
		if err := h(ctx); err != nil {
			// Too late to roll back. Surface the classified error so the
			// caller knows the post-commit side effect failed.
			return apperror.Remap(err)
		}
	}

	return nil
}

// RunWithRetry calls Run once and, if it failed with a retryable infra
// error, exactly once more in a fresh transaction. Any other error, or a
// second failure, propagates unmodified. Callers needing more attempts
// must re-invoke.
//
// When an ambient scope is being joined there is nothing to retry — the
// parent owns the transaction — so the call degenerates to Run.
func (m *Manager) RunWithRetry(ctx context.Context, hints Hints, fn func(ctx context.Context) error, opts ...Option) error {
	o := buildOptions(opts)
	if scopeFrom(ctx) != nil && o.propagation == PropagationReuse {
		return m.Run(ctx, hints, fn, opts...)
	}

	err := m.Run(ctx, hints, fn, opts...)
	if err == nil || !apperror.IsRetryable(err) {
		return err
	}
	m.log.Warn("retrying unit of work after retryable failure",
		"error", err.Error(), "correlation_id", hints.CorrelationID)
	return m.Run(ctx, hints, fn, opts...)
}
