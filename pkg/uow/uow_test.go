package uow_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

// fakeTx records lifecycle calls into a shared event log.
type fakeTx struct {
	events     *[]string
	commitErr  error
	execErr    error
	committed  bool
	rolledBack bool
}

func (t *fakeTx) DriverName() string        { return "postgres" }
func (t *fakeTx) Rebind(q string) string    { return q }
func (t *fakeTx) BindNamed(q string, arg interface{}) (string, []interface{}, error) {
	return q, nil, nil
}
func (t *fakeTx) QueryContext(ctx context.Context, q string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryxContext(ctx context.Context, q string, args ...interface{}) (*sqlx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) QueryRowxContext(ctx context.Context, q string, args ...interface{}) *sqlx.Row {
	return nil
}
func (t *fakeTx) ExecContext(ctx context.Context, q string, args ...interface{}) (sql.Result, error) {
	return nil, t.execErr
}
func (t *fakeTx) GetContext(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}
func (t *fakeTx) SelectContext(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}

func (t *fakeTx) Commit() error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	*t.events = append(*t.events, "commit")
	return nil
}

func (t *fakeTx) Rollback() error {
	t.rolledBack = true
	*t.events = append(*t.events, "rollback")
	return nil
}

type fakeBeginner struct {
	events   *[]string
	beginErr error
	txs      []*fakeTx
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts *sql.TxOptions) (uow.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	*b.events = append(*b.events, "begin")
	tx := &fakeTx{events: b.events}
	b.txs = append(b.txs, tx)
	return tx, nil
}

type fakeOutboxStore struct {
	events    *[]string
	insertErr error
	inserted  [][]*model.OutboxMessage
}

func (s *fakeOutboxStore) InsertBatch(ctx context.Context, q uow.Querier, msgs []*model.OutboxMessage) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	*s.events = append(*s.events, "outbox_insert")
	s.inserted = append(s.inserted, msgs)
	return nil
}

type fakeScheduler struct {
	events      *[]string
	scheduleErr error
	scheduled   [][]*model.OutboxMessage
}

func (s *fakeScheduler) SchedulePublish(ctx context.Context, msgs []*model.OutboxMessage) error {
	if s.scheduleErr != nil {
		return s.scheduleErr
	}
	*s.events = append(*s.events, "schedule_publish")
	s.scheduled = append(s.scheduled, msgs)
	return nil
}

type harness struct {
	events    []string
	begin     *fakeBeginner
	outbox    *fakeOutboxStore
	scheduler *fakeScheduler
	manager   *uow.Manager
}

func newHarness() *harness {
	h := &harness{}
	h.begin = &fakeBeginner{events: &h.events}
	h.outbox = &fakeOutboxStore{events: &h.events}
	h.scheduler = &fakeScheduler{events: &h.events}
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	h.manager = uow.NewManagerWith(h.begin, nil, h.outbox, h.scheduler, log)
	return h
}

func TestRunCommitSequence(t *testing.T) {
	h := newHarness()

	err := h.manager.Run(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		uow.RegisterBeforeCommit(ctx, func(ctx context.Context) error {
			h.events = append(h.events, "before_1")
			return nil
		})
		uow.RegisterBeforeCommit(ctx, func(ctx context.Context) error {
			h.events = append(h.events, "before_2")
			return nil
		})
		uow.RegisterAfterCommit(ctx, func(ctx context.Context) error {
			h.events = append(h.events, "after_1")
			return nil
		})
		return uow.EnqueueOutbox(ctx, model.OrderCompletedEvent{ID: uuid.New(), OrderID: uuid.New()})
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"begin", "before_1", "before_2", "outbox_insert", "commit", "schedule_publish", "after_1",
	}, h.events)
	require.Len(t, h.outbox.inserted, 1)
	require.Len(t, h.outbox.inserted[0], 1)
	assert.Equal(t, model.EventOrderCompleted, h.outbox.inserted[0][0].EventName)
}

func TestRunErrorRollsBackAndDiscardsStaged(t *testing.T) {
	h := newHarness()
	boom := errors.New("boom")

	err := h.manager.Run(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		if err := uow.EnqueueOutbox(ctx, model.OrderCompletedEvent{ID: uuid.New()}); err != nil {
			return err
		}
		return boom
	})
	require.Error(t, err)

	assert.Equal(t, []string{"begin", "rollback"}, h.events)
	assert.Empty(t, h.outbox.inserted)
	assert.Empty(t, h.scheduler.scheduled)
}

func TestRunSkipsOutboxInsertWhenNothingStaged(t *testing.T) {
	h := newHarness()

	err := h.manager.Run(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"begin", "commit"}, h.events)
}

func TestRunNestedReuseJoinsParent(t *testing.T) {
	h := newHarness()

	err := h.manager.Run(context.Background(), uow.Hints{CorrelationID: "outer"}, func(ctx context.Context) error {
		if err := uow.EnqueueOutbox(ctx, model.OrderCompletedEvent{ID: uuid.New()}); err != nil {
			return err
		}
		return h.manager.Run(ctx, uow.Hints{ActorID: "inner-actor"}, func(ctx context.Context) error {
			assert.Equal(t, "outer", uow.CorrelationID(ctx))
			assert.Equal(t, "inner-actor", uow.ActorID(ctx))
			return uow.EnqueueOutbox(ctx, model.LoyaltyAccruedEvent{ID: uuid.New()})
		})
	})
	require.NoError(t, err)

	// One transaction, one commit, one publish job covering both messages.
	assert.Equal(t, []string{"begin", "outbox_insert", "commit", "schedule_publish"}, h.events)
	require.Len(t, h.scheduler.scheduled, 1)
	assert.Len(t, h.scheduler.scheduled[0], 2)
}

func TestRunNestedErrorFailsWholeUnit(t *testing.T) {
	h := newHarness()
	boom := apperror.Domain("NOPE", "rejected", 422)

	err := h.manager.Run(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		return h.manager.Run(ctx, uow.Hints{}, func(ctx context.Context) error {
			return boom
		})
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, "NOPE"))
	assert.Equal(t, []string{"begin", "rollback"}, h.events)
}

func TestRunRequireNewOpensSecondTransaction(t *testing.T) {
	h := newHarness()

	err := h.manager.Run(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		return h.manager.Run(ctx, uow.Hints{}, func(ctx context.Context) error {
			return uow.EnqueueOutbox(ctx, model.OrderCompletedEvent{ID: uuid.New()})
		}, uow.WithPropagation(uow.PropagationRequireNew))
	})
	require.NoError(t, err)

	// Inner commits and publishes before the outer commit.
	assert.Equal(t, []string{
		"begin", "begin", "outbox_insert", "commit", "schedule_publish", "commit",
	}, h.events)
	assert.Len(t, h.begin.txs, 2)
}

func TestRunBeforeCommitHookFailureRollsBack(t *testing.T) {
	h := newHarness()

	err := h.manager.Run(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		uow.RegisterBeforeCommit(ctx, func(ctx context.Context) error {
			return apperror.Domain("VETO", "hook vetoed", 409)
		})
		return uow.EnqueueOutbox(ctx, model.OrderCompletedEvent{ID: uuid.New()})
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, "VETO"))
	assert.Equal(t, []string{"begin", "rollback"}, h.events)
	assert.Empty(t, h.scheduler.scheduled)
}

func TestRunSchedulerFailureDoesNotFailCommit(t *testing.T) {
	h := newHarness()
	h.scheduler.scheduleErr = errors.New("queue down")

	err := h.manager.Run(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		return uow.EnqueueOutbox(ctx, model.OrderCompletedEvent{ID: uuid.New()})
	})
	require.NoError(t, err)
	assert.Contains(t, h.events, "commit")
}

func TestRunAfterCommitFailureSurfaces(t *testing.T) {
	h := newHarness()
	boom := errors.New("webhook down")

	err := h.manager.Run(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		uow.RegisterAfterCommit(ctx, func(ctx context.Context) error { return boom })
		return nil
	})
	require.Error(t, err)
	// The transaction stays committed even though the hook failed.
	assert.Contains(t, h.events, "commit")
	assert.NotContains(t, h.events, "rollback")
}

func TestRunPanicReleasesHandle(t *testing.T) {
	h := newHarness()

	assert.Panics(t, func() {
		_ = h.manager.Run(context.Background(), uow.Hints{}, func(ctx context.Context) error {
			panic("fn exploded")
		})
	})
	assert.Equal(t, []string{"begin", "rollback"}, h.events)
}

func TestRunWithRetryRetriesExactlyOnce(t *testing.T) {
	h := newHarness()
	calls := 0

	err := h.manager.RunWithRetry(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		calls++
		return apperror.Infra(apperror.CodeTxConflict, "lost the race", true, nil)
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, apperror.IsCode(err, apperror.CodeTxConflict))
}

func TestRunWithRetrySecondAttemptSucceeds(t *testing.T) {
	h := newHarness()
	calls := 0

	err := h.manager.RunWithRetry(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return apperror.Infra(apperror.CodeTxConflict, "lost the race", true, nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunWithRetryDoesNotRetryDomainErrors(t *testing.T) {
	h := newHarness()
	calls := 0

	err := h.manager.RunWithRetry(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		calls++
		return apperror.Domain("INVALID_TRANSITION", "cannot ship a canceled order", 409)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRunWithRetryDoesNotRetryInsideAmbientScope(t *testing.T) {
	h := newHarness()
	calls := 0

	err := h.manager.Run(context.Background(), uow.Hints{}, func(ctx context.Context) error {
		return h.manager.RunWithRetry(ctx, uow.Hints{}, func(ctx context.Context) error {
			calls++
			return apperror.Infra(apperror.CodeTxConflict, "conflict", true, nil)
		})
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestEnqueueOutboxOutsideScopeIsProgrammerError(t *testing.T) {
	err := uow.EnqueueOutbox(context.Background(), model.OrderCompletedEvent{ID: uuid.New()})
	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindProgrammer, ae.Kind)
}

func TestRequireTxOutsideScopeIsProgrammerError(t *testing.T) {
	_, err := uow.RequireTx(context.Background())
	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindProgrammer, ae.Kind)
	assert.Equal(t, "NO_TRANSACTION", ae.Code)
}
