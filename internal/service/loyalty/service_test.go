package loyalty

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
	"github.com/EnkiSilicium/artisan-hub/pkg/consumer"
	"github.com/EnkiSilicium/artisan-hub/pkg/logger"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

type nopTx struct{}

func (nopTx) DriverName() string     { return "postgres" }
func (nopTx) Rebind(q string) string { return q }
func (nopTx) BindNamed(q string, arg interface{}) (string, []interface{}, error) {
	return q, nil, nil
}
func (nopTx) QueryContext(ctx context.Context, q string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (nopTx) QueryxContext(ctx context.Context, q string, args ...interface{}) (*sqlx.Rows, error) {
	return nil, nil
}
func (nopTx) QueryRowxContext(ctx context.Context, q string, args ...interface{}) *sqlx.Row {
	return nil
}
func (nopTx) ExecContext(ctx context.Context, q string, args ...interface{}) (sql.Result, error) {
	return nil, nil
}
func (nopTx) GetContext(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}
func (nopTx) SelectContext(ctx context.Context, dest interface{}, q string, args ...interface{}) error {
	return nil
}
func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

type nopBeginner struct{}

func (nopBeginner) BeginTx(ctx context.Context, opts *sql.TxOptions) (uow.Tx, error) {
	return nopTx{}, nil
}

type captureOutbox struct{ staged []*model.OutboxMessage }

func (s *captureOutbox) InsertBatch(ctx context.Context, q uow.Querier, msgs []*model.OutboxMessage) error {
	s.staged = append(s.staged, msgs...)
	return nil
}

type nopScheduler struct{}

func (nopScheduler) SchedulePublish(ctx context.Context, msgs []*model.OutboxMessage) error {
	return nil
}

// fakeLoyaltyRepo holds one account and a set of already-accrued orders.
type fakeLoyaltyRepo struct {
	account  *model.LoyaltyAccount
	accruals map[uuid.UUID]bool
	inserted []*model.LoyaltyAccount
}

func newFakeLoyaltyRepo() *fakeLoyaltyRepo {
	return &fakeLoyaltyRepo{accruals: make(map[uuid.UUID]bool)}
}

func (r *fakeLoyaltyRepo) GetAccount(ctx context.Context, q uow.Querier, customerID uuid.UUID) (*model.LoyaltyAccount, error) {
	if r.account == nil || r.account.CustomerID != customerID {
		return nil, apperror.Domain("LOYALTY_ACCOUNT_NOT_FOUND", "loyalty account not found", http.StatusNotFound)
	}
	copied := *r.account
	return &copied, nil
}

func (r *fakeLoyaltyRepo) InsertAccount(ctx context.Context, q uow.Querier, account *model.LoyaltyAccount) error {
	r.account = account
	r.inserted = append(r.inserted, account)
	return nil
}

func (r *fakeLoyaltyRepo) UpdateBalance(ctx context.Context, q uow.Querier, account *model.LoyaltyAccount, newBalance int64) error {
	account.PointsBalance = newBalance
	account.Version++
	r.account.PointsBalance = newBalance
	r.account.Version++
	return nil
}

func (r *fakeLoyaltyRepo) InsertAccrual(ctx context.Context, q uow.Querier, accrual *model.LoyaltyAccrual) error {
	if r.accruals[accrual.OrderID] {
		return apperror.Domain("DUPLICATE_ACCRUAL", "order already accrued", http.StatusConflict)
	}
	r.accruals[accrual.OrderID] = true
	return nil
}

type fixture struct {
	repo    *fakeLoyaltyRepo
	outbox  *captureOutbox
	service *Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:   newFakeLoyaltyRepo(),
		outbox: &captureOutbox{},
	}
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	manager := uow.NewManagerWith(nopBeginner{}, nil, f.outbox, nopScheduler{}, log)
	f.service = NewService(manager, f.repo, log)
	return f
}

func TestAccrueCreatesAccountOnFirstAccrual(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()

	account, err := f.service.Accrue(context.Background(), customerID, uuid.New(), 10000, uow.Hints{})
	require.NoError(t, err)

	assert.Equal(t, int64(500), account.PointsBalance)
	require.Len(t, f.repo.inserted, 1, "missing account is created on the fly")
	require.Len(t, f.outbox.staged, 1)
	assert.Equal(t, model.EventLoyaltyAccrued, f.outbox.staged[0].EventName)
}

func TestAccrueAddsToExistingBalance(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	f.repo.account = &model.LoyaltyAccount{CustomerID: customerID, PointsBalance: 100}
	f.repo.account.Version = 3

	account, err := f.service.Accrue(context.Background(), customerID, uuid.New(), 2000, uow.Hints{})
	require.NoError(t, err)

	assert.Equal(t, int64(200), account.PointsBalance)
	assert.Empty(t, f.repo.inserted)
}

func TestAccrueDuplicateOrderIsRejected(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	orderID := uuid.New()

	_, err := f.service.Accrue(context.Background(), customerID, orderID, 1000, uow.Hints{})
	require.NoError(t, err)
	balanceAfterFirst := f.repo.account.PointsBalance

	_, err = f.service.Accrue(context.Background(), customerID, orderID, 1000, uow.Hints{})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, "DUPLICATE_ACCRUAL"))
	assert.Equal(t, balanceAfterFirst, f.repo.account.PointsBalance, "duplicate must not change the balance")
	assert.Len(t, f.outbox.staged, 1, "no second event for the duplicate")
}

func TestHandleOrderCompletedAccrues(t *testing.T) {
	f := newFixture()
	ev := model.OrderCompletedEvent{
		ID:         uuid.New(),
		OrderID:    uuid.New(),
		CustomerID: uuid.New(),
		TotalCents: 10000,
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)

	err = f.service.HandleOrderCompleted(context.Background(), consumer.InboundMessage{
		EventName: model.EventOrderCompleted,
		Payload:   payload,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(500), f.repo.account.PointsBalance)
}

func TestHandleOrderCompletedSwallowsDuplicate(t *testing.T) {
	f := newFixture()
	ev := model.OrderCompletedEvent{
		ID:         uuid.New(),
		OrderID:    uuid.New(),
		CustomerID: uuid.New(),
		TotalCents: 4000,
	}
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	msg := consumer.InboundMessage{EventName: model.EventOrderCompleted, Payload: payload}

	require.NoError(t, f.service.HandleOrderCompleted(context.Background(), msg))
	// A redelivery of the same event acks instead of dead-lettering.
	require.NoError(t, f.service.HandleOrderCompleted(context.Background(), msg))
	assert.Equal(t, int64(200), f.repo.account.PointsBalance)
}

func TestHandleOrderCompletedIgnoresOtherEvents(t *testing.T) {
	f := newFixture()

	err := f.service.HandleOrderCompleted(context.Background(), consumer.InboundMessage{
		EventName: model.EventOrderCreated,
		Payload:   []byte(`{"order_id":"not even parsed"}`),
	})
	require.NoError(t, err)
	assert.Nil(t, f.repo.account)
}

func TestHandleOrderCompletedMalformedPayloadIsDomainError(t *testing.T) {
	f := newFixture()

	err := f.service.HandleOrderCompleted(context.Background(), consumer.InboundMessage{
		EventName: model.EventOrderCompleted,
		Payload:   []byte(`{not json`),
	})
	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindDomain, ae.Kind)
	assert.Equal(t, "MALFORMED_EVENT", ae.Code)
	// Domain errors dead-letter instead of burning redelivery attempts.
	assert.Equal(t, consumer.DecisionDeadLetter, consumer.Decide(err, 1, 5))
}
