package uow_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

type fakeResult struct {
	affected int64
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

// execRecorder captures the generated statement and arguments.
type execRecorder struct {
	affected int64
	execErr  error
	query    string
	args     []interface{}
	calls    int
}

func (q *execRecorder) DriverName() string     { return "postgres" }
func (q *execRecorder) Rebind(s string) string { return s }
func (q *execRecorder) BindNamed(s string, arg interface{}) (string, []interface{}, error) {
	return s, nil, nil
}
func (q *execRecorder) QueryContext(ctx context.Context, s string, args ...interface{}) (*sql.Rows, error) {
	return nil, nil
}
func (q *execRecorder) QueryxContext(ctx context.Context, s string, args ...interface{}) (*sqlx.Rows, error) {
	return nil, nil
}
func (q *execRecorder) QueryRowxContext(ctx context.Context, s string, args ...interface{}) *sqlx.Row {
	return nil
}
func (q *execRecorder) GetContext(ctx context.Context, dest interface{}, s string, args ...interface{}) error {
	return nil
}
func (q *execRecorder) SelectContext(ctx context.Context, dest interface{}, s string, args ...interface{}) error {
	return nil
}
func (q *execRecorder) ExecContext(ctx context.Context, s string, args ...interface{}) (sql.Result, error) {
	q.calls++
	q.query = s
	q.args = args
	if q.execErr != nil {
		return nil, q.execErr
	}
	return fakeResult{affected: q.affected}, nil
}

var ordersSchema = uow.Schema{
	Table:           "orders",
	PK:              []string{"id"},
	VersionColumn:   "version",
	UpdatedAtColumn: "updated_at",
}

func TestOptimisticUpdateSuccess(t *testing.T) {
	q := &execRecorder{affected: 1}
	entity := &model.Versioned{Version: 3}

	newVersion, err := uow.OptimisticUpdate(context.Background(), q, ordersSchema,
		map[string]interface{}{"id": uuid.New()},
		map[string]interface{}{"status": "accepted"},
		3, entity)

	require.NoError(t, err)
	assert.Equal(t, int64(4), newVersion)
	assert.Equal(t, int64(4), entity.Version)
	assert.False(t, entity.UpdatedAt.IsZero())

	assert.Equal(t,
		"UPDATE orders SET status = $1, version = $2, updated_at = $3 WHERE id = $4 AND version = $5",
		q.query)
	assert.Equal(t, "accepted", q.args[0])
	assert.Equal(t, int64(4), q.args[1])
	assert.Equal(t, int64(3), q.args[4])
}

func TestOptimisticUpdateZeroRowsIsRetryableConflict(t *testing.T) {
	q := &execRecorder{affected: 0}

	_, err := uow.OptimisticUpdate(context.Background(), q, ordersSchema,
		map[string]interface{}{"id": uuid.New()},
		map[string]interface{}{"status": "accepted"},
		2, nil)

	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindInfra, ae.Kind)
	assert.Equal(t, apperror.CodeTxConflict, ae.Code)
	assert.True(t, ae.Retryable)
}

func TestOptimisticUpdateRejectsVersionBelowOne(t *testing.T) {
	q := &execRecorder{affected: 1}

	for _, version := range []int64{0, -1} {
		_, err := uow.OptimisticUpdate(context.Background(), q, ordersSchema,
			map[string]interface{}{"id": uuid.New()},
			map[string]interface{}{"status": "accepted"},
			version, nil)

		require.Error(t, err)
		ae, ok := apperror.As(err)
		require.True(t, ok)
		assert.Equal(t, apperror.KindProgrammer, ae.Kind)
		assert.Equal(t, "BAD_VERSION", ae.Code)
	}
	assert.Zero(t, q.calls, "no statement may reach the database")
}

func TestOptimisticUpdateRejectsPrimaryKeyInSet(t *testing.T) {
	q := &execRecorder{affected: 1}

	_, err := uow.OptimisticUpdate(context.Background(), q, ordersSchema,
		map[string]interface{}{"id": uuid.New()},
		map[string]interface{}{"id": uuid.New(), "status": "accepted"},
		1, nil)

	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindProgrammer, ae.Kind)
	assert.Equal(t, "PK_UPDATE", ae.Code)
	assert.Zero(t, q.calls)
}

func TestOptimisticUpdateRejectsIncompletePK(t *testing.T) {
	q := &execRecorder{affected: 1}

	_, err := uow.OptimisticUpdate(context.Background(), q, ordersSchema,
		map[string]interface{}{},
		map[string]interface{}{"status": "accepted"},
		1, nil)

	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, "BAD_PK", ae.Code)
	assert.Zero(t, q.calls)
}

func TestOptimisticUpdateStripsGuardOwnedColumns(t *testing.T) {
	q := &execRecorder{affected: 1}

	_, err := uow.OptimisticUpdate(context.Background(), q, ordersSchema,
		map[string]interface{}{"id": uuid.New()},
		map[string]interface{}{
			"status":     "accepted",
			"version":    int64(99),
			"updated_at": time.Unix(0, 0),
		},
		5, nil)

	require.NoError(t, err)
	// The guard owns version and updated_at; caller values are ignored.
	assert.Equal(t,
		"UPDATE orders SET status = $1, version = $2, updated_at = $3 WHERE id = $4 AND version = $5",
		q.query)
	assert.Equal(t, int64(6), q.args[1])
}

func TestOptimisticUpdateMultipleRowsIsProgrammerError(t *testing.T) {
	q := &execRecorder{affected: 2}

	_, err := uow.OptimisticUpdate(context.Background(), q, ordersSchema,
		map[string]interface{}{"id": uuid.New()},
		map[string]interface{}{"status": "accepted"},
		1, nil)

	require.Error(t, err)
	ae, ok := apperror.As(err)
	require.True(t, ok)
	assert.Equal(t, apperror.KindProgrammer, ae.Kind)
	assert.Equal(t, "PK_NOT_UNIQUE", ae.Code)
}

func TestOptimisticUpdateSortsSetColumnsDeterministically(t *testing.T) {
	q := &execRecorder{affected: 1}

	_, err := uow.OptimisticUpdate(context.Background(), q, ordersSchema,
		map[string]interface{}{"id": uuid.New()},
		map[string]interface{}{"total_cents": int64(100), "currency": "EUR", "status": "accepted"},
		1, nil)

	require.NoError(t, err)
	assert.Equal(t,
		"UPDATE orders SET currency = $1, status = $2, total_cents = $3, version = $4, updated_at = $5 WHERE id = $6 AND version = $7",
		q.query)
}
