package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/internal/repository"
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
	"github.com/EnkiSilicium/artisan-hub/pkg/uow"
)

// outboxRepository persists staged event rows. InsertBatch runs on the
// unit of work's transaction; the delete and reconciliation paths run on
// the pool because they belong to the asynchronous publish side.
type outboxRepository struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) repository.OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) InsertBatch(ctx context.Context, q uow.Querier, msgs []*model.OutboxMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO outbox_messages (id, event_name, payload, created_at) VALUES ")
	args := make([]interface{}, 0, len(msgs)*4)
	for i, msg := range msgs {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 4
		sb.WriteString("(")
		sb.WriteString(placeholders(base+1, 4))
		sb.WriteString(")")
		args = append(args, msg.ID, msg.EventName, msg.Payload, msg.CreatedAt)
	}

	if _, err := q.ExecContext(ctx, sb.String(), args...); err != nil {
		return apperror.Remap(err)
	}
	return nil
}

func (r *outboxRepository) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox_messages WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, apperror.Remap(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperror.Remap(err)
	}
	return affected, nil
}

func (r *outboxRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.OutboxMessage, error) {
	query := `
		SELECT id, event_name, payload, created_at
		FROM outbox_messages
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	var msgs []*model.OutboxMessage
	if err := r.db.SelectContext(ctx, &msgs, query, cutoff, limit); err != nil {
		return nil, apperror.Remap(err)
	}
	return msgs, nil
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = "$" + strconv.Itoa(start+i)
	}
	return strings.Join(parts, ", ")
}
