package uow

import (
	"context"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
)

// Hook is a side effect tied to the transaction lifecycle. Before-commit
// hooks run inside the still-open transaction; after-commit hooks run once
// the commit is durable.
type Hook func(ctx context.Context) error

// Hints carry request-scoped identifiers into the transaction scope. They
// merge into an already-active scope on nested calls.
type Hints struct {
	CorrelationID string
	ActorID       string
}

// txScope is the ambient transaction context for one logical operation. It
// is created by Manager.Run, reachable only through the context, and never
// outlives the Run call that made it.
type txScope struct {
	tx            Tx
	beforeCommit  []Hook
	afterCommit   []Hook
	outbox        []*model.OutboxMessage
	correlationID string
	actorID       string
}

func (s *txScope) merge(h Hints) {
	if h.CorrelationID != "" {
		s.correlationID = h.CorrelationID
	}
	if h.ActorID != "" {
		s.actorID = h.ActorID
	}
}

type scopeKey struct{}

func scopeFrom(ctx context.Context) *txScope {
	sc, _ := ctx.Value(scopeKey{}).(*txScope)
	return sc
}

func withScope(ctx context.Context, sc *txScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, sc)
}

// InTransaction reports whether ctx carries an active transaction scope.
func InTransaction(ctx context.Context) bool {
	return scopeFrom(ctx) != nil
}

// RequireTx returns the ambient transactional handle. All writes must go
// through it; calling it outside Manager.Run is a contract violation.
func RequireTx(ctx context.Context) (Querier, error) {
	sc := scopeFrom(ctx)
	if sc == nil {
		return nil, apperror.Programmer("NO_TRANSACTION", "write attempted outside an active unit of work")
	}
	return sc.tx, nil
}

// EnqueueOutbox stages ev for publication when the surrounding unit of work
// commits. The staged payload is inserted in the same transaction as the
// business write and published asynchronously after commit.
func EnqueueOutbox(ctx context.Context, ev model.Event) error {
	sc := scopeFrom(ctx)
	if sc == nil {
		return apperror.Programmer("NO_TRANSACTION", "outbox message staged outside an active unit of work")
	}
	msg, err := model.NewOutboxMessage(ev)
	if err != nil {
		return apperror.Programmer("UNSERIALIZABLE_EVENT", "event payload cannot be marshaled: "+err.Error())
	}
	sc.outbox = append(sc.outbox, msg)
	return nil
}

// RegisterBeforeCommit appends a hook to run, in registration order, inside
// the transaction just before the staged outbox insert and commit.
func RegisterBeforeCommit(ctx context.Context, h Hook) error {
	sc := scopeFrom(ctx)
	if sc == nil {
		return apperror.Programmer("NO_TRANSACTION", "before-commit hook registered outside an active unit of work")
	}
	sc.beforeCommit = append(sc.beforeCommit, h)
	return nil
}

// RegisterAfterCommit appends a hook to run, in registration order, after
// the commit is durable. A failing after-commit hook cannot roll anything
// back; its error is surfaced to the Run caller as-is.
func RegisterAfterCommit(ctx context.Context, h Hook) error {
	sc := scopeFrom(ctx)
	if sc == nil {
		return apperror.Programmer("NO_TRANSACTION", "after-commit hook registered outside an active unit of work")
	}
	sc.afterCommit = append(sc.afterCommit, h)
	return nil
}

// CorrelationID returns the correlation id of the active scope, if any.
func CorrelationID(ctx context.Context) string {
	if sc := scopeFrom(ctx); sc != nil {
		return sc.correlationID
	}
	return ""
}

// ActorID returns the actor id of the active scope, if any.
func ActorID(ctx context.Context) string {
	if sc := scopeFrom(ctx); sc != nil {
		return sc.actorID
	}
	return ""
}
