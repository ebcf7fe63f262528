package consumer

import (
	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
)

// Decision is the outcome of the inbound failure interceptor for one
// delivery attempt.
type Decision int

const (
	// DecisionAck commits the message offset.
	DecisionAck Decision = iota
	// DecisionRedeliver leaves the message uncommitted so the broker's
	// redelivery mechanism re-presents it.
	DecisionRedeliver
	// DecisionDeadLetter publishes the message to the dead-letter topic,
	// then commits the original offset.
	DecisionDeadLetter
)

func (d Decision) String() string {
	switch d {
	case DecisionAck:
		return "ack"
	case DecisionRedeliver:
		return "redeliver"
	case DecisionDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Decide maps a handler outcome to an interceptor decision. Only a
// classified retryable infra error with attempt budget left earns a
// redelivery; domain errors, programmer errors, unclassified failures and
// exhausted budgets all dead-letter.
func Decide(err error, attempt, maxAttempts int) Decision {
	if err == nil {
		return DecisionAck
	}
	if apperror.IsRetryable(err) && attempt < maxAttempts {
		return DecisionRedeliver
	}
	return DecisionDeadLetter
}

// errorSummary is the compact failure description attached to dead-lettered
// messages.
func errorSummary(err error) string {
	if ae, ok := apperror.As(err); ok {
		return ae.Kind.String() + "/" + ae.Code + ": " + ae.Message
	}
	return err.Error()
}
