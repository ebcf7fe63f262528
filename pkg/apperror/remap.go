package apperror

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/lib/pq"
)

// Remap classifies a raw store-driver failure into exactly one infra code
// with a fixed retryable flag. Already-classified errors pass through
// unchanged, so remapping is idempotent and an error is classified at most
// once on its way up.
func Remap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Infra(CodeTimeout, "statement timed out", true, err)
	case errors.Is(err, context.Canceled):
		return Infra(CodeTimeout, "operation canceled", false, err)
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Infra(CodeConnectionLost, "database connection lost", true, err)
	case errors.Is(err, sql.ErrTxDone):
		return Programmer("TX_DONE", "statement issued on a finished transaction")
	case errors.Is(err, sql.ErrConnDone):
		return Infra(CodeConnectionLost, "connection returned to pool", true, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return remapPq(pqErr, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Infra(CodeTimeout, "network timeout", true, err)
		}
		return Infra(CodeConnectionLost, "network failure", true, err)
	}

	return Infra(CodeInternal, "unclassified store failure", false, err)
}

func remapPq(pqErr *pq.Error, cause error) error {
	code := string(pqErr.Code)
	switch code {
	case "40001": // serialization_failure
		return Infra(CodeTxConflict, "serialization conflict", true, cause)
	case "40P01": // deadlock_detected
		return Infra(CodeTxConflict, "deadlock detected", true, cause)
	case "55P03": // lock_not_available
		return Infra(CodeLockTimeout, "lock wait timed out", true, cause)
	case "57014": // query_canceled, raised by statement_timeout
		return Infra(CodeTimeout, "statement timed out", true, cause)
	}

	switch pqErr.Code.Class() {
	case "08": // connection exceptions
		return Infra(CodeConnectionLost, "database connection failure", true, cause)
	case "53": // insufficient resources, incl. too_many_connections
		return Infra(CodeResourceExhausted, "database resources exhausted", false, cause)
	case "23": // integrity constraint violations
		return Infra(CodeConstraint, "constraint violated: "+pqErr.Constraint, false, cause)
	case "XX": // internal_error, data_corrupted
		return Infra(CodeMalformedResponse, "malformed driver response", false, cause)
	}

	return Infra(CodeInternal, "database error: "+pqErr.Message, false, cause)
}

// IsUniqueViolation reports whether err originates from a unique-constraint
// violation. Services use this to turn duplicate idempotency-ledger inserts
// into domain-level duplicates.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
