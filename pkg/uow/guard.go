package uow

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/EnkiSilicium/artisan-hub/pkg/apperror"
)

// Schema is the persistence metadata the guard needs about a versioned
// table: where the row lives, how it is addressed, and which columns the
// guard itself maintains.
type Schema struct {
	Table           string
	PK              []string
	VersionColumn   string
	UpdatedAtColumn string // optional; refreshed on every successful update
}

// versionSetter is satisfied by model.Versioned. When an entity is passed
// to OptimisticUpdate its in-memory version fields are synced on success.
type versionSetter interface {
	SetEntityVersion(version int64, at time.Time)
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// OptimisticUpdate issues one atomic conditional update:
//
//	UPDATE table SET set..., version = current+1 [, updated_at = now()]
//	WHERE pk... AND version = current
//
// Exactly one affected row is success and returns the new version, syncing
// entity if non-nil. Zero affected rows means the row is gone or another
// writer advanced the version first; both are reported as a retryable
// TX_CONFLICT. The guard never retries; that is the caller's job.
//
// This primitive is update-only. currentVersion must be >= 1, pk must
// address the full primary key, and set must not touch primary-key
// columns. Version and updated-at columns in set are stripped: the guard
// owns them.
func OptimisticUpdate(ctx context.Context, q Querier, sch Schema, pk map[string]interface{}, set map[string]interface{}, currentVersion int64, entity versionSetter) (int64, error) {
	if currentVersion < 1 {
		return 0, apperror.Programmer("BAD_VERSION",
			fmt.Sprintf("optimistic update requires version >= 1, got %d; inserts do not go through the guard", currentVersion))
	}
	if err := validateSchema(sch); err != nil {
		return 0, err
	}
	if len(pk) != len(sch.PK) {
		return 0, apperror.Programmer("BAD_PK", "primary-key predicate must cover the full key of "+sch.Table)
	}
	for _, col := range sch.PK {
		if _, ok := pk[col]; !ok {
			return 0, apperror.Programmer("BAD_PK", "missing primary-key column "+col+" in predicate")
		}
	}

	versionCol := sch.VersionColumn
	if versionCol == "" {
		versionCol = "version"
	}

	setCols := make([]string, 0, len(set))
	for col := range set {
		if !identPattern.MatchString(col) {
			return 0, apperror.Programmer("BAD_COLUMN", "invalid column name "+col)
		}
		if contains(sch.PK, col) {
			return 0, apperror.Programmer("PK_UPDATE", "primary-key column "+col+" cannot be updated")
		}
		if col == versionCol || (sch.UpdatedAtColumn != "" && col == sch.UpdatedAtColumn) {
			continue // guard-owned columns
		}
		setCols = append(setCols, col)
	}
	sort.Strings(setCols)

	now := time.Now().UTC()
	newVersion := currentVersion + 1

	var sb strings.Builder
	args := make([]interface{}, 0, len(setCols)+len(sch.PK)+3)
	fmt.Fprintf(&sb, "UPDATE %s SET ", sch.Table)
	for _, col := range setCols {
		args = append(args, set[col])
		fmt.Fprintf(&sb, "%s = $%d, ", col, len(args))
	}
	args = append(args, newVersion)
	fmt.Fprintf(&sb, "%s = $%d", versionCol, len(args))
	if sch.UpdatedAtColumn != "" {
		args = append(args, now)
		fmt.Fprintf(&sb, ", %s = $%d", sch.UpdatedAtColumn, len(args))
	}
	sb.WriteString(" WHERE ")
	pkCols := append([]string(nil), sch.PK...)
	sort.Strings(pkCols)
	for _, col := range pkCols {
		args = append(args, pk[col])
		fmt.Fprintf(&sb, "%s = $%d AND ", col, len(args))
	}
	args = append(args, currentVersion)
	fmt.Fprintf(&sb, "%s = $%d", versionCol, len(args))

	res, err := q.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return 0, apperror.Remap(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, apperror.Remap(err)
	}

	switch {
	case affected == 1:
		if entity != nil {
			entity.SetEntityVersion(newVersion, now)
		}
		return newVersion, nil
	case affected == 0:
		return 0, apperror.Infra(apperror.CodeTxConflict,
			fmt.Sprintf("optimistic update of %s missed: row absent or version advanced past %d", sch.Table, currentVersion),
			true, nil)
	default:
		return 0, apperror.Programmer("PK_NOT_UNIQUE",
			fmt.Sprintf("primary-key predicate on %s matched %d rows", sch.Table, affected))
	}
}

func validateSchema(sch Schema) error {
	if sch.Table == "" || !identPattern.MatchString(sch.Table) {
		return apperror.Programmer("BAD_SCHEMA", "invalid table name "+sch.Table)
	}
	if len(sch.PK) == 0 {
		return apperror.Programmer("BAD_SCHEMA", "schema for "+sch.Table+" declares no primary key")
	}
	for _, col := range sch.PK {
		if !identPattern.MatchString(col) {
			return apperror.Programmer("BAD_SCHEMA", "invalid primary-key column "+col)
		}
	}
	return nil
}

func contains(cols []string, col string) bool {
	for _, c := range cols {
		if c == col {
			return true
		}
	}
	return false
}
