package model

import (
	"time"
)

// Versioned contains the optimistic-concurrency fields shared by every
// aggregate persisted through the write guard. Version starts at 1 and is
// only ever advanced by the guard's conditional update.
type Versioned struct {
	Version   int64     `db:"version" json:"version"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EntityVersion returns the version the entity was last read at.
func (v *Versioned) EntityVersion() int64 {
	return v.Version
}

// SetEntityVersion syncs the in-memory copy after a successful guarded
// update. Application code must never call this directly; the guard does.
func (v *Versioned) SetEntityVersion(version int64, at time.Time) {
	v.Version = version
	v.UpdatedAt = at
}

// Pagination represents common pagination parameters
type Pagination struct {
	Page     int `json:"page" form:"page"`
	PageSize int `json:"page_size" form:"page_size"`
}
