// Package store defines the run-history store: an audit trail of past
// conversion runs and their reports.
package store

import (
	"context"
	"time"
)

// RunRecord is one persisted conversion run.
type RunRecord struct {
	ID               string // report run id (ULID)
	CreatedAt        time.Time
	Input            string
	Output           string
	ReportJSON       []byte
	Unresolved       bool
	AppliedOverrides int
	Conflicts        int
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	ID               string
	CreatedAt        time.Time
	Input            string
	Output           string
	Unresolved       bool
	AppliedOverrides int
	Conflicts        int
}

// Store persists run history.
type Store interface {
	Close() error

	SaveRun(ctx context.Context, rec RunRecord) error
	GetRun(ctx context.Context, id string) (RunRecord, error)
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
}
