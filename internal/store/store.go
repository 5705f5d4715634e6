// Package store persists datasets and conversion runs: a PostGIS table
// loader over pgx and a SQLite run journal.
package store

import (
	"context"

	"github.com/sells-group/geodata/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Source string          `json:"source,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// RunResult is the outcome recorded when a run finishes. A non-nil Err marks
// the run failed.
type RunResult struct {
	Features int
	Bytes    int64
	CRS      string
	Err      error
}

// Journal records conversion runs.
type Journal interface {
	CreateRun(ctx context.Context, source, format string) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, result RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}
