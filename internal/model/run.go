package model

import "time"

// RunStatus represents the outcome of a conversion run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run records one read-and-export of a source dataset.
type Run struct {
	ID         string    `json:"id" yaml:"id"`
	Source     string    `json:"source" yaml:"source"`
	Format     string    `json:"format" yaml:"format"`
	CRS        string    `json:"crs" yaml:"crs"`
	Status     RunStatus `json:"status" yaml:"status"`
	Features   int       `json:"features" yaml:"features"`
	Bytes      int64     `json:"bytes" yaml:"bytes"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`
}

// Duration returns the wall time of a finished run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
