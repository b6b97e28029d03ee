package store

import (
	"context"

	"github.com/sells-group/claims-vision/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Source string          `json:"source,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for assessment runs.
type Store interface {
	CreateRun(ctx context.Context, runID, source string) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	// CompleteRun records the terminal status together with the report
	// (nil on failure) and the error message (empty on success).
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, report *model.Report, errMsg string) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	Migrate(ctx context.Context) error
	Close() error
}
