// Package history persists run records so past executions can be listed and
// inspected after the process exits.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/conveyor/pkg/models"
)

// ErrRunNotFound is returned when a run record does not exist in the store.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one persisted execution of a definition file: every workflow
// that ran, with its job outcomes, plus the aggregated status.
type RunRecord struct {
	ID        string                   `json:"id"`
	Status    models.JobStatus         `json:"status"`
	Workflows []*models.WorkflowResult `json:"workflows"`
	CreatedAt time.Time                `json:"created_at"`
	Duration  time.Duration            `json:"duration"`
}

// Aggregate derives the run status from its workflow results.
func (r *RunRecord) Aggregate() {
	r.Status = models.JobStatusSucceeded

	for _, workflow := range r.Workflows {
		if workflow.Status == models.JobStatusFailed {
			r.Status = models.JobStatusFailed

			return
		}
	}
}

// Store persists and retrieves run records.
type Store interface {
	SaveRun(ctx context.Context, record *RunRecord) error

	// Runs returns all records, newest first.
	Runs(ctx context.Context) ([]*RunRecord, error)

	// RunByID returns the record or ErrRunNotFound.
	RunByID(ctx context.Context, id string) (*RunRecord, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
