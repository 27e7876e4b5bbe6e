// Package artifact provides durable storage of job-produced files, keyed by
// run, job identifier and destination. Records are append-only within a run:
// a destination is never overwritten once stored, while later runs store
// their own records for the same job and destination.
package artifact

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/conveyor/pkg/workspace"
)

// TestResultsDestination is the fixed destination for structured test-result
// files collected by store-test-results steps.
const TestResultsDestination = "test-results"

var (
	// ErrArtifactPathNotFound indicates the source path of a store step does
	// not exist. Reported as a failed step; never cascades to sibling jobs.
	ErrArtifactPathNotFound = errors.New("artifact path not found")

	// ErrDestinationExists indicates a job tried to store a second artifact
	// set under a destination it already used during this run.
	ErrDestinationExists = errors.New("artifact destination already stored")
)

// Record is one stored artifact set.
type Record struct {
	RunID       string            `json:"run_id"`
	JobID       string            `json:"job_id"`
	Destination string            `json:"destination"`
	SourcePath  string            `json:"source_path"`
	Files       []*workspace.File `json:"files"`
	StoredAt    time.Time         `json:"stored_at"`
}

// Store is the injected storage backend for artifact records.
//
// Put fails with ErrDestinationExists when a record for the same
// (run, job, destination) triple is already present.
type Store interface {
	Put(ctx context.Context, record *Record) error
	List(ctx context.Context, runID, jobID string) ([]*Record, error)
	Close(ctx context.Context) error
}
