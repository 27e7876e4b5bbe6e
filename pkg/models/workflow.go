// Package models defines the core domain models for CI workflow execution.
package models

// Workflow is the top-level collection of jobs that constitute one CI run.
// A workflow is immutable after parsing; job identifiers are unique within it.
type Workflow struct {
	ID          string `json:"id"          validate:"required"`
	Jobs        []*Job `json:"jobs"        validate:"required,min=1"`
	Concurrency int    `json:"concurrency,omitempty"`
}

// JobByID returns the job with the given identifier, or nil.
func (w *Workflow) JobByID(id string) *Job {
	for _, job := range w.Jobs {
		if job.ID == id {
			return job
		}
	}

	return nil
}

// Job is a named unit of work: an ordered step sequence executed in its own
// environment. Requires lists identifiers of jobs that must complete
// successfully before this job starts.
type Job struct {
	ID             string            `json:"id"          validate:"required"`
	Environment    map[string]string `json:"environment,omitempty"`
	Steps          []*Step           `json:"steps"       validate:"required,min=1,dive,required"`
	Requires       []string          `json:"requires,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" validate:"gte=0"`
}
