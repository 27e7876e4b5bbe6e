package models

import "time"

// StepStatus is the state of a single step. Steps move
// Pending -> Running -> {Succeeded, Failed, Skipped}.
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusSucceeded StepStatus = "succeeded"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Failure reasons recorded on failed step results.
const (
	ReasonCommandFailed    = "command-failed"
	ReasonCancelled        = "cancelled"
	ReasonCacheWrite       = "cache-write"
	ReasonArtifactNotFound = "artifact-path-not-found"
)

// JobStatus is the aggregated outcome of a job.
type JobStatus string

const (
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusSkipped   JobStatus = "skipped"
)

// StepResult captures the outcome of one executed (or skipped) step.
type StepResult struct {
	Name       string        `json:"name"`
	Kind       StepKind      `json:"kind"`
	Status     StepStatus    `json:"status"`
	BestEffort bool          `json:"best_effort,omitempty"`
	Output     string        `json:"output,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	StartedAt  time.Time     `json:"started_at,omitzero"`
	Duration   time.Duration `json:"duration"`
}

// JobOutcome aggregates the step results of a job. Error carries failures
// that prevented the job from executing at all (workspace provisioning).
type JobOutcome struct {
	JobID     string        `json:"job_id"`
	Status    JobStatus     `json:"status"`
	Steps     []StepResult  `json:"steps,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Duration  time.Duration `json:"duration"`
}

// Aggregate derives the job status from its step results: failed iff any
// non-best-effort step failed.
func (o *JobOutcome) Aggregate() {
	o.Status = JobStatusSucceeded

	for _, step := range o.Steps {
		if step.Status == StepStatusFailed && !step.BestEffort {
			o.Status = JobStatusFailed

			return
		}
	}
}

// WorkflowResult maps job identifiers to their outcomes.
type WorkflowResult struct {
	WorkflowID string                 `json:"workflow_id"`
	Jobs       map[string]*JobOutcome `json:"jobs"`
	Status     JobStatus              `json:"status"`
	StartedAt  time.Time              `json:"started_at,omitzero"`
	Duration   time.Duration          `json:"duration"`
}

// Aggregate derives the workflow status: failure iff any job outcome failed.
func (r *WorkflowResult) Aggregate() {
	r.Status = JobStatusSucceeded

	for _, outcome := range r.Jobs {
		if outcome.Status == JobStatusFailed {
			r.Status = JobStatusFailed

			return
		}
	}
}

// Success reports whether every job in the workflow succeeded or was skipped.
func (r *WorkflowResult) Success() bool {
	return r.Status == JobStatusSucceeded
}
