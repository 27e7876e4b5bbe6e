// Package events defines event types for workflow, job and step lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/dukex/conveyor/pkg/models"
)

type EventType string

const Topic = "conveyor.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowStartedEvent  EventType = "workflow.started"
	WorkflowFinishedEvent EventType = "workflow.finished"

	JobStartedEvent  EventType = "job.started"
	JobFinishedEvent EventType = "job.finished"
	JobSkippedEvent  EventType = "job.skipped"

	StepStartedEvent  EventType = "step.started"
	StepFinishedEvent EventType = "step.finished"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         "event-" + uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
	}
}

type WorkflowStarted struct {
	BaseEvent

	Jobs        int `json:"jobs"`
	Concurrency int `json:"concurrency"`
}

func (e WorkflowStarted) GetType() EventType { return WorkflowStartedEvent }

type WorkflowFinished struct {
	BaseEvent

	Status   models.JobStatus `json:"status"`
	Duration time.Duration    `json:"duration"`
}

func (e WorkflowFinished) GetType() EventType { return WorkflowFinishedEvent }

type JobStarted struct {
	BaseEvent

	JobID string `json:"job_id"`
}

func (e JobStarted) GetType() EventType { return JobStartedEvent }

type JobFinished struct {
	BaseEvent

	JobID    string           `json:"job_id"`
	Status   models.JobStatus `json:"status"`
	Duration time.Duration    `json:"duration"`
}

func (e JobFinished) GetType() EventType { return JobFinishedEvent }

// JobSkipped is published when a job never runs because one of its
// dependencies failed or was skipped.
type JobSkipped struct {
	BaseEvent

	JobID     string `json:"job_id"`
	DependsOn string `json:"depends_on"`
}

func (e JobSkipped) GetType() EventType { return JobSkippedEvent }

type StepStarted struct {
	BaseEvent

	JobID    string          `json:"job_id"`
	StepName string          `json:"step_name"`
	StepKind models.StepKind `json:"step_kind"`
}

func (e StepStarted) GetType() EventType { return StepStartedEvent }

type StepFinished struct {
	BaseEvent

	JobID    string            `json:"job_id"`
	StepName string            `json:"step_name"`
	StepKind models.StepKind   `json:"step_kind"`
	Status   models.StepStatus `json:"status"`
	Duration time.Duration     `json:"duration"`
}

func (e StepFinished) GetType() EventType { return StepFinishedEvent }
