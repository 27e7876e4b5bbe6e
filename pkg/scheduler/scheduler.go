// Package scheduler dispatches a workflow's jobs for concurrent execution,
// honoring dependency edges and a concurrency limit, and aggregates job
// outcomes into a workflow result.
package scheduler

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/conveyor/pkg/eventbus"
	"github.com/dukex/conveyor/pkg/events"
	"github.com/dukex/conveyor/pkg/models"
	"github.com/dukex/conveyor/pkg/otelhelper"
)

// JobRunner executes a single job to completion. Implementations never
// return errors: all failures are captured in the outcome.
type JobRunner interface {
	Run(ctx context.Context, workflowID string, job *models.Job) *models.JobOutcome
}

type Scheduler struct {
	runner JobRunner
	limit  int
	bus    eventbus.EventBus
	tracer trace.Tracer
	logger *slog.Logger
}

// NewScheduler creates a scheduler. A limit of zero or less means one
// execution slot per available CPU. bus and tracer may be nil.
func NewScheduler(runner JobRunner, limit int, bus eventbus.EventBus, tracer trace.Tracer, logger *slog.Logger) *Scheduler {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	return &Scheduler{
		runner: runner,
		limit:  limit,
		bus:    bus,
		tracer: tracer,
		logger: logger.With("module", "scheduler"),
	}
}

// Run executes every job of the workflow and returns one outcome per
// declared job. Jobs without a dependency relation run concurrently within
// the limit; a job whose dependency failed or was skipped is marked Skipped
// and never started.
func (s *Scheduler) Run(ctx context.Context, workflow *models.Workflow) *models.WorkflowResult {
	logger := s.logger.With("workflow_id", workflow.ID)

	result := &models.WorkflowResult{
		WorkflowID: workflow.ID,
		Jobs:       make(map[string]*models.JobOutcome, len(workflow.Jobs)),
		StartedAt:  time.Now().UTC(),
	}

	if s.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, s.tracer, "workflow.run",
			attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		)
		defer span.End()
	}

	limit := s.limit
	if workflow.Concurrency > 0 {
		limit = workflow.Concurrency
	}

	logger.InfoContext(ctx, "Starting workflow", "jobs", len(workflow.Jobs), "concurrency", limit)
	s.publish(ctx, workflow.ID, events.WorkflowStarted{
		BaseEvent:   events.NewBaseEvent(events.WorkflowStartedEvent, workflow.ID),
		Jobs:        len(workflow.Jobs),
		Concurrency: limit,
	})

	byID := make(map[string]*models.Job, len(workflow.Jobs))
	indegree := make(map[string]int, len(workflow.Jobs))
	dependents := make(map[string][]string, len(workflow.Jobs))

	for _, job := range workflow.Jobs {
		byID[job.ID] = job
		indegree[job.ID] = len(job.Requires)

		for _, required := range job.Requires {
			dependents[required] = append(dependents[required], job.ID)
		}
	}

	sem := make(chan struct{}, limit)
	done := make(chan *models.JobOutcome)

	launch := func(job *models.Job) {
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()

			done <- s.runner.Run(ctx, workflow.ID, job)
		}()
	}

	for _, job := range workflow.Jobs {
		if indegree[job.ID] == 0 {
			launch(job)
		}
	}

	for len(result.Jobs) < len(workflow.Jobs) {
		finished := []*models.JobOutcome{<-done}

		for len(finished) > 0 {
			outcome := finished[0]
			finished = finished[1:]
			result.Jobs[outcome.JobID] = outcome

			for _, dependentID := range dependents[outcome.JobID] {
				indegree[dependentID]--
				if indegree[dependentID] > 0 {
					continue
				}

				if cause := s.blockedBy(result, byID[dependentID]); cause != "" {
					logger.InfoContext(ctx, "Skipping job, dependency did not succeed",
						"job_id", dependentID, "depends_on", cause)
					s.publish(ctx, workflow.ID, events.JobSkipped{
						BaseEvent: events.NewBaseEvent(events.JobSkippedEvent, workflow.ID),
						JobID:     dependentID,
						DependsOn: cause,
					})

					finished = append(finished, &models.JobOutcome{
						JobID:  dependentID,
						Status: models.JobStatusSkipped,
					})

					continue
				}

				launch(byID[dependentID])
			}
		}
	}

	result.Aggregate()
	result.Duration = time.Since(result.StartedAt)

	logger.InfoContext(ctx, "Workflow finished", "status", result.Status, "duration", result.Duration)
	s.publish(ctx, workflow.ID, events.WorkflowFinished{
		BaseEvent: events.NewBaseEvent(events.WorkflowFinishedEvent, workflow.ID),
		Status:    result.Status,
		Duration:  result.Duration,
	})

	return result
}

// blockedBy returns the identifier of a dependency that failed or was
// skipped, or the empty string when every dependency succeeded.
func (s *Scheduler) blockedBy(result *models.WorkflowResult, job *models.Job) string {
	for _, required := range job.Requires {
		outcome, ok := result.Jobs[required]
		if !ok {
			continue
		}

		if outcome.Status != models.JobStatusSucceeded {
			return required
		}
	}

	return ""
}

func (s *Scheduler) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.bus == nil {
		return
	}

	err := s.bus.Publish(ctx, key, event)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}
