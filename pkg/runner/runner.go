// Package runner executes a job's step sequence in an isolated environment
// and aggregates step results into a job outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/conveyor/pkg/eventbus"
	"github.com/dukex/conveyor/pkg/events"
	"github.com/dukex/conveyor/pkg/executor"
	"github.com/dukex/conveyor/pkg/models"
	"github.com/dukex/conveyor/pkg/otelhelper"
)

type Runner struct {
	executor *executor.Executor
	runID    string
	workRoot string
	baseEnv  map[string]string
	bus      eventbus.EventBus
	tracer   trace.Tracer
	logger   *slog.Logger
}

// NewRunner creates a job runner for one run. runID scopes artifact
// destinations so separate runs never collide; workRoot is where per-job
// workspaces are provisioned; baseEnv is the environment every job starts
// from before its own variables are merged in (jobs never inherit the raw
// process environment). bus and tracer may be nil.
func NewRunner(
	stepExecutor *executor.Executor,
	runID string,
	workRoot string,
	baseEnv map[string]string,
	bus eventbus.EventBus,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		executor: stepExecutor,
		runID:    runID,
		workRoot: workRoot,
		baseEnv:  baseEnv,
		bus:      bus,
		tracer:   tracer,
		logger:   logger.With("module", "runner", "run_id", runID),
	}
}

// Run executes the job's steps in declaration order and returns the outcome.
// It never returns an error: every failure is captured in the outcome so the
// scheduler can keep evaluating other jobs.
func (r *Runner) Run(ctx context.Context, workflowID string, job *models.Job) *models.JobOutcome {
	logger := r.logger.With("workflow_id", workflowID, "job_id", job.ID)

	outcome := &models.JobOutcome{
		JobID:     job.ID,
		StartedAt: time.Now().UTC(),
	}

	if r.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, r.tracer, "job.run",
			attribute.String(otelhelper.RunIDKey, r.runID),
			attribute.String(otelhelper.WorkflowIDKey, workflowID),
			attribute.String(otelhelper.JobIDKey, job.ID),
		)
		defer span.End()
	}

	workDir, err := os.MkdirTemp(r.workRoot, job.ID+"-")
	if err != nil {
		outcome.Status = models.JobStatusFailed
		outcome.Error = fmt.Sprintf("failed to provision workspace: %v", err)
		outcome.Duration = time.Since(outcome.StartedAt)

		logger.ErrorContext(ctx, "Failed to provision workspace", "error", err)

		return outcome
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			logger.WarnContext(ctx, "Failed to clean up workspace", "error", removeErr)
		}
	}()

	if job.TimeoutSeconds > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(job.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	env := &executor.Environment{
		RunID:   r.runID,
		JobID:   job.ID,
		WorkDir: workDir,
		Env:     mergeEnvironment(r.baseEnv, job.Environment),
	}

	logger.InfoContext(ctx, "Starting job", "steps", len(job.Steps), "work_dir", workDir)
	r.publish(ctx, workflowID, events.JobStarted{
		BaseEvent: events.NewBaseEvent(events.JobStartedEvent, workflowID),
		JobID:     job.ID,
	})

	failed := false

	for _, step := range job.Steps {
		// A failed step short-circuits the rest of the job; only
		// best-effort steps still execute. Cancellation skips everything,
		// best-effort included.
		if ctx.Err() != nil || (failed && !step.BestEffort) {
			outcome.Steps = append(outcome.Steps, models.StepResult{
				Name:       step.DisplayName(),
				Kind:       step.Kind,
				BestEffort: step.BestEffort,
				Status:     models.StepStatusSkipped,
			})

			continue
		}

		r.publish(ctx, workflowID, events.StepStarted{
			BaseEvent: events.NewBaseEvent(events.StepStartedEvent, workflowID),
			JobID:     job.ID,
			StepName:  step.DisplayName(),
			StepKind:  step.Kind,
		})

		result := r.executeStep(ctx, env, step)
		outcome.Steps = append(outcome.Steps, result)

		r.publish(ctx, workflowID, events.StepFinished{
			BaseEvent: events.NewBaseEvent(events.StepFinishedEvent, workflowID),
			JobID:     job.ID,
			StepName:  result.Name,
			StepKind:  result.Kind,
			Status:    result.Status,
			Duration:  result.Duration,
		})

		if result.Status == models.StepStatusFailed && !step.BestEffort {
			failed = true
		}
	}

	outcome.Aggregate()
	outcome.Duration = time.Since(outcome.StartedAt)

	logger.InfoContext(ctx, "Job finished", "status", outcome.Status, "duration", outcome.Duration)
	r.publish(ctx, workflowID, events.JobFinished{
		BaseEvent: events.NewBaseEvent(events.JobFinishedEvent, workflowID),
		JobID:     job.ID,
		Status:    outcome.Status,
		Duration:  outcome.Duration,
	})

	return outcome
}

func (r *Runner) executeStep(ctx context.Context, env *executor.Environment, step *models.Step) models.StepResult {
	if r.tracer == nil {
		return r.executor.Execute(ctx, env, step)
	}

	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "step.execute",
		attribute.String(otelhelper.StepNameKey, step.DisplayName()),
		attribute.String(otelhelper.StepKindKey, string(step.Kind)),
	)
	defer span.End()

	result := r.executor.Execute(ctx, env, step)
	if result.Status == models.StepStatusFailed {
		otelhelper.RecordError(span, errors.New(result.Reason))
	}

	return result
}

func (r *Runner) publish(ctx context.Context, key string, event eventbus.Event) {
	if r.bus == nil {
		return
	}

	err := r.bus.Publish(ctx, key, event)
	if err != nil {
		r.logger.WarnContext(ctx, "Failed to publish event", "event_type", event.GetType(), "error", err)
	}
}

// mergeEnvironment flattens the base and job environments into k=v form. Job
// variables win over base variables of the same name.
func mergeEnvironment(base, job map[string]string) []string {
	merged := make(map[string]string, len(base)+len(job))

	for k, v := range base {
		merged[k] = v
	}

	for k, v := range job {
		merged[k] = v
	}

	env := make([]string, 0, len(merged))
	for k, v := range merged {
		env = append(env, k+"="+v)
	}

	sort.Strings(env)

	return env
}
