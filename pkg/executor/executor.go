// Package executor runs single steps with timeout and cancellation, capturing
// their output into step results. Failures are always captured, never
// propagated as errors: the job runner decides what a failure means for the
// rest of the job.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/conveyor/pkg/artifact"
	"github.com/dukex/conveyor/pkg/cache"
	"github.com/dukex/conveyor/pkg/models"
	"github.com/dukex/conveyor/pkg/workspace"
)

// Environment is the per-job execution context a step runs in.
type Environment struct {
	RunID   string
	JobID   string
	WorkDir string
	Env     []string // fully merged, k=v form
}

type Executor struct {
	cache     *cache.Manager
	artifacts *artifact.Manager
	source    string // tree copied into the workspace by checkout steps
	logger    *slog.Logger
}

func NewExecutor(cacheManager *cache.Manager, artifactManager *artifact.Manager, source string, logger *slog.Logger) *Executor {
	return &Executor{
		cache:     cacheManager,
		artifacts: artifactManager,
		source:    source,
		logger:    logger.With("module", "executor"),
	}
}

// Execute runs one step to completion and returns its result. The returned
// status is Succeeded or Failed; Skipped is decided by the job runner, which
// never calls Execute for skipped steps.
func (e *Executor) Execute(ctx context.Context, env *Environment, step *models.Step) models.StepResult {
	result := models.StepResult{
		Name:       step.DisplayName(),
		Kind:       step.Kind,
		BestEffort: step.BestEffort,
		Status:     models.StepStatusRunning,
		StartedAt:  time.Now().UTC(),
	}

	logger := e.logger.With("job_id", env.JobID, "step", result.Name, "kind", step.Kind)
	logger.InfoContext(ctx, "Executing step")

	var output string

	var err error

	switch step.Kind {
	case models.StepKindCheckout:
		output, err = e.checkout(env)
	case models.StepKindRestoreCache:
		output, err = e.restoreCache(ctx, env, step)
	case models.StepKindRunCommand:
		output, err = e.runCommand(ctx, env, step)
	case models.StepKindSaveCache:
		output, err = e.saveCache(ctx, env, step)
	case models.StepKindStoreTestResults:
		err = e.artifacts.StoreTestResults(ctx, env.RunID, env.JobID, env.WorkDir, step.Path)
	case models.StepKindStoreArtifacts:
		err = e.artifacts.StoreArtifacts(ctx, env.RunID, env.JobID, env.WorkDir, step.Path, step.Destination)
	default:
		err = fmt.Errorf("unknown step kind %q", step.Kind)
	}

	result.Output = output
	result.Duration = time.Since(result.StartedAt)

	if err != nil {
		result.Status = models.StepStatusFailed
		result.Reason = failureReason(err)

		if result.Output == "" {
			result.Output = err.Error()
		}

		logger.WarnContext(ctx, "Step failed", "reason", result.Reason, "error", err)

		return result
	}

	result.Status = models.StepStatusSucceeded
	logger.InfoContext(ctx, "Step succeeded", "duration", result.Duration)

	return result
}

func (e *Executor) checkout(env *Environment) (string, error) {
	if e.source == "" {
		return "no source configured, nothing to check out", nil
	}

	err := workspace.CopyTree(e.source, env.WorkDir)
	if err != nil {
		return "", fmt.Errorf("checkout failed: %w", err)
	}

	return fmt.Sprintf("checked out %s", e.source), nil
}

func (e *Executor) restoreCache(ctx context.Context, env *Environment, step *models.Step) (string, error) {
	key, err := e.cache.ComputeKey(step.Key, env.WorkDir)
	if err != nil {
		return "", fmt.Errorf("failed to compute cache key: %w", err)
	}

	payload, err := e.cache.Restore(ctx, key)
	if err != nil {
		return "", err
	}

	if payload == nil {
		return fmt.Sprintf("cache miss for key %s", key), nil
	}

	err = e.cache.Materialize(payload, env.WorkDir)
	if err != nil {
		return "", fmt.Errorf("failed to materialize cache %s: %w", key, err)
	}

	return fmt.Sprintf("restored cache %s (%d files)", key, len(payload.Files)), nil
}

func (e *Executor) saveCache(ctx context.Context, env *Environment, step *models.Step) (string, error) {
	key, err := e.cache.ComputeKey(step.Key, env.WorkDir)
	if err != nil {
		return "", fmt.Errorf("%w: failed to compute cache key: %s", cache.ErrCacheWrite, err)
	}

	err = e.cache.Save(ctx, key, env.WorkDir, step.Paths)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("saved cache %s", key), nil
}

// failureReason maps an execution error onto the failure taxonomy recorded in
// step results.
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return models.ReasonCancelled
	case errors.Is(err, cache.ErrCacheWrite):
		return models.ReasonCacheWrite
	case errors.Is(err, artifact.ErrArtifactPathNotFound):
		return models.ReasonArtifactNotFound
	default:
		return models.ReasonCommandFailed
	}
}
