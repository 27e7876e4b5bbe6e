package runner

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/conveyor/pkg/artifact"
	"github.com/dukex/conveyor/pkg/cache"
	"github.com/dukex/conveyor/pkg/executor"
	"github.com/dukex/conveyor/pkg/models"
)

func newTestRunner(t *testing.T, baseEnv map[string]string) *Runner {
	t.Helper()

	stepExecutor := executor.NewExecutor(
		cache.NewManager(cache.NewMemoryStore(), slog.Default()),
		artifact.NewManager(artifact.NewMemoryStore(), slog.Default()),
		"",
		slog.Default(),
	)

	return NewRunner(stepExecutor, "run-test", t.TempDir(), baseEnv, nil, nil, slog.Default())
}

func TestRunner_AllStepsSucceed(t *testing.T) {
	r := newTestRunner(t, nil)

	job := &models.Job{
		ID: "build",
		Steps: []*models.Step{
			{Kind: models.StepKindRunCommand, Command: "true"},
			{Kind: models.StepKindRunCommand, Command: "echo done"},
		},
	}

	outcome := r.Run(context.Background(), "wf", job)

	assert.Equal(t, models.JobStatusSucceeded, outcome.Status)
	require.Len(t, outcome.Steps, 2)
	assert.Equal(t, models.StepStatusSucceeded, outcome.Steps[0].Status)
	assert.Equal(t, models.StepStatusSucceeded, outcome.Steps[1].Status)
	assert.NotZero(t, outcome.Duration)
}

// [A success, B fail, C normal, D best-effort]: C must be skipped, D must
// still execute.
func TestRunner_SkipCascadePreservesBestEffort(t *testing.T) {
	r := newTestRunner(t, nil)

	job := &models.Job{
		ID: "build",
		Steps: []*models.Step{
			{Name: "A", Kind: models.StepKindRunCommand, Command: "true"},
			{Name: "B", Kind: models.StepKindRunCommand, Command: "false"},
			{Name: "C", Kind: models.StepKindRunCommand, Command: "echo never"},
			{Name: "D", Kind: models.StepKindRunCommand, Command: "echo coverage", BestEffort: true},
		},
	}

	outcome := r.Run(context.Background(), "wf", job)

	assert.Equal(t, models.JobStatusFailed, outcome.Status)
	require.Len(t, outcome.Steps, 4)
	assert.Equal(t, models.StepStatusSucceeded, outcome.Steps[0].Status)
	assert.Equal(t, models.StepStatusFailed, outcome.Steps[1].Status)
	assert.Equal(t, models.StepStatusSkipped, outcome.Steps[2].Status)
	assert.Equal(t, models.StepStatusSucceeded, outcome.Steps[3].Status)
	assert.Contains(t, outcome.Steps[3].Output, "coverage")
}

func TestRunner_BestEffortFailureDoesNotFailJob(t *testing.T) {
	r := newTestRunner(t, nil)

	job := &models.Job{
		ID: "build",
		Steps: []*models.Step{
			{Kind: models.StepKindRunCommand, Command: "true"},
			{Name: "upload coverage", Kind: models.StepKindRunCommand, Command: "false", BestEffort: true},
		},
	}

	outcome := r.Run(context.Background(), "wf", job)

	assert.Equal(t, models.JobStatusSucceeded, outcome.Status)
	require.Len(t, outcome.Steps, 2)
	assert.Equal(t, models.StepStatusFailed, outcome.Steps[1].Status)
}

func TestRunner_StepResultsInDeclarationOrder(t *testing.T) {
	r := newTestRunner(t, nil)

	job := &models.Job{
		ID: "build",
		Steps: []*models.Step{
			{Name: "first", Kind: models.StepKindRunCommand, Command: "true"},
			{Name: "second", Kind: models.StepKindRunCommand, Command: "true"},
			{Name: "third", Kind: models.StepKindRunCommand, Command: "true"},
		},
	}

	outcome := r.Run(context.Background(), "wf", job)

	require.Len(t, outcome.Steps, 3)
	assert.Equal(t, "first", outcome.Steps[0].Name)
	assert.Equal(t, "second", outcome.Steps[1].Name)
	assert.Equal(t, "third", outcome.Steps[2].Name)
}

func TestRunner_EnvironmentMerging(t *testing.T) {
	r := newTestRunner(t, map[string]string{
		"PATH":     "/usr/bin:/bin",
		"ENV_NAME": "base",
	})

	job := &models.Job{
		ID:          "build",
		Environment: map[string]string{"ENV_NAME": "test_env_3.7", "PYTHON_VERSION": "3.7"},
		Steps: []*models.Step{
			{Kind: models.StepKindRunCommand, Command: "echo env=$ENV_NAME py=$PYTHON_VERSION"},
		},
	}

	outcome := r.Run(context.Background(), "wf", job)

	require.Equal(t, models.JobStatusSucceeded, outcome.Status)
	assert.Contains(t, outcome.Steps[0].Output, "env=test_env_3.7")
	assert.Contains(t, outcome.Steps[0].Output, "py=3.7")
}

func TestRunner_JobTimeoutCancelsRunningStep(t *testing.T) {
	r := newTestRunner(t, map[string]string{"PATH": "/usr/bin:/bin"})

	job := &models.Job{
		ID:             "build",
		TimeoutSeconds: 1,
		Steps: []*models.Step{
			{Name: "hang", Kind: models.StepKindRunCommand, Command: "sleep 30"},
			{Name: "after", Kind: models.StepKindRunCommand, Command: "echo never"},
		},
	}

	outcome := r.Run(context.Background(), "wf", job)

	assert.Equal(t, models.JobStatusFailed, outcome.Status)
	require.Len(t, outcome.Steps, 2)
	assert.Equal(t, models.StepStatusFailed, outcome.Steps[0].Status)
	assert.Equal(t, models.ReasonCancelled, outcome.Steps[0].Reason)
	assert.Equal(t, models.StepStatusSkipped, outcome.Steps[1].Status)
}

// Cancellation skips every remaining step, best-effort steps included; the
// best-effort carve-out only applies to ordinary step failures.
func TestRunner_CancellationSkipsBestEffortSteps(t *testing.T) {
	r := newTestRunner(t, map[string]string{"PATH": "/usr/bin:/bin"})

	job := &models.Job{
		ID:             "build",
		TimeoutSeconds: 1,
		Steps: []*models.Step{
			{Name: "hang", Kind: models.StepKindRunCommand, Command: "sleep 30"},
			{Name: "upload coverage", Kind: models.StepKindRunCommand, Command: "echo never", BestEffort: true},
		},
	}

	outcome := r.Run(context.Background(), "wf", job)

	assert.Equal(t, models.JobStatusFailed, outcome.Status)
	require.Len(t, outcome.Steps, 2)
	assert.Equal(t, models.StepStatusFailed, outcome.Steps[0].Status)
	assert.Equal(t, models.ReasonCancelled, outcome.Steps[0].Reason)
	assert.Equal(t, models.StepStatusSkipped, outcome.Steps[1].Status)
}

func TestRunner_IsolatedWorkspaces(t *testing.T) {
	r := newTestRunner(t, map[string]string{"PATH": "/usr/bin:/bin"})

	write := &models.Job{
		ID: "writer",
		Steps: []*models.Step{
			{Kind: models.StepKindRunCommand, Command: "echo leak > marker.txt"},
		},
	}
	read := &models.Job{
		ID: "reader",
		Steps: []*models.Step{
			{Kind: models.StepKindRunCommand, Command: "test ! -e marker.txt"},
		},
	}

	assert.Equal(t, models.JobStatusSucceeded, r.Run(context.Background(), "wf", write).Status)
	assert.Equal(t, models.JobStatusSucceeded, r.Run(context.Background(), "wf", read).Status)
}
