package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/conveyor/pkg/models"
)

// fakeRunner records which jobs ran and returns canned outcomes without
// executing anything.
type fakeRunner struct {
	mu      sync.Mutex
	ran     []string
	fail    map[string]bool
	started chan string
	release chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, _ string, job *models.Job) *models.JobOutcome {
	f.mu.Lock()
	f.ran = append(f.ran, job.ID)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- job.ID
	}

	if f.release != nil {
		<-f.release
	}

	status := models.JobStatusSucceeded
	if f.fail[job.ID] {
		status = models.JobStatusFailed
	}

	return &models.JobOutcome{JobID: job.ID, Status: status}
}

func (f *fakeRunner) ranJobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.ran...)
}

func job(id string, requires ...string) *models.Job {
	return &models.Job{
		ID:       id,
		Requires: requires,
		Steps:    []*models.Step{{Kind: models.StepKindRunCommand, Command: "true"}},
	}
}

func TestScheduler_OneOutcomePerJob(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, 2, nil, nil, slog.Default())

	workflow := &models.Workflow{
		ID:   "wf",
		Jobs: []*models.Job{job("a"), job("b"), job("c")},
	}

	result := s.Run(context.Background(), workflow)

	require.Len(t, result.Jobs, 3)
	assert.Contains(t, result.Jobs, "a")
	assert.Contains(t, result.Jobs, "b")
	assert.Contains(t, result.Jobs, "c")
	assert.Equal(t, models.JobStatusSucceeded, result.Status)
	assert.True(t, result.Success())
}

func TestScheduler_IndependentJobsRunConcurrently(t *testing.T) {
	runner := &fakeRunner{
		started: make(chan string, 2),
		release: make(chan struct{}),
	}
	s := NewScheduler(runner, 2, nil, nil, slog.Default())

	workflow := &models.Workflow{
		ID:   "wf",
		Jobs: []*models.Job{job("a"), job("b")},
	}

	resultCh := make(chan *models.WorkflowResult, 1)

	go func() { resultCh <- s.Run(context.Background(), workflow) }()

	// Both jobs must reach their run before either is allowed to finish,
	// proving they overlapped.
	for range 2 {
		select {
		case <-runner.started:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs to start concurrently")
		}
	}

	close(runner.release)

	result := <-resultCh
	assert.Len(t, result.Jobs, 2)
}

func TestScheduler_ConcurrencyLimitIsRespected(t *testing.T) {
	runner := &fakeRunner{
		started: make(chan string, 3),
		release: make(chan struct{}),
	}
	s := NewScheduler(runner, 1, nil, nil, slog.Default())

	workflow := &models.Workflow{
		ID:   "wf",
		Jobs: []*models.Job{job("a"), job("b"), job("c")},
	}

	resultCh := make(chan *models.WorkflowResult, 1)

	go func() { resultCh <- s.Run(context.Background(), workflow) }()

	<-runner.started

	// With a single slot no second job may start while the first is held.
	select {
	case id := <-runner.started:
		t.Fatalf("job %q started while the only slot was occupied", id)
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)

	for range 2 {
		<-runner.started
	}

	result := <-resultCh
	assert.Len(t, result.Jobs, 3)
}

func TestScheduler_WorkflowConcurrencyOverridesDefault(t *testing.T) {
	runner := &fakeRunner{
		started: make(chan string, 2),
		release: make(chan struct{}),
	}
	s := NewScheduler(runner, 4, nil, nil, slog.Default())

	workflow := &models.Workflow{
		ID:          "wf",
		Concurrency: 1,
		Jobs:        []*models.Job{job("a"), job("b")},
	}

	resultCh := make(chan *models.WorkflowResult, 1)

	go func() { resultCh <- s.Run(context.Background(), workflow) }()

	<-runner.started

	select {
	case id := <-runner.started:
		t.Fatalf("job %q started despite workflow concurrency of 1", id)
	case <-time.After(100 * time.Millisecond):
	}

	close(runner.release)
	<-runner.started

	result := <-resultCh
	assert.Len(t, result.Jobs, 2)
}

func TestScheduler_DependentWaitsForDependency(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, 4, nil, nil, slog.Default())

	workflow := &models.Workflow{
		ID:   "wf",
		Jobs: []*models.Job{job("deploy", "build"), job("build")},
	}

	result := s.Run(context.Background(), workflow)

	require.Len(t, result.Jobs, 2)
	assert.Equal(t, []string{"build", "deploy"}, runner.ranJobs())
}

func TestScheduler_FailedDependencySkipsDependents(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"build": true}}
	s := NewScheduler(runner, 4, nil, nil, slog.Default())

	workflow := &models.Workflow{
		ID: "wf",
		Jobs: []*models.Job{
			job("build"),
			job("test", "build"),
			job("deploy", "test"),
			job("lint"),
		},
	}

	result := s.Run(context.Background(), workflow)

	require.Len(t, result.Jobs, 4)
	assert.Equal(t, models.JobStatusFailed, result.Jobs["build"].Status)
	assert.Equal(t, models.JobStatusSkipped, result.Jobs["test"].Status)
	assert.Equal(t, models.JobStatusSkipped, result.Jobs["deploy"].Status)
	assert.Equal(t, models.JobStatusSucceeded, result.Jobs["lint"].Status)

	// Skipped jobs never reach the runner.
	assert.ElementsMatch(t, []string{"build", "lint"}, runner.ranJobs())

	assert.Equal(t, models.JobStatusFailed, result.Status)
	assert.False(t, result.Success())
}

func TestScheduler_JobWithMultipleDependencies(t *testing.T) {
	runner := &fakeRunner{}
	s := NewScheduler(runner, 4, nil, nil, slog.Default())

	workflow := &models.Workflow{
		ID: "wf",
		Jobs: []*models.Job{
			job("a"),
			job("b"),
			job("c", "a", "b"),
		},
	}

	result := s.Run(context.Background(), workflow)

	require.Len(t, result.Jobs, 3)
	assert.Equal(t, models.JobStatusSucceeded, result.Jobs["c"].Status)

	ran := runner.ranJobs()
	require.Len(t, ran, 3)
	assert.Equal(t, "c", ran[2])
}
