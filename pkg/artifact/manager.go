package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dukex/conveyor/pkg/workspace"
)

// Manager implements the artifact operations used by steps on top of an
// injected Store. Concurrent stores serialize on a per-(run, job,
// destination) lock, so jobs running in parallel never interleave writes to
// one record.
type Manager struct {
	store  Store
	logger *slog.Logger
	locks  sync.Map // runID + "\x00" + jobID + "\x00" + destination -> *sync.Mutex
}

func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With("module", "artifact"),
	}
}

// StoreTestResults copies the test-report subtree at path (relative to dir)
// into durable storage under the fixed test-results destination.
func (m *Manager) StoreTestResults(ctx context.Context, runID, jobID string, dir string, path string) error {
	return m.storeTree(ctx, runID, jobID, dir, path, TestResultsDestination)
}

// StoreArtifacts copies the subtree at path (relative to dir) into durable
// storage under a caller-declared destination.
func (m *Manager) StoreArtifacts(ctx context.Context, runID, jobID string, dir string, path string, destination string) error {
	return m.storeTree(ctx, runID, jobID, dir, path, destination)
}

func (m *Manager) storeTree(ctx context.Context, runID, jobID, dir, path, destination string) error {
	_, err := os.Stat(filepath.Join(dir, path))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrArtifactPathNotFound, path)
	}

	files, err := workspace.Capture(dir, []string{path})
	if err != nil {
		return fmt.Errorf("failed to capture artifacts from %s: %w", path, err)
	}

	lock := m.destinationLock(runID, jobID, destination)
	lock.Lock()
	defer lock.Unlock()

	record := &Record{
		RunID:       runID,
		JobID:       jobID,
		Destination: destination,
		SourcePath:  path,
		Files:       files,
		StoredAt:    time.Now().UTC(),
	}

	err = m.store.Put(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to store artifacts for job %s: %w", jobID, err)
	}

	m.logger.DebugContext(ctx, "Stored artifacts",
		"run_id", runID, "job_id", jobID, "destination", destination, "files", len(files))

	return nil
}

func (m *Manager) destinationLock(runID, jobID, destination string) *sync.Mutex {
	lock, _ := m.locks.LoadOrStore(runID+"\x00"+jobID+"\x00"+destination, &sync.Mutex{})

	return lock.(*sync.Mutex)
}
