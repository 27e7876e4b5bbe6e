package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore keeps run records as JSON documents under <root>/runs/.
type FileStore struct {
	root string
}

// NewFileStore creates a file-backed history store rooted at root. A
// "file://" prefix is stripped so the store can be built straight from a
// connection URL.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: strings.Replace(root, "file://", "", 1)}
}

func (s *FileStore) SaveRun(_ context.Context, record *RunRecord) error {
	runsDir := path.Join(s.root, "runs")

	err := os.MkdirAll(runsDir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", record.ID, err)
	}

	return os.WriteFile(path.Join(runsDir, record.ID+".json"), data, 0600)
}

func (s *FileStore) Runs(ctx context.Context) ([]*RunRecord, error) {
	runsDir := os.DirFS(path.Join(s.root, "runs"))

	jsonFiles, err := fs.Glob(runsDir, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	records := make([]*RunRecord, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		runID := file[:len(file)-5] // Remove .json extension

		record, err := s.RunByID(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
		}

		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

func (s *FileStore) RunByID(_ context.Context, id string) (*RunRecord, error) {
	filePath := filepath.Clean(path.Join(s.root, "runs", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRunNotFound
		}

		return nil, fmt.Errorf("failed to fetch run %s: %w", id, err)
	}

	var record RunRecord

	err = json.Unmarshal(body, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}

	return &record, nil
}

func (s *FileStore) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file storage there is nothing to
// clean up.
func (s *FileStore) Close(_ context.Context) error {
	return nil
}
