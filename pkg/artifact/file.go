package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/conveyor/pkg/workspace"
)

const recordFileName = ".record.json"

// FileStore persists artifact records as real file trees under
// <root>/<run>/<job>/<destination>/, so stored artifacts stay browsable after
// the run. A metadata record sits alongside the tree.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: strings.TrimPrefix(root, "file://")}
}

func (s *FileStore) Put(_ context.Context, record *Record) error {
	dir := filepath.Join(s.root, record.RunID, record.JobID, record.Destination)

	_, err := os.Stat(dir)
	if err == nil {
		return fmt.Errorf("%w: %s/%s/%s",
			ErrDestinationExists, record.RunID, record.JobID, record.Destination)
	}

	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	for _, file := range record.Files {
		target := filepath.Join(dir, file.Path)

		err = os.MkdirAll(filepath.Dir(target), 0o755)
		if err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}

		err = os.WriteFile(target, file.Data, file.Mode.Perm())
		if err != nil {
			return fmt.Errorf("failed to write artifact %s: %w", file.Path, err)
		}
	}

	metadata := Record{
		RunID:       record.RunID,
		JobID:       record.JobID,
		Destination: record.Destination,
		SourcePath:  record.SourcePath,
		StoredAt:    record.StoredAt,
	}

	data, err := json.Marshal(&metadata)
	if err != nil {
		return fmt.Errorf("failed to encode artifact record: %w", err)
	}

	err = os.WriteFile(filepath.Join(dir, recordFileName), data, 0o644)
	if err != nil {
		return fmt.Errorf("failed to write artifact record: %w", err)
	}

	return nil
}

func (s *FileStore) List(_ context.Context, runID, jobID string) ([]*Record, error) {
	jobDir := filepath.Join(s.root, runID, jobID)

	entries, err := os.ReadDir(jobDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to list artifacts for job %s: %w", jobID, err)
	}

	records := make([]*Record, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		record, err := s.readRecord(jobDir, entry.Name())
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (s *FileStore) Close(_ context.Context) error {
	return nil
}

func (s *FileStore) readRecord(jobDir, destination string) (*Record, error) {
	dir := filepath.Join(jobDir, destination)

	data, err := os.ReadFile(filepath.Join(dir, recordFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact record %s: %w", destination, err)
	}

	var record Record

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to decode artifact record %s: %w", destination, err)
	}

	err = filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if entry.IsDir() || entry.Name() == recordFileName {
			return nil
		}

		relative, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		record.Files = append(record.Files, &workspace.File{Path: relative, Mode: info.Mode(), Data: content})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact tree %s: %w", destination, err)
	}

	return &record, nil
}
