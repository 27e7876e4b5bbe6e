package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists cache payloads as JSON blobs under a root directory, one
// file per key. Writes go to a temp file first and are renamed into place so
// a crash never leaves a corrupt entry at the canonical path.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: strings.TrimPrefix(root, "file://")}
}

func (s *FileStore) Restore(_ context.Context, key string) (*Payload, error) {
	data, err := os.ReadFile(s.entryPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var payload Payload

	err = json.Unmarshal(data, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}

	return &payload, nil
}

func (s *FileStore) Save(_ context.Context, payload *Payload) error {
	err := os.MkdirAll(s.root, 0o755)
	if err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache entry: %w", err)
	}

	_, err = tmp.Write(data)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	err = tmp.Close()
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to close cache entry: %w", err)
	}

	err = os.Rename(tmp.Name(), s.entryPath(payload.Key))
	if err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("failed to commit cache entry: %w", err)
	}

	return nil
}

func (s *FileStore) Close(_ context.Context) error {
	return nil
}

// entryPath hashes the key into the filename, so arbitrary key strings never
// escape the cache root.
func (s *FileStore) entryPath(key string) string {
	sum := sha256.Sum256([]byte(key))

	return filepath.Join(s.root, hex.EncodeToString(sum[:])+".json")
}
