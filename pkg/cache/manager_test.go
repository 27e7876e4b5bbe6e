package cache

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()

	return NewManager(store, slog.Default())
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestManager_ComputeKey_Deterministic(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "environment.yml", "dependencies: [pytest]")

	manager := newTestManager(t, NewMemoryStore())

	first, err := manager.ComputeKey(`deps-v1-{{ checksum "environment.yml" }}`, dir)
	require.NoError(t, err)

	second, err := manager.ComputeKey(`deps-v1-{{ checksum "environment.yml" }}`, dir)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	writeFile(t, dir, "environment.yml", "dependencies: [pytest, coverage]")

	changed, err := manager.ComputeKey(`deps-v1-{{ checksum "environment.yml" }}`, dir)
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestManager_SaveRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "envs/py37/bin/python", "#!stub")
	writeFile(t, dir, "envs/py37/lib/site.py", "site")

	manager := newTestManager(t, NewMemoryStore())

	require.NoError(t, manager.Save(ctx, "deps-v1-abc", dir, []string{"envs/py37"}))

	payload, err := manager.Restore(ctx, "deps-v1-abc")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Len(t, payload.Files, 2)

	restored := t.TempDir()
	require.NoError(t, manager.Materialize(payload, restored))

	data, err := os.ReadFile(filepath.Join(restored, "envs", "py37", "lib", "site.py"))
	require.NoError(t, err)
	assert.Equal(t, "site", string(data))
}

func TestManager_Restore_MissIsNotAnError(t *testing.T) {
	manager := newTestManager(t, NewMemoryStore())

	payload, err := manager.Restore(context.Background(), "never-saved")
	require.NoError(t, err)
	assert.Nil(t, payload)
}

func TestManager_Save_MissingPath(t *testing.T) {
	manager := newTestManager(t, NewMemoryStore())

	err := manager.Save(context.Background(), "deps-v1", t.TempDir(), []string{"does-not-exist"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCacheWrite)
}

func TestManager_Save_OverwritesExactKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "envs/marker", "v1")

	manager := newTestManager(t, NewMemoryStore())
	require.NoError(t, manager.Save(ctx, "deps", dir, []string{"envs"}))

	writeFile(t, dir, "envs/marker", "v2")
	require.NoError(t, manager.Save(ctx, "deps", dir, []string{"envs"}))

	payload, err := manager.Restore(ctx, "deps")
	require.NoError(t, err)
	require.NotNil(t, payload)
	require.Len(t, payload.Files, 1)
	assert.Equal(t, []byte("v2"), payload.Files[0].Data)
}

func TestManager_ConcurrentSavesSameKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "envs/marker", "content")

	manager := newTestManager(t, NewMemoryStore())

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, manager.Save(ctx, "deps", dir, []string{"envs"}))
		}()
	}

	wg.Wait()

	payload, err := manager.Restore(ctx, "deps")
	require.NoError(t, err)
	require.NotNil(t, payload)
}

func TestFileStore_RoundTripAcrossInstances(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dir := t.TempDir()
	writeFile(t, dir, "envs/marker", "content")

	manager := newTestManager(t, NewFileStore(root))
	require.NoError(t, manager.Save(ctx, "deps-v1/with:odd keys", dir, []string{"envs"}))

	// A fresh store over the same root simulates a later run.
	later := newTestManager(t, NewFileStore(root))

	payload, err := later.Restore(ctx, "deps-v1/with:odd keys")
	require.NoError(t, err)
	require.NotNil(t, payload)
	assert.Equal(t, "deps-v1/with:odd keys", payload.Key)

	miss, err := later.Restore(ctx, "deps-v2")
	require.NoError(t, err)
	assert.Nil(t, miss)
}
