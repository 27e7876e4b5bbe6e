package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/conveyor/pkg/keytemplate"
	"github.com/dukex/conveyor/pkg/workspace"
)

// Manager implements the cache operations used by steps on top of an injected
// Store. It is safe for concurrent use: saves for the same key serialize on a
// per-key lock with last-writer-wins semantics.
type Manager struct {
	store  Store
	logger *slog.Logger
	locks  sync.Map // key -> *sync.Mutex
}

func NewManager(store Store, logger *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With("module", "cache"),
	}
}

// ComputeKey renders a cache key template. Checksum references inside the
// template are resolved relative to dir. Identical template plus
// byte-identical referenced files always produce the identical key; that
// determinism is the sole cache invalidation mechanism.
func (m *Manager) ComputeKey(template string, dir string) (string, error) {
	return keytemplate.Render(template, dir)
}

// Restore performs an exact-match lookup. A miss returns (nil, nil).
func (m *Manager) Restore(ctx context.Context, key string) (*Payload, error) {
	payload, err := m.store.Restore(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to restore cache key %s: %w", key, err)
	}

	if payload == nil {
		m.logger.DebugContext(ctx, "Cache miss", "key", key)

		return nil, nil
	}

	m.logger.DebugContext(ctx, "Cache hit", "key", key, "files", len(payload.Files))

	return payload, nil
}

// Save captures the current contents of paths (relative to dir) and stores
// them under key, replacing any existing entry for that exact key.
func (m *Manager) Save(ctx context.Context, key string, dir string, paths []string) error {
	files, err := workspace.Capture(dir, paths)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCacheWrite, err)
	}

	lock := m.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	payload := &Payload{Key: key, Files: files, SavedAt: time.Now().UTC()}

	err = m.store.Save(ctx, payload)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCacheWrite, err)
	}

	m.logger.DebugContext(ctx, "Saved cache entry", "key", key, "files", len(files))

	return nil
}

// Materialize writes a restored payload into the job workspace.
func (m *Manager) Materialize(payload *Payload, dir string) error {
	return workspace.Materialize(dir, payload.Files)
}

func (m *Manager) keyLock(key string) *sync.Mutex {
	lock, _ := m.locks.LoadOrStore(key, &sync.Mutex{})

	return lock.(*sync.Mutex)
}
