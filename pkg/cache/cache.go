// Package cache provides key-addressed storage of dependency cache snapshots
// with restore/save semantics. Lookup is exact-match-only; a given key maps to
// at most one payload at a time and saves replace, never merge.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/conveyor/pkg/workspace"
)

// ErrCacheWrite indicates a save failed, typically because a path to capture
// does not exist. It is reported as a failed step, never as a fatal error.
var ErrCacheWrite = errors.New("cache write error")

// Payload is one stored dependency snapshot.
type Payload struct {
	Key     string            `json:"key"`
	Files   []*workspace.File `json:"files"`
	SavedAt time.Time         `json:"saved_at"`
}

// Store is the injected storage backend for cache payloads.
//
// Restore returns (nil, nil) on a miss: a cache miss is a normal, expected
// outcome, not a failure.
type Store interface {
	Restore(ctx context.Context, key string) (*Payload, error)
	Save(ctx context.Context, payload *Payload) error
	Close(ctx context.Context) error
}
