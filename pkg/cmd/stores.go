// Package cmd provides factories shared by the CLI commands: stores and
// event buses are selected by connection URL scheme or provider name.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/conveyor/pkg/artifact"
	"github.com/dukex/conveyor/pkg/cache"
	"github.com/dukex/conveyor/pkg/history"
)

// NewCacheStore builds a cache store from a connection URL. Supported
// schemes are file:// and redis://; anything else is treated as a file path.
func NewCacheStore(ctx context.Context, cacheURL string) (cache.Store, error) {
	switch parseProvider(cacheURL) {
	case "redis":
		return cache.NewRedisStore(ctx, cacheURL)
	default:
		return cache.NewFileStore(strings.Replace(cacheURL, "file://", "", 1)), nil
	}
}

// NewArtifactStore builds an artifact store rooted at the given URL. Only
// file storage is supported.
func NewArtifactStore(artifactURL string) artifact.Store {
	return artifact.NewFileStore(strings.Replace(artifactURL, "file://", "", 1))
}

// NewHistoryStore builds a run-history store from a connection URL.
// Supported schemes are file:// and postgres://.
func NewHistoryStore(ctx context.Context, logger *slog.Logger, databaseURL string) (history.Store, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		return history.NewPostgresStore(ctx, logger, databaseURL)
	default:
		return history.NewFileStore(databaseURL), nil
	}
}

func parseProvider(connectionURL string) string {
	scheme, _, found := strings.Cut(connectionURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
