// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/dukex/flowscope/pkg/store"
	"github.com/dukex/flowscope/pkg/store/memory"
	"github.com/dukex/flowscope/pkg/store/postgresql"
	"github.com/dukex/flowscope/pkg/store/redis"
)

// NewDocumentStore selects the document-store backend by the URL scheme.
// An empty URL falls back to the in-memory store, which loses its data on
// restart.
func NewDocumentStore(ctx context.Context, logger *slog.Logger, databaseURL string) (store.DocumentStore, error) {
	switch parseStoreProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewStore(ctx, logger, databaseURL)
	case "redis":
		return redis.NewStore(ctx, logger, databaseURL)
	default:
		return memory.NewStore(), nil
	}
}

func parseStoreProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "memory"
	}

	return provider
}
