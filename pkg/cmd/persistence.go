// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/runtrace/runtrace/pkg/persistence"
	"github.com/runtrace/runtrace/pkg/persistence/memory"
	"github.com/runtrace/runtrace/pkg/persistence/postgresql"
)

// NewPersistence creates the persistence layer for a database URL.
// "memory://" keeps everything in process for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic("failed to create postgresql persistence: " + err.Error())
		}

		return store
	case strings.HasPrefix(databaseURL, "memory://"):
		return memory.NewPersistence()
	default:
		panic("unsupported database URL: " + databaseURL)
	}
}
