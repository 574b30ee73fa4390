package cmd

import (
	"log/slog"

	"github.com/runtrace/runtrace/pkg/persistence"
	"github.com/runtrace/runtrace/pkg/persistence/redis"
)

// NewSequenceAllocator creates a Redis-backed sequence allocator when a
// URL is configured. A nil return falls back to max-plus-one allocation
// against the run table.
func NewSequenceAllocator(logger *slog.Logger, redisURL string) persistence.SequenceAllocator {
	if redisURL == "" {
		return nil
	}

	allocator, err := redis.NewSequenceAllocator(redisURL)
	if err != nil {
		panic("failed to create redis sequence allocator: " + err.Error())
	}

	logger.Info("Using Redis sequence allocation", "url", redisURL)

	return allocator
}
