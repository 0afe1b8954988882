package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/flowlinehq/flowline/pkg/locks"
)

// NewLockManager selects the resource lock backend. Redis locks are shared by
// every worker process; memory locks only cover a single process.
func NewLockManager(lockURL string, logger *slog.Logger) locks.Manager {
	switch {
	case strings.HasPrefix(lockURL, "redis://"), strings.HasPrefix(lockURL, "rediss://"):
		options, err := redis.ParseURL(lockURL)
		if err != nil {
			panic(fmt.Errorf("invalid lock manager URL: %w", err))
		}

		return locks.NewRedisManager(redis.NewClient(options), logger)
	case lockURL == "", lockURL == "memory":
		return locks.NewMemoryManager(logger)
	default:
		panic("Unsupported lock manager URL: " + lockURL)
	}
}
