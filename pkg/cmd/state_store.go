package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/flowlinehq/flowline/pkg/statestore"
)

// NewStateStore selects the state store backend from its URL. Redis enables
// cross-process resume in queued mode; the in-memory store only suits direct
// mode and tests.
func NewStateStore(ctx context.Context, storeURL string, logger *slog.Logger) statestore.Store {
	switch {
	case strings.HasPrefix(storeURL, "redis://"), strings.HasPrefix(storeURL, "rediss://"):
		options, err := redis.ParseURL(storeURL)
		if err != nil {
			panic(fmt.Errorf("invalid state store URL: %w", err))
		}

		store, err := statestore.NewRedisStore(ctx, options.Addr, options.Password, options.DB, logger)
		if err != nil {
			panic(fmt.Errorf("failed to connect state store: %w", err))
		}

		return store
	case storeURL == "", storeURL == "memory":
		return statestore.NewMemoryStore()
	default:
		panic("Unsupported state store URL: " + storeURL)
	}
}
