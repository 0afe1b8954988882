package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowlinehq/flowline/pkg/persistence"
	"github.com/flowlinehq/flowline/pkg/persistence/file"
	"github.com/flowlinehq/flowline/pkg/persistence/postgres"
)

// NewPersistence selects the persistence backend from the database URL
// scheme: postgres for production, a plain directory path for development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		p, err := postgres.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create postgres persistence: %w", err))
		}

		return p
	default:
		p, err := file.NewPersistence(strings.TrimPrefix(databaseURL, "file://"))
		if err != nil {
			panic(fmt.Errorf("failed to create file persistence: %w", err))
		}

		return p
	}
}
