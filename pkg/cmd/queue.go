package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowlinehq/flowline/pkg/queue"
)

// NewJobQueue selects the job queue backend from its URL. An empty URL
// disables queued mode entirely; the dispatcher then always runs direct.
func NewJobQueue(queueURL string, logger *slog.Logger) queue.JobQueue {
	switch {
	case queueURL == "":
		return nil
	case strings.HasPrefix(queueURL, "redis://"), strings.HasPrefix(queueURL, "rediss://"):
		q, err := queue.NewRedisQueue(queueURL, logger)
		if err != nil {
			panic(fmt.Errorf("failed to connect job queue: %w", err))
		}

		return q
	case queueURL == "memory":
		return queue.NewMemoryQueue()
	default:
		panic("Unsupported job queue URL: " + queueURL)
	}
}
