package cmd

import (
	"context"
	"strings"

	"github.com/orchardhq/orchard/pkg/pollstore"
)

// NewPollStorage selects the poll storage backend from the URL: redis://
// for Redis, empty or "memory" for the in-process store.
func NewPollStorage(ctx context.Context, url string) (pollstore.PollStorage, error) {
	if url == "" || url == "memory" {
		return pollstore.NewMemoryStorage(), nil
	}

	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		return pollstore.NewRedisStorage(ctx, url)
	}

	return pollstore.NewMemoryStorage(), nil
}
