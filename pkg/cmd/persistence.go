// Package cmd provides shared construction helpers for the Orchard
// binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/orchardhq/orchard/pkg/persistence"
	"github.com/orchardhq/orchard/pkg/persistence/file"
	"github.com/orchardhq/orchard/pkg/persistence/postgresql"
)

// NewPersistence selects the backend from the database URL scheme:
// postgres:// for PostgreSQL, anything else is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseScheme(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

func parseScheme(databaseURL string) string {
	parts := strings.SplitN(databaseURL, "://", 2)
	if len(parts) < 2 {
		return "file"
	}

	return parts[0]
}
