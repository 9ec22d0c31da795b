package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/crmflow/pkg/persistence"
	"github.com/dukex/crmflow/pkg/persistence/file"
	"github.com/dukex/crmflow/pkg/persistence/memory"
	"github.com/dukex/crmflow/pkg/persistence/postgresql"
)

// NewPersistence opens the store named by databaseURL: "file://<dir>",
// "postgres://..." (or "postgresql://...") and "memory://".
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, rest := parsePersistenceProvider(databaseURL)

	switch provider {
	case "file":
		return file.NewPersistence(rest), nil
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	case "memory":
		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("%w: %q", persistence.ErrUnsupportedURL, databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "", databaseURL
	}

	return provider, rest
}
