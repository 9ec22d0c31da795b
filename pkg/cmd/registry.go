// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/crmflow/pkg/crm"
	"github.com/dukex/crmflow/pkg/notify"
	"github.com/dukex/crmflow/pkg/registry"
	"github.com/redis/go-redis/v9"
)

// NewRegistry builds a registry holding the built-in nodes and actions.
func NewRegistry(logger *slog.Logger, collaborators registry.Collaborators) *registry.Registry {
	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes(collaborators)

	return reg
}

// NewCollaborators wires the CRM client when crmURL is set and a Redis
// notifier when rdb is not nil; notifications are logged otherwise.
func NewCollaborators(logger *slog.Logger, crmURL, crmToken string, rdb redis.UniversalClient) (registry.Collaborators, error) {
	var collaborators registry.Collaborators

	if crmURL != "" {
		client, err := crm.NewClient(crmURL, logger, crm.WithToken(crmToken))
		if err != nil {
			return collaborators, fmt.Errorf("failed to create crm client: %w", err)
		}

		collaborators.Messages = client
		collaborators.Contacts = client
		collaborators.AI = client
	}

	if rdb != nil {
		collaborators.Notifier = notify.NewRedisNotifier(rdb, notify.DefaultChannel)
	} else {
		collaborators.Notifier = notify.NewLogNotifier(logger)
	}

	return collaborators, nil
}

// NewRedisClient connects to redisURL ("redis://host:port/db"). An empty url
// returns a nil client.
func NewRedisClient(redisURL string) (redis.UniversalClient, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return redis.NewClient(opts), nil
}
