// Package relay forwards chat-completion traffic to an upstream API,
// normalizing the conversation of requests addressed to models that require
// strict role alternation.
package relay

import (
	"context"

	"github.com/kiriru/mistral-relay/pkg/config"
)

// DefaultConfig returns a default configuration for the relay server
func DefaultConfig() *Config {
	return ConfigFrom(config.Default())
}

// New creates a new relay server with default configuration
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, DefaultConfig())
}

// NewWithConfig creates a new relay server with custom configuration
func NewWithConfig(ctx context.Context, cfg *Config) (*Server, error) {
	return NewServer(ctx, cfg, nil)
}

// Run starts the relay server and blocks until shutdown. The normalizer gate
// follows reloads of manager when it is not nil.
func Run(ctx context.Context, cfg *config.Config, manager *config.Manager) error {
	server, err := NewServer(ctx, ConfigFrom(cfg), manager)
	if err != nil {
		return err
	}
	return server.Start(ctx)
}
