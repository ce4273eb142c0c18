// Package api provides factory implementations for dependency injection
package api

import (
	"context"

	"go.uber.org/zap"
)

// DefaultServerFactory is the default implementation of ServerFactory
type DefaultServerFactory struct {
	logger *zap.Logger
}

// NewServerFactory creates a new server factory
func NewServerFactory(logger *zap.Logger) ServerFactory {
	return &DefaultServerFactory{logger: logger}
}

// CreateServerStarter creates a server starter
func (f *DefaultServerFactory) CreateServerStarter() ServerStarter {
	return &DefaultServerStarter{logger: f.logger}
}

// DefaultServerStarter is the default implementation of ServerStarter
type DefaultServerStarter struct {
	logger *zap.Logger
}

// StartServer starts the API server with the given configuration
func (s *DefaultServerStarter) StartServer(ctx context.Context, registry *Registry, config ServerConfig) error {
	return StartServer(ctx, registry, config, s.logger)
}
