// Package di provides dependency injection container
package di

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ssargent/poreread/pkg/api" //nolint:depguard
	"github.com/ssargent/poreread/pkg/config"
	"github.com/ssargent/poreread/pkg/format"
	"github.com/ssargent/poreread/pkg/reader"
	"github.com/ssargent/poreread/pkg/storage"
)

// Container holds all the dependencies for the application. Parts are built
// on first use so that commands which never read a file do not open the
// cache database.
type Container struct {
	mu     sync.Mutex
	config *config.Config
	logger *zap.Logger

	store     *storage.Store
	storeErr  error
	storeDone bool

	formats       *format.Registry
	opener        *format.Opener
	serverFactory api.ServerFactory
}

// NewContainer creates a new dependency injection container with the
// default configuration
func NewContainer() *Container {
	return &Container{
		config: config.DefaultConfig(),
		logger: zap.NewNop(),
	}
}

// Configure replaces the configuration and logger. Dependencies built from
// the previous configuration are rebuilt on next use.
func (c *Container) Configure(cfg *config.Config, logger *zap.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	if logger != nil {
		c.logger = logger
	}
	c.formats = nil
	c.opener = nil
	if c.store == nil {
		c.storeDone = false
	}
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Logger returns the logger
func (c *Container) Logger() *zap.Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// Formats returns the format registry built from the format settings
func (c *Container) Formats() (*format.Registry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formatsLocked()
}

func (c *Container) formatsLocked() (*format.Registry, error) {
	if c.formats != nil {
		return c.formats, nil
	}
	formats, err := format.NewRegistry(c.config.Formats)
	if err != nil {
		return nil, fmt.Errorf("failed to create formats: %w", err)
	}
	c.formats = formats
	return formats, nil
}

// storeLocked opens the cache database once. A database that cannot be
// opened, for instance because a server holds its lock, leaves the
// container without a store.
func (c *Container) storeLocked() *storage.Store {
	if c.storeDone || !c.config.Cache.Enabled {
		return c.store
	}
	c.storeDone = true
	c.store, c.storeErr = storage.Open(c.config.Cache.Dir)
	if c.storeErr != nil {
		c.logger.Warn("header cache unavailable, reading headers from files",
			zap.String("dir", c.config.Cache.Dir), zap.Error(c.storeErr))
		c.store = nil
	}
	return c.store
}

// Opener returns the experiment opener, wired with the header cache when it
// is enabled
func (c *Container) Opener() (*format.Opener, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opener != nil {
		return c.opener, nil
	}

	formats, err := c.formatsLocked()
	if err != nil {
		return nil, err
	}

	opts := []reader.Option{reader.WithLogger(c.logger)}
	if store := c.storeLocked(); store != nil {
		opts = append(opts, reader.WithCache(storage.NewHeaderCache(store, c.logger)))
	}
	c.opener = &format.Opener{Formats: formats, Options: opts}
	return c.opener, nil
}

// ExperimentRegistry creates the registry of experiments served over HTTP.
// Registrations persist when the cache database is available.
func (c *Container) ExperimentRegistry() (*api.Registry, error) {
	opener, err := c.Opener()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var store api.ExperimentStore
	if s := c.storeLocked(); s != nil {
		store = storage.NewExperiments(s)
	}
	return api.NewRegistry(opener, store, c.logger), nil
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serverFactory == nil {
		c.serverFactory = api.NewServerFactory(c.logger)
	}
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverFactory = factory
}

// Close releases the cache database
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	if c.store != nil {
		errs = append(errs, c.store.Close())
		c.store = nil
	}
	_ = c.logger.Sync()
	return errors.Join(errs...)
}
