// Package api provides interfaces for dependency injection
package api

import (
	"context"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/poreread/pkg/reader"
	"github.com/ssargent/poreread/pkg/storage"
)

// Opener opens experiments by seed path and format name
type Opener interface {
	// Open opens the experiment containing seed. An empty format picks the
	// format from the file extension.
	Open(seed, format string) (*reader.Experiment, error)
}

// ExperimentStore persists registered experiments
type ExperimentStore interface {
	Create(seed, format string) (*storage.ExperimentRecord, error)
	Read(id ksuid.KSUID) (*storage.ExperimentRecord, error)
	Delete(id ksuid.KSUID) error
	List() ([]storage.ExperimentRecord, error)
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves the API until ctx is cancelled
	StartServer(ctx context.Context, registry *Registry, config ServerConfig) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
