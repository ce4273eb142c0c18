package api

import (
	"time"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/poreread/pkg/reader"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Port             int
	Bind             string
	APIKey           string
	DataDir          string  // Relative experiment paths are resolved against it
	ChunkSeconds     float64 // Default stream chunk, 0 = one second
	MaxWindowSeconds float64 // Largest window served, 0 = unlimited
}

// OpenRequest asks the server to open an experiment
type OpenRequest struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"` // Empty picks the format from the file extension
}

// ExperimentSummary describes an open experiment
type ExperimentSummary struct {
	ID         ksuid.KSUID          `json:"id"`
	Seed       string               `json:"seed"`
	Format     string               `json:"format"`
	Pattern    string               `json:"pattern"`
	Samplerate float64              `json:"samplerate"`
	OpenedAt   time.Time            `json:"opened_at"`
	Channels   []reader.ChannelInfo `json:"channels"`
}

// WindowResponse holds the samples of a windowed read
type WindowResponse struct {
	Channel    int        `json:"channel"`
	Start      int        `json:"start"` // Index of the first sample
	Samplerate float64    `json:"samplerate"`
	Values     []float64  `json:"values,omitempty"`
	Raw        *RawValues `json:"raw,omitempty"`
}

// RawValues holds raw codes and the parameters that convert them
type RawValues struct {
	DType   string    `json:"dtype"`
	Codes   []float64 `json:"codes"`
	Scale   float64   `json:"scale"`
	Offset  float64   `json:"offset"`
	Bitmask uint64    `json:"bitmask,omitempty"`
}

// StreamChunk is one line of a streamed response
type StreamChunk struct {
	Start  int       `json:"start"`
	Values []float64 `json:"values"`
}
