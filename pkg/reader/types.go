package reader

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"time"

	"github.com/ssargent/poreread/pkg/dtype"
	"github.com/ssargent/poreread/pkg/scale"
)

// FileConfig describes how to turn one file's payload into physical samples
type FileConfig struct {
	Samplerate  float64           `json:"samplerate"`        // Samples per second
	DType       dtype.DType       `json:"dtype"`             // On-disk element layout
	HeaderBytes int64             `json:"header_bytes"`      // Bytes to skip before data begins
	Records     int               `json:"records,omitempty"` // Fixed record count, 0 = until end of file
	Scale       float64           `json:"scale"`             // Multiplier applied to raw codes
	Offset      float64           `json:"offset"`            // Added after scaling
	Bitmask     uint64            `json:"bitmask,omitempty"` // 0 = no mask
	MaskWidth   int               `json:"mask_width,omitempty"`
	Extras      map[string]string `json:"extras,omitempty"` // Format specific metadata
}

// Params returns the scaling parameters of the file.
func (c FileConfig) Params() scale.Params {
	return scale.Params{
		Scale:     c.Scale,
		Offset:    c.Offset,
		Bitmask:   c.Bitmask,
		MaskWidth: c.MaskWidth,
	}
}

// Validate checks that the config can be used to map and convert a file.
func (c FileConfig) Validate() error {
	if c.Samplerate <= 0 || math.IsNaN(c.Samplerate) || math.IsInf(c.Samplerate, 0) {
		return fmt.Errorf("invalid samplerate %v", c.Samplerate)
	}
	if err := c.DType.Validate(); err != nil {
		return fmt.Errorf("invalid dtype: %w", err)
	}
	if c.HeaderBytes < 0 {
		return fmt.Errorf("negative header length %d", c.HeaderBytes)
	}
	if c.Records < 0 {
		return fmt.Errorf("negative record count %d", c.Records)
	}
	if c.Scale == 0 || math.IsNaN(c.Scale) || math.IsInf(c.Scale, 0) {
		return fmt.Errorf("invalid scale %v", c.Scale)
	}
	if math.IsNaN(c.Offset) || math.IsInf(c.Offset, 0) {
		return fmt.Errorf("invalid offset %v", c.Offset)
	}
	if c.Bitmask != 0 && c.DType.Kind == dtype.Float {
		return fmt.Errorf("bitmask cannot be applied to %s data", c.DType)
	}
	return nil
}

// Source is one channel of one file.
type Source struct {
	Path      string     `json:"path"`
	Channel   int        `json:"channel"`
	Timestamp time.Time  `json:"timestamp"`
	Config    FileConfig `json:"config"`
}

// Format is implemented by each supported file format. It describes how
// files of the format are named and decodes the per-file configuration.
type Format interface {
	// Name identifies the format, e.g. "abf2".
	Name() string

	// Extension is the registered file extension including the dot.
	Extension() string

	// Stamps match the variable parts of file names (dates, times,
	// counters, channel tags). They are replaced by wildcards to find the
	// other files of an experiment. No stamps means single-file experiments.
	Stamps() []*regexp.Regexp

	// Resolve decodes the sources held by one file.
	Resolve(path string) ([]Source, error)

	// RawType is the dtype raw reads are cast to, nil if raw reads are not
	// supported.
	RawType() *dtype.DType

	// ConcurrentSafe reports whether concurrent reads of the same channel
	// are safe.
	ConcurrentSafe() bool

	// Fingerprint identifies the host settings that shape resolved sources.
	// Formats whose sources come entirely from the files return "".
	Fingerprint() string
}

// ConfigCache stores resolved sources so unchanged files skip header
// decoding on later opens.
type ConfigCache interface {
	Get(format string, path string, info os.FileInfo) ([]Source, bool)
	Put(format string, path string, info os.FileInfo, sources []Source) error
}

// RawWindow is the result of a raw read.
type RawWindow struct {
	Data      dtype.Slice // Raw codes cast to the format's raw dtype
	Scale     float64     // Scale of the first segment touched
	Offset    float64     // Offset of the first segment touched
	Bitmask   uint64      // Bitmask of the first segment touched, 0 = none
	MaskWidth int
}

// Params returns the conversion parameters of the window.
func (w *RawWindow) Params() scale.Params {
	return scale.Params{Scale: w.Scale, Offset: w.Offset, Bitmask: w.Bitmask, MaskWidth: w.MaskWidth}
}

// Floats converts the raw codes with the window's parameters.
func (w *RawWindow) Floats() []float64 {
	return scale.Convert(w.Data, w.Params())
}

// ChannelInfo summarizes one channel of an open experiment.
type ChannelInfo struct {
	Channel  int      `json:"channel"`
	Length   int      `json:"length"`
	Duration float64  `json:"duration"`
	Files    []string `json:"files"`
}
