package format

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"

	"github.com/ssargent/poreread/pkg/abf"
	"github.com/ssargent/poreread/pkg/dtype"
	"github.com/ssargent/poreread/pkg/reader"
)

var abfStamps = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}_\d{2}_\d{2}`),
	regexp.MustCompile(`_\d{4}`),
}

// ABF2 reads Axon Binary Format 2 files.
type ABF2 struct{}

// NewABF2 returns the ABF2 format.
func NewABF2() *ABF2 {
	return &ABF2{}
}

func (*ABF2) Name() string             { return "abf2" }
func (*ABF2) Extension() string        { return ".abf" }
func (*ABF2) Stamps() []*regexp.Regexp { return abfStamps }
func (*ABF2) ConcurrentSafe() bool     { return true }
func (*ABF2) Fingerprint() string      { return "" }

// RawType is float32 so raw reads of both int16 and float32 files are exact.
func (*ABF2) RawType() *dtype.DType {
	dt := dtype.Float32
	return &dt
}

// Resolve decodes the header of path and returns one source per ADC channel.
func (*ABF2) Resolve(path string) ([]reader.Source, error) {
	h, err := ReadABFHeader(path)
	if err != nil {
		return nil, err
	}

	samplerate := h.Samplerate()
	start := h.StartTime()
	sources := make([]reader.Source, len(h.Channels))
	for i, adc := range h.Channels {
		sources[i] = reader.Source{
			Path:      path,
			Channel:   int(adc.Number),
			Timestamp: start,
			Config: reader.FileConfig{
				Samplerate:  samplerate,
				DType:       h.DType(i),
				HeaderBytes: h.DataOffset(),
				Records:     h.SamplesPerChannel(),
				Scale:       h.ScaleFactor(i),
				Extras: map[string]string{
					"name":              adc.Name,
					"units":             adc.Units,
					"version":           h.Version(),
					"programmable_gain": formatFloat(float64(adc.ProgrammableGain)),
					"signal_gain":       formatFloat(float64(adc.SignalGain)),
					"telegraph_gain":    formatFloat(float64(adc.TelegraphAdditGain)),
					"telegraph_filter":  formatFloat(float64(adc.TelegraphFilter)),
					"lowpass_filter":    formatFloat(float64(adc.LowpassFilter)),
					"highpass_filter":   formatFloat(float64(adc.HighpassFilter)),
				},
			},
		}
	}
	return sources, nil
}

// ReadABFHeader opens path and decodes its ABF2 header.
func ReadABFHeader(path string) (*abf.Header, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", reader.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %s: %v", reader.ErrIO, path, err)
	}
	defer f.Close()

	h, err := abf.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
