package reader

import (
	"fmt"
	"math"

	"github.com/ssargent/poreread/pkg/dtype"
	"github.com/ssargent/poreread/pkg/scale"
)

// ReadWindow returns length seconds of channel starting at start seconds,
// converted to physical units. Times are rounded to the nearest sample.
func (e *Experiment) ReadWindow(channel int, start, length float64) ([]float64, error) {
	return e.ReadSamples(channel, e.toIndex(start), e.toIndex(length))
}

// ReadWindowRaw is the raw-mode counterpart of ReadWindow.
func (e *Experiment) ReadWindowRaw(channel int, start, length float64) (*RawWindow, error) {
	return e.ReadSamplesRaw(channel, e.toIndex(start), e.toIndex(length))
}

// StartIndex returns the sample index a window read from start seconds on
// channel begins at, clamped to the channel length.
func (e *Experiment) StartIndex(channel int, start float64) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	_, i, _, err := e.bounds(channel, e.toIndex(start), 0)
	return i, err
}

// ReadSamples returns n samples of channel starting at sample start. A read
// running past the end of the channel is clamped; a negative start or a
// negative count is an error.
func (e *Experiment) ReadSamples(channel, start, n int) ([]float64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, start, end, err := e.bounds(channel, start, n)
	if err != nil {
		return nil, err
	}

	pieces, _ := t.pieces(start, end)
	out := make([]float64, end-start)
	pos := 0
	for _, p := range pieces {
		scale.ConvertInto(out[pos:pos+p.raw.Len()], p.raw, p.config.Params())
		pos += p.raw.Len()
	}
	return out, nil
}

// ReadSamplesRaw returns the raw codes of n samples of channel starting at
// sample start, cast to the format's raw dtype, with the conversion
// parameters of the first segment touched. Callers must only request spans where every
// segment shares the same scale and offset.
func (e *Experiment) ReadSamplesRaw(channel, start, n int) (*RawWindow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rawType := e.format.RawType()
	if rawType == nil {
		return nil, fmt.Errorf("%w: format %s: %w", ErrConfig, e.format.Name(), scale.ErrRawTypeRequired)
	}

	t, start, end, err := e.bounds(channel, start, n)
	if err != nil {
		return nil, err
	}

	pieces, first := t.pieces(start, end)
	w := &RawWindow{
		Scale:  t.Sources[first].Config.Scale,
		Offset: t.Sources[first].Config.Offset,
	}

	parts := make([]dtype.Slice, len(pieces))
	for i, p := range pieces {
		raw, s, o, err := scale.Raw(p.raw, p.config.Params(), rawType)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			w.Scale, w.Offset = s, o
			w.Bitmask, w.MaskWidth = p.config.Bitmask, p.config.MaskWidth
		}
		parts[i] = raw
	}
	w.Data = dtype.Concat(*rawType, parts...)
	return w, nil
}

// bounds validates a read request and clamps it to the channel.
func (e *Experiment) bounds(channel, start, n int) (*Timeline, int, int, error) {
	if e.closed {
		return nil, 0, 0, ErrClosed
	}
	t, err := e.timeline(channel)
	if err != nil {
		return nil, 0, 0, err
	}

	if start < 0 || n < 0 {
		return nil, 0, 0, e.rangeError(channel, start, addIndex(start, n))
	}
	start = min(start, t.Length)
	end := t.Length
	if n < end-start {
		end = start + n
	}
	return t, start, end, nil
}

// addIndex adds two sample counts, saturating instead of wrapping.
func addIndex(a, b int) int {
	switch {
	case b > 0 && a > math.MaxInt-b:
		return math.MaxInt
	case b < 0 && a < math.MinInt-b:
		return math.MinInt
	}
	return a + b
}

func (e *Experiment) rangeError(channel, start, end int) error {
	return fmt.Errorf("%w: samples [%d, %d) (%gs to %gs) on channel %d",
		ErrRange, start, end, float64(start)/e.samplerate, float64(end)/e.samplerate, channel)
}
