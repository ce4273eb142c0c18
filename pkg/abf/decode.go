package abf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// fieldReader reads little-endian primitives at absolute offsets. The first
// error sticks and turns every later read into a no-op.
type fieldReader struct {
	r   io.ReadSeeker
	buf [8]byte
	err error
}

func (f *fieldReader) bytes(off int64, n int) []byte {
	if f.err != nil {
		return make([]byte, n)
	}
	if _, err := f.r.Seek(off, io.SeekStart); err != nil {
		f.err = fmt.Errorf("error seeking to offset %d: %w", off, err)
		return make([]byte, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(f.r, b); err != nil {
		f.err = fmt.Errorf("error reading %d bytes at offset %d: %w", n, off, err)
	}
	return b
}

func (f *fieldReader) fixed(off int64, n int) []byte {
	if f.err != nil {
		return f.buf[:n]
	}
	if _, err := f.r.Seek(off, io.SeekStart); err != nil {
		f.err = fmt.Errorf("error seeking to offset %d: %w", off, err)
		return f.buf[:n]
	}
	if _, err := io.ReadFull(f.r, f.buf[:n]); err != nil {
		f.err = fmt.Errorf("error reading %d bytes at offset %d: %w", n, off, err)
	}
	return f.buf[:n]
}

func (f *fieldReader) u32(off int64) uint32 {
	return binary.LittleEndian.Uint32(f.fixed(off, 4))
}

func (f *fieldReader) i32(off int64) int32 {
	return int32(f.u32(off))
}

func (f *fieldReader) i16(off int64) int16 {
	return int16(binary.LittleEndian.Uint16(f.fixed(off, 2)))
}

func (f *fieldReader) f32(off int64) float32 {
	return math.Float32frombits(f.u32(off))
}

func (f *fieldReader) section(off int64) Section {
	return Section{
		BlockIndex: f.u32(off),
		Bytes:      f.u32(off + 4),
		Entries:    f.i32(off + 8),
	}
}

// Decode reads an ABF2 header from r.
func Decode(r io.ReadSeeker) (*Header, error) {
	f := &fieldReader{r: r}
	h := &Header{}

	h.Signature = string(f.bytes(0, 4))
	if f.err != nil {
		return nil, fmt.Errorf("error reading signature: %w", f.err)
	}
	if h.Signature != Signature {
		return nil, fmt.Errorf("%w: signature %q", ErrUnsupportedVersion, h.Signature)
	}

	copy(h.FileVersion[:], f.bytes(4, 4))
	h.StartDate = f.u32(16)
	h.StartTimeMS = f.u32(20)
	h.DataFormat = f.i16(30)

	h.Protocol = f.section(protocolSectionOffset)
	h.ADCs = f.section(adcSectionOffset)
	h.Strings = f.section(stringsSectionOffset)
	h.Data = f.section(dataSectionOffset)
	if f.err != nil {
		return nil, fmt.Errorf("error reading section map: %w", f.err)
	}

	if h.Protocol.Empty() {
		return nil, fmt.Errorf("%w: missing protocol section", ErrMalformedHeader)
	}
	if h.ADCs.Empty() {
		return nil, fmt.Errorf("%w: missing ADC section", ErrMalformedHeader)
	}
	if h.Data.Empty() {
		return nil, fmt.Errorf("%w: missing data section", ErrMalformedHeader)
	}
	if h.ADCs.Bytes < adcEntrySize {
		return nil, fmt.Errorf("%w: ADC entry size %d smaller than %d", ErrMalformedHeader, h.ADCs.Bytes, adcEntrySize)
	}

	switch h.DataFormat {
	case FormatInt16:
		if h.Data.Bytes != 2 {
			return nil, fmt.Errorf("%w: int16 data with %d-byte entries", ErrMalformedHeader, h.Data.Bytes)
		}
	case FormatFloat32:
		if h.Data.Bytes != 4 {
			return nil, fmt.Errorf("%w: float32 data with %d-byte entries", ErrMalformedHeader, h.Data.Bytes)
		}
	default:
		return nil, fmt.Errorf("%w: data format %d", ErrUnsupportedVersion, h.DataFormat)
	}

	// Protocol section
	p := h.Protocol.Offset()
	h.ADCSequenceInterval = f.f32(p + 2)
	h.SecondsPerRun = f.f32(p + 18)
	h.SamplesPerEpisode = f.i32(p + 22)
	h.ADCRange = f.f32(p + 110)
	h.ADCResolution = f.i32(p + 118)
	if f.err != nil {
		return nil, fmt.Errorf("error reading protocol section: %w", f.err)
	}
	if h.ADCSequenceInterval <= 0 {
		return nil, fmt.Errorf("%w: sample interval %v", ErrMalformedHeader, h.ADCSequenceInterval)
	}
	if h.ADCResolution == 0 {
		return nil, fmt.Errorf("%w: zero ADC resolution", ErrMalformedHeader)
	}

	// ADC section, one entry per channel
	h.Channels = make([]ADC, h.ADCs.Entries)
	for i := range h.Channels {
		a := h.ADCs.Offset() + int64(i)*int64(h.ADCs.Bytes)
		h.Channels[i] = ADC{
			Number:                f.i16(a + 0),
			TelegraphEnable:       f.i16(a + 2),
			TelegraphAdditGain:    f.f32(a + 6),
			TelegraphFilter:       f.f32(a + 10),
			ProgrammableGain:      f.f32(a + 28),
			InstrumentScaleFactor: f.f32(a + 40),
			InstrumentOffset:      f.f32(a + 44),
			SignalGain:            f.f32(a + 48),
			SignalOffset:          f.f32(a + 52),
			LowpassFilter:         f.f32(a + 56),
			HighpassFilter:        f.f32(a + 60),
			NameIndex:             f.i32(a + 74),
			UnitsIndex:            f.i32(a + 78),
		}
	}
	if f.err != nil {
		return nil, fmt.Errorf("error reading ADC section: %w", f.err)
	}
	if int(h.Data.Entries)%len(h.Channels) != 0 {
		return nil, fmt.Errorf("%w: %d data points not divisible by %d channels", ErrMalformedHeader, h.Data.Entries, len(h.Channels))
	}

	// String table
	if !h.Strings.Empty() {
		blob := f.bytes(h.Strings.Offset(), int(h.Strings.Bytes))
		if f.err != nil {
			return nil, fmt.Errorf("error reading strings section: %w", f.err)
		}
		table := parseStrings(blob)
		for i := range h.Channels {
			h.Channels[i].Name = lookup(table, h.Channels[i].NameIndex)
			h.Channels[i].Units = lookup(table, h.Channels[i].UnitsIndex)
		}
	}

	return h, nil
}
