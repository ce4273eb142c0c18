package abf

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/ssargent/poreread/pkg/dtype"
)

// BlockSize is the size in bytes of one ABF2 block.
const BlockSize = 512

// Signature is the four-byte tag at the start of every ABF2 file.
const Signature = "ABF2"

// Data formats.
const (
	FormatInt16   int16 = 0
	FormatFloat32 int16 = 1
)

// Section descriptor offsets within the file header.
const (
	protocolSectionOffset = 76
	adcSectionOffset      = 92
	stringsSectionOffset  = 220
	dataSectionOffset     = 236
)

// adcEntrySize is the number of bytes of one ADC entry that the decoder reads.
const adcEntrySize = 82

var (
	ErrUnsupportedVersion = errors.New("unsupported format")
	ErrMalformedHeader    = errors.New("malformed header")
)

// Section locates one section of an ABF2 file.
type Section struct {
	BlockIndex uint32 // Block number where the section starts
	Bytes      uint32 // Size of one entry in bytes
	Entries    int32  // Number of entries
}

// Offset returns the byte offset of the first entry.
func (s Section) Offset() int64 {
	return int64(s.BlockIndex) * BlockSize
}

// Empty reports whether the section is absent.
func (s Section) Empty() bool {
	return s.BlockIndex == 0 || s.Entries <= 0
}

// ADC holds the decoded fields of one ADC channel entry.
type ADC struct {
	Number                int16   // nADCNum, the hardware channel number
	TelegraphEnable       int16   // Nonzero when the telegraph gain applies
	TelegraphAdditGain    float32 // Additional telegraphed gain
	TelegraphFilter       float32 // Telegraphed filter cutoff in Hz
	ProgrammableGain      float32 // ADC programmable gain
	InstrumentScaleFactor float32 // Instrument scale factor
	InstrumentOffset      float32 // Instrument offset
	SignalGain            float32 // Signal conditioner gain
	SignalOffset          float32 // Signal conditioner offset
	LowpassFilter         float32 // Signal lowpass cutoff in Hz
	HighpassFilter        float32 // Signal highpass cutoff in Hz
	NameIndex             int32   // Index of the channel name in the string table
	UnitsIndex            int32   // Index of the units in the string table
	Name                  string  // Channel name
	Units                 string  // Physical units
}

// Header is a decoded ABF2 header.
type Header struct {
	Signature   string
	FileVersion [4]byte
	StartDate   uint32 // yyyymmdd
	StartTimeMS uint32 // Milliseconds since midnight
	DataFormat  int16

	Protocol Section
	ADCs     Section
	Strings  Section
	Data     Section

	ADCSequenceInterval float32 // Sample interval in microseconds
	SecondsPerRun       float32
	SamplesPerEpisode   int32
	ADCRange            float32 // ADC input range in volts
	ADCResolution       int32   // Number of ADC codes

	Channels []ADC
}

// Version returns the file version as a dotted string, most significant
// part first.
func (h *Header) Version() string {
	v := h.FileVersion
	return fmt.Sprintf("%d.%d.%d.%d", v[3], v[2], v[1], v[0])
}

// ChannelCount returns the number of interleaved channels in the data section.
func (h *Header) ChannelCount() int {
	return len(h.Channels)
}

// Samplerate returns the per-channel sample rate in Hz.
func (h *Header) Samplerate() float64 {
	return 1e6 / float64(h.ADCSequenceInterval)
}

// DataOffset returns the byte offset where sample data begins.
func (h *Header) DataOffset() int64 {
	return h.Data.Offset()
}

// SamplesPerChannel returns the number of samples recorded on each channel.
func (h *Header) SamplesPerChannel() int {
	if len(h.Channels) == 0 {
		return 0
	}
	return int(h.Data.Entries) / len(h.Channels)
}

// DType returns the on-disk element type of channel i's samples.
func (h *Header) DType(i int) dtype.DType {
	dt := dtype.Int16
	if h.DataFormat == FormatFloat32 {
		dt = dtype.Float32
	}
	return dt.Interleaved(len(h.Channels), i)
}

// StartTime returns the recording start as a UTC time, or the zero time when
// the header carries no date.
func (h *Header) StartTime() time.Time {
	if h.StartDate == 0 {
		return time.Time{}
	}
	y := int(h.StartDate / 10000)
	m := time.Month(h.StartDate / 100 % 100)
	d := int(h.StartDate % 100)
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(time.Duration(h.StartTimeMS) * time.Millisecond)
}

// ScaleFactor returns the code-to-physical multiplier for channel i.
func (h *Header) ScaleFactor(i int) float64 {
	if h.DataFormat == FormatFloat32 {
		return 1
	}
	adc := h.Channels[i]

	scale := 1.0
	scale /= float64(adc.InstrumentScaleFactor)
	scale /= float64(adc.SignalGain)
	scale /= float64(adc.ProgrammableGain)
	if adc.TelegraphEnable != 0 {
		scale /= float64(adc.TelegraphAdditGain)
	}
	scale *= float64(h.ADCRange)
	scale /= float64(h.ADCResolution)
	scale += float64(adc.InstrumentOffset)
	scale -= float64(adc.SignalOffset)
	return scale
}

// parseStrings splits the strings section into its indexed entries.
func parseStrings(blob []byte) []string {
	start := bytes.Index(blob, []byte{0, 0})
	if start < 0 {
		return nil
	}
	indexed := bytes.ReplaceAll(blob[start:], []byte{0xB5}, []byte{0x75})
	parts := bytes.Split(indexed, []byte{0})[1:]

	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = string(p)
	}
	return out
}

func lookup(table []string, idx int32) string {
	if idx < 0 || int(idx) >= len(table) {
		return ""
	}
	return table[idx]
}
