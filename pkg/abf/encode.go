package abf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// encodedADCEntrySize is the ADC entry size written by Encode, matching the
// size Clampex uses.
const encodedADCEntrySize = 128

// Sample is the set of element types an ABF2 data section can hold.
type Sample interface {
	int16 | float32
}

// Encode writes a minimal ABF2 file holding h and the interleaved samples in
// data. Section descriptors, data format and string indices in h are
// ignored and derived from the channel list and the sample type.
func Encode[T Sample](w io.Writer, h Header, data []T) error {
	if len(h.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	if len(data)%len(h.Channels) != 0 {
		return fmt.Errorf("%d samples not divisible by %d channels", len(data), len(h.Channels))
	}

	var zero T
	width := 2
	h.DataFormat = FormatInt16
	if _, ok := any(zero).(float32); ok {
		width = 4
		h.DataFormat = FormatFloat32
	}

	h.Channels = append([]ADC(nil), h.Channels...)

	// String table: comment block, NUL-NUL boundary, then name/unit pairs.
	strs := []byte("poreread\x00\x00")
	for i := range h.Channels {
		h.Channels[i].NameIndex = int32(2*i + 1)
		h.Channels[i].UnitsIndex = int32(2*i + 2)
		strs = append(strs, h.Channels[i].Name...)
		strs = append(strs, 0)
		strs = append(strs, h.Channels[i].Units...)
		strs = append(strs, 0)
	}

	adcBlocks := blocksFor(len(h.Channels) * encodedADCEntrySize)
	h.Protocol = Section{BlockIndex: 1, Bytes: BlockSize, Entries: 1}
	h.ADCs = Section{BlockIndex: 2, Bytes: encodedADCEntrySize, Entries: int32(len(h.Channels))}
	h.Strings = Section{BlockIndex: uint32(2 + adcBlocks), Bytes: uint32(len(strs)), Entries: int32(2 * len(h.Channels))}
	h.Data = Section{
		BlockIndex: h.Strings.BlockIndex + uint32(blocksFor(len(strs))),
		Bytes:      uint32(width),
		Entries:    int32(len(data)),
	}

	buf := make([]byte, h.Data.Offset()+int64(len(data)*width))
	le := binary.LittleEndian

	copy(buf[0:], Signature)
	copy(buf[4:], h.FileVersion[:])
	le.PutUint32(buf[16:], h.StartDate)
	le.PutUint32(buf[20:], h.StartTimeMS)
	le.PutUint16(buf[30:], uint16(h.DataFormat))
	putSection(buf[protocolSectionOffset:], h.Protocol)
	putSection(buf[adcSectionOffset:], h.ADCs)
	putSection(buf[stringsSectionOffset:], h.Strings)
	putSection(buf[dataSectionOffset:], h.Data)

	p := buf[h.Protocol.Offset():]
	le.PutUint32(p[2:], math.Float32bits(h.ADCSequenceInterval))
	le.PutUint32(p[18:], math.Float32bits(h.SecondsPerRun))
	le.PutUint32(p[22:], uint32(h.SamplesPerEpisode))
	le.PutUint32(p[110:], math.Float32bits(h.ADCRange))
	le.PutUint32(p[118:], uint32(h.ADCResolution))

	for i, adc := range h.Channels {
		a := buf[h.ADCs.Offset()+int64(i*encodedADCEntrySize):]
		le.PutUint16(a[0:], uint16(adc.Number))
		le.PutUint16(a[2:], uint16(adc.TelegraphEnable))
		le.PutUint32(a[6:], math.Float32bits(adc.TelegraphAdditGain))
		le.PutUint32(a[10:], math.Float32bits(adc.TelegraphFilter))
		le.PutUint32(a[28:], math.Float32bits(adc.ProgrammableGain))
		le.PutUint32(a[40:], math.Float32bits(adc.InstrumentScaleFactor))
		le.PutUint32(a[44:], math.Float32bits(adc.InstrumentOffset))
		le.PutUint32(a[48:], math.Float32bits(adc.SignalGain))
		le.PutUint32(a[52:], math.Float32bits(adc.SignalOffset))
		le.PutUint32(a[56:], math.Float32bits(adc.LowpassFilter))
		le.PutUint32(a[60:], math.Float32bits(adc.HighpassFilter))
		le.PutUint32(a[74:], uint32(adc.NameIndex))
		le.PutUint32(a[78:], uint32(adc.UnitsIndex))
	}

	copy(buf[h.Strings.Offset():], strs)

	d := buf[h.Data.Offset():]
	for i, v := range data {
		switch v := any(v).(type) {
		case int16:
			le.PutUint16(d[2*i:], uint16(v))
		case float32:
			le.PutUint32(d[4*i:], math.Float32bits(v))
		}
	}

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("error writing ABF2 file: %w", err)
	}
	return nil
}

func putSection(b []byte, s Section) {
	binary.LittleEndian.PutUint32(b[0:], s.BlockIndex)
	binary.LittleEndian.PutUint32(b[4:], s.Bytes)
	binary.LittleEndian.PutUint32(b[8:], uint32(s.Entries))
}

func blocksFor(n int) int {
	blocks := (n + BlockSize - 1) / BlockSize
	if blocks == 0 {
		blocks = 1
	}
	return blocks
}
