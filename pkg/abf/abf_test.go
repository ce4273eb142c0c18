package abf

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/poreread/pkg/dtype"
)

func testHeader() Header {
	return Header{
		FileVersion:         [4]byte{0, 0, 6, 2},
		StartDate:           20240315,
		StartTimeMS:         (13*3600 + 30*60 + 5) * 1000,
		ADCSequenceInterval: 4, // 250 kHz
		ADCRange:            10,
		ADCResolution:       32768,
		Channels: []ADC{
			{
				Number:                0,
				InstrumentScaleFactor: 2,
				SignalGain:            1,
				ProgrammableGain:      1,
				Name:                  "IN 0",
				Units:                 "pA",
			},
			{
				Number:                3,
				TelegraphEnable:       1,
				TelegraphAdditGain:    5,
				InstrumentScaleFactor: 0.5,
				SignalGain:            2,
				ProgrammableGain:      1,
				LowpassFilter:         10000,
				Name:                  "IN 3",
				Units:                 "\xb5V",
			},
		},
	}
}

func encode(t *testing.T, h Header, data []int16) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, h, data))
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	raw := encode(t, testHeader(), []int16{1, 2, 3, 4, 5, 6})

	h, err := Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, Signature, h.Signature)
	assert.Equal(t, "2.6.0.0", h.Version())
	assert.Equal(t, 2, h.ChannelCount())
	assert.Equal(t, 3, h.SamplesPerChannel())
	assert.InDelta(t, 250000, h.Samplerate(), 1e-6)
	assert.Equal(t, time.Date(2024, 3, 15, 13, 30, 5, 0, time.UTC), h.StartTime())

	assert.Equal(t, "IN 0", h.Channels[0].Name)
	assert.Equal(t, "pA", h.Channels[0].Units)
	assert.Equal(t, int16(3), h.Channels[1].Number)
	assert.Equal(t, "IN 3", h.Channels[1].Name)
	assert.Equal(t, "uV", h.Channels[1].Units)
	assert.Equal(t, float32(10000), h.Channels[1].LowpassFilter)

	assert.Equal(t, dtype.Int16.Interleaved(2, 1), h.DType(1))
	assert.Equal(t, int64(h.Data.BlockIndex)*BlockSize, h.DataOffset())

	// the payload really starts at DataOffset
	d := raw[h.DataOffset():]
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(d[0:]))
	assert.Equal(t, uint16(6), binary.LittleEndian.Uint16(d[10:]))
}

func TestScaleFactor(t *testing.T) {
	h := testHeader()

	// 1/2 * 10 / 32768
	assert.InDelta(t, 1.5259e-4, h.ScaleFactor(0), 1e-8)
	assert.InDelta(t, 0.5*10.0/32768, h.ScaleFactor(0), 1e-15)

	// 1/0.5/2/1/5 * 10 / 32768
	assert.InDelta(t, 0.2*10.0/32768, h.ScaleFactor(1), 1e-12)

	// any nonzero flag enables the telegraph gain
	h.Channels[1].TelegraphEnable = 2
	assert.InDelta(t, 0.2*10.0/32768, h.ScaleFactor(1), 1e-12)
	h.Channels[1].TelegraphEnable = -1
	assert.InDelta(t, 0.2*10.0/32768, h.ScaleFactor(1), 1e-12)

	h.Channels[1].TelegraphEnable = 0
	assert.InDelta(t, 1.0*10.0/32768, h.ScaleFactor(1), 1e-12)

	h.Channels[0].InstrumentOffset = 1
	h.Channels[0].SignalOffset = 0.25
	assert.InDelta(t, 0.5*10.0/32768+0.75, h.ScaleFactor(0), 1e-12)

	h.DataFormat = FormatFloat32
	assert.Equal(t, 1.0, h.ScaleFactor(0))
}

func TestDecodeFloatData(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, testHeader(), []float32{0.5, 1.5}))

	h, err := Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, FormatFloat32, h.DataFormat)
	assert.Equal(t, dtype.Float32.Interleaved(2, 0), h.DType(0))
	assert.Equal(t, 1.0, h.ScaleFactor(1))
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	raw := encode(t, testHeader(), []int16{0, 0})
	copy(raw, "ABF ")

	_, err := Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name   string
		offset int
	}{
		{name: "missing protocol section", offset: protocolSectionOffset},
		{name: "missing ADC section", offset: adcSectionOffset},
		{name: "missing data section", offset: dataSectionOffset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := encode(t, testHeader(), []int16{0, 0})
			binary.LittleEndian.PutUint32(raw[tt.offset:], 0)

			_, err := Decode(bytes.NewReader(raw))
			assert.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

func TestDecodeZeroResolution(t *testing.T) {
	h := testHeader()
	h.ADCResolution = 0
	raw := encode(t, h, []int16{0, 0})

	_, err := Decode(bytes.NewReader(raw))
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestDecodeTruncated(t *testing.T) {
	raw := encode(t, testHeader(), []int16{0, 0})

	_, err := Decode(bytes.NewReader(raw[:100]))
	assert.Error(t, err)

	_, err = Decode(bytes.NewReader(raw[:2]))
	assert.Error(t, err)
}

func TestParseStrings(t *testing.T) {
	blob := []byte("comment block\x00\x00IN 0\x00\xb5A\x00")
	table := parseStrings(blob)
	assert.Equal(t, "IN 0", lookup(table, 1))
	assert.Equal(t, "uA", lookup(table, 2))
	assert.Equal(t, "", lookup(table, 99))
	assert.Equal(t, "", lookup(table, -1))

	assert.Nil(t, parseStrings([]byte("no boundary\x00here")))
}

func TestEncodeRejectsRaggedData(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Encode(&buf, testHeader(), []int16{1, 2, 3}))
	assert.Error(t, Encode(&buf, Header{}, []int16{1}))
}
