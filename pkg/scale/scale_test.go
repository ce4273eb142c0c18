package scale

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/poreread/pkg/dtype"
)

func int16Slice(values ...int16) dtype.Slice {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(v))
	}
	return dtype.NewSlice(buf, dtype.Int16)
}

func uint16Slice(values ...uint16) dtype.Slice {
	buf := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return dtype.NewSlice(buf, dtype.Uint16)
}

func TestConvertLinear(t *testing.T) {
	raw := int16Slice(-2, 0, 1, 100)
	got := Convert(raw, Params{Scale: 0.5, Offset: 10})
	assert.Equal(t, []float64{9, 10, 10.5, 60}, got)
}

func TestConvertIdentity(t *testing.T) {
	raw := int16Slice(-3, 7)
	assert.Equal(t, []float64{-3, 7}, Convert(raw, Identity()))
}

func TestConvertReturnsFreshCopy(t *testing.T) {
	raw := int16Slice(5, 6)
	first := Convert(raw, Identity())
	first[0] = 42
	second := Convert(raw, Identity())
	assert.Equal(t, 5.0, second[0])
}

func TestConvertBitmaskBeforeScale(t *testing.T) {
	raw := uint16Slice(0xFFFF, 0x1234)
	got := Convert(raw, Params{Scale: 2, Bitmask: 0xFFF0})
	assert.Equal(t, []float64{2 * 0xFFF0, 2 * 0x1230}, got)
}

func TestConvertBitmaskWidensSignedCodes(t *testing.T) {
	raw := int16Slice(-1)
	got := Convert(raw, Params{Scale: 1, Bitmask: 0xFFFFFFFF, MaskWidth: 4})
	assert.Equal(t, []float64{0xFFFFFFFF}, got)
}

func TestZeroBitmaskIsNoMask(t *testing.T) {
	raw := int16Slice(-5, 3, 1000)
	p := Params{Scale: 0.25, Offset: -1}
	withZero := p
	withZero.Bitmask = 0
	assert.Equal(t, Convert(raw, p), Convert(raw, withZero))
}

func TestRoundTrip(t *testing.T) {
	codes := []int16{-32768, -1234, -1, 0, 1, 4096, 32767}
	raw := int16Slice(codes...)

	for _, p := range []Params{
		{Scale: 1.5259e-4, Offset: 0},
		{Scale: -3.2, Offset: 17.5},
		{Scale: 1e-12, Offset: -4e-9},
		{Scale: 12345.678, Offset: 1},
	} {
		values := Convert(raw, p)
		Invert(values, p.Scale, p.Offset)
		for i, c := range codes {
			assert.InDelta(t, float64(c), values[i], 1e-6, "scale=%v offset=%v", p.Scale, p.Offset)
		}
	}
}

func TestRaw(t *testing.T) {
	raw := int16Slice(1, 2, 3)
	rawType := dtype.Int16

	got, s, o, err := Raw(raw, Params{Scale: 2, Offset: 3}, &rawType)
	require.NoError(t, err)
	assert.Equal(t, 2.0, s)
	assert.Equal(t, 3.0, o)
	assert.Equal(t, []float64{1, 2, 3}, got.Floats())

	_, _, _, err = Raw(raw, Params{Scale: 2}, nil)
	assert.ErrorIs(t, err, ErrRawTypeRequired)
}
