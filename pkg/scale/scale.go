// Package scale converts raw acquisition codes to physical units.
package scale

import (
	"errors"

	"gonum.org/v1/gonum/floats"

	"github.com/ssargent/poreread/pkg/dtype"
)

// ErrRawTypeRequired is returned when raw output is requested without a
// declared dtype for the eventual cast.
var ErrRawTypeRequired = errors.New("raw mode requires a raw dtype")

// Params is the linear transform applied to one segment.
type Params struct {
	Scale     float64 // Multiplier applied after masking and casting
	Offset    float64 // Added after scaling
	Bitmask   uint64  // AND mask applied to the widened code, 0 disables masking
	MaskWidth int     // Width in bytes of the mask integer, 0 means the element width
}

// Identity returns parameters that leave values unchanged.
func Identity() Params {
	return Params{Scale: 1}
}

// Convert returns a fresh float64 slice holding the elements of raw after
// masking, casting, scaling and offsetting, in that order. The result never
// aliases raw.
func Convert(raw dtype.Slice, p Params) []float64 {
	out := make([]float64, raw.Len())
	ConvertInto(out, raw, p)
	return out
}

// ConvertInto is like Convert but writes into dst, which must have length
// raw.Len().
func ConvertInto(dst []float64, raw dtype.Slice, p Params) {
	if len(dst) != raw.Len() {
		panic("scale: destination length does not match source")
	}

	if p.Bitmask != 0 {
		mask := p.Bitmask & widthMask(maskWidth(raw, p))
		for i := range dst {
			dst[i] = float64(raw.Bits(i) & mask)
		}
	} else {
		for i := range dst {
			dst[i] = raw.Float(i)
		}
	}

	if p.Scale != 1 {
		floats.Scale(p.Scale, dst)
	}
	if p.Offset != 0 {
		floats.AddConst(p.Offset, dst)
	}
}

// Raw returns raw unmodified together with the scale and offset a caller
// needs to convert it later. rawType is the dtype the caller will cast to.
func Raw(raw dtype.Slice, p Params, rawType *dtype.DType) (dtype.Slice, float64, float64, error) {
	if rawType == nil {
		return dtype.Slice{}, 0, 0, ErrRawTypeRequired
	}
	return raw, p.Scale, p.Offset, nil
}

// Invert undoes the scale and offset of Convert in place.
func Invert(values []float64, scale, offset float64) {
	if offset != 0 {
		floats.AddConst(-offset, values)
	}
	if scale != 1 {
		floats.Scale(1/scale, values)
	}
}

func maskWidth(raw dtype.Slice, p Params) int {
	if p.MaskWidth > 0 {
		return p.MaskWidth
	}
	return raw.DType().Width
}

func widthMask(width int) uint64 {
	if width >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * uint(width))) - 1
}
