package dtype

import (
	"fmt"
	"math"
)

// Slice is a zero-copy view over a run of records. Element i is read from
// the selected field of record i on demand; nothing is decoded up front.
//
// A Slice never owns its bytes. When it is backed by a memory map the view is
// only valid while the map is open and must not be written to.
type Slice struct {
	dt   DType
	data []byte
	n    int
}

// NewSlice returns a view over data interpreted as records of dt. Trailing
// bytes that do not form a whole record are ignored.
func NewSlice(data []byte, dt DType) Slice {
	if dt.Fields < 1 {
		dt.Fields = 1
	}
	n := 0
	if rec := dt.RecordSize(); rec > 0 {
		n = len(data) / rec
	}
	return Slice{dt: dt, data: data[:n*dt.RecordSize()], n: n}
}

// DType returns the element layout of the view.
func (s Slice) DType() DType {
	return s.dt
}

// Len returns the number of elements in the view.
func (s Slice) Len() int {
	return s.n
}

// Sub returns the zero-copy view of elements [i, j).
func (s Slice) Sub(i, j int) Slice {
	if i < 0 || j < i || j > s.n {
		panic(fmt.Sprintf("dtype: slice bounds [%d:%d] out of range with length %d", i, j, s.n))
	}
	rec := s.dt.RecordSize()
	return Slice{dt: s.dt, data: s.data[i*rec : j*rec], n: j - i}
}

func (s Slice) at(i int) []byte {
	off := i*s.dt.RecordSize() + s.dt.Field*s.dt.Width
	return s.data[off : off+s.dt.Width]
}

// Bits returns element i widened to 64 bits. Signed integers are sign
// extended; floats return their IEEE 754 bit pattern.
func (s Slice) Bits(i int) uint64 {
	b := s.at(i)
	order := s.dt.byteOrder()

	var u uint64
	switch s.dt.Width {
	case 1:
		u = uint64(b[0])
	case 2:
		u = uint64(order.Uint16(b))
	case 4:
		u = uint64(order.Uint32(b))
	case 8:
		u = order.Uint64(b)
	}

	if s.dt.Kind == Int && s.dt.Width < 8 {
		shift := 64 - 8*uint(s.dt.Width)
		u = uint64(int64(u<<shift) >> shift)
	}
	return u
}

// Float returns element i converted to float64.
func (s Slice) Float(i int) float64 {
	u := s.Bits(i)
	switch s.dt.Kind {
	case Int:
		return float64(int64(u))
	case Uint:
		return float64(u)
	default:
		if s.dt.Width == 4 {
			return float64(math.Float32frombits(uint32(u)))
		}
		return math.Float64frombits(u)
	}
}

// Floats returns a fresh float64 copy of every element.
func (s Slice) Floats() []float64 {
	out := make([]float64, s.n)
	for i := range out {
		out[i] = s.Float(i)
	}
	return out
}

// Pack casts every element to the element type to and returns a new
// densely packed, non-interleaved view that owns its bytes.
func (s Slice) Pack(to DType) Slice {
	to = to.Element()
	buf := make([]byte, s.n*to.Width)
	for i := 0; i < s.n; i++ {
		putElement(buf[i*to.Width:(i+1)*to.Width], to, s, i)
	}
	return Slice{dt: to, data: buf, n: s.n}
}

// Concat packs each view into to and joins them into one owned view.
func Concat(to DType, parts ...Slice) Slice {
	to = to.Element()
	total := 0
	for _, p := range parts {
		total += p.n
	}
	buf := make([]byte, 0, total*to.Width)
	for _, p := range parts {
		buf = append(buf, p.Pack(to).data...)
	}
	return Slice{dt: to, data: buf, n: total}
}

func putElement(dst []byte, to DType, src Slice, i int) {
	order := to.byteOrder()

	var u uint64
	switch to.Kind {
	case Float:
		f := src.Float(i)
		if to.Width == 4 {
			u = uint64(math.Float32bits(float32(f)))
		} else {
			u = math.Float64bits(f)
		}
	default:
		if src.dt.Kind == Float {
			u = uint64(int64(src.Float(i)))
		} else {
			u = src.Bits(i)
		}
	}

	switch to.Width {
	case 1:
		dst[0] = byte(u)
	case 2:
		order.PutUint16(dst, uint16(u))
	case 4:
		order.PutUint32(dst, uint32(u))
	case 8:
		order.PutUint64(dst, u)
	}
}
