// Package dtype describes the on-disk element layout of raw sample files and
// provides a zero-copy strided view over mapped file payloads.
//
// A DType is written the way acquisition settings usually spell it: a byte
// order character followed by a kind character and the element width in
// bytes, for example "<i2" (little-endian int16), ">u2" (big-endian uint16)
// or "<f4" (little-endian float32). Interleaved multi-channel layouts are
// described by Fields (elements per record) and Field (the element selected
// from each record).
package dtype

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// ByteOrder is the byte order of a single element.
type ByteOrder uint8

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// Kind is the numeric kind of a single element.
type Kind uint8

const (
	Int Kind = iota
	Uint
	Float
)

// DType describes how one element of a sample file is stored.
type DType struct {
	Order  ByteOrder // Byte order of each element
	Kind   Kind      // Signed, unsigned or floating point
	Width  int       // Element width in bytes
	Fields int       // Elements per record, 1 for non-interleaved data
	Field  int       // Index of the selected element within a record
}

// Common element types.
var (
	Int16   = DType{Order: LittleEndian, Kind: Int, Width: 2, Fields: 1}
	Uint16  = DType{Order: LittleEndian, Kind: Uint, Width: 2, Fields: 1}
	Float32 = DType{Order: LittleEndian, Kind: Float, Width: 4, Fields: 1}
	Float64 = DType{Order: LittleEndian, Kind: Float, Width: 8, Fields: 1}
)

// Parse parses a numpy-style type string such as "<i2", ">u2" or "<f4".
// A missing order character, "=" or "|" means little-endian.
func Parse(s string) (DType, error) {
	dt := DType{Order: LittleEndian, Fields: 1}
	if s == "" {
		return DType{}, fmt.Errorf("empty dtype")
	}

	rest := s
	switch rest[0] {
	case '<', '=', '|':
		rest = rest[1:]
	case '>':
		dt.Order = BigEndian
		rest = rest[1:]
	}

	if len(rest) < 2 {
		return DType{}, fmt.Errorf("invalid dtype %q", s)
	}

	switch rest[0] {
	case 'i':
		dt.Kind = Int
	case 'u':
		dt.Kind = Uint
	case 'f':
		dt.Kind = Float
	default:
		return DType{}, fmt.Errorf("invalid dtype %q: unknown kind %q", s, rest[0])
	}

	width, err := strconv.Atoi(rest[1:])
	if err != nil {
		return DType{}, fmt.Errorf("invalid dtype %q: %w", s, err)
	}
	dt.Width = width

	if err := dt.Validate(); err != nil {
		return DType{}, err
	}
	return dt, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) DType {
	dt, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return dt
}

// Validate reports whether the element width is supported for the kind and
// the interleave selection is in range.
func (d DType) Validate() error {
	switch d.Kind {
	case Int, Uint:
		switch d.Width {
		case 1, 2, 4, 8:
		default:
			return fmt.Errorf("unsupported integer width %d", d.Width)
		}
	case Float:
		if d.Width != 4 && d.Width != 8 {
			return fmt.Errorf("unsupported float width %d", d.Width)
		}
	default:
		return fmt.Errorf("unknown kind %d", d.Kind)
	}

	if d.Fields < 1 {
		return fmt.Errorf("record must hold at least one field, got %d", d.Fields)
	}
	if d.Field < 0 || d.Field >= d.Fields {
		return fmt.Errorf("field %d out of range for %d fields", d.Field, d.Fields)
	}
	return nil
}

// Interleaved returns a copy of d that selects element field out of records
// of fields elements.
func (d DType) Interleaved(fields, field int) DType {
	d.Fields = fields
	d.Field = field
	return d
}

// Element returns d with the interleave layout stripped.
func (d DType) Element() DType {
	d.Fields = 1
	d.Field = 0
	return d
}

// RecordSize returns the size in bytes of one record.
func (d DType) RecordSize() int {
	fields := d.Fields
	if fields < 1 {
		fields = 1
	}
	return d.Width * fields
}

// String returns the numpy-style spelling of the element type.
func (d DType) String() string {
	order := "<"
	if d.Order == BigEndian {
		order = ">"
	}
	kind := "i"
	switch d.Kind {
	case Uint:
		kind = "u"
	case Float:
		kind = "f"
	}
	s := order + kind + strconv.Itoa(d.Width)
	if d.Fields > 1 {
		s += fmt.Sprintf("[%d/%d]", d.Field, d.Fields)
	}
	return s
}

func (d DType) byteOrder() binary.ByteOrder {
	if d.Order == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
