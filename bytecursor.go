// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imgmeta

import (
	"encoding/binary"
	"math"
)

// TypeCode is a TIFF value type: a numeric code identifying the width and
// interpretation of an IfdEntry's payload.
type TypeCode uint16

// The twelve TIFF value types, per the TIFF 6.0 specification.
const (
	TypeUint8      TypeCode = 1
	TypeASCII      TypeCode = 2
	TypeUint16     TypeCode = 3
	TypeUint32     TypeCode = 4
	TypeURational  TypeCode = 5
	TypeInt8       TypeCode = 6
	TypeUndefined8 TypeCode = 7
	TypeInt16      TypeCode = 8
	TypeInt32      TypeCode = 9
	TypeSRational  TypeCode = 10
	TypeSingle     TypeCode = 11
	TypeDouble     TypeCode = 12
)

// typeWidths maps a TypeCode to the byte width of a single element of that
// type. Rational types report the width of the (numerator, denominator)
// pair, since that pair is TIFF's indivisible unit for that type.
var typeWidths = map[TypeCode]int{
	TypeUint8:      1,
	TypeASCII:      1,
	TypeUint16:     2,
	TypeUint32:     4,
	TypeURational:  8,
	TypeInt8:       1,
	TypeUndefined8: 1,
	TypeInt16:      2,
	TypeInt32:      4,
	TypeSRational:  8,
	TypeSingle:     4,
	TypeDouble:     8,
}

// typeWidth returns the element width in bytes for typ, and false if typ is
// not one of the twelve known TIFF types.
func typeWidth(typ TypeCode) (int, bool) {
	w, ok := typeWidths[typ]
	return w, ok
}

// String returns the canonical name of a TypeCode, for diagnostics.
func (t TypeCode) String() string {
	switch t {
	case TypeUint8:
		return "UINT8"
	case TypeASCII:
		return "ASCII"
	case TypeUint16:
		return "UINT16"
	case TypeUint32:
		return "UINT32"
	case TypeURational:
		return "URATIONAL"
	case TypeInt8:
		return "INT8"
	case TypeUndefined8:
		return "UNDEFINED8"
	case TypeInt16:
		return "INT16"
	case TypeInt32:
		return "INT32"
	case TypeSRational:
		return "SRATIONAL"
	case TypeSingle:
		return "SINGLE"
	case TypeDouble:
		return "DOUBLE"
	default:
		return "UNKNOWN"
	}
}

// cursor is an endian-aware, random-access reader/writer over a byte
// buffer. Unlike the teacher's sequential streamReader (io.go), a cursor
// addresses the buffer by absolute offset in both directions, because
// TIFF's front/back layout requires writing the back region out of order
// relative to the front region that references it (spec.md §9).
type cursor struct {
	buf   []byte
	order binary.ByteOrder
}

func newCursor(buf []byte, littleEndian bool) *cursor {
	return &cursor{buf: buf, order: byteOrderOf(littleEndian)}
}

func byteOrderOf(littleEndian bool) binary.ByteOrder {
	if littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (c *cursor) require(offset int64, n int) error {
	if offset < 0 || n < 0 || offset+int64(n) > int64(len(c.buf)) {
		return malformedDataf(c.buf, offset, "unexpected end of buffer reading %d bytes", n)
	}
	return nil
}

func (c *cursor) u8(offset int64) (uint8, error) {
	if err := c.require(offset, 1); err != nil {
		return 0, err
	}
	return c.buf[offset], nil
}

func (c *cursor) i8(offset int64) (int8, error) {
	v, err := c.u8(offset)
	return int8(v), err
}

func (c *cursor) u16(offset int64) (uint16, error) {
	if err := c.require(offset, 2); err != nil {
		return 0, err
	}
	return c.order.Uint16(c.buf[offset:]), nil
}

func (c *cursor) i16(offset int64) (int16, error) {
	v, err := c.u16(offset)
	return int16(v), err
}

func (c *cursor) u32(offset int64) (uint32, error) {
	if err := c.require(offset, 4); err != nil {
		return 0, err
	}
	return c.order.Uint32(c.buf[offset:]), nil
}

func (c *cursor) i32(offset int64) (int32, error) {
	v, err := c.u32(offset)
	return int32(v), err
}

func (c *cursor) f32(offset int64) (float32, error) {
	v, err := c.u32(offset)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// f64 reads a 64-bit IEEE-754 double. Per spec.md §9's "DOUBLE decode bug"
// redesign flag, this is the accessor DOUBLE-typed entries must use; the
// source this spec was distilled from mistakenly used the 32-bit reader
// here.
func (c *cursor) f64(offset int64) (float64, error) {
	if err := c.require(offset, 8); err != nil {
		return 0, err
	}
	return math.Float64frombits(c.order.Uint64(c.buf[offset:])), nil
}

func (c *cursor) bytes(offset int64, n int) ([]byte, error) {
	if err := c.require(offset, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[offset:offset+int64(n)])
	return out, nil
}

func (c *cursor) putU8(offset int64, v uint8) {
	c.buf[offset] = v
}

func (c *cursor) putI8(offset int64, v int8) {
	c.buf[offset] = byte(v)
}

func (c *cursor) putU16(offset int64, v uint16) {
	c.order.PutUint16(c.buf[offset:], v)
}

func (c *cursor) putI16(offset int64, v int16) {
	c.order.PutUint16(c.buf[offset:], uint16(v))
}

func (c *cursor) putU32(offset int64, v uint32) {
	c.order.PutUint32(c.buf[offset:], v)
}

func (c *cursor) putI32(offset int64, v int32) {
	c.order.PutUint32(c.buf[offset:], uint32(v))
}

func (c *cursor) putF32(offset int64, v float32) {
	c.order.PutUint32(c.buf[offset:], math.Float32bits(v))
}

func (c *cursor) putF64(offset int64, v float64) {
	c.order.PutUint64(c.buf[offset:], math.Float64bits(v))
}

func (c *cursor) putBytes(offset int64, b []byte) {
	copy(c.buf[offset:], b)
}

// zeroFill writes n zero bytes starting at offset. Used to zero the unused
// tail of an inline entry value field, so byte-exact round-trip holds even
// though the TIFF spec leaves those trailing bytes undefined on decode
// (spec.md §4.B, "the encoder must zero-fill them").
func (c *cursor) zeroFill(offset int64, n int) {
	for i := 0; i < n; i++ {
		c.buf[offset+int64(i)] = 0
	}
}
