// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imgmeta

import (
	"fmt"
)

// MalformedDataError is returned when decoded input violates a structural
// invariant of its container format: bad magic, an unknown TIFF type code,
// a truncated buffer, a size field disagreement, or invalid Exif framing.
//
// The error message carries a byte-position trace so a caller staring at a
// hex dump can find the offending bytes.
type MalformedDataError struct {
	msg    string
	buf    []byte
	offset int64
}

func (e *MalformedDataError) Error() string {
	return e.msg + traceAt(e.buf, e.offset)
}

// traceAt formats the "at <offset> (<hex>), prev: <bytes>, next: <bytes>"
// diagnostic described in spec.md's error handling design. It is computed
// lazily, at Error()-call time, from the buffer and offset captured when
// the error was raised.
func traceAt(buf []byte, offset int64) string {
	if buf == nil || offset < 0 {
		return ""
	}
	const window = 5

	lo := int(offset) - window
	if lo < 0 {
		lo = 0
	}
	if lo > len(buf) {
		lo = len(buf)
	}
	hi := int(offset) + window
	if hi > len(buf) {
		hi = len(buf)
	}
	at := offset
	var atByte byte
	if int(offset) < len(buf) {
		atByte = buf[offset]
	}

	prev := buf[lo:min(int(offset), len(buf))]
	next := buf[min(int(offset), len(buf)):hi]

	return fmt.Sprintf(": at %d (0x%02x), prev: % x, next: % x", at, atByte, prev, next)
}

func malformedDataf(buf []byte, offset int64, format string, args ...any) error {
	return &MalformedDataError{
		msg:    fmt.Sprintf(format, args...),
		buf:    buf,
		offset: offset,
	}
}

// InvalidInputError is returned when a caller-supplied value cannot be
// serialized: an ExifVersion whose encoded length is not 4, a TIFF entry
// whose type code is unknown or does not match its value, or a PNG chunk
// type that is not 4 bytes long.
type InvalidInputError struct {
	Field string
	msg   string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input for field %s: %s", e.Field, e.msg)
}

func invalidInputf(field, format string, args ...any) error {
	return &InvalidInputError{
		Field: field,
		msg:   fmt.Sprintf(format, args...),
	}
}
