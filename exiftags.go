// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imgmeta

// TIFF/Exif tag numbers this package assigns special meaning to. The
// numeric values and names follow the teacher's own field table
// (fieldsexif.go), which was in turn seeded from the TIFF 6.0 and Exif 2.3
// specifications.
const (
	tagExifIFDPointer  uint16 = 0x8769
	tagGPSIFDPointer   uint16 = 0x8825
	tagInteropPointer  uint16 = 0xA005
	tagOrientation     uint16 = 0x0112
	tagDateTime        uint16 = 0x0132
	tagExifVersion     uint16 = 0x9000
	tagDateTimeOrig    uint16 = 0x9003
	tagDateTimeDigi    uint16 = 0x9004
	tagUserComment     uint16 = 0x9286
)

// ifdPointerTags is the allowlist of tags whose value is an absolute
// offset to a nested Ifd rather than a literal payload. spec.md §4.B wires
// only the Exif pointer (0x8769); spec.md §9's "Sub-IFD tags beyond Exif"
// open question suggests generalizing to GPS and Interop, which this
// module does (see SPEC_FULL.md §3): those sub-IFDs decode structurally,
// for byte-exact round-trip, but only the Exif sub-IFD's entries are
// projected onto ExifRecord's friendly fields.
var ifdPointerTags = map[uint16]bool{
	tagExifIFDPointer: true,
	tagGPSIFDPointer:  true,
	tagInteropPointer: true,
}

// The two TIFF byte-order marks as 16-bit values. Both bytes of each mark
// are equal, so each reads the same in either byte order. The TIFF decoder
// checks the header bytes directly (readByteOrderMark) and does not use
// these constants; they are listed here for documentation.
const (
	byteOrderMarkLittleEndian = 0x4949 // "II"
	byteOrderMarkBigEndian    = 0x4D4D // "MM"
)
