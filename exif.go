// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imgmeta

import (
	"golang.org/x/text/encoding/unicode"
)

// exifHeader is the 6-byte Exif marker that follows the size field in a
// JPEG APP1 Exif payload: "Exif\0\0".
var exifHeader = [6]byte{'E', 'x', 'i', 'f', 0, 0}

// ExifRecord is a small, friendly-named projection of the Exif tags this
// package understands. Fields absent on decode are simply zero-valued
// with their Has flag false; fields left unset on encode are omitted from
// the produced TIFF (spec.md §3, "Exif record (C)").
type ExifRecord struct {
	ExifVersion      string
	HasExifVersion   bool
	UserComment      string
	HasUserComment   bool
	Orientation      uint16
	HasOrientation   bool
	DateTime         string
	HasDateTime      bool
	DateTimeOriginal string
	HasDateTimeOrig  bool
}

// IsEmpty reports whether no field of the record is set.
func (r ExifRecord) IsEmpty() bool {
	return !r.HasExifVersion && !r.HasUserComment && !r.HasOrientation &&
		!r.HasDateTime && !r.HasDateTimeOrig
}

// asciiUserCommentTag is the 8-byte encoding identifier this package
// emits for UserComment: "ASCII\0\0\0" (spec.md §4.C, Encode). Decode also
// recognizes the "UNICODE\0" identifier (SPEC_FULL.md §2's x/text wiring)
// but never emits it.
var asciiUserCommentTag = [8]byte{'A', 'S', 'C', 'I', 'I', 0, 0, 0}

var unicodeUserCommentTag = [8]byte{'U', 'N', 'I', 'C', 'O', 'D', 'E', 0}

// DecodeExif validates the Exif frame in buf ("size|Exif\0\0|TIFF"),
// decodes the TIFF tail, and projects the known tags of both IFD0
// (Orientation, DateTime) and its Exif sub-IFD, if any (ExifVersion,
// UserComment, DateTimeOriginal), onto an ExifRecord (spec.md §4.C,
// Decode).
func DecodeExif(buf []byte) (ExifRecord, error) {
	tiffBytes, err := unwrapExifFrame(buf)
	if err != nil {
		return ExifRecord{}, err
	}

	t, err := DecodeTiff(tiffBytes)
	if err != nil {
		return ExifRecord{}, err
	}

	if len(t.Ifds) == 0 {
		return ExifRecord{}, nil
	}
	ifd0 := t.Ifds[0]

	rec := projectIfd0(ifd0)

	entry, ok := ifd0.Get(tagExifIFDPointer)
	if !ok {
		return rec, nil
	}
	sub, ok := entry.Value.(SubIFD)
	if !ok {
		return rec, nil
	}

	subRec := projectExifSubIfd(sub.Ifd)
	rec.ExifVersion = subRec.ExifVersion
	rec.HasExifVersion = subRec.HasExifVersion
	rec.UserComment = subRec.UserComment
	rec.HasUserComment = subRec.HasUserComment
	rec.DateTimeOriginal = subRec.DateTimeOriginal
	rec.HasDateTimeOrig = subRec.HasDateTimeOrig

	return rec, nil
}

// projectIfd0 reads the IFD0-level fields ExifRecord exposes: Orientation
// and DateTime. Both live in IFD0 itself, not the Exif sub-IFD, so this
// runs regardless of whether a sub-IFD pointer is present.
func projectIfd0(ifd0 *Ifd) ExifRecord {
	var rec ExifRecord

	if e, ok := ifd0.Get(tagOrientation); ok && e.Type == TypeUint16 {
		if v, ok := e.Value.(Uint16Values); ok && len(v) == 1 {
			rec.Orientation = v[0]
			rec.HasOrientation = true
		}
	}

	if e, ok := ifd0.Get(tagDateTime); ok && e.Type == TypeASCII {
		if v, ok := e.Value.(ASCIIValue); ok {
			rec.DateTime = string(v)
			rec.HasDateTime = true
		}
	}

	return rec
}

func projectExifSubIfd(ifd *Ifd) ExifRecord {
	var rec ExifRecord

	for _, e := range ifd.Entries {
		switch e.Tag {
		case tagExifVersion:
			if e.Type != TypeUndefined8 {
				continue
			}
			b, ok := e.Value.(Undefined8Values)
			if !ok || len(b) != 4 {
				continue
			}
			rec.ExifVersion = string(b)
			rec.HasExifVersion = true

		case tagUserComment:
			if e.Type != TypeUndefined8 {
				continue
			}
			b, ok := e.Value.(Undefined8Values)
			if !ok || len(b) < 8 {
				continue
			}
			s, ok := decodeUserComment(b)
			if !ok {
				continue
			}
			rec.UserComment = s
			rec.HasUserComment = true

		case tagDateTimeOrig:
			if s, ok := e.Value.(ASCIIValue); ok {
				rec.DateTimeOriginal = string(s)
				rec.HasDateTimeOrig = true
			}
		}
	}

	return rec
}

// decodeUserComment strips the 8-byte encoding identifier and decodes the
// remainder. Only the ASCII and UNICODE (UTF-16) profiles are recognized;
// anything else is returned as-is on the theory that most real-world
// writers that get this wrong still write ASCII-compatible bytes.
func decodeUserComment(b Undefined8Values) (string, bool) {
	var id [8]byte
	copy(id[:], b[:8])
	payload := []byte(b[8:])

	switch id {
	case unicodeUserCommentTag:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(payload)
		if err != nil {
			return "", false
		}
		return string(out), true
	default:
		// ASCII profile, or an unrecognized identifier: the payload is
		// returned unchanged as text.
		return string(payload), true
	}
}

// EncodeExif builds a little-endian TIFF from the present fields of rec and
// wraps it in the Exif APP1 frame (spec.md §4.C, Encode). IFD0 holds
// Orientation and DateTime directly, followed by an Exif sub-IFD pointer
// entry whose sub-IFD holds ExifVersion, UserComment and
// DateTimeOriginal. The pointer entry is written only when at least one of
// those sub-IFD fields is present, so an empty record encodes to an empty
// IFD0.
func EncodeExif(rec ExifRecord) ([]byte, error) {
	var subEntries []IfdEntry

	if rec.HasExifVersion {
		if len(rec.ExifVersion) != 4 {
			return nil, invalidInputf("ExifVersion", "encoded length must be 4, got %d", len(rec.ExifVersion))
		}
		subEntries = append(subEntries, IfdEntry{
			Tag:   tagExifVersion,
			Type:  TypeUndefined8,
			Value: Undefined8Values(rec.ExifVersion),
		})
	}

	if rec.HasUserComment {
		payload := make([]byte, 8+len(rec.UserComment))
		copy(payload, asciiUserCommentTag[:])
		copy(payload[8:], rec.UserComment)
		subEntries = append(subEntries, IfdEntry{
			Tag:   tagUserComment,
			Type:  TypeUndefined8,
			Value: Undefined8Values(payload),
		})
	}

	if rec.HasDateTimeOrig {
		subEntries = append(subEntries, IfdEntry{
			Tag:   tagDateTimeOrig,
			Type:  TypeASCII,
			Value: ASCIIValue(rec.DateTimeOriginal),
		})
	}

	var ifd0Entries []IfdEntry

	if rec.HasOrientation {
		ifd0Entries = append(ifd0Entries, IfdEntry{
			Tag:   tagOrientation,
			Type:  TypeUint16,
			Value: Uint16Values{rec.Orientation},
		})
	}
	if rec.HasDateTime {
		ifd0Entries = append(ifd0Entries, IfdEntry{
			Tag:   tagDateTime,
			Type:  TypeASCII,
			Value: ASCIIValue(rec.DateTime),
		})
	}

	if len(subEntries) > 0 {
		ifd0Entries = append(ifd0Entries, IfdEntry{
			Tag:   tagExifIFDPointer,
			Type:  TypeUint32,
			Value: SubIFD{Ifd: &Ifd{Entries: subEntries}},
		})
	}

	t := &Tiff{
		LittleEndian: true,
		Ifds:         []*Ifd{{Entries: ifd0Entries}},
	}

	tiffBytes, err := EncodeTiff(t)
	if err != nil {
		return nil, err
	}

	return wrapExifFrame(tiffBytes), nil
}

// unwrapExifFrame validates the six framing bytes ("size" + "Exif\0\0")
// and returns the TIFF tail (spec.md §4.C, Frame).
func unwrapExifFrame(buf []byte) ([]byte, error) {
	if len(buf) < 8 {
		return nil, malformedDataf(buf, 0, "Exif payload too short")
	}
	size := int(buf[0])<<8 | int(buf[1])
	if size != len(buf) {
		return nil, malformedDataf(buf, 0, "Exif size field %d does not match payload length %d", size, len(buf))
	}
	var hdr [6]byte
	copy(hdr[:], buf[2:8])
	if hdr != exifHeader {
		return nil, malformedDataf(buf, 2, "missing Exif\\0\\0 header")
	}
	return buf[8:], nil
}

// wrapExifFrame prepends the size field and "Exif\0\0" header to tiffBytes
// (spec.md §4.C, Encode / §6).
func wrapExifFrame(tiffBytes []byte) []byte {
	out := make([]byte, 8+len(tiffBytes))
	size := 8 + len(tiffBytes)
	out[0] = byte(size >> 8)
	out[1] = byte(size)
	copy(out[2:8], exifHeader[:])
	copy(out[8:], tiffBytes)
	return out
}
