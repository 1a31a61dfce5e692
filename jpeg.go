// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imgmeta

// JPEG marker codes this package gives special handling. Naming follows
// the teacher's own jpegsegs-style constant table (see DESIGN.md, Component
// D), trimmed to the markers this codec branches on.
const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOS  = 0xDA
	markerDRI  = 0xDD
	markerAPP0 = 0xE0
	markerAPP1 = 0xE1
	rstMin     = 0xD0
	rstMax     = 0xD7
)

// JpegSegment is one marker-introduced unit of a JPEG byte stream. Type is
// the second byte of the marker (the first is always 0xFF). Data carries
// whatever bytes spec.md §4.D assigns to that marker kind: empty for
// marker-only segments, the two length bytes plus payload for
// length-prefixed segments, and for SOS additionally the raw entropy-coded
// scan data up to (not including) the next non-stuffed marker.
type JpegSegment struct {
	Type uint8
	Data []byte
}

// Jpg is a decoded JPEG byte stream: the leading SOI marker is implicit
// and not represented as a segment; Segments holds everything after it in
// file order, ending with the EOI marker as a segment with empty Data.
type Jpg struct {
	Segments []JpegSegment
}

// JpgDecodeOptions controls the JPEG decoder. Mirrors DecodeOptions'
// shape on the TIFF side (spec.md §6): a plain struct of caller-set knobs
// with sane zero-value defaults.
type JpgDecodeOptions struct {
	// Warnf, if set, is called for non-fatal anomalies encountered during
	// decode (a segment with an implausibly large declared length that
	// nonetheless parses cleanly within the buffer) without changing the
	// decoded result. Defaults to a no-op.
	Warnf func(string, ...any)
}

func (o JpgDecodeOptions) withDefaults() JpgDecodeOptions {
	if o.Warnf == nil {
		o.Warnf = func(string, ...any) {}
	}
	return o
}

// implausibleSegmentLength is the threshold above which a length-prefixed
// segment's declared length triggers a Warnf, even though it still parses
// successfully: real-world APPn/COM segments are rarely this large, and a
// value near it is more often a sign of a hand-edited or fuzzed file than
// legitimate metadata.
const implausibleSegmentLength = 8192

// DecodeJpg parses buf into a Jpg. buf must begin with the SOI marker
// (0xFFD8) and is expected to end with EOI (0xFFD9); anything else is a
// MalformedDataError.
func DecodeJpg(buf []byte) (Jpg, error) {
	return DecodeJpgWithOptions(buf, JpgDecodeOptions{})
}

// DecodeJpgWithOptions is DecodeJpg with an explicit Warnf hook.
func DecodeJpgWithOptions(buf []byte, opts JpgDecodeOptions) (Jpg, error) {
	opts = opts.withDefaults()

	if len(buf) < 4 || buf[0] != 0xFF || buf[1] != markerSOI {
		return Jpg{}, malformedDataf(buf, 0, "missing JPEG SOI marker")
	}

	var segments []JpegSegment
	pos := 2

	for {
		if pos+2 > len(buf) {
			return Jpg{}, malformedDataf(buf, int64(pos), "unexpected end of JPEG stream")
		}
		if buf[pos] != 0xFF {
			return Jpg{}, malformedDataf(buf, int64(pos), "expected marker prefix 0xFF")
		}
		typ := buf[pos+1]
		pos += 2

		if typ == markerEOI {
			segments = append(segments, JpegSegment{Type: typ})
			break
		}

		switch {
		case isMarkerOnly(typ):
			segments = append(segments, JpegSegment{Type: typ})

		case typ == markerSOS:
			data, n, err := readSOSSegment(buf, pos, opts)
			if err != nil {
				return Jpg{}, err
			}
			segments = append(segments, JpegSegment{Type: typ, Data: data})
			pos += n

		default:
			data, n, err := readLengthPrefixedSegment(buf, pos, opts)
			if err != nil {
				return Jpg{}, err
			}
			segments = append(segments, JpegSegment{Type: typ, Data: data})
			pos += n
		}
	}

	return Jpg{Segments: segments}, nil
}

// isMarkerOnly reports whether typ is one of the markers with no payload:
// RSTn (spec.md §4.D lists SOI/EOI/RSTn; SOI and EOI are handled directly
// by their callers, so only RSTn needs to be checked here).
func isMarkerOnly(typ uint8) bool {
	return typ >= rstMin && typ <= rstMax
}

func readLengthPrefixedSegment(buf []byte, pos int, opts JpgDecodeOptions) ([]byte, int, error) {
	if pos+2 > len(buf) {
		return nil, 0, malformedDataf(buf, int64(pos), "truncated segment length")
	}
	length := int(buf[pos])<<8 | int(buf[pos+1])
	if length < 2 || pos+length > len(buf) {
		return nil, 0, malformedDataf(buf, int64(pos), "invalid segment length %d", length)
	}
	if length > implausibleSegmentLength {
		opts.Warnf("segment at %d declares implausibly large length %d, decoding anyway", pos, length)
	}
	data := make([]byte, length)
	copy(data, buf[pos:pos+length])
	return data, length, nil
}

// readSOSSegment reads the SOS header (length-prefixed, per
// readLengthPrefixedSegment) and then scans the entropy-coded data that
// follows it up to the next non-stuffed marker: an 0xFF byte followed by
// something other than 0x00 or an RSTn code (spec.md §4.D, "SOS
// handling"). The scan boundary is not consumed; the caller's next loop
// iteration reads it as an ordinary marker.
func readSOSSegment(buf []byte, pos int, opts JpgDecodeOptions) ([]byte, int, error) {
	header, n, err := readLengthPrefixedSegment(buf, pos, opts)
	if err != nil {
		return nil, 0, err
	}

	scanStart := pos + n
	i := scanStart
	for {
		if i >= len(buf) {
			return nil, 0, malformedDataf(buf, int64(i), "unterminated entropy-coded scan data")
		}
		if buf[i] == 0xFF {
			if i+1 >= len(buf) {
				return nil, 0, malformedDataf(buf, int64(i), "unterminated entropy-coded scan data")
			}
			next := buf[i+1]
			if next == 0x00 || (next >= rstMin && next <= rstMax) {
				i += 2
				continue
			}
			break
		}
		i++
	}

	data := make([]byte, 0, n+(i-scanStart))
	data = append(data, header...)
	data = append(data, buf[scanStart:i]...)
	return data, i - pos, nil
}

// EncodeJpg serializes jpg back into a byte stream: SOI, then each
// segment's marker plus its Data verbatim. EOI is not added separately; it
// is written from the final segment. Data for length-prefixed
// segments already carries its own length field (spec.md §4.D, "Mutable
// data"), so the encoder never recomputes one.
func EncodeJpg(jpg Jpg) ([]byte, error) {
	size := 2
	for _, s := range jpg.Segments {
		size += 2 + len(s.Data)
	}

	out := make([]byte, 0, size)
	out = append(out, 0xFF, markerSOI)
	for _, s := range jpg.Segments {
		out = append(out, 0xFF, s.Type)
		out = append(out, s.Data...)
	}
	return out, nil
}

// findAPP1 returns the index of the first APP1 segment in jpg, or -1.
func findAPP1(jpg Jpg) int {
	for i, s := range jpg.Segments {
		if s.Type == markerAPP1 {
			return i
		}
	}
	return -1
}

// DecodeJpgExif returns the Exif record carried in jpg's first APP1
// segment, or the empty record if none exists (spec.md §6, "empty record
// if no APP1").
func DecodeJpgExif(jpg Jpg) (ExifRecord, error) {
	i := findAPP1(jpg)
	if i < 0 {
		return ExifRecord{}, nil
	}

	if !looksLikeExifApp1(jpg.Segments[i].Data) {
		return ExifRecord{}, nil
	}

	// JpegSegment.Data for a length-prefixed segment already begins with
	// the segment's own u16 BE length field, which is the same field
	// spec.md §4.C calls the Exif frame's leading "size" — an APP1
	// segment carrying Exif is byte-identical to the frame DecodeExif
	// expects, with no unwrapping needed.
	return DecodeExif(jpg.Segments[i].Data)
}

// looksLikeExifApp1 reports whether data (an APP1 segment's Data,
// including its length prefix) carries the "Exif\0\0" header, as opposed
// to an XMP or other APP1 payload this package does not interpret.
func looksLikeExifApp1(data []byte) bool {
	return len(data) >= 8 && string(data[2:6]) == "Exif" && data[6] == 0 && data[7] == 0
}

// UpdateJpgExif replaces the Exif payload of jpg's first APP1 segment with
// one freshly built from rec. If no APP1 segment exists, one is inserted
// immediately after SOI — or after a leading APP0/JFIF segment, if jpg
// starts with one — rather than leaving the call a no-op (spec.md §9's
// "update_jpg_exif when APP1 is absent" redesign flag).
func UpdateJpgExif(jpg *Jpg, rec ExifRecord) error {
	// EncodeExif already returns size|Exif\0\0|TIFF, which is exactly the
	// Data an APP1 JpegSegment carrying Exif holds (see DecodeJpgExif).
	segData, err := EncodeExif(rec)
	if err != nil {
		return err
	}

	if i := findAPP1(*jpg); i >= 0 {
		jpg.Segments[i].Data = segData
		return nil
	}

	insertAt := 0
	if len(jpg.Segments) > 0 && jpg.Segments[0].Type == markerAPP0 {
		insertAt = 1
	}

	newSegment := JpegSegment{Type: markerAPP1, Data: segData}
	jpg.Segments = append(jpg.Segments, JpegSegment{})
	copy(jpg.Segments[insertAt+1:], jpg.Segments[insertAt:])
	jpg.Segments[insertAt] = newSegment

	return nil
}
