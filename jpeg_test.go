package imgmeta_test

import (
	"fmt"
	"testing"

	"github.com/bep/imgmeta"
	qt "github.com/frankban/quicktest"
)

// buildMinimalJpeg assembles a tiny but structurally faithful JPEG byte
// stream: SOI, an APP0/JFIF segment, a DQT segment, an SOS segment whose
// entropy-coded data contains a stuffed 0xFF00 and an embedded RST0
// marker (neither of which should end the scan), and EOI.
func buildMinimalJpeg() []byte {
	var buf []byte
	buf = append(buf, 0xFF, 0xD8) // SOI

	app0 := []byte{0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00}
	buf = append(buf, app0...)

	dqt := []byte{0xFF, 0xDB, 0x00, 0x04, 0x00, 0x10}
	buf = append(buf, dqt...)

	sos := []byte{0xFF, 0xDA, 0x00, 0x04, 0x00, 0x00}
	buf = append(buf, sos...)

	// Entropy-coded scan data: a real byte, a stuffed 0xFF00, an embedded
	// RST0 marker (0xFFD0), then a final byte before EOI.
	scan := []byte{0x12, 0xFF, 0x00, 0xFF, 0xD0, 0x34}
	buf = append(buf, scan...)

	buf = append(buf, 0xFF, 0xD9) // EOI

	return buf
}

func TestJpegDecodeEncodeRoundTrip(t *testing.T) {
	c := qt.New(t)

	orig := buildMinimalJpeg()
	jpg, err := imgmeta.DecodeJpg(orig)
	c.Assert(err, qt.IsNil)

	out, err := imgmeta.EncodeJpg(jpg)
	c.Assert(err, qt.IsNil)

	c.Assert(out, qt.DeepEquals, orig)
}

func TestJpegSegmentsParsedInOrder(t *testing.T) {
	c := qt.New(t)

	jpg, err := imgmeta.DecodeJpg(buildMinimalJpeg())
	c.Assert(err, qt.IsNil)

	c.Assert(len(jpg.Segments), qt.Equals, 4) // APP0, DQT, SOS, EOI
	c.Assert(jpg.Segments[0].Type, qt.Equals, uint8(0xE0))
	c.Assert(jpg.Segments[1].Type, qt.Equals, uint8(0xDB))
	c.Assert(jpg.Segments[2].Type, qt.Equals, uint8(0xDA))
	c.Assert(jpg.Segments[3].Type, qt.Equals, uint8(0xD9))
}

func TestJpegSOSAbsorbsStuffedAndRSTBytes(t *testing.T) {
	c := qt.New(t)

	jpg, err := imgmeta.DecodeJpg(buildMinimalJpeg())
	c.Assert(err, qt.IsNil)

	sos := jpg.Segments[2]
	// 4 header bytes (length field) + 6 scan bytes.
	c.Assert(len(sos.Data), qt.Equals, 4+6)
}

func TestJpegDecodeExifOnFileWithoutAPP1(t *testing.T) {
	c := qt.New(t)

	jpg, err := imgmeta.DecodeJpg(buildMinimalJpeg())
	c.Assert(err, qt.IsNil)

	rec, err := imgmeta.DecodeJpgExif(jpg)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.IsEmpty(), qt.IsTrue)
}

func TestJpegUpdateExifInsertsAPP1WhenAbsent(t *testing.T) {
	c := qt.New(t)

	jpg, err := imgmeta.DecodeJpg(buildMinimalJpeg())
	c.Assert(err, qt.IsNil)

	err = imgmeta.UpdateJpgExif(&jpg, imgmeta.ExifRecord{UserComment: "Test 123!", HasUserComment: true})
	c.Assert(err, qt.IsNil)

	// The fixture starts with an APP0/JFIF segment, so APP1 must land
	// right after it.
	c.Assert(jpg.Segments[0].Type, qt.Equals, uint8(0xE0))
	c.Assert(jpg.Segments[1].Type, qt.Equals, uint8(0xE1))

	rec, err := imgmeta.DecodeJpgExif(jpg)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.UserComment, qt.Equals, "Test 123!")
}

func TestJpegUpdateExifReplacesExistingAPP1(t *testing.T) {
	c := qt.New(t)

	jpg, err := imgmeta.DecodeJpg(buildMinimalJpeg())
	c.Assert(err, qt.IsNil)

	c.Assert(imgmeta.UpdateJpgExif(&jpg, imgmeta.ExifRecord{UserComment: "Test 123!", HasUserComment: true}), qt.IsNil)
	c.Assert(imgmeta.UpdateJpgExif(&jpg, imgmeta.ExifRecord{UserComment: "Test 1234!", HasUserComment: true}), qt.IsNil)

	app1Count := 0
	for _, s := range jpg.Segments {
		if s.Type == 0xE1 {
			app1Count++
		}
	}
	c.Assert(app1Count, qt.Equals, 1)

	rec, err := imgmeta.DecodeJpgExif(jpg)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.UserComment, qt.Equals, "Test 1234!")
}

func TestJpegUpdateExifThenReEncodeThenReDecodeSurvives(t *testing.T) {
	c := qt.New(t)

	jpg, err := imgmeta.DecodeJpg(buildMinimalJpeg())
	c.Assert(err, qt.IsNil)
	c.Assert(imgmeta.UpdateJpgExif(&jpg, imgmeta.ExifRecord{UserComment: "round trip", HasUserComment: true}), qt.IsNil)

	encoded, err := imgmeta.EncodeJpg(jpg)
	c.Assert(err, qt.IsNil)

	redecoded, err := imgmeta.DecodeJpg(encoded)
	c.Assert(err, qt.IsNil)

	rec, err := imgmeta.DecodeJpgExif(redecoded)
	c.Assert(err, qt.IsNil)
	c.Assert(rec.UserComment, qt.Equals, "round trip")
}

func TestJpegImplausibleSegmentLengthWarns(t *testing.T) {
	c := qt.New(t)

	const declaredLength = 8200 // exceeds the 8192 threshold
	declaredLengthU16 := uint16(declaredLength)

	var buf []byte
	buf = append(buf, 0xFF, 0xD8) // SOI

	buf = append(buf, 0xFF, 0xFE) // COM
	buf = append(buf, byte(declaredLengthU16>>8), byte(declaredLengthU16))
	buf = append(buf, make([]byte, declaredLength-2)...)

	buf = append(buf, 0xFF, 0xD9) // EOI

	var warnings []string
	opts := imgmeta.JpgDecodeOptions{
		Warnf: func(format string, args ...any) {
			warnings = append(warnings, fmt.Sprintf(format, args...))
		},
	}

	jpg, err := imgmeta.DecodeJpgWithOptions(buf, opts)
	c.Assert(err, qt.IsNil)
	c.Assert(len(warnings), qt.Equals, 1)
	c.Assert(warnings[0], qt.Contains, "implausibly large length 8200")
	c.Assert(len(jpg.Segments[0].Data), qt.Equals, declaredLength)
}

func TestJpegRejectsMissingSOI(t *testing.T) {
	c := qt.New(t)

	_, err := imgmeta.DecodeJpg([]byte{0x00, 0x00, 0xFF, 0xD9})
	c.Assert(err, qt.Not(qt.IsNil))
}
