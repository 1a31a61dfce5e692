package imgmeta_test

import (
	"bytes"
	"testing"

	"github.com/bep/imgmeta"
	qt "github.com/frankban/quicktest"
	goexif "github.com/rwcarlsen/goexif/exif"
)

func TestExifEncodeDecodeRoundTrip(t *testing.T) {
	c := qt.New(t)

	rec := imgmeta.ExifRecord{
		ExifVersion:      "0231",
		HasExifVersion:   true,
		UserComment:      "Test 123!",
		HasUserComment:   true,
		DateTimeOriginal: "2024:01:02 03:04:05",
		HasDateTimeOrig:  true,
	}

	buf, err := imgmeta.EncodeExif(rec)
	c.Assert(err, qt.IsNil)

	decoded, err := imgmeta.DecodeExif(buf)
	c.Assert(err, qt.IsNil)

	c.Assert(decoded.ExifVersion, qt.Equals, rec.ExifVersion)
	c.Assert(decoded.UserComment, qt.Equals, rec.UserComment)
	c.Assert(decoded.DateTimeOriginal, qt.Equals, rec.DateTimeOriginal)
}

func TestExifIfd0FieldsSurviveWithoutExifSubIfd(t *testing.T) {
	c := qt.New(t)

	rec := imgmeta.ExifRecord{
		Orientation:    6,
		HasOrientation: true,
		DateTime:       "2024:01:02 03:04:05",
		HasDateTime:    true,
	}

	buf, err := imgmeta.EncodeExif(rec)
	c.Assert(err, qt.IsNil)

	decoded, err := imgmeta.DecodeExif(buf)
	c.Assert(err, qt.IsNil)

	c.Assert(decoded.Orientation, qt.Equals, rec.Orientation)
	c.Assert(decoded.HasOrientation, qt.IsTrue)
	c.Assert(decoded.DateTime, qt.Equals, rec.DateTime)
	c.Assert(decoded.HasDateTime, qt.IsTrue)
	c.Assert(decoded.HasExifVersion, qt.IsFalse)
	c.Assert(decoded.HasUserComment, qt.IsFalse)
	c.Assert(decoded.HasDateTimeOrig, qt.IsFalse)
}

func TestExifIfd0AndSubIfdFieldsCoexist(t *testing.T) {
	c := qt.New(t)

	rec := imgmeta.ExifRecord{
		Orientation:      8,
		HasOrientation:   true,
		DateTime:         "2024:01:02 03:04:05",
		HasDateTime:      true,
		DateTimeOriginal: "2024:01:02 03:04:06",
		HasDateTimeOrig:  true,
		UserComment:      "Test 123!",
		HasUserComment:   true,
	}

	buf, err := imgmeta.EncodeExif(rec)
	c.Assert(err, qt.IsNil)

	decoded, err := imgmeta.DecodeExif(buf)
	c.Assert(err, qt.IsNil)

	c.Assert(decoded.Orientation, qt.Equals, rec.Orientation)
	c.Assert(decoded.DateTime, qt.Equals, rec.DateTime)
	c.Assert(decoded.DateTimeOriginal, qt.Equals, rec.DateTimeOriginal)
	c.Assert(decoded.UserComment, qt.Equals, rec.UserComment)
}

func TestExifEncodeDecodeIdempotenceAfterOverwrite(t *testing.T) {
	c := qt.New(t)

	rec1 := imgmeta.ExifRecord{UserComment: "Test 123!", HasUserComment: true}
	buf1, err := imgmeta.EncodeExif(rec1)
	c.Assert(err, qt.IsNil)
	decoded1, err := imgmeta.DecodeExif(buf1)
	c.Assert(err, qt.IsNil)
	c.Assert(decoded1.UserComment, qt.Equals, "Test 123!")

	rec2 := imgmeta.ExifRecord{UserComment: "Test 1234!", HasUserComment: true}
	buf2, err := imgmeta.EncodeExif(rec2)
	c.Assert(err, qt.IsNil)
	decoded2, err := imgmeta.DecodeExif(buf2)
	c.Assert(err, qt.IsNil)
	c.Assert(decoded2.UserComment, qt.Equals, "Test 1234!")
}

func TestExifEmptyRecordEncodesToEmptyIfd0(t *testing.T) {
	c := qt.New(t)

	buf, err := imgmeta.EncodeExif(imgmeta.ExifRecord{})
	c.Assert(err, qt.IsNil)

	decoded, err := imgmeta.DecodeExif(buf)
	c.Assert(err, qt.IsNil)
	c.Assert(decoded.IsEmpty(), qt.IsTrue)
}

func TestExifRejectsBadFrameHeader(t *testing.T) {
	c := qt.New(t)

	buf := []byte{0x00, 0x08, 'N', 'o', 'p', 'e', 0x00, 0x00}
	_, err := imgmeta.DecodeExif(buf)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestExifRejectsSizeMismatch(t *testing.T) {
	c := qt.New(t)

	rec := imgmeta.ExifRecord{UserComment: "x", HasUserComment: true}
	buf, err := imgmeta.EncodeExif(rec)
	c.Assert(err, qt.IsNil)

	corrupt := append([]byte(nil), buf...)
	corrupt[1] ^= 0xFF

	_, err = imgmeta.DecodeExif(corrupt)
	c.Assert(err, qt.Not(qt.IsNil))
}

func TestExifVersionMustBeFourBytes(t *testing.T) {
	c := qt.New(t)

	_, err := imgmeta.EncodeExif(imgmeta.ExifRecord{ExifVersion: "023", HasExifVersion: true})
	c.Assert(err, qt.Not(qt.IsNil))
	var invalid *imgmeta.InvalidInputError
	c.Assert(err, qt.ErrorAs, &invalid)
}

// TestExifCrossCheckAgainstGoexif decodes an EncodeExif-produced Exif APP1
// payload with a second, independently maintained decoder, to catch
// framing bugs that would slip past round-tripping against this package's
// own decoder alone.
func TestExifCrossCheckAgainstGoexif(t *testing.T) {
	c := qt.New(t)

	rec := imgmeta.ExifRecord{
		DateTimeOriginal: "2024:01:02 03:04:05",
		HasDateTimeOrig:  true,
	}
	buf, err := imgmeta.EncodeExif(rec)
	c.Assert(err, qt.IsNil)

	// goexif's exif.Decode expects the raw TIFF stream, without the size
	// and "Exif\0\0" framing this package's own frame carries.
	tiffBytes := buf[8:]

	x, err := goexif.Decode(bytes.NewReader(tiffBytes))
	c.Assert(err, qt.IsNil)

	tag, err := x.Get(goexif.DateTimeOriginal)
	c.Assert(err, qt.IsNil)
	got, err := tag.StringVal()
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.Equals, rec.DateTimeOriginal)
}
