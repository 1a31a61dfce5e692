// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imgmeta

// DecodeOptions controls the TIFF/Exif decoders. All fields have sane
// zero-value defaults, applied by withDefaults; a caller only sets what it
// wants to change, mirroring the teacher's Options struct in imagemeta.go.
type DecodeOptions struct {
	// LimitNumTags bounds the total number of entries visited across the
	// whole IFD tree (including followed sub-IFDs), guarding against a
	// maliciously large entry count or a cyclic next-IFD offset chain.
	// Zero means the teacher's default of 5000.
	LimitNumTags uint32

	// LimitTagSize bounds the byte length of a single entry's payload; an
	// entry over the limit fails the decode with a MalformedDataError.
	// Zero means unlimited: unlike the teacher, this decoder aims for
	// byte-exact round-trip (spec.md §8, property 3), so large but
	// legitimate payloads (an embedded ICC profile, a thumbnail strip) are
	// accepted unless a caller opts in to a limit.
	LimitTagSize uint32

	// Warnf, if set, is called for non-fatal anomalies encountered during
	// decode (a tag repeated within one IFD) that do not change the
	// decoded result. Defaults to a no-op.
	Warnf func(string, ...any)
}

const defaultLimitNumTags = 5000

func (o DecodeOptions) withDefaults() DecodeOptions {
	if o.LimitNumTags == 0 {
		o.LimitNumTags = defaultLimitNumTags
	}
	if o.Warnf == nil {
		o.Warnf = func(string, ...any) {}
	}
	return o
}

// DecodeTiff decodes a complete TIFF structure from buf, whose byte 0 is
// the TIFF byte-order mark (spec.md §4.B).
func DecodeTiff(buf []byte) (*Tiff, error) {
	return DecodeTiffWithOptions(buf, DecodeOptions{})
}

// DecodeTiffWithOptions is DecodeTiff with explicit decode limits.
func DecodeTiffWithOptions(buf []byte, opts DecodeOptions) (*Tiff, error) {
	opts = opts.withDefaults()

	littleEndian, err := readByteOrderMark(buf)
	if err != nil {
		return nil, err
	}

	c := newCursor(buf, littleEndian)

	firstOffset, err := c.u32(4)
	if err != nil {
		return nil, err
	}

	d := &tiffDecoder{c: c, opts: opts, visitedIfds: map[int64]bool{}}

	ifds, err := d.decodeIfdChain(int64(firstOffset))
	if err != nil {
		return nil, err
	}

	return &Tiff{LittleEndian: littleEndian, Ifds: ifds}, nil
}

// DecodeIfd decodes a single Ifd (and any sub-IFDs it points to) at offset
// within buf, using the given endianness, for callers that already know
// an IFD's offset (spec.md §6). The Exif adapter does not call it:
// DecodeTiff already resolves the Exif sub-IFD pointer into a SubIFD.
func DecodeIfd(buf []byte, offset int64, littleEndian bool) (*Ifd, error) {
	c := newCursor(buf, littleEndian)
	d := &tiffDecoder{c: c, opts: DecodeOptions{}.withDefaults(), visitedIfds: map[int64]bool{}}
	ifd, _, err := d.decodeIfdAt(offset)
	return ifd, err
}

func readByteOrderMark(buf []byte) (littleEndian bool, err error) {
	if len(buf) < 8 {
		return false, malformedDataf(buf, 0, "buffer too short for TIFF header")
	}
	switch {
	case buf[0] == 0x49 && buf[1] == 0x49 && buf[2] == 0x2A && buf[3] == 0x00:
		return true, nil
	case buf[0] == 0x4D && buf[1] == 0x4D && buf[2] == 0x00 && buf[3] == 0x2A:
		return false, nil
	default:
		return false, malformedDataf(buf, 0, "bad byte order")
	}
}

type tiffDecoder struct {
	c           *cursor
	opts        DecodeOptions
	tagCount    uint32
	visitedIfds map[int64]bool
}

// decodeIfdChain walks the top-level linked list of IFDs starting at
// offset, following each "next IFD offset" until it hits 0 (spec.md
// §4.B, step 3).
func (d *tiffDecoder) decodeIfdChain(offset int64) ([]*Ifd, error) {
	var ifds []*Ifd
	for offset != 0 {
		if d.visitedIfds[offset] {
			return nil, malformedDataf(d.c.buf, offset, "cyclic IFD chain detected")
		}
		d.visitedIfds[offset] = true

		ifd, next, err := d.decodeIfdAt(offset)
		if err != nil {
			return nil, err
		}
		ifds = append(ifds, ifd)
		offset = next
	}
	return ifds, nil
}

// decodeIfdAt reads a single IFD at offset: entry count, N entries, and
// the next-IFD offset that follows them.
func (d *tiffDecoder) decodeIfdAt(offset int64) (*Ifd, int64, error) {
	n, err := d.c.u16(offset)
	if err != nil {
		return nil, 0, err
	}

	entries := make([]IfdEntry, 0, n)
	seen := make(map[uint16]bool, n)
	pos := offset + 2
	for i := 0; i < int(n); i++ {
		d.tagCount++
		if d.tagCount > d.opts.LimitNumTags {
			return nil, 0, malformedDataf(d.c.buf, pos, "exceeded tag limit of %d", d.opts.LimitNumTags)
		}
		entry, err := d.decodeEntry(pos)
		if err != nil {
			return nil, 0, err
		}
		if seen[entry.Tag] {
			d.opts.Warnf("duplicate tag 0x%04x in IFD at offset %d, keeping both", entry.Tag, offset)
		}
		seen[entry.Tag] = true
		entries = append(entries, entry)
		pos += 12
	}

	next, err := d.c.u32(pos)
	if err != nil {
		return nil, 0, err
	}

	return &Ifd{Entries: entries}, int64(next), nil
}

// decodeEntry reads the 12-byte entry record at pos:
// tag:u16, type:u16, count:u32, value-or-offset:u32 (spec.md §4.B, step 4).
func (d *tiffDecoder) decodeEntry(pos int64) (IfdEntry, error) {
	tag, err := d.c.u16(pos)
	if err != nil {
		return IfdEntry{}, err
	}
	rawType, err := d.c.u16(pos + 2)
	if err != nil {
		return IfdEntry{}, err
	}
	typ := TypeCode(rawType)
	count, err := d.c.u32(pos + 4)
	if err != nil {
		return IfdEntry{}, err
	}
	valueFieldOffset := pos + 8

	if ifdPointerTags[tag] && typ == TypeUint32 && count == 1 {
		childOffset, err := d.c.u32(valueFieldOffset)
		if err != nil {
			return IfdEntry{}, err
		}
		if d.visitedIfds[int64(childOffset)] {
			return IfdEntry{}, malformedDataf(d.c.buf, valueFieldOffset, "cyclic sub-IFD pointer")
		}
		d.visitedIfds[int64(childOffset)] = true
		child, _, err := d.decodeIfdAt(int64(childOffset))
		if err != nil {
			return IfdEntry{}, err
		}
		return IfdEntry{Tag: tag, Type: typ, Value: SubIFD{Ifd: child}}, nil
	}

	width, ok := typeWidth(typ)
	if !ok {
		return IfdEntry{}, malformedDataf(d.c.buf, pos+2, "unknown TIFF type code %d", rawType)
	}

	byteLen := width * int(count)
	if d.opts.LimitTagSize != 0 && byteLen > int(d.opts.LimitTagSize) {
		return IfdEntry{}, malformedDataf(d.c.buf, valueFieldOffset, "entry payload of %d bytes exceeds limit %d", byteLen, d.opts.LimitTagSize)
	}

	var payloadOffset int64
	if byteLen <= 4 {
		payloadOffset = valueFieldOffset
	} else {
		off, err := d.c.u32(valueFieldOffset)
		if err != nil {
			return IfdEntry{}, err
		}
		payloadOffset = int64(off)
	}

	value, err := d.decodeValue(typ, int(count), payloadOffset)
	if err != nil {
		return IfdEntry{}, err
	}

	return IfdEntry{Tag: tag, Type: typ, Value: value}, nil
}

// decodeValue parses count elements of typ starting at payloadOffset. The
// two documented redesign fixes (spec.md §9) live here: DOUBLE uses the
// 64-bit float accessor, and SRATIONAL reads its numerator/denominator as
// signed i32.
func (d *tiffDecoder) decodeValue(typ TypeCode, count int, payloadOffset int64) (EntryValue, error) {
	c := d.c

	switch typ {
	case TypeASCII:
		raw, err := c.bytes(payloadOffset, count)
		if err != nil {
			return nil, err
		}
		return ASCIIValue(trimTrailingNull(raw)), nil

	case TypeUint8:
		out := make(Uint8Values, count)
		for i := range out {
			v, err := c.u8(payloadOffset + int64(i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case TypeInt8:
		out := make(Int8Values, count)
		for i := range out {
			v, err := c.i8(payloadOffset + int64(i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case TypeUndefined8:
		raw, err := c.bytes(payloadOffset, count)
		if err != nil {
			return nil, err
		}
		return Undefined8Values(raw), nil

	case TypeUint16:
		out := make(Uint16Values, count)
		for i := range out {
			v, err := c.u16(payloadOffset + int64(i)*2)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case TypeInt16:
		out := make(Int16Values, count)
		for i := range out {
			v, err := c.i16(payloadOffset + int64(i)*2)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case TypeUint32:
		out := make(Uint32Values, count)
		for i := range out {
			v, err := c.u32(payloadOffset + int64(i)*4)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case TypeInt32:
		out := make(Int32Values, count)
		for i := range out {
			v, err := c.i32(payloadOffset + int64(i)*4)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case TypeSingle:
		out := make(SingleValues, count)
		for i := range out {
			v, err := c.f32(payloadOffset + int64(i)*4)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case TypeDouble:
		out := make(DoubleValues, count)
		for i := range out {
			v, err := c.f64(payloadOffset + int64(i)*8)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case TypeURational:
		out := make(URationalValues, count)
		for i := range out {
			base := payloadOffset + int64(i)*8
			num, err := c.u32(base)
			if err != nil {
				return nil, err
			}
			den, err := c.u32(base + 4)
			if err != nil {
				return nil, err
			}
			out[i] = URational{Num: num, Den: den}
		}
		return out, nil

	case TypeSRational:
		out := make(SRationalValues, count)
		for i := range out {
			base := payloadOffset + int64(i)*8
			num, err := c.i32(base)
			if err != nil {
				return nil, err
			}
			den, err := c.i32(base + 4)
			if err != nil {
				return nil, err
			}
			out[i] = SRational{Num: num, Den: den}
		}
		return out, nil

	default:
		return nil, malformedDataf(c.buf, payloadOffset, "unknown TIFF type code %d", typ)
	}
}

func trimTrailingNull(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == 0 {
		return b[:len(b)-1]
	}
	return b
}
