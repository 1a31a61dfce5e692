// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imgmeta

import "math"

// EncodeTiff serializes t into a byte sequence. Per spec.md §6, this
// encoder always emits little-endian, always places IFD0 at absolute
// offset 8, and always writes full-width payloads (no inter-payload
// padding).
//
// Encoding happens in one pass of writes but two passes of sizing
// (spec.md §4.B "Encode"): planIfd computes each IFD's (front, back) byte
// counts first, because an entry's offset field may need to point into the
// back region at an address that depends on the cumulative size of every
// earlier back payload — information only available once every IFD's size
// is known.
func EncodeTiff(t *Tiff) ([]byte, error) {
	plans := map[*Ifd]ifdPlan{}

	var totalFront, totalBack int
	for _, ifd := range t.Ifds {
		p, err := planIfd(ifd, plans)
		if err != nil {
			return nil, err
		}
		totalFront += p.front
		totalBack += p.back
	}

	buf := make([]byte, 8+totalFront+totalBack)
	c := newCursor(buf, true)

	buf[0], buf[1], buf[2], buf[3] = 0x49, 0x49, 0x2A, 0x00
	c.putU32(4, 8)

	frontPtr := int64(8)
	backPtr := int64(8 + totalFront)

	for i, ifd := range t.Ifds {
		isLast := i == len(t.Ifds)-1
		p := plans[ifd]

		if err := writeEntries(c, ifd.Entries, frontPtr, &backPtr); err != nil {
			return nil, err
		}
		nextOffsetPos := frontPtr + 2 + 12*int64(len(ifd.Entries))
		if isLast {
			c.putU32(nextOffsetPos, 0)
		} else {
			c.putU32(nextOffsetPos, uint32(nextOffsetPos+4))
		}
		frontPtr += int64(p.front)
	}

	return buf, nil
}

type ifdPlan struct {
	front, back int
}

// planIfd computes the (front, back) byte counts for ifd, recursing into
// any nested Ifds referenced by SubIFD entries. front is fixed:
// 6 (entry count + next-offset) + 12 per entry. back is the sum of each
// entry's spilled payload size, where a nested Ifd's entire (front+back)
// is counted as its parent's back contribution (spec.md §4.B, step 1).
func planIfd(ifd *Ifd, plans map[*Ifd]ifdPlan) (ifdPlan, error) {
	if p, ok := plans[ifd]; ok {
		return p, nil
	}

	front := 6 + 12*len(ifd.Entries)
	back := 0

	for _, e := range ifd.Entries {
		if sub, ok := e.Value.(SubIFD); ok {
			childPlan, err := planIfd(sub.Ifd, plans)
			if err != nil {
				return ifdPlan{}, err
			}
			back += childPlan.front + childPlan.back
			continue
		}

		width, ok := typeWidth(e.Type)
		if !ok {
			return ifdPlan{}, invalidInputf("Type", "unknown TIFF type code %d for tag 0x%04x", e.Type, e.Tag)
		}
		count := elementCount(e.Type, e.Value)
		byteLen := width * count
		if byteLen > 4 {
			back += byteLen
		}
	}

	p := ifdPlan{front: front, back: back}
	plans[ifd] = p
	return p, nil
}

// writeEntries writes an IFD's entry-count field and its N entry records
// starting at origin, spilling oversized or nested payloads through
// backPtr — a single, monotonically advancing free-space pointer shared
// by every level of nesting, matching spec.md §4.B step 4's "advancing
// back_ptr by the child's full front + back".
func writeEntries(c *cursor, entries []IfdEntry, origin int64, backPtr *int64) error {
	c.putU16(origin, uint16(len(entries)))
	pos := origin + 2
	for _, e := range entries {
		if err := writeEntry(c, e, pos, backPtr); err != nil {
			return err
		}
		pos += 12
	}
	return nil
}

func writeEntry(c *cursor, e IfdEntry, pos int64, backPtr *int64) error {
	c.putU16(pos, e.Tag)
	c.putU16(pos+2, uint16(e.Type))
	valueField := pos + 8

	if sub, ok := e.Value.(SubIFD); ok {
		childFront := 6 + 12*len(sub.Ifd.Entries)
		origin := *backPtr
		*backPtr += int64(childFront)

		c.putU32(pos+4, 1)
		c.putU32(valueField, uint32(origin))

		if err := writeEntries(c, sub.Ifd.Entries, origin, backPtr); err != nil {
			return err
		}
		// Nested IFDs do not chain to a sibling: next-offset is always 0.
		c.putU32(origin+int64(childFront)-4, 0)
		return nil
	}

	width, ok := typeWidth(e.Type)
	if !ok {
		return invalidInputf("Type", "unknown TIFF type code %d for tag 0x%04x", e.Type, e.Tag)
	}

	payload, err := encodePayload(e.Type, e.Value)
	if err != nil {
		return err
	}

	count := elementCount(e.Type, e.Value)
	byteLen := width * count
	if byteLen != len(payload) {
		return invalidInputf("Value", "tag 0x%04x: encoded payload length %d does not match declared count*width %d", e.Tag, len(payload), byteLen)
	}

	c.putU32(pos+4, uint32(count))
	if byteLen <= 4 {
		c.putBytes(valueField, payload)
		c.zeroFill(valueField+int64(len(payload)), 4-len(payload))
	} else {
		origin := *backPtr
		c.putU32(valueField, uint32(origin))
		c.putBytes(origin, payload)
		*backPtr += int64(byteLen)
	}
	return nil
}

// encodePayload serializes a primitive EntryValue arm into its raw
// on-wire bytes. ASCII always receives a trailing null (spec.md §4.B,
// step 5); the caller (writeEntry) already derived count from
// elementCount, which counts that null.
func encodePayload(typ TypeCode, v EntryValue) ([]byte, error) {
	switch typ {
	case TypeASCII:
		s, ok := v.(ASCIIValue)
		if !ok {
			return nil, invalidInputf("Value", "type ASCII requires an ASCIIValue, got %T", v)
		}
		out := make([]byte, len(s)+1)
		copy(out, s)
		return out, nil

	case TypeUint8:
		vv, ok := v.(Uint8Values)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		return []byte(vv), nil

	case TypeInt8:
		vv, ok := v.(Int8Values)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		out := make([]byte, len(vv))
		for i, x := range vv {
			out[i] = byte(x)
		}
		return out, nil

	case TypeUndefined8:
		vv, ok := v.(Undefined8Values)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		return []byte(vv), nil

	case TypeUint16:
		vv, ok := v.(Uint16Values)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		out := make([]byte, len(vv)*2)
		for i, x := range vv {
			byteOrderOf(true).PutUint16(out[i*2:], x)
		}
		return out, nil

	case TypeInt16:
		vv, ok := v.(Int16Values)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		out := make([]byte, len(vv)*2)
		for i, x := range vv {
			byteOrderOf(true).PutUint16(out[i*2:], uint16(x))
		}
		return out, nil

	case TypeUint32:
		vv, ok := v.(Uint32Values)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		out := make([]byte, len(vv)*4)
		for i, x := range vv {
			byteOrderOf(true).PutUint32(out[i*4:], x)
		}
		return out, nil

	case TypeInt32:
		vv, ok := v.(Int32Values)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		out := make([]byte, len(vv)*4)
		for i, x := range vv {
			byteOrderOf(true).PutUint32(out[i*4:], uint32(x))
		}
		return out, nil

	case TypeSingle:
		vv, ok := v.(SingleValues)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		out := make([]byte, len(vv)*4)
		for i, x := range vv {
			byteOrderOf(true).PutUint32(out[i*4:], math.Float32bits(x))
		}
		return out, nil

	case TypeDouble:
		vv, ok := v.(DoubleValues)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		out := make([]byte, len(vv)*8)
		for i, x := range vv {
			byteOrderOf(true).PutUint64(out[i*8:], math.Float64bits(x))
		}
		return out, nil

	case TypeURational:
		vv, ok := v.(URationalValues)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		out := make([]byte, len(vv)*8)
		for i, x := range vv {
			byteOrderOf(true).PutUint32(out[i*8:], x.Num)
			byteOrderOf(true).PutUint32(out[i*8+4:], x.Den)
		}
		return out, nil

	case TypeSRational:
		vv, ok := v.(SRationalValues)
		if !ok {
			return nil, wrongValueKind(typ, v)
		}
		out := make([]byte, len(vv)*8)
		for i, x := range vv {
			byteOrderOf(true).PutUint32(out[i*8:], uint32(x.Num))
			byteOrderOf(true).PutUint32(out[i*8+4:], uint32(x.Den))
		}
		return out, nil

	default:
		return nil, invalidInputf("Type", "unknown TIFF type code %d", typ)
	}
}

func wrongValueKind(typ TypeCode, v EntryValue) error {
	return invalidInputf("Value", "type %s does not match value kind %T", typ, v)
}
