// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package imgmeta

import (
	"bytes"
	"hash/crc32"
)

var pngSignature = [8]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

const pngTextChunkType = "tEXt"

// PngChunk is one length-prefixed chunk of a PNG stream: a 4-byte ASCII
// type and its data. CRC is recomputed on encode rather than carried, so a
// caller that mutates Data never has to remember to also fix up a
// checksum (spec.md §4, PNG framing).
type PngChunk struct {
	Type string
	Data []byte
}

// Png is a decoded PNG byte stream, minus its fixed 8-byte signature.
type Png struct {
	Chunks []PngChunk
}

// DecodePng parses buf into a Png. buf must begin with the PNG signature.
func DecodePng(buf []byte) (Png, error) {
	if len(buf) < 8 || !bytes.Equal(buf[:8], pngSignature[:]) {
		return Png{}, malformedDataf(buf, 0, "missing PNG signature")
	}

	var chunks []PngChunk
	pos := 8

	for pos < len(buf) {
		if pos+8 > len(buf) {
			return Png{}, malformedDataf(buf, int64(pos), "truncated chunk header")
		}
		length := int(byteOrderOf(false).Uint32(buf[pos:]))
		typ := string(buf[pos+4 : pos+8])
		dataStart := pos + 8
		dataEnd := dataStart + length
		if length < 0 || dataEnd+4 > len(buf) {
			return Png{}, malformedDataf(buf, int64(pos), "invalid chunk length %d for type %q", length, typ)
		}

		data := make([]byte, length)
		copy(data, buf[dataStart:dataEnd])

		gotCRC := byteOrderOf(false).Uint32(buf[dataEnd : dataEnd+4])
		wantCRC := chunkCRC(typ, data)
		if gotCRC != wantCRC {
			return Png{}, malformedDataf(buf, int64(dataEnd), "chunk %q CRC mismatch: got 0x%08x, want 0x%08x", typ, gotCRC, wantCRC)
		}

		chunks = append(chunks, PngChunk{Type: typ, Data: data})
		pos = dataEnd + 4

		if typ == "IEND" {
			break
		}
	}

	return Png{Chunks: chunks}, nil
}

// EncodePng serializes png back into a byte stream: the signature followed
// by each chunk with its length and CRC recomputed from Type and Data.
func EncodePng(png Png) ([]byte, error) {
	size := 8
	for _, c := range png.Chunks {
		size += 12 + len(c.Data)
	}

	out := make([]byte, 0, size)
	out = append(out, pngSignature[:]...)

	var lenBuf, crcBuf [4]byte
	for _, c := range png.Chunks {
		if len(c.Type) != 4 {
			return nil, invalidInputf("Type", "chunk type must be 4 ASCII bytes, got %q", c.Type)
		}
		byteOrderOf(false).PutUint32(lenBuf[:], uint32(len(c.Data)))
		byteOrderOf(false).PutUint32(crcBuf[:], chunkCRC(c.Type, c.Data))

		out = append(out, lenBuf[:]...)
		out = append(out, c.Type...)
		out = append(out, c.Data...)
		out = append(out, crcBuf[:]...)
	}

	return out, nil
}

// chunkCRC computes the CRC-32 (IEEE polynomial) over a chunk's type and
// data, per the PNG specification's checksum coverage.
func chunkCRC(typ string, data []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write([]byte(typ))
	h.Write(data)
	return h.Sum32()
}

// GetText returns the value of the first tEXt chunk keyed key, and whether
// one was found.
func GetText(png Png, key string) (string, bool) {
	for _, c := range png.Chunks {
		if c.Type != pngTextChunkType {
			continue
		}
		k, v, ok := splitTextChunk(c.Data)
		if ok && k == key {
			return v, true
		}
	}
	return "", false
}

// SetText inserts or replaces the tEXt chunk keyed key with value. If a
// tEXt chunk with that key already exists, it is replaced in place;
// otherwise a new chunk is appended immediately before IEND (spec.md §8,
// property 6: "insert-or-replace").
func SetText(png *Png, key, value string) {
	data := make([]byte, 0, len(key)+1+len(value))
	data = append(data, key...)
	data = append(data, 0)
	data = append(data, value...)
	newChunk := PngChunk{Type: pngTextChunkType, Data: data}

	for i, c := range png.Chunks {
		if c.Type != pngTextChunkType {
			continue
		}
		k, _, ok := splitTextChunk(c.Data)
		if ok && k == key {
			png.Chunks[i] = newChunk
			return
		}
	}

	insertAt := len(png.Chunks)
	for i, c := range png.Chunks {
		if c.Type == "IEND" {
			insertAt = i
			break
		}
	}

	png.Chunks = append(png.Chunks, PngChunk{})
	copy(png.Chunks[insertAt+1:], png.Chunks[insertAt:])
	png.Chunks[insertAt] = newChunk
}

// splitTextChunk splits a tEXt chunk's data into its key and value at the
// first null byte, per spec.md §4's "key | 0x00 | value".
func splitTextChunk(data []byte) (key, value string, ok bool) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return "", "", false
	}
	return string(data[:i]), string(data[i+1:]), true
}
