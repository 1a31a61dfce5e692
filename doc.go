// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Package imgmeta reads and writes image container metadata in a way that
// round-trips: decoding a JPEG, PNG, or TIFF file and re-encoding it
// without modification reproduces the original bytes, and targeted
// mutations (Exif tag edits, PNG tEXt chunks) produce a file other tools
// accept.
//
// The bulk of the package is the TIFF/Exif subsystem: TIFF is a
// pointer-linked directory structure with a runtime-selected endianness,
// twelve value types, and a two-region (front/back) encoding discipline.
// JPEG and PNG are comparatively simple length-prefixed segment/chunk
// streams built on top of it.
package imgmeta
