// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package blockmaperr defines the sentinel errors shared by the
// block-mapping index packages (hashtable, blockmap, nvram, blockdev).
package blockmaperr

import "errors"

// ErrNoSpace is returned when the hash table's probe-chain occupancy
// bound is exceeded, or when the external block allocator has nothing
// left to give.
var ErrNoSpace = errors.New("nvblockmap: no space")

// ErrIO is returned when a block read or write against the underlying
// device failed.
var ErrIO = errors.New("nvblockmap: i/o error")

// ErrCorrupt is returned when a descriptor block is too short to hold a
// descriptor, or when a descriptor's recorded array bounds exceed the
// device size. A descriptor whose magic does not match is not reported
// as corrupt: hashtable.Load treats it as "no table yet".
var ErrCorrupt = errors.New("nvblockmap: corrupt metadata")

// ErrInvalid is returned for bad caller arguments, such as a key equal
// to a hash-table sentinel, a non-positive block count, or a block
// address or byte range outside the device.
var ErrInvalid = errors.New("nvblockmap: invalid argument")
