// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blockmap

// Encode packs the three fields of a hash-table value word exactly as
// spec.md §4.E lays them out: bit 63 is_range, bits 62..remainingBits
// the intra-range index, and the remaining low bits the physical block
// address. idx above maxIdx-1 is truncated; callers must not pass one.
func Encode(isRange bool, idx uint8, addr uint64) uint64 {
	var v uint64
	if isRange {
		v |= 1 << 63
	}
	v |= uint64(idx&(maxIdx-1)) << remainingBits
	v |= addr & (1<<remainingBits - 1)
	return v
}

// Decode reverses Encode.
func Decode(v uint64) (isRange bool, idx uint8, addr uint64) {
	isRange = v>>63 != 0
	idx = uint8((v >> remainingBits) & (maxIdx - 1))
	addr = v & (1<<remainingBits - 1)
	return
}
