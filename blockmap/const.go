// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blockmap

const (
	// continuityBits is the width of the intra-range index field
	// packed into a value word (spec.md §3, §4.E).
	continuityBits = 4

	// remainingBits is the physical-block-address field width: one
	// word minus the is_range flag bit and the index field.
	remainingBits = 64 - continuityBits - 1

	// maxIdx is 2^continuityBits: the number of distinct index values
	// the codec can represent (0..maxIdx-1).
	maxIdx = 1 << continuityBits

	// singleBatchBlocks bounds how many logical blocks one
	// allocate-on-miss call may pack into a single contiguous
	// single-table batch. spec.md §3 names MAX_CONTIGUOUS_BLOCKS =
	// 2*(1<<continuityBits) = 32 for the single table, but an index
	// of up to 31 cannot round-trip through a 4-bit field (invariant
	// 5 requires i < 2^4). We resolve this the way the source itself
	// resolves its own "probably inefficient" rough edges: batches
	// are capped at maxIdx (16) blocks, the largest batch whose every
	// member index is representable.
	singleBatchBlocks = maxIdx

	// rangeSize is RANGE_SIZE, the chunk-table alignment and extent
	// length (spec.md §3, a design-time constant, "e.g. 32").
	rangeSize = 32

	// rangeBits masks a logical block down to its range-aligned
	// boundary: RANGE_BITS = RANGE_SIZE - 1.
	rangeBits = rangeSize - 1
)
