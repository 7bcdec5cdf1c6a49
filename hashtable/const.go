// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hashtable

const (
	// emptyKey marks a bucket that has never been occupied. 0 is
	// reserved and must not collide with any real key (spec.md §3,
	// invariant 1).
	emptyKey uint64 = 0

	// tombstoneKey marks a bucket whose entry was removed but not yet
	// reclaimed by a rehash. Reserved distinct from emptyKey.
	tombstoneKey uint64 = ^uint64(0)

	// tombstoneHash is stored alongside tombstoneKey. It is even and
	// non-zero, so it can never be produced by hash() | 0x1 (always
	// odd) nor collide with the empty-bucket sentinel 0.
	tombstoneHash uint64 = 2

	// targetLoad is the maximum fraction of buckets the table is sized
	// to hold live entries at (spec.md §4.C "Sizing").
	targetLoad = 0.75

	// refuseLoad is the noccupied/size ratio above which Insert
	// refuses further work and returns ErrNoSpace (spec.md §4.C
	// "Rehash policy").
	refuseLoad = 0.90

	// numStripes is the number of reader/writer locks sharding the
	// bucket space (spec.md §4.D, "typical L = 1024").
	numStripes = 1024

	// directHashMul is the multiplicative constant of the built-in
	// direct hash (spec.md §4.C: "k · 2654435769 mod 2^32").
	directHashMul uint64 = 2654435769
)
