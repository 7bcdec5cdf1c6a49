// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hashtable

// directHash is the built-in hash: k * 2654435769 mod 2^32, extended to
// 64 bits (spec.md §4.C). It is a historical, low-quality default
// (Knuth's multiplicative hash, ported from a 32-bit direct-pointer
// hash) — it only mixes the low 32 bits of k, so callers whose keys
// carry meaning in the high 32 bits (as blockmap's inode/lblk keys do)
// should supply their own Options.Hash.
func directHash(k uint64) uint64 {
	return uint64(uint32(k * directHashMul))
}

func directEqual(a, b uint64) bool { return a == b }

// storedHash forces the low bit of h to 1, so a stored value of 0 in
// the hashes array unambiguously means "never occupied" (spec.md §4.C).
func storedHash(h uint64) uint64 {
	return h | 1
}

// probeStep returns the odd, mod-coprime double-hashing step for hash h
// over a table of the given mod (spec.md §4.C). 1 + (odd % even) is
// always even, so the low bit is forced on to keep the step odd.
func probeStep(h uint64, mod uint64) uint64 {
	if mod <= 2 {
		return 1
	}
	return (1 + (((h >> 16) | 1) % (mod - 2))) | 1
}

// probeSeq iterates bucket indices for key hash h over a table of size
// buckets (mask = size-1, mod = size), calling visit for each candidate
// index. visit returns true to stop iterating (found what it needed).
// probeSeq itself stops after `size` steps (a full cycle) since the
// table is never more than refuseLoad occupied; exceeding that is a
// fatal invariant violation (spec.md §7 "Fatal").
func probeSeq(h, mask, mod uint64, size int, visit func(i uint64) (stop bool)) {
	i := h & mask
	step := probeStep(h, mod)
	for n := 0; n < size; n++ {
		if visit(i) {
			return
		}
		i = (i + step) & mask
	}
	panic("hashtable: probe chain exceeded table size; internal invariant violated")
}
