// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nvram implements the NVRAM arena allocator: the component that
// hands the persistent hash table contiguous block ranges for its three
// parallel arrays, and that the block mapper calls through to for
// per-file data-block allocation.
package nvram

import (
	"fmt"
	"sync"

	"github.com/nvmapfs/nvblockmap/blockmaperr"
)

// Allocator is the external block allocator collaborator (spec: alloc_blocks
// / free_blocks). Implementations must be safe for concurrent use, and must
// never hand out block address 0: it is reserved and never allocated to
// file data (spec.md §4.E).
type Allocator interface {
	// AllocateBlocks returns the address of the first of count newly
	// allocated contiguous blocks, or blockmaperr.ErrNoSpace.
	AllocateBlocks(count int) (first uint64, err error)

	// FreeBlocks releases count contiguous blocks starting at first
	// back to the allocator. It is the caller's responsibility to
	// have exclusive ownership of that range (invariant 4, spec.md §3).
	FreeBlocks(first uint64, count int)
}

// FreelistAllocator is a reference Allocator over a bounded range of
// block addresses [low, high), kept as a sorted list of free extents.
// It is adequate for tests and the demo program; a production NVRAM
// filesystem would plug in its own bitmap or buddy allocator here.
type FreelistAllocator struct {
	mu    sync.Mutex
	low   uint64
	high  uint64
	frees []extent // sorted, disjoint, non-adjacent
}

type extent struct {
	start uint64
	count int
}

// NewFreelistAllocator creates an allocator handing out blocks from
// [low, high). Block address 0 is never handed out even if low is 0: it
// is reserved and must never be allocated to file data (spec.md §4.E),
// so the allocator itself carves it out rather than relying on every
// caller to remember to pass low=1.
func NewFreelistAllocator(low, high uint64) *FreelistAllocator {
	if low < 1 {
		low = 1
	}
	return &FreelistAllocator{
		low:   low,
		high:  high,
		frees: []extent{{start: low, count: int(high - low)}},
	}
}

func (a *FreelistAllocator) AllocateBlocks(count int) (uint64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("nvram: allocate %d blocks: %w", count, blockmaperr.ErrInvalid)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, e := range a.frees {
		if e.count >= count {
			first := e.start
			if e.count == count {
				a.frees = append(a.frees[:i], a.frees[i+1:]...)
			} else {
				a.frees[i] = extent{start: e.start + uint64(count), count: e.count - count}
			}
			return first, nil
		}
	}
	return 0, fmt.Errorf("nvram: allocate %d contiguous blocks: %w", count, blockmaperr.ErrNoSpace)
}

func (a *FreelistAllocator) FreeBlocks(first uint64, count int) {
	if count <= 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Insert in sorted position, then coalesce with neighbours.
	i := 0
	for i < len(a.frees) && a.frees[i].start < first {
		i++
	}
	a.frees = append(a.frees, extent{})
	copy(a.frees[i+1:], a.frees[i:])
	a.frees[i] = extent{start: first, count: count}

	// Merge with next.
	if i+1 < len(a.frees) && a.frees[i].start+uint64(a.frees[i].count) == a.frees[i+1].start {
		a.frees[i].count += a.frees[i+1].count
		a.frees = append(a.frees[:i+1], a.frees[i+2:]...)
	}
	// Merge with previous.
	if i > 0 && a.frees[i-1].start+uint64(a.frees[i-1].count) == a.frees[i].start {
		a.frees[i-1].count += a.frees[i].count
		a.frees = append(a.frees[:i], a.frees[i+1:]...)
	}
}
