// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blockmap

import (
	"testing"

	"github.com/nvmapfs/nvblockmap/blockdev"
	"github.com/nvmapfs/nvblockmap/nvram"
)

func newTestMapper(t *testing.T, maxEntries int) (*Mapper, *nvram.Arena) {
	t.Helper()
	const blockSize = 256
	const nvramSize = 8192
	dev := blockdev.NewMemDevice(nvramSize, blockSize)
	alloc := nvram.NewFreelistAllocator(0, nvramSize-3)
	arena := nvram.NewArena(alloc, nvramSize)
	m, err := NewMapper(dev, arena, maxEntries)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}
	return m, arena
}

// TestChunkAllocationAndLookup covers spec.md's scenario 1: a
// RANGE_SIZE-aligned 32-block request becomes one chunk entry, and
// lookups within and outside that range resolve accordingly.
func TestChunkAllocationAndLookup(t *testing.T) {
	m, _ := newTestMapper(t, 256)

	base, run, err := m.GetBlocks(7, 0, 32, true)
	if err != nil {
		t.Fatalf("GetBlocks(create): %v", err)
	}
	if run != 32 {
		t.Fatalf("run = %d, want 32", run)
	}

	phys, run, err := m.GetBlocks(7, 15, 1, false)
	if err != nil {
		t.Fatalf("GetBlocks(7,15): %v", err)
	}
	if run != 1 || phys != base+15 {
		t.Fatalf("GetBlocks(7,15) = %d,%d, want %d,1", phys, run, base+15)
	}

	phys, run, err = m.GetBlocks(7, 32, 1, false)
	if err != nil {
		t.Fatalf("GetBlocks(7,32): %v", err)
	}
	if run != 0 || phys != 0 {
		t.Fatalf("GetBlocks(7,32) = %d,%d, want 0,0 (sparse hole)", phys, run)
	}
}

// TestDisjointSingletonsStopRunAtDiscontinuity covers spec.md's
// scenario 2: three independently allocated single-block entries whose
// physical addresses are contiguous for the first two and then break,
// so GetBlocks returns only the first contiguous run.
func TestDisjointSingletonsStopRunAtDiscontinuity(t *testing.T) {
	m, _ := newTestMapper(t, 256)

	for _, e := range []struct {
		lblk uint32
		addr uint64
	}{
		{100, 500},
		{101, 501},
		{102, 503}, // deliberately not 502: breaks contiguity
	} {
		if _, err := m.single.Insert(MakeKey(7, e.lblk), Encode(false, 0, e.addr)); err != nil {
			t.Fatalf("seed Insert(lblk=%d): %v", e.lblk, err)
		}
	}

	phys, run, err := m.GetBlocks(7, 100, 3, false)
	if err != nil {
		t.Fatalf("GetBlocks(7,100,3): %v", err)
	}
	if phys != 500 || run != 2 {
		t.Fatalf("GetBlocks(7,100,3) = %d,%d, want 500,2", phys, run)
	}
}

// TestTruncateFreesWholeChunk covers spec.md's scenario 3: truncating
// anywhere inside a chunk-table range frees that entire range in one
// call and removes the entry.
func TestTruncateFreesWholeChunk(t *testing.T) {
	m, arena := newTestMapper(t, 256)

	base, _, err := m.GetBlocks(7, 0, 32, true)
	if err != nil {
		t.Fatalf("GetBlocks(create): %v", err)
	}

	if err := m.Truncate(7, 8, 15); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	if _, run, err := m.GetBlocks(7, 0, 32, false); err != nil || run != 0 {
		t.Fatalf("GetBlocks after truncate = run %d, err %v, want 0, nil", run, err)
	}

	// The whole 32-block extent must be back in the allocator as one
	// contiguous run, not fragmented.
	addr, err := arena.AllocateRange(32)
	if err != nil {
		t.Fatalf("AllocateRange(32) after truncate: %v", err)
	}
	if addr != base {
		t.Fatalf("reallocated address = %d, want the freed chunk's base %d", addr, base)
	}
}

// TestSingleBatchStaysWithinIndexRange checks the single-table batch
// cap that keeps invariant 5's index bound: every single-table
// allocation batch is capped so its intra-range index always fits the
// codec's field width.
func TestSingleBatchStaysWithinIndexRange(t *testing.T) {
	m, _ := newTestMapper(t, 256)

	// lblk=1 is not range-aligned, so even a large request goes
	// through the single-table path and must be capped.
	_, run, err := m.GetBlocks(9, 1, 64, true)
	if err != nil {
		t.Fatalf("GetBlocks: %v", err)
	}
	if run > singleBatchBlocks {
		t.Fatalf("run = %d, want <= %d (singleBatchBlocks)", run, singleBatchBlocks)
	}
}

// TestGetBlocksReturnedRangeIsContiguous covers invariant 7: the
// physical range GetBlocks returns is always contiguous and no longer
// than requested.
func TestGetBlocksReturnedRangeIsContiguous(t *testing.T) {
	m, _ := newTestMapper(t, 256)

	phys, run, err := m.GetBlocks(3, 0, 8, true)
	if err != nil {
		t.Fatalf("GetBlocks: %v", err)
	}
	if run < 1 || run > 8 {
		t.Fatalf("run = %d, want in [1,8]", run)
	}
	for i := 0; i < run; i++ {
		got, innerRun, err := m.GetBlocks(3, uint32(i), 1, false)
		if err != nil || innerRun != 1 {
			t.Fatalf("GetBlocks(3,%d,1): %d, %v", i, innerRun, err)
		}
		if got != phys+uint64(i) {
			t.Fatalf("block %d physical = %d, want %d (contiguous with base %d)", i, got, phys+uint64(i), phys)
		}
	}
}
