// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hashtable

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/nvmapfs/nvblockmap/blockdev"
	"github.com/nvmapfs/nvblockmap/nvram"
)

// snapshot captures everything Persist+Load is expected to round-trip.
type snapshot struct {
	entries   map[uint64]uint64
	size      int
	nnodes    int
	noccupied int
}

func takeSnapshot(t *testing.T, tbl *Table) snapshot {
	t.Helper()
	s := snapshot{entries: map[uint64]uint64{}, size: tbl.size, nnodes: tbl.nnodes, noccupied: tbl.noccupied}
	if err := tbl.Foreach(func(k, v uint64) bool {
		s.entries[k] = v
		return true
	}); err != nil {
		t.Fatalf("Foreach: %v", err)
	}
	return s
}

func TestPersistAndReloadRoundTrip(t *testing.T) {
	const blockSize = 256
	const nvramSize = 4096
	dev := blockdev.NewMemDevice(nvramSize, blockSize)
	alloc := nvram.NewFreelistAllocator(0, nvramSize-3)
	arena := nvram.NewArena(alloc, nvramSize)

	tbl, err := New(dev, arena, arena.SingleTableDescriptorBlock(), 64, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := uint64(1); i <= 30; i++ {
		if _, err := tbl.Insert(i, i*10); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if _, err := tbl.Remove(5); err != nil {
		t.Fatalf("Remove(5): %v", err)
	}

	if err := tbl.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	before := takeSnapshot(t, tbl)
	tbl.Unref()

	reloaded, reconstructed, err := Load(dev, arena, arena.SingleTableDescriptorBlock(), 64, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reconstructed {
		t.Fatal("Load reported a fresh table instead of reconstructing the persisted one")
	}
	after := takeSnapshot(t, reloaded)

	if diff := pretty.Compare(before, after); diff != "" {
		t.Fatalf("snapshot mismatch after reload (-before +after):\n%s", diff)
	}

	if _, ok, _ := reloaded.Lookup(5); ok {
		t.Fatal("removed key 5 reappeared after reload")
	}
	v, ok, err := reloaded.Lookup(17)
	if err != nil || !ok || v != 170 {
		t.Fatalf("Lookup(17) after reload = %d, %v, %v, want 170, true, nil", v, ok, err)
	}
}

func TestLoadOfNeverPersistedDescriptorCreatesFreshTable(t *testing.T) {
	const blockSize = 256
	const nvramSize = 4096
	dev := blockdev.NewMemDevice(nvramSize, blockSize)
	alloc := nvram.NewFreelistAllocator(0, nvramSize-3)
	arena := nvram.NewArena(alloc, nvramSize)

	tbl, reconstructed, err := Load(dev, arena, arena.SingleTableDescriptorBlock(), 64, Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reconstructed {
		t.Fatal("Load reported reconstructing a table from an all-zero descriptor block")
	}
	if got := tbl.Size(); got != 0 {
		t.Fatalf("fresh table Size() = %d, want 0", got)
	}
}
