// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blockmap

import (
	"testing"

	"github.com/nvmapfs/nvblockmap/blockdev"
	"github.com/nvmapfs/nvblockmap/nvram"
)

func TestMapperPersistAndReload(t *testing.T) {
	const blockSize = 256
	const nvramSize = 8192
	dev := blockdev.NewMemDevice(nvramSize, blockSize)
	alloc := nvram.NewFreelistAllocator(0, nvramSize-3)
	arena := nvram.NewArena(alloc, nvramSize)

	m, err := NewMapper(dev, arena, 256)
	if err != nil {
		t.Fatalf("NewMapper: %v", err)
	}

	rangeBase, _, err := m.GetBlocks(11, 0, 32, true)
	if err != nil {
		t.Fatalf("GetBlocks(range): %v", err)
	}
	singleBase, _, err := m.GetBlocks(11, 64, 4, true)
	if err != nil {
		t.Fatalf("GetBlocks(single): %v", err)
	}

	if err := m.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	m.Close()

	reloaded, err := LoadMapper(dev, arena, 256)
	if err != nil {
		t.Fatalf("LoadMapper: %v", err)
	}
	defer reloaded.Close()

	phys, run, err := reloaded.GetBlocks(11, 10, 1, false)
	if err != nil || run != 1 || phys != rangeBase+10 {
		t.Fatalf("GetBlocks(11,10) after reload = %d,%d,%v, want %d,1,nil", phys, run, err, rangeBase+10)
	}
	phys, run, err = reloaded.GetBlocks(11, 64, 4, false)
	if err != nil || run != 4 || phys != singleBase {
		t.Fatalf("GetBlocks(11,64,4) after reload = %d,%d,%v, want %d,4,nil", phys, run, err, singleBase)
	}
}
