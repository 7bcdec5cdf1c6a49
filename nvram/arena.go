// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nvram

// Arena wraps an Allocator and fixes the three reserved metadata slots
// at the top of the NVRAM device (spec.md §6): block N-1 holds the
// single-table descriptor, N-2 the chunk-table descriptor, and N-3 is
// reserved for a future inode-id-map descriptor. Callers construct the
// underlying Allocator over [0, N-3) so these three blocks are never
// handed out as data blocks. Block 0, at the other end of the range, is
// reserved the same way (spec.md §4.E, "addr == 0 reserved"); an
// Allocator implementation is responsible for never returning it (see
// FreelistAllocator).
type Arena struct {
	alloc     Allocator
	nvramSize uint64
}

// NewArena returns an Arena over a device of nvramSize blocks, handing
// data-block requests to alloc.
func NewArena(alloc Allocator, nvramSize uint64) *Arena {
	return &Arena{alloc: alloc, nvramSize: nvramSize}
}

// AllocateRange returns n contiguous data blocks.
func (a *Arena) AllocateRange(n int) (uint64, error) {
	return a.alloc.AllocateBlocks(n)
}

// FreeRange releases n contiguous data blocks starting at first.
func (a *Arena) FreeRange(first uint64, n int) {
	a.alloc.FreeBlocks(first, n)
}

// SingleTableDescriptorBlock is block N-1, the single-table metadata
// descriptor's fixed on-disk location.
func (a *Arena) SingleTableDescriptorBlock() uint64 { return a.nvramSize - 1 }

// ChunkTableDescriptorBlock is block N-2, the chunk-table metadata
// descriptor's fixed on-disk location.
func (a *Arena) ChunkTableDescriptorBlock() uint64 { return a.nvramSize - 2 }

// IDMapBlock is block N-3, reserved for a future inode-id-map
// descriptor. Nothing in this module writes to it; it exists so the
// on-disk layout already has a slot for that extension.
func (a *Arena) IDMapBlock() uint64 { return a.nvramSize - 3 }

// NVRAMSize returns the device's total block count.
func (a *Arena) NVRAMSize() uint64 { return a.nvramSize }
