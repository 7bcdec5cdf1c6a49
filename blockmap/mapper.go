// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package blockmap implements the filesystem-facing block-mapping
// index: given an inode number and a logical block, find or create the
// physical block(s) backing it (spec.md §3, §4.F). It is built from two
// independent hashtable.Table instances, one for single-block entries
// and one for RANGE_SIZE-aligned chunk entries, the two-level index
// spec.md §4.F describes.
package blockmap

import (
	"fmt"

	"github.com/nvmapfs/nvblockmap/blockdev"
	"github.com/nvmapfs/nvblockmap/blockmaperr"
	"github.com/nvmapfs/nvblockmap/hashtable"
	"github.com/nvmapfs/nvblockmap/nvram"
)

// blockmapHash mixes both the inode number and the logical block into
// the hash, unlike hashtable's built-in directHash which only looks at
// a key's low 32 bits (fine for plain uint64 keys, wrong here since
// every key's low 32 bits is the logical block and the high 32 the
// inode — two different inodes' block 0 would collide under the
// default). Same multiplicative constant, folded over both halves.
func blockmapHash(k uint64) uint64 {
	hi := uint32(k >> 32)
	lo := uint32(k)
	return uint64(hi*2654435769) ^ uint64(uint32(lo*2654435769))
}

// Mapper is the in-mount handle for one file system's block-mapping
// index (spec.md §4.F "Mapper handle").
type Mapper struct {
	dev   blockdev.Device
	arena *nvram.Arena

	single *hashtable.Table
	chunk  *hashtable.Table
}

func tableOptions() hashtable.Options {
	return hashtable.Options{Hash: blockmapHash}
}

// NewMapper creates a fresh Mapper backed by two new hash tables sized
// for maxEntries single-block mappings (the chunk table, whose entries
// each cover rangeSize logical blocks, is sized proportionally smaller).
func NewMapper(dev blockdev.Device, arena *nvram.Arena, maxEntries int) (*Mapper, error) {
	opts := tableOptions()
	single, err := hashtable.New(dev, arena, arena.SingleTableDescriptorBlock(), maxEntries, opts)
	if err != nil {
		return nil, fmt.Errorf("blockmap: create single table: %w", err)
	}
	chunkEntries := maxEntries/rangeSize + 1
	chunk, err := hashtable.New(dev, arena, arena.ChunkTableDescriptorBlock(), chunkEntries, opts)
	if err != nil {
		return nil, fmt.Errorf("blockmap: create chunk table: %w", err)
	}
	return &Mapper{dev: dev, arena: arena, single: single, chunk: chunk}, nil
}

// LoadMapper reconstructs a Mapper from its two persisted descriptors,
// or creates fresh tables if neither was ever persisted (spec.md §4.G
// "load(nvram_size)").
func LoadMapper(dev blockdev.Device, arena *nvram.Arena, maxEntries int) (*Mapper, error) {
	opts := tableOptions()
	single, _, err := hashtable.Load(dev, arena, arena.SingleTableDescriptorBlock(), maxEntries, opts)
	if err != nil {
		return nil, fmt.Errorf("blockmap: load single table: %w", err)
	}
	chunkEntries := maxEntries/rangeSize + 1
	chunk, _, err := hashtable.Load(dev, arena, arena.ChunkTableDescriptorBlock(), chunkEntries, opts)
	if err != nil {
		return nil, fmt.Errorf("blockmap: load chunk table: %w", err)
	}
	return &Mapper{dev: dev, arena: arena, single: single, chunk: chunk}, nil
}

// GetBlocks resolves up to n logical blocks of inum starting at lblk to
// a single contiguous physical run (spec.md §4.F "get_blocks"). It
// returns only the first contiguous run: lookup stops at the first
// logical block whose mapping is absent or whose physical address
// breaks contiguity with its predecessor. If nothing is mapped at lblk
// and create is false, it returns (0, 0, nil): a sparse hole, not an
// error. If create is true and lblk is unmapped, it allocates new
// blocks and maps them before returning.
func (m *Mapper) GetBlocks(inum, lblk uint32, n int, create bool) (phys uint64, run int, err error) {
	if n <= 0 {
		return 0, 0, fmt.Errorf("blockmap: non-positive length %d: %w", n, blockmaperr.ErrInvalid)
	}

	val, ok, err := m.single.Lookup(MakeKey(inum, lblk))
	if err != nil {
		return 0, 0, err
	}
	if ok {
		_, idx, addr := Decode(val)
		phys = addr + uint64(idx)
		run = 1
		for run < n {
			nv, nok, err := m.single.Lookup(MakeKey(inum, lblk+uint32(run)))
			if err != nil {
				return 0, 0, err
			}
			if !nok {
				break
			}
			_, nidx, naddr := Decode(nv)
			if naddr+uint64(nidx) != phys+uint64(run) {
				break
			}
			run++
		}
		return phys, run, nil
	}

	rkey := RangeKey(inum, lblk)
	cval, cok, err := m.chunk.Lookup(rkey)
	if err != nil {
		return 0, 0, err
	}
	if cok {
		_, _, addr := Decode(cval)
		intra := int(lblk & rangeBits)
		phys = addr + uint64(intra)
		run = n
		if remaining := rangeSize - intra; remaining < run {
			run = remaining
		}
		return phys, run, nil
	}

	if !create {
		return 0, 0, nil
	}
	return m.allocate(inum, lblk, n)
}

// allocate implements spec.md §4.F's allocate-on-miss policy: a
// request of at least rangeSize/2 blocks starting on a rangeSize
// boundary is recorded as one chunk-table entry; everything else is
// recorded as per-block single-table entries. A chunk insert that
// fails falls back to per-block entries rather than surfacing the
// error (spec.md §7 "a failing large-range insert falls back to
// per-block inserts").
func (m *Mapper) allocate(inum, lblk uint32, n int) (uint64, int, error) {
	aligned := lblk&rangeBits == 0
	if n >= rangeSize/2 && aligned {
		addr, err := m.arena.AllocateRange(rangeSize)
		if err != nil {
			return m.allocateSingleBatch(inum, lblk, n)
		}
		if _, err := m.chunk.Insert(RangeKey(inum, lblk), Encode(true, 0, addr)); err != nil {
			m.arena.FreeRange(addr, rangeSize)
			return m.allocateSingleBatch(inum, lblk, n)
		}
		run := n
		if run > rangeSize {
			run = rangeSize
		}
		return addr, run, nil
	}
	return m.allocateSingleBatch(inum, lblk, n)
}

func (m *Mapper) allocateSingleBatch(inum, lblk uint32, n int) (uint64, int, error) {
	count := n
	if count > singleBatchBlocks {
		count = singleBatchBlocks
	}
	addr, err := m.arena.AllocateRange(count)
	if err != nil {
		return 0, 0, fmt.Errorf("blockmap: allocate %d blocks: %w", count, err)
	}
	for i := 0; i < count; i++ {
		if _, err := m.single.Insert(MakeKey(inum, lblk+uint32(i)), Encode(false, uint8(i), addr)); err != nil {
			m.arena.FreeRange(addr+uint64(i), count-i)
			return 0, 0, fmt.Errorf("blockmap: insert single entry: %w", err)
		}
	}
	return addr, count, nil
}

// Truncate frees every physical block mapped to inum's logical blocks
// in [start, end] and removes their hash entries (spec.md §4.F
// "truncate"). A chunk-table hit frees the entire rangeSize-block
// extent in one call and skips ahead to the next range boundary; a
// single-table hit frees exactly the one physical block that entry
// owns (spec.md §9's resolution of the free-length open question:
// free exactly the run recorded with the hit entry, never a blind
// scan).
func (m *Mapper) Truncate(inum uint32, start, end uint32) error {
	for lblk := start; lblk <= end; {
		val, ok, err := m.single.Lookup(MakeKey(inum, lblk))
		if err != nil {
			return err
		}
		if ok {
			_, idx, addr := Decode(val)
			m.arena.FreeRange(addr+uint64(idx), 1)
			if _, err := m.single.Remove(MakeKey(inum, lblk)); err != nil {
				return err
			}
			lblk++
			continue
		}

		rkey := RangeKey(inum, lblk)
		cval, cok, err := m.chunk.Lookup(rkey)
		if err != nil {
			return err
		}
		if cok {
			_, _, addr := Decode(cval)
			m.arena.FreeRange(addr, rangeSize)
			if _, err := m.chunk.Remove(rkey); err != nil {
				return err
			}
			lblk = lblk - (lblk & rangeBits) + rangeSize // next range boundary
			continue
		}

		lblk++
	}
	return nil
}

// Persist flushes both underlying tables' descriptors (spec.md §4.G).
func (m *Mapper) Persist() error {
	if err := m.single.Persist(); err != nil {
		return fmt.Errorf("blockmap: persist single table: %w", err)
	}
	if err := m.chunk.Persist(); err != nil {
		return fmt.Errorf("blockmap: persist chunk table: %w", err)
	}
	return nil
}

// SingleLoadFactor and ChunkLoadFactor report each underlying table's
// occupancy (spec.md §6 "load_factor"), exposed separately since the
// two tables are sized very differently.
func (m *Mapper) SingleLoadFactor() float64 { return m.single.LoadFactor() }
func (m *Mapper) ChunkLoadFactor() float64  { return m.chunk.LoadFactor() }

// Close releases both underlying table handles.
func (m *Mapper) Close() {
	m.single.Unref()
	m.chunk.Unref()
}
