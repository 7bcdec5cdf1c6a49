// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hashtable implements the persistent open-addressed hash table
// whose three parallel arrays (keys, hashes, values) live in NVRAM
// blocks (spec.md §4.C). It is deliberately a generic uint64->uint64
// table with pluggable hash/equal callbacks (spec.md §9's "capability
// record" re-architecture of the original's callback-shaped
// hash/equality) — package blockmap builds the filesystem-specific
// two-level index on top of two independent instances of it.
package hashtable

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/nvmapfs/nvblockmap/blockdev"
	"github.com/nvmapfs/nvblockmap/blockmaperr"
	"github.com/nvmapfs/nvblockmap/nvram"
)

// Options carries the pluggable hash/equality callbacks and optional
// destroy notifications (spec.md §9: "model as a small capability
// record ... not as subclassing"). A zero Options uses the built-in
// direct hash and ==.
type Options struct {
	// Hash computes a key's hash. Defaults to the built-in direct
	// hash (spec.md §4.C).
	Hash func(key uint64) uint64

	// Equal compares two keys. Defaults to ==.
	Equal func(a, b uint64) bool

	// DestroyKey and DestroyValue, if set, are invoked by Remove on
	// the removed entry, and by Replace on an overwritten entry's
	// prior key/value (spec.md §4.C "replace ... frees prior
	// key/value via the destroy callbacks if provided").
	DestroyKey   func(uint64)
	DestroyValue func(uint64)

	// Logger receives diagnostics (inserts refused at the occupancy
	// bound). Defaults to log.Default().
	Logger *log.Logger
}

func (o *Options) hash(k uint64) uint64 {
	if o.Hash != nil {
		return o.Hash(k)
	}
	return directHash(k)
}

func (o *Options) equal(a, b uint64) bool {
	if o.Equal != nil {
		return o.Equal(a, b)
	}
	return directEqual(a, b)
}

func (o *Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default()
}

// Table is an in-mount handle for one persistent open-addressed hash
// table (spec.md §3 "Hash-table handle"). It must be constructed with
// New or Load and released with Unref.
type Table struct {
	dev   blockdev.Device
	arena *nvram.Arena
	pool  blockdev.BufferPool
	opts  Options

	descBlock uint64

	size      int
	mod       int64
	mask      uint64
	nnodes    int
	noccupied int

	keysStart   uint64
	hashesStart uint64
	valuesStart uint64

	locks *stripeLocks

	refs int32
}

func nextPow2(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func (t *Table) wordsPerBlock() int { return t.dev.BlockSize() / 8 }

func (t *Table) blocksForArray() int {
	return ceilDiv(t.size*8, t.dev.BlockSize())
}

// New sizes a fresh table to hold maxEntries at spec.md's target load
// factor, allocates its three NVRAM arrays through arena, zero-fills
// them, and writes the initial descriptor to descBlock.
func New(dev blockdev.Device, arena *nvram.Arena, descBlock uint64, maxEntries int, opts Options) (*Table, error) {
	size := nextPow2(int(float64(maxEntries) / targetLoad))

	t := &Table{
		dev:       dev,
		arena:     arena,
		pool:      blockdev.NewBlockBufferPool(dev.BlockSize()),
		opts:      opts,
		descBlock: descBlock,
		size:      size,
		mod:       int64(size),
		mask:      uint64(size - 1),
		refs:      1,
	}
	t.locks = newStripeLocks(size)

	blocks := t.blocksForArray()
	var err error
	if t.keysStart, err = arena.AllocateRange(blocks); err != nil {
		return nil, fmt.Errorf("hashtable: allocate keys array: %w", err)
	}
	if t.hashesStart, err = arena.AllocateRange(blocks); err != nil {
		return nil, fmt.Errorf("hashtable: allocate hashes array: %w", err)
	}
	if t.valuesStart, err = arena.AllocateRange(blocks); err != nil {
		return nil, fmt.Errorf("hashtable: allocate values array: %w", err)
	}

	zero := make([]byte, dev.BlockSize())
	for _, start := range []uint64{t.keysStart, t.hashesStart, t.valuesStart} {
		for b := 0; b < blocks; b++ {
			if err := dev.WriteBlock(start+uint64(b), zero, 0); err != nil {
				return nil, fmt.Errorf("hashtable: zero-fill array at block %d: %w", start+uint64(b), err)
			}
		}
	}

	if err := t.persistLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

// Load reads the descriptor at descBlock. If its magic matches and it
// describes a non-empty table, the handle is reconstructed from it; a
// recorded array that extends past the device's last block is reported
// as ErrCorrupt. Otherwise a fresh table is created exactly as New would
// (spec.md §4.G "load(nvram_size)").
func Load(dev blockdev.Device, arena *nvram.Arena, descBlock uint64, maxEntries int, opts Options) (t *Table, reconstructed bool, err error) {
	buf := make([]byte, dev.BlockSize())
	if err := dev.ReadBlock(descBlock, buf); err != nil {
		return nil, false, fmt.Errorf("hashtable: read descriptor: %w", err)
	}
	d, err := unmarshalDescriptor(buf)
	if err != nil {
		return nil, false, err
	}
	if !d.valid() {
		t, err = New(dev, arena, descBlock, maxEntries, opts)
		return t, false, err
	}
	arrBlocks := uint64(ceilDiv(int(d.size)*8, dev.BlockSize()))
	for _, start := range []uint64{d.keysStart, d.hashesStart, d.valuesStart} {
		if start+arrBlocks > dev.NumBlocks() {
			return nil, false, fmt.Errorf("hashtable: descriptor array at block %d (%d blocks) exceeds device (%d blocks): %w", start, arrBlocks, dev.NumBlocks(), blockmaperr.ErrCorrupt)
		}
	}

	t = &Table{
		dev:         dev,
		arena:       arena,
		pool:        blockdev.NewBlockBufferPool(dev.BlockSize()),
		opts:        opts,
		descBlock:   descBlock,
		size:        int(d.size),
		mod:         d.mod,
		mask:        d.mask,
		nnodes:      int(d.nnodes),
		noccupied:   int(d.noccupied),
		keysStart:   d.keysStart,
		hashesStart: d.hashesStart,
		valuesStart: d.valuesStart,
		refs:        1,
	}
	t.locks = newStripeLocks(t.size)
	return t, true, nil
}

func (t *Table) readWord(arrStart uint64, idx int) (uint64, error) {
	wpb := t.wordsPerBlock()
	block := arrStart + uint64(idx/wpb)
	offset := (idx % wpb) * 8
	buf := t.pool.AllocBuffer(t.dev.BlockSize())
	defer t.pool.FreeBuffer(buf)
	if err := t.dev.ReadBlock(block, buf); err != nil {
		return 0, fmt.Errorf("hashtable: read bucket word: %w", err)
	}
	return binary.LittleEndian.Uint64(buf[offset : offset+8]), nil
}

func (t *Table) writeWord(arrStart uint64, idx int, val uint64) error {
	wpb := t.wordsPerBlock()
	block := arrStart + uint64(idx/wpb)
	offset := (idx % wpb) * 8
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], val)
	if err := t.dev.WriteBlock(block, b[:], offset); err != nil {
		return fmt.Errorf("hashtable: write bucket word: %w", err)
	}
	return nil
}

func (t *Table) validKey(key uint64) error {
	if key == emptyKey || key == tombstoneKey {
		return fmt.Errorf("hashtable: key %#x collides with a sentinel: %w", key, blockmaperr.ErrInvalid)
	}
	return nil
}

// Lookup returns the value stored for key, and whether it was present.
func (t *Table) Lookup(key uint64) (uint64, bool, error) {
	if err := t.validKey(key); err != nil {
		return 0, false, err
	}
	h := storedHash(t.opts.hash(key))

	var (
		foundVal uint64
		found    bool
		probeErr error
	)
	probeSeq(h, t.mask, uint64(t.mod), t.size, func(i uint64) bool {
		t.locks.rLock(i)
		defer t.locks.rUnlock(i)

		hv, err := t.readWord(t.hashesStart, int(i))
		if err != nil {
			probeErr = err
			return true
		}
		switch {
		case hv == 0:
			return true // empty: absent
		case hv == tombstoneHash:
			return false // tombstone: keep probing
		case hv == h:
			kv, err := t.readWord(t.keysStart, int(i))
			if err != nil {
				probeErr = err
				return true
			}
			if t.opts.equal(kv, key) {
				vv, err := t.readWord(t.valuesStart, int(i))
				if err != nil {
					probeErr = err
					return true
				}
				foundVal, found = vv, true
				return true
			}
		}
		return false
	})
	if probeErr != nil {
		return 0, false, probeErr
	}
	return foundVal, found, nil
}

// Contains reports whether key is present.
func (t *Table) Contains(key uint64) (bool, error) {
	_, ok, err := t.Lookup(key)
	return ok, err
}

func (t *Table) insertOrReplace(key, value uint64, destroyOnOverwrite bool) (inserted bool, err error) {
	if err := t.validKey(key); err != nil {
		return false, err
	}
	h := storedHash(t.opts.hash(key))

	for {
		var (
			candidate = -1
			foundIdx  = -1
			probeErr  error
		)
		probeSeq(h, t.mask, uint64(t.mod), t.size, func(i uint64) bool {
			t.locks.rLock(i)
			hv, err := t.readWord(t.hashesStart, int(i))
			if err != nil {
				t.locks.rUnlock(i)
				probeErr = err
				return true
			}
			switch {
			case hv == 0:
				t.locks.rUnlock(i)
				if candidate == -1 {
					candidate = int(i)
				}
				return true
			case hv == tombstoneHash:
				t.locks.rUnlock(i)
				if candidate == -1 {
					candidate = int(i)
				}
				return false
			case hv == h:
				kv, err := t.readWord(t.keysStart, int(i))
				t.locks.rUnlock(i)
				if err != nil {
					probeErr = err
					return true
				}
				if t.opts.equal(kv, key) {
					foundIdx = int(i)
					return true
				}
				return false
			default:
				t.locks.rUnlock(i)
				return false
			}
		})
		if probeErr != nil {
			return false, probeErr
		}

		if foundIdx != -1 {
			idx := uint64(foundIdx)
			t.locks.lock(idx)
			kv, err := t.readWord(t.keysStart, foundIdx)
			if err != nil {
				t.locks.unlock(idx)
				return false, err
			}
			if !t.opts.equal(kv, key) {
				t.locks.unlock(idx)
				continue // raced with a remove/rehash of this slot; retry
			}
			var oldVal uint64
			if destroyOnOverwrite && (t.opts.DestroyKey != nil || t.opts.DestroyValue != nil) {
				oldVal, err = t.readWord(t.valuesStart, foundIdx)
				if err != nil {
					t.locks.unlock(idx)
					return false, err
				}
			}
			if err := t.writeWord(t.valuesStart, foundIdx, value); err != nil {
				t.locks.unlock(idx)
				return false, err
			}
			t.locks.unlock(idx)
			if destroyOnOverwrite {
				if t.opts.DestroyKey != nil {
					t.opts.DestroyKey(kv)
				}
				if t.opts.DestroyValue != nil {
					t.opts.DestroyValue(oldVal)
				}
			}
			return false, nil
		}

		idx := uint64(candidate)
		t.locks.lock(idx)
		hv, err := t.readWord(t.hashesStart, candidate)
		if err != nil {
			t.locks.unlock(idx)
			return false, err
		}
		if hv != 0 && hv != tombstoneHash {
			t.locks.unlock(idx) // raced: slot got occupied, retry whole probe
			continue
		}
		wasEmpty := hv == 0

		t.locks.metadata.Lock()
		if wasEmpty {
			if float64(t.noccupied+1)/float64(t.size) > refuseLoad {
				t.locks.metadata.Unlock()
				t.locks.unlock(idx)
				t.opts.logger().Printf("hashtable: insert refused, occupancy would exceed %.0f%%", refuseLoad*100)
				return false, fmt.Errorf("hashtable: occupancy would exceed %.0f%%: %w", refuseLoad*100, blockmaperr.ErrNoSpace)
			}
		}
		if err := t.writeWord(t.keysStart, candidate, key); err != nil {
			t.locks.metadata.Unlock()
			t.locks.unlock(idx)
			return false, err
		}
		if err := t.writeWord(t.hashesStart, candidate, h); err != nil {
			t.locks.metadata.Unlock()
			t.locks.unlock(idx)
			return false, err
		}
		if err := t.writeWord(t.valuesStart, candidate, value); err != nil {
			t.locks.metadata.Unlock()
			t.locks.unlock(idx)
			return false, err
		}
		t.nnodes++
		if wasEmpty {
			t.noccupied++
		}
		t.locks.metadata.Unlock()
		t.locks.unlock(idx)
		return true, nil
	}
}

// Insert stores value for key. It returns true if key was not
// previously present, false if an existing key's value was overwritten
// (spec.md §4.C "insert").
func (t *Table) Insert(key, value uint64) (bool, error) {
	return t.insertOrReplace(key, value, false)
}

// Replace is like Insert, but on overwriting an existing key it invokes
// the configured DestroyKey/DestroyValue callbacks on the prior entry
// (spec.md §4.C "replace").
func (t *Table) Replace(key, value uint64) error {
	_, err := t.insertOrReplace(key, value, true)
	return err
}

// Remove tombstones key's bucket if present, decrementing nnodes (not
// noccupied), and invokes the destroy callbacks. It reports whether
// anything was removed.
func (t *Table) Remove(key uint64) (bool, error) {
	if err := t.validKey(key); err != nil {
		return false, err
	}
	h := storedHash(t.opts.hash(key))

	var (
		foundIdx = -1
		probeErr error
	)
	probeSeq(h, t.mask, uint64(t.mod), t.size, func(i uint64) bool {
		t.locks.rLock(i)
		hv, err := t.readWord(t.hashesStart, int(i))
		if err != nil {
			t.locks.rUnlock(i)
			probeErr = err
			return true
		}
		switch {
		case hv == 0:
			t.locks.rUnlock(i)
			return true
		case hv == tombstoneHash:
			t.locks.rUnlock(i)
			return false
		case hv == h:
			kv, err := t.readWord(t.keysStart, int(i))
			t.locks.rUnlock(i)
			if err != nil {
				probeErr = err
				return true
			}
			if t.opts.equal(kv, key) {
				foundIdx = int(i)
				return true
			}
			return false
		default:
			t.locks.rUnlock(i)
			return false
		}
	})
	if probeErr != nil {
		return false, probeErr
	}
	if foundIdx == -1 {
		return false, nil
	}

	idx := uint64(foundIdx)
	t.locks.lock(idx)
	kv, err := t.readWord(t.keysStart, foundIdx)
	if err != nil {
		t.locks.unlock(idx)
		return false, err
	}
	if !t.opts.equal(kv, key) {
		t.locks.unlock(idx) // already removed/replaced concurrently
		return false, nil
	}
	oldVal, err := t.readWord(t.valuesStart, foundIdx)
	if err != nil {
		t.locks.unlock(idx)
		return false, err
	}
	if err := t.writeWord(t.keysStart, foundIdx, tombstoneKey); err != nil {
		t.locks.unlock(idx)
		return false, err
	}
	if err := t.writeWord(t.hashesStart, foundIdx, tombstoneHash); err != nil {
		t.locks.unlock(idx)
		return false, err
	}

	t.locks.metadata.Lock()
	t.nnodes--
	t.locks.metadata.Unlock()

	t.locks.unlock(idx)

	if t.opts.DestroyKey != nil {
		t.opts.DestroyKey(kv)
	}
	if t.opts.DestroyValue != nil {
		t.opts.DestroyValue(oldVal)
	}
	return true, nil
}

// Size returns the number of live entries (nnodes).
func (t *Table) Size() int {
	t.locks.metadata.Lock()
	defer t.locks.metadata.Unlock()
	return t.nnodes
}

// LoadFactor returns nnodes/size, for diagnostics (spec.md §6
// "load_factor").
func (t *Table) LoadFactor() float64 {
	t.locks.metadata.Lock()
	defer t.locks.metadata.Unlock()
	return float64(t.nnodes) / float64(t.size)
}

// Foreach calls fn for every live bucket, stopping early if fn returns
// false. It does not take the metadata lock across the whole scan, so a
// concurrent writer may be observed mid-update; callers needing a
// consistent snapshot should not mutate concurrently.
func (t *Table) Foreach(fn func(key, value uint64) bool) error {
	for i := 0; i < t.size; i++ {
		bi := uint64(i)
		t.locks.rLock(bi)
		hv, err := t.readWord(t.hashesStart, i)
		if err != nil {
			t.locks.rUnlock(bi)
			return err
		}
		if hv == 0 || hv == tombstoneHash {
			t.locks.rUnlock(bi)
			continue
		}
		kv, err := t.readWord(t.keysStart, i)
		if err != nil {
			t.locks.rUnlock(bi)
			return err
		}
		vv, err := t.readWord(t.valuesStart, i)
		t.locks.rUnlock(bi)
		if err != nil {
			return err
		}
		if !fn(kv, vv) {
			return nil
		}
	}
	return nil
}

// Find returns the first live (key, value) pair for which pred returns
// true.
func (t *Table) Find(pred func(key, value uint64) bool) (k, v uint64, ok bool) {
	_ = t.Foreach(func(key, value uint64) bool {
		if pred(key, value) {
			k, v, ok = key, value, true
			return false
		}
		return true
	})
	return
}

func (t *Table) persistLocked() error {
	d := &descriptor{
		magic1:      descriptorMagic1,
		magic2:      descriptorMagic2,
		size:        int64(t.size),
		mod:         t.mod,
		mask:        t.mask,
		nnodes:      int64(t.nnodes),
		noccupied:   int64(t.noccupied),
		nvramSize:   t.arena.NVRAMSize(),
		keysStart:   t.keysStart,
		hashesStart: t.hashesStart,
		valuesStart: t.valuesStart,
	}
	if err := t.dev.WriteBlock(t.descBlock, d.marshal(), 0); err != nil {
		return fmt.Errorf("hashtable: write descriptor: %w", err)
	}
	return nil
}

// Persist flushes the device and writes the metadata descriptor, the
// sole durability commit point (spec.md §4.G).
func (t *Table) Persist() error {
	t.locks.metadata.Lock()
	defer t.locks.metadata.Unlock()

	if err := t.dev.Sync(); err != nil {
		return fmt.Errorf("hashtable: sync before persist: %w", err)
	}
	if err := t.persistLocked(); err != nil {
		return err
	}
	return t.dev.Sync()
}

// Ref increments the handle's reference count.
func (t *Table) Ref() { atomic.AddInt32(&t.refs, 1) }

// Unref decrements the reference count. Dropping the count to zero
// releases nothing explicitly and does not invalidate the handle; its
// memory is reclaimed by the garbage collector once it is no longer
// referenced. On-disk state is unaffected until Persist.
func (t *Table) Unref() {
	atomic.AddInt32(&t.refs, -1)
}
