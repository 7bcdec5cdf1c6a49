// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blockdev

import "sync"

// MemDevice is a Device backed by a single in-process byte slice. It is
// used by unit tests and the demo program; it never touches real storage
// and loses all state when the process exits.
type MemDevice struct {
	blockSize int
	mu        sync.Mutex
	data      []byte
}

// NewMemDevice allocates a zero-filled in-memory device of numBlocks
// blocks, each blockSize bytes.
func NewMemDevice(numBlocks uint64, blockSize int) *MemDevice {
	return &MemDevice{
		blockSize: blockSize,
		data:      make([]byte, numBlocks*uint64(blockSize)),
	}
}

func (d *MemDevice) BlockSize() int    { return d.blockSize }
func (d *MemDevice) NumBlocks() uint64 { return uint64(len(d.data)) / uint64(d.blockSize) }

func (d *MemDevice) ReadBlock(addr uint64, out []byte) error {
	if err := checkBounds(d, addr, 0, d.blockSize); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	start := addr * uint64(d.blockSize)
	copy(out, d.data[start:start+uint64(d.blockSize)])
	return nil
}

func (d *MemDevice) WriteBlock(addr uint64, data []byte, offset int) error {
	if err := checkBounds(d, addr, offset, len(data)); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	start := addr*uint64(d.blockSize) + uint64(offset)
	copy(d.data[start:start+uint64(len(data))], data)
	return nil
}

// Sync is a no-op: MemDevice has no durability to flush.
func (d *MemDevice) Sync() error { return nil }
