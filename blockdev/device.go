// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package blockdev defines the block-device collaborator that the
// persistent hash table and block mapper read and write through, along
// with two implementations: an in-memory device for tests, and an
// mmap-backed device for a real NVRAM-partition file.
package blockdev

import (
	"fmt"

	"github.com/nvmapfs/nvblockmap/blockmaperr"
)

// Device is the synchronous, all-or-nothing block I/O contract consumed
// by the hash table and block mapper. The hash table calls it from many
// goroutines at once: its striped locks keep goroutines off the same
// bucket word, not off the same block, so an implementation must accept
// concurrent calls that touch different bytes of one block.
type Device interface {
	// BlockSize returns the fixed block size in bytes, the same value
	// for the lifetime of the device.
	BlockSize() int

	// NumBlocks returns the device's total capacity in blocks.
	NumBlocks() uint64

	// ReadBlock reads the whole block at addr into out, which must be
	// at least BlockSize() bytes.
	ReadBlock(addr uint64, out []byte) error

	// WriteBlock writes data into block addr starting at byte offset
	// offset. offset+len(data) must not exceed BlockSize().
	WriteBlock(addr uint64, data []byte, offset int) error

	// Sync is a durability barrier: once it returns, all prior writes
	// are guaranteed to survive a crash.
	Sync() error
}

func checkBounds(dev Device, addr uint64, offset, n int) error {
	if addr >= dev.NumBlocks() {
		return fmt.Errorf("blockdev: block %d out of range (%d blocks): %w", addr, dev.NumBlocks(), blockmaperr.ErrInvalid)
	}
	if offset < 0 || n < 0 || offset+n > dev.BlockSize() {
		return fmt.Errorf("blockdev: byte range [%d,%d) out of block bounds (block size %d): %w", offset, offset+n, dev.BlockSize(), blockmaperr.ErrInvalid)
	}
	return nil
}
