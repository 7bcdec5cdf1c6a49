// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux || darwin

package blockdev

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/nvmapfs/nvblockmap/blockmaperr"
)

// MmapDevice backs a Device with a regular file mapped into the process's
// address space with mmap. Reads and the hot-path probe of a cached
// bucket touch this mapping directly; Sync flushes it with msync.
type MmapDevice struct {
	file      *os.File
	blockSize int
	numBlocks uint64
	mapping   []byte
}

// OpenMmapDevice opens (creating if necessary) path as a numBlocks *
// blockSize byte file and maps it shared/read-write.
func OpenMmapDevice(path string, numBlocks uint64, blockSize int) (*MmapDevice, error) {
	size := int64(numBlocks) * int64(blockSize)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w: %w", path, err, blockmaperr.ErrIO)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: truncate %s to %d: %w: %w", path, size, err, blockmaperr.ErrIO)
	}

	mapping, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockdev: mmap %s: %w: %w", path, err, blockmaperr.ErrIO)
	}

	return &MmapDevice{
		file:      f,
		blockSize: blockSize,
		numBlocks: numBlocks,
		mapping:   mapping,
	}, nil
}

func (d *MmapDevice) BlockSize() int    { return d.blockSize }
func (d *MmapDevice) NumBlocks() uint64 { return d.numBlocks }

func (d *MmapDevice) ReadBlock(addr uint64, out []byte) error {
	if err := checkBounds(d, addr, 0, d.blockSize); err != nil {
		return err
	}
	start := addr * uint64(d.blockSize)
	copy(out, d.mapping[start:start+uint64(d.blockSize)])
	return nil
}

func (d *MmapDevice) WriteBlock(addr uint64, data []byte, offset int) error {
	if err := checkBounds(d, addr, offset, len(data)); err != nil {
		return err
	}
	start := addr*uint64(d.blockSize) + uint64(offset)
	copy(d.mapping[start:start+uint64(len(data))], data)
	return nil
}

// Sync flushes the mapping back to the file with msync(MS_SYNC), then
// fsyncs the file descriptor.
func (d *MmapDevice) Sync() error {
	if err := unix.Msync(d.mapping, unix.MS_SYNC); err != nil {
		return fmt.Errorf("blockdev: msync: %w: %w", err, blockmaperr.ErrIO)
	}
	if err := d.file.Sync(); err != nil {
		return fmt.Errorf("blockdev: fsync: %w: %w", err, blockmaperr.ErrIO)
	}
	return nil
}

// Close unmaps the file and closes its descriptor. The device must not
// be used afterwards.
func (d *MmapDevice) Close() error {
	err := unix.Munmap(d.mapping)
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	return err
}
