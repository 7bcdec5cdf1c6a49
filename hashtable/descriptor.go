// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hashtable

import (
	"encoding/binary"
	"fmt"

	"github.com/nvmapfs/nvblockmap/blockmaperr"
)

const (
	descriptorMagic1 uint32 = 0x4e564844 // "NVHD"
	descriptorMagic2 uint32 = 0x31000001 // format version 1

	descriptorSize = 4 + 4 + 8 + 8 + 8 + 8 + 8 + 8 + 8 + 8 + 8 // bytes, see marshal
)

// descriptor is the fixed on-disk metadata record certifying a Table
// (spec.md §3 "Metadata descriptor", §6 "On-disk layout").
type descriptor struct {
	magic1, magic2 uint32
	size           int64
	mod            int64
	mask           uint64
	nnodes         int64
	noccupied      int64
	nvramSize      uint64
	keysStart      uint64
	hashesStart    uint64
	valuesStart    uint64
}

func (d *descriptor) valid() bool {
	return d.magic1 == descriptorMagic1 && d.magic2 == descriptorMagic2 && d.size > 0
}

func (d *descriptor) marshal() []byte {
	buf := make([]byte, descriptorSize)
	binary.LittleEndian.PutUint32(buf[0:], d.magic1)
	binary.LittleEndian.PutUint32(buf[4:], d.magic2)
	binary.LittleEndian.PutUint64(buf[8:], uint64(d.size))
	binary.LittleEndian.PutUint64(buf[16:], uint64(d.mod))
	binary.LittleEndian.PutUint64(buf[24:], d.mask)
	binary.LittleEndian.PutUint64(buf[32:], uint64(d.nnodes))
	binary.LittleEndian.PutUint64(buf[40:], uint64(d.noccupied))
	binary.LittleEndian.PutUint64(buf[48:], d.nvramSize)
	binary.LittleEndian.PutUint64(buf[56:], d.keysStart)
	binary.LittleEndian.PutUint64(buf[64:], d.hashesStart)
	binary.LittleEndian.PutUint64(buf[72:], d.valuesStart)
	return buf
}

func unmarshalDescriptor(buf []byte) (*descriptor, error) {
	if len(buf) < descriptorSize {
		return nil, fmt.Errorf("hashtable: descriptor buffer too small (%d < %d): %w", len(buf), descriptorSize, blockmaperr.ErrCorrupt)
	}
	d := &descriptor{
		magic1:      binary.LittleEndian.Uint32(buf[0:]),
		magic2:      binary.LittleEndian.Uint32(buf[4:]),
		size:        int64(binary.LittleEndian.Uint64(buf[8:])),
		mod:         int64(binary.LittleEndian.Uint64(buf[16:])),
		mask:        binary.LittleEndian.Uint64(buf[24:]),
		nnodes:      int64(binary.LittleEndian.Uint64(buf[32:])),
		noccupied:   int64(binary.LittleEndian.Uint64(buf[40:])),
		nvramSize:   binary.LittleEndian.Uint64(buf[48:]),
		keysStart:   binary.LittleEndian.Uint64(buf[56:]),
		hashesStart: binary.LittleEndian.Uint64(buf[64:]),
		valuesStart: binary.LittleEndian.Uint64(buf[72:]),
	}
	return d, nil
}
