// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package blockdev

import (
	"fmt"
	"strings"
	"sync"
	"unsafe"
)

// BufferPool recycles block-sized buffers for read/write call sites that
// don't retain the slice past the call, so a hot-path probe doesn't pay
// an allocation per block touched.
type BufferPool interface {
	AllocBuffer(size int) []byte
	FreeBuffer(slice []byte)
	String() string
}

// GcBufferPool is a fallback that just allocates; useful when a caller
// wants the simplicity of the interface without pooling.
type GcBufferPool struct{}

func NewGcBufferPool() *GcBufferPool { return &GcBufferPool{} }

func (*GcBufferPool) AllocBuffer(size int) []byte { return make([]byte, size) }
func (*GcBufferPool) FreeBuffer([]byte)            {}
func (*GcBufferPool) String() string               { return "GcBufferPool" }

// BlockBufferPool implements a pool of buffers sized in multiples of a
// fixed block size, which have possibly been used and may contain stale
// contents from a previous block.
type BlockBufferPool struct {
	blockSize int

	lock sync.Mutex

	// For each block-count multiple, a free list of slices.
	buffersByBlocks [][][]byte

	// start of slice => true, tracks buffers handed out but not freed.
	outstandingBuffers map[uintptr]bool

	createdBuffers int
}

// NewBlockBufferPool creates a pool whose buffers are sized in multiples
// of blockSize bytes.
func NewBlockBufferPool(blockSize int) *BlockBufferPool {
	return &BlockBufferPool{
		blockSize:          blockSize,
		buffersByBlocks:    make([][][]byte, 0, 32),
		outstandingBuffers: make(map[uintptr]bool),
	}
}

func (p *BlockBufferPool) String() string {
	p.lock.Lock()
	defer p.lock.Unlock()

	result := []string{}
	for n, bufs := range p.buffersByBlocks {
		if len(bufs) > 0 {
			result = append(result, fmt.Sprintf("%d=%d", n, len(bufs)))
		}
	}
	return fmt.Sprintf("created: %d\noutstanding: %d\n%s",
		p.createdBuffers, len(p.outstandingBuffers), strings.Join(result, ", "))
}

func (p *BlockBufferPool) getBuffer(nblocks int) []byte {
	for ; nblocks < len(p.buffersByBlocks); nblocks++ {
		list := p.buffersByBlocks[nblocks]
		if len(list) > 0 {
			result := list[len(list)-1]
			p.buffersByBlocks[nblocks] = list[:len(list)-1]
			return result
		}
	}
	return nil
}

func (p *BlockBufferPool) addBuffer(slice []byte, nblocks int) {
	for len(p.buffersByBlocks) <= nblocks {
		p.buffersByBlocks = append(p.buffersByBlocks, nil)
	}
	p.buffersByBlocks[nblocks] = append(p.buffersByBlocks[nblocks], slice)
}

// AllocBuffer returns a buffer of at least size bytes, rounded up to a
// whole number of blocks. It must be returned with FreeBuffer.
func (p *BlockBufferPool) AllocBuffer(size int) []byte {
	nblocks := (size + p.blockSize - 1) / p.blockSize
	if nblocks == 0 {
		nblocks = 1
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	b := p.getBuffer(nblocks)
	if b == nil {
		p.createdBuffers++
		b = make([]byte, size, nblocks*p.blockSize)
	} else {
		b = b[:size]
	}

	p.outstandingBuffers[uintptr(unsafe.Pointer(&b[0:cap(b)][0]))] = true
	return b
}

// FreeBuffer returns a buffer obtained from AllocBuffer to the pool. It
// is not an error to call it with a slice obtained elsewhere; that call
// is simply ignored.
func (p *BlockBufferPool) FreeBuffer(slice []byte) {
	if cap(slice) == 0 || cap(slice)%p.blockSize != 0 {
		return
	}
	nblocks := cap(slice) / p.blockSize
	full := slice[0:cap(slice)]
	key := uintptr(unsafe.Pointer(&full[0]))

	p.lock.Lock()
	defer p.lock.Unlock()
	if p.outstandingBuffers[key] {
		p.addBuffer(slice[:cap(slice)], nblocks)
		delete(p.outstandingBuffers, key)
	}
}
