// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hashtable

import "sync"

// stripeLocks shards a fixed number of reader/writer locks over the
// bucket space, plus one metadata mutex protecting nnodes/noccupied and
// the persist path (spec.md §4.D, §5).
//
// insertOrReplace and Remove never hold more than one stripe lock at a
// time: they scan under read locks, release, then take a single write
// lock on the one candidate bucket and re-verify before committing.
// Retrying the whole probe on a lost race is simpler than holding two
// stripes across an upgrade and gives the same result.
type stripeLocks struct {
	locks        []sync.RWMutex
	metadata     sync.Mutex
	bucketsPerLk uint64
}

func newStripeLocks(size int) *stripeLocks {
	n := numStripes
	if n > size {
		n = size
	}
	if n < 1 {
		n = 1
	}
	return &stripeLocks{
		locks:        make([]sync.RWMutex, n),
		bucketsPerLk: uint64(size) / uint64(n),
	}
}

func (s *stripeLocks) index(bucket uint64) int {
	if s.bucketsPerLk == 0 {
		return int(bucket) % len(s.locks)
	}
	idx := bucket / s.bucketsPerLk
	if int(idx) >= len(s.locks) {
		idx = uint64(len(s.locks) - 1)
	}
	return int(idx)
}

func (s *stripeLocks) rLock(bucket uint64)   { s.locks[s.index(bucket)].RLock() }
func (s *stripeLocks) rUnlock(bucket uint64) { s.locks[s.index(bucket)].RUnlock() }
func (s *stripeLocks) lock(bucket uint64)    { s.locks[s.index(bucket)].Lock() }
func (s *stripeLocks) unlock(bucket uint64)  { s.locks[s.index(bucket)].Unlock() }
