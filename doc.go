// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// This is a repository containing the block-mapping index of an
// NVRAM-backed file system: a persistent, open-addressed hash table whose
// buckets live directly in NVRAM blocks, plus the two-level index built on
// top of it that translates (inode, logical block) pairs into (physical
// block, contiguity hint) pairs.
//
// Go to https://godoc.org/github.com/nvmapfs/nvblockmap/blockmap for the
// in-depth documentation of the block mapper. The lower-level persistent
// hash table lives in
// https://godoc.org/github.com/nvmapfs/nvblockmap/hashtable, and the block
// device / arena allocator collaborators it is built on live in
// https://godoc.org/github.com/nvmapfs/nvblockmap/blockdev and
// https://godoc.org/github.com/nvmapfs/nvblockmap/nvram.
package lib
