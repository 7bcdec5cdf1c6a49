// Copyright 2026 the NVBlockMap Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux || darwin

package blockdev

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/nvmapfs/nvblockmap/blockmaperr"
)

func TestMmapDeviceReadWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.img")
	dev, err := OpenMmapDevice(path, 16, 64)
	if err != nil {
		t.Fatalf("OpenMmapDevice: %v", err)
	}
	defer dev.Close()

	data := []byte("hello, nvram")
	if err := dev.WriteBlock(3, data, 8); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	out := make([]byte, dev.BlockSize())
	if err := dev.ReadBlock(3, out); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if string(out[8:8+len(data)]) != string(data) {
		t.Fatalf("read back %q, want %q", out[8:8+len(data)], data)
	}
	if err := dev.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func TestOpenMmapDeviceFailureIsErrIO(t *testing.T) {
	_, err := OpenMmapDevice(filepath.Join(t.TempDir(), "missing-dir", "device.img"), 16, 64)
	if err == nil {
		t.Fatal("OpenMmapDevice into a nonexistent directory succeeded")
	}
	if !errors.Is(err, blockmaperr.ErrIO) {
		t.Fatalf("error = %v, want it to wrap blockmaperr.ErrIO", err)
	}
}
