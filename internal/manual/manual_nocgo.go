// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build !cgo

package manual

import "unsafe"

// Provides versions of allocRaw and freeRaw when cgo is not available (e.g.
// cross compilation). The Go heap does not move objects, so the backing slice
// only has to be kept reachable for the addresses to stay valid.

type rawAlloc struct {
	buf []byte
}

func allocRaw(n uintptr) (rawAlloc, unsafe.Pointer) {
	buf := make([]byte, n)
	return rawAlloc{buf: buf}, unsafe.Pointer(unsafe.SliceData(buf))
}

func freeRaw(r rawAlloc) {}
