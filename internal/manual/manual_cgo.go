// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

//go:build cgo

package manual

// #include <stdlib.h>
import "C"
import "unsafe"

type rawAlloc struct {
	ptr unsafe.Pointer
}

// allocRaw returns zeroed C memory. We need to be conscious of the cgo pointer
// passing rules: C memory is never scanned by the Go GC, so callers must not
// store Go pointers in it.
func allocRaw(n uintptr) (rawAlloc, unsafe.Pointer) {
	ptr := C.calloc(C.size_t(n), 1)
	if ptr == nil {
		panic("manual: out of memory")
	}
	return rawAlloc{ptr: ptr}, ptr
}

func freeRaw(r rawAlloc) {
	C.free(r.ptr)
}
