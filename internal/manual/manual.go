// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package manual allocates memory that is not moved or reclaimed by the Go
// runtime until it is explicitly released with Free. Table blocks live here so
// that their base addresses stay stable for the lifetime of the table.
package manual

import (
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Purpose identifies the use-case for an allocation.
type Purpose uint8

const (
	_ Purpose = iota

	TableBlock

	NumPurposes
)

// Metrics contains memory statistics by purpose.
type Metrics [NumPurposes]struct {
	// InUseBytes is the total number of bytes currently allocated. This is just
	// the sum of the lengths of the allocations and does not include any
	// alignment padding.
	InUseBytes uint64
	// TotalBytes is the total cumulative number of bytes allocated since the
	// process started.
	TotalBytes uint64
}

var counters [NumPurposes]struct {
	TotalAllocated atomic.Uint64
	TotalFreed     atomic.Uint64
	// Pad to separate counters into cache lines.
	_ [6]uint64
}

func recordAlloc(purpose Purpose, n uintptr) {
	counters[purpose].TotalAllocated.Add(uint64(n))
}

func recordFree(purpose Purpose, n uintptr) {
	counters[purpose].TotalFreed.Add(uint64(n))
}

// GetMetrics returns manual memory usage statistics.
func GetMetrics() Metrics {
	var res Metrics
	for i := range res {
		res[i].TotalBytes = counters[i].TotalAllocated.Load()
		res[i].InUseBytes = res[i].TotalBytes - counters[i].TotalFreed.Load()
	}
	return res
}

// Buf is a buffer allocated with New. The zero value is an empty buffer.
type Buf struct {
	data unsafe.Pointer
	n    uintptr
	// raw is the allocation the aligned data pointer was carved from.
	raw rawAlloc
}

// Data returns the aligned start of the buffer.
func (b Buf) Data() unsafe.Pointer {
	return b.data
}

// Len returns the usable length of the buffer.
func (b Buf) Len() uintptr {
	return b.n
}

// Slice returns the buffer as a byte slice.
func (b Buf) Slice() []byte {
	if b.data == nil {
		return nil
	}
	return unsafe.Slice((*byte)(b.data), b.n)
}

// New allocates a zeroed buffer of n bytes whose start address is a multiple of
// align. The returned buffer MUST be released by calling Free. The alignment
// must be a power of two.
func New(purpose Purpose, n, align uintptr) Buf {
	if align == 0 || bits.OnesCount64(uint64(align)) != 1 {
		panic(errors.AssertionFailedf("manual: alignment %d is not a power of two", align))
	}
	if n == 0 {
		return Buf{}
	}
	recordAlloc(purpose, n)
	raw, start := allocRaw(n + align - 1)
	pad := alignUp(uintptr(start), align) - uintptr(start)
	return Buf{data: unsafe.Add(start, pad), n: n, raw: raw}
}

// Free frees the specified buffer. It has to be exactly the buffer that was
// returned by New.
func Free(purpose Purpose, b Buf) {
	if b.n == 0 {
		return
	}
	recordFree(purpose, b.n)
	freeRaw(b.raw)
}

func alignUp(p, align uintptr) uintptr {
	return (p + align - 1) &^ (align - 1)
}
