// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package table

import (
	"unsafe"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/tuplefilter/internal/manual"
)

// block is a fixed-capacity run of tuple slots in manually managed memory.
// The block base is aligned to the table's block size.
type block struct {
	buf manual.Buf
	// used has a bit set for every slot holding an active tuple.
	used *bitset.BitSet
	// num is the block's position in allocation order.
	num int
}

func newBlock(num int, tuplesPerBlock int, size uintptr) *block {
	return &block{
		buf:  manual.New(manual.TableBlock, size, size),
		used: bitset.New(uint(tuplesPerBlock)),
		num:  num,
	}
}

func (b *block) base() uintptr {
	return uintptr(b.buf.Data())
}

// size returns the number of bytes of block memory.
func (b *block) size() uintptr {
	return b.buf.Len()
}

// slot returns the bytes of the given slot.
func (b *block) slot(slot int, tupleLength int) []byte {
	off := slot * tupleLength
	return b.buf.Slice()[off : off+tupleLength]
}

func (b *block) slotPtr(slot int, tupleLength int) unsafe.Pointer {
	return unsafe.Add(b.buf.Data(), slot*tupleLength)
}

// freeSlot returns the lowest free slot, or -1 if the block is full.
func (b *block) freeSlot(tuplesPerBlock int) int {
	if b.used.Count() >= uint(tuplesPerBlock) {
		return -1
	}
	i, ok := b.used.NextClear(0)
	if !ok || i >= uint(tuplesPerBlock) {
		return -1
	}
	return int(i)
}

func (b *block) release() {
	manual.Free(manual.TableBlock, b.buf)
	b.buf = manual.Buf{}
}
