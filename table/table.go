// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package table implements an in-memory table of fixed-length tuples stored in
// fixed-capacity blocks. Block memory is allocated outside the Go heap and
// aligned to the block size, so a tuple's block can be found by masking its
// address. A table never moves or frees a block before Close, which keeps
// tuple addresses stable for the tuplefilter package.
package table

import (
	"iter"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
	"github.com/cockroachdb/tuplefilter"
	"github.com/dustin/go-humanize"
)

var (
	// ErrInvalidTuple is returned for an address that does not identify an
	// active tuple of the table.
	ErrInvalidTuple = errors.New("table: invalid tuple")
	// ErrClosed is returned when a closed table is used.
	ErrClosed = errors.New("table: closed")
)

// Tuple is a handle to a tuple stored in a Table. It is valid until the tuple
// is deleted or the table is closed.
type Tuple struct {
	ptr unsafe.Pointer
	n   int
}

var _ tuplefilter.Tuple = Tuple{}

// Address returns the address of the tuple's first byte.
func (t Tuple) Address() uintptr {
	return uintptr(t.ptr)
}

// Data returns the tuple's bytes. The slice aliases table memory.
func (t Tuple) Data() []byte {
	return unsafe.Slice((*byte)(t.ptr), t.n)
}

// Table is a block-structured store of fixed-length tuples. A Table is not
// safe for concurrent use.
type Table struct {
	opts      Options
	blockSize uintptr
	blocks    []*block
	// byBase maps a block base address to the block.
	byBase swiss.Map[uintptr, *block]
	count  int
	closed bool
}

var _ tuplefilter.Table = (*Table)(nil)

// New returns an empty table.
func New(opts Options) (*Table, error) {
	opts.EnsureDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	t := &Table{
		opts:      opts,
		blockSize: opts.blockSize(),
	}
	t.byBase.Init(0)
	return t, nil
}

// TupleLength implements tuplefilter.Table.
func (t *Table) TupleLength() int {
	return t.opts.TupleLength
}

// TuplesPerBlock implements tuplefilter.Table.
func (t *Table) TuplesPerBlock() int {
	return t.opts.TuplesPerBlock
}

// BlockSize implements tuplefilter.Table.
func (t *Table) BlockSize() uintptr {
	return t.blockSize
}

// Len returns the number of active tuples.
func (t *Table) Len() int {
	return t.count
}

// NumBlocks returns the number of allocated blocks.
func (t *Table) NumBlocks() int {
	return len(t.blocks)
}

// Size returns the number of bytes of block memory held by the table.
func (t *Table) Size() uint64 {
	var n uint64
	for _, b := range t.blocks {
		n += uint64(b.size())
	}
	return n
}

// Insert copies data into a free slot and returns the new tuple. Data longer
// than the tuple length is truncated; shorter data is zero padded.
func (t *Table) Insert(data []byte) (Tuple, error) {
	if t.closed {
		return Tuple{}, ErrClosed
	}
	b, slot := t.findFreeSlot()
	if b == nil {
		b = newBlock(len(t.blocks), t.opts.TuplesPerBlock, t.blockSize)
		t.blocks = append(t.blocks, b)
		t.byBase.Put(b.base(), b)
		slot = 0
	}
	b.used.Set(uint(slot))
	t.count++
	copy(b.slot(slot, t.opts.TupleLength), data)
	return Tuple{ptr: b.slotPtr(slot, t.opts.TupleLength), n: t.opts.TupleLength}, nil
}

func (t *Table) findFreeSlot() (*block, int) {
	for _, b := range t.blocks {
		if slot := b.freeSlot(t.opts.TuplesPerBlock); slot >= 0 {
			return b, slot
		}
	}
	return nil, 0
}

// locate returns the block and slot of an active tuple address.
func (t *Table) locate(addr uintptr) (*block, int, error) {
	if t.closed {
		return nil, 0, ErrClosed
	}
	base := addr &^ (t.blockSize - 1)
	b, ok := t.byBase.Get(base)
	if !ok {
		return nil, 0, errors.Wrapf(ErrInvalidTuple, "address %#x is not in a block", addr)
	}
	off := addr - base
	length := uintptr(t.opts.TupleLength)
	if off%length != 0 || off/length >= uintptr(t.opts.TuplesPerBlock) {
		return nil, 0, errors.Wrapf(ErrInvalidTuple, "address %#x is not on a tuple boundary", addr)
	}
	slot := int(off / length)
	if !b.used.Test(uint(slot)) {
		return nil, 0, errors.Wrapf(ErrInvalidTuple, "address %#x is not an active tuple", addr)
	}
	return b, slot, nil
}

// TupleAt returns the active tuple at the given address.
func (t *Table) TupleAt(addr uintptr) (Tuple, error) {
	b, slot, err := t.locate(addr)
	if err != nil {
		return Tuple{}, err
	}
	return Tuple{ptr: b.slotPtr(slot, t.opts.TupleLength), n: t.opts.TupleLength}, nil
}

// Delete removes the tuple and zeroes its slot. The slot is reused by a later
// Insert; the block is kept.
func (t *Table) Delete(tup Tuple) error {
	b, slot, err := t.locate(tup.Address())
	if err != nil {
		return err
	}
	clear(b.slot(slot, t.opts.TupleLength))
	b.used.Clear(uint(slot))
	t.count--
	return nil
}

// Blocks implements tuplefilter.Table. Blocks are returned in allocation
// order.
func (t *Table) Blocks() iter.Seq[uintptr] {
	return func(yield func(uintptr) bool) {
		for _, b := range t.blocks {
			if !yield(b.base()) {
				return
			}
		}
	}
}

// ActiveTuples implements tuplefilter.Table.
func (t *Table) ActiveTuples() iter.Seq[uintptr] {
	return func(yield func(uintptr) bool) {
		for tup := range t.All() {
			if !yield(tup.Address()) {
				return
			}
		}
	}
}

// All returns the active tuples in block order, and in slot order within a
// block.
func (t *Table) All() iter.Seq[Tuple] {
	return func(yield func(Tuple) bool) {
		if t.closed {
			panic(errors.AssertionFailedf("table: iterating a closed table"))
		}
		for _, b := range t.blocks {
			for i, ok := b.used.NextSet(0); ok; i, ok = b.used.NextSet(i + 1) {
				tup := Tuple{ptr: b.slotPtr(int(i), t.opts.TupleLength), n: t.opts.TupleLength}
				if !yield(tup) {
					return
				}
			}
		}
	}
}

// Close releases the table's blocks. Tuples and filters built from the table
// must not be used afterwards.
func (t *Table) Close() error {
	if t.closed {
		return ErrClosed
	}
	t.opts.Logger.Infof("table: releasing %d blocks (%s), %d active tuples",
		len(t.blocks), humanize.IBytes(t.Size()), t.count)
	for _, b := range t.blocks {
		b.release()
	}
	t.blocks = nil
	t.byBase.Close()
	t.closed = true
	return nil
}
