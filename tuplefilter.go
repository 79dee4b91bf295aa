// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package tuplefilter provides a lightweight, out-of-band representation of a
// block-structured table: a contiguous array holding a one-byte Marker for
// every tuple slot (active or not). Maintenance algorithms stamp tuples with
// markers during a scan and later iterate only the slots carrying a chosen
// marker, in slot order.
//
// The physical tuple address in the table and the slot index in the filter are
// related by
//
//	Slot Index = (Tuple Address - Block Address) / Tuple Length + Block Offset
//
// where Block Offset is the index of the first slot of the block:
//
//	Block Offset = Block Number * Tuples Per Block
//
// A Filter observes a snapshot of the table's occupancy at initialization. It
// holds copies of block addresses only and must be discarded before the table
// changes its block layout. A Filter and its iterators are not safe for
// concurrent use.
package tuplefilter

import (
	"iter"
	"math"
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/swiss"
	"github.com/cockroachdb/tuplefilter/internal/invariants"
)

// Marker is the one-byte code attached to a tuple slot.
type Marker int8

const (
	// Inactive is the marker of every slot that did not hold an active tuple
	// when the filter was initialized. A slot never returns to Inactive.
	Inactive Marker = -1
	// Active is the marker set on every active tuple during initialization.
	Active Marker = 0
)

const invalidIndex = math.MaxUint64

// Table is the storage a Filter is built from.
type Table interface {
	// TupleLength returns the size of a tuple in bytes.
	TupleLength() int
	// TuplesPerBlock returns the number of tuple slots in every block.
	TuplesPerBlock() int
	// BlockSize returns the block alignment. It must be a power of two no
	// smaller than TupleLength()*TuplesPerBlock(), and every block base
	// address must be a multiple of it.
	BlockSize() uintptr
	// Blocks returns the base addresses of the table's blocks. The order is
	// the order slots are laid out in the filter.
	Blocks() iter.Seq[uintptr]
	// ActiveTuples returns the addresses of the tuples that are currently
	// active.
	ActiveTuples() iter.Seq[uintptr]
}

// Tuple is a handle to a tuple in a Table.
type Tuple interface {
	Address() uintptr
}

type blockRef struct {
	base   uintptr
	offset uint64
	ok     bool
}

func blockNumHash(k *uint64, seed uintptr) uintptr {
	const m = 11400714819323198485
	h := uint64(seed)
	h ^= *k * m
	return uintptr(h)
}

var blockOffsetsOptions = []swiss.Option[uint64, uint64]{
	swiss.WithHash[uint64, uint64](blockNumHash),
}

// Filter maps every tuple slot of a table to a Marker. The zero value must be
// initialized with Init before use.
type Filter struct {
	// markers holds one marker per slot, active and not.
	markers []Marker
	// blocks holds the block base addresses in enumeration order.
	blocks []uintptr
	// blockOffsets maps a block number (base >> blockShift) to the index of
	// the block's first slot in markers.
	blockOffsets swiss.Map[uint64, uint64]

	tuplesPerBlock uint64
	tupleLength    uintptr
	blockSize      uintptr
	blockShift     uint
	// blockSpan is the number of bytes at the start of a block occupied by
	// tuple slots.
	blockSpan uintptr

	// lastResolved caches the most recently resolved block.
	lastResolved blockRef
	// lastActive is the highest slot index that was active at initialization,
	// or invalidIndex if no slot was.
	lastActive  uint64
	activeCount uint64
	initialized bool

	metrics struct {
		cacheHits   uint64
		cacheMisses uint64
	}

	// generation is bumped on every update so that iterators can detect
	// mutation while they are live.
	generation invariants.Value[uint64]
}

// New returns a Filter initialized from the table.
func New(t Table) *Filter {
	f := &Filter{}
	f.Init(t)
	return f
}

// Init initializes the filter from the table: it enumerates the table's
// blocks, marks every active tuple Active and records the last active slot.
// Init must be called exactly once.
func (f *Filter) Init(t Table) {
	if f.initialized {
		panic(errors.AssertionFailedf("tuplefilter: filter already initialized"))
	}
	tupleLength, tuplesPerBlock, blockSize := t.TupleLength(), t.TuplesPerBlock(), t.BlockSize()
	if tupleLength <= 0 || tuplesPerBlock <= 0 {
		panic(errors.AssertionFailedf("tuplefilter: invalid geometry: tuple length %d, %d tuples per block",
			tupleLength, tuplesPerBlock))
	}
	if blockSize == 0 || blockSize&(blockSize-1) != 0 {
		panic(errors.AssertionFailedf("tuplefilter: block size %d is not a power of two", blockSize))
	}
	span := uintptr(tupleLength) * uintptr(tuplesPerBlock)
	if span > blockSize {
		panic(errors.AssertionFailedf("tuplefilter: %d tuples of %d bytes do not fit in a %d byte block",
			tuplesPerBlock, tupleLength, blockSize))
	}

	f.tupleLength = uintptr(tupleLength)
	f.tuplesPerBlock = uint64(tuplesPerBlock)
	f.blockSize = blockSize
	f.blockShift = uint(bits.TrailingZeros64(uint64(blockSize)))
	f.blockSpan = span

	for base := range t.Blocks() {
		f.blocks = append(f.blocks, base)
	}
	f.blockOffsets.Init(len(f.blocks), blockOffsetsOptions...)
	for i, base := range f.blocks {
		if base&(blockSize-1) != 0 {
			panic(errors.AssertionFailedf("tuplefilter: block %#x is not aligned to %d bytes", base, blockSize))
		}
		num := uint64(base >> f.blockShift)
		if _, ok := f.blockOffsets.Get(num); ok {
			panic(errors.AssertionFailedf("tuplefilter: duplicate block %#x", base))
		}
		f.blockOffsets.Put(num, uint64(i)*f.tuplesPerBlock)
	}

	f.markers = make([]Marker, uint64(len(f.blocks))*f.tuplesPerBlock)
	for i := range f.markers {
		f.markers[i] = Inactive
	}
	f.lastActive = invalidIndex
	f.initialized = true

	for addr := range t.ActiveTuples() {
		f.initActiveTuple(addr)
	}
}

// initActiveTuple marks an active tuple during initialization. Every active
// tuple must be reported exactly once.
func (f *Filter) initActiveTuple(addr uintptr) {
	idx := f.SlotIndex(addr)
	if f.markers[idx] != Inactive {
		panic(errors.AssertionFailedf("tuplefilter: tuple %#x (slot %d) reported active twice", addr, idx))
	}
	f.markers[idx] = Active
	f.activeCount++
	if f.lastActive == invalidIndex || f.lastActive < idx {
		f.lastActive = idx
	}
}

// SlotIndex translates a tuple address into its slot index. It panics if the
// address does not fall into the tuple slots of an enumerated block.
func (f *Filter) SlotIndex(addr uintptr) uint64 {
	b := f.resolveBlock(addr)
	return uint64((addr-b.base)/f.tupleLength) + b.offset
}

// resolveBlock returns the block containing addr, consulting the cached block
// before the block map.
func (f *Filter) resolveBlock(addr uintptr) blockRef {
	if f.lastResolved.ok && addr-f.lastResolved.base < f.blockSpan {
		f.metrics.cacheHits++
		return f.lastResolved
	}
	if !f.initialized {
		panic(errors.AssertionFailedf("tuplefilter: filter not initialized"))
	}
	f.metrics.cacheMisses++
	base := addr &^ (f.blockSize - 1)
	offset, ok := f.blockOffsets.Get(uint64(base >> f.blockShift))
	if !ok {
		panic(errors.AssertionFailedf("tuplefilter: unknown block %#x for tuple %#x", base, addr))
	}
	if addr-base >= f.blockSpan {
		panic(errors.AssertionFailedf("tuplefilter: tuple %#x lies past the last slot of block %#x", addr, base))
	}
	f.lastResolved = blockRef{base: base, offset: offset, ok: true}
	return f.lastResolved
}

// Update sets the marker of an active tuple and returns its slot index. The
// tuple must have been active when the filter was initialized. Markers can be
// changed any number of times but never back to Inactive.
func (f *Filter) Update(addr uintptr, m Marker) uint64 {
	idx := f.SlotIndex(addr)
	if f.lastActive == invalidIndex || idx > f.lastActive {
		panic(errors.AssertionFailedf("tuplefilter: slot %d of tuple %#x is past the last active slot", idx, addr))
	}
	if f.markers[idx] == Inactive {
		panic(errors.AssertionFailedf("tuplefilter: slot %d of tuple %#x was not active", idx, addr))
	}
	if m == Inactive {
		panic(errors.AssertionFailedf("tuplefilter: slot %d cannot be reset to inactive", idx))
	}
	f.markers[idx] = m
	f.generation.Set(f.generation.Get() + 1)
	return idx
}

// UpdateTuple is Update for a tuple handle.
func (f *Filter) UpdateTuple(t Tuple, m Marker) uint64 {
	return f.Update(t.Address(), m)
}

// Value returns the marker of the slot.
func (f *Filter) Value(idx uint64) Marker {
	invariants.CheckBounds(idx, uint64(len(f.markers)))
	return f.markers[idx]
}

// Address returns the address of the tuple in the given slot. It is the
// inverse of SlotIndex for addresses on a tuple boundary.
func (f *Filter) Address(idx uint64) uintptr {
	invariants.CheckBounds(idx, uint64(len(f.markers)))
	blockIdx := idx / f.tuplesPerBlock
	return f.blocks[blockIdx] + uintptr(idx-blockIdx*f.tuplesPerBlock)*f.tupleLength
}

// Empty returns true if no tuple was active at initialization.
func (f *Filter) Empty() bool {
	return f.lastActive == invalidIndex
}

// Len returns the number of slots, active or not.
func (f *Filter) Len() uint64 {
	return uint64(len(f.markers))
}

// LastActive returns the highest slot index that was active at
// initialization. ok is false if the filter is empty.
func (f *Filter) LastActive() (idx uint64, ok bool) {
	if f.Empty() {
		return 0, false
	}
	return f.lastActive, true
}

// NumBlocks returns the number of blocks enumerated at initialization.
func (f *Filter) NumBlocks() int {
	return len(f.blocks)
}

func (f *Filter) assertInitialized() {
	if invariants.Enabled && !f.initialized {
		panic(errors.AssertionFailedf("tuplefilter: filter not initialized"))
	}
}
