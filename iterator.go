// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tuplefilter

import (
	"iter"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tuplefilter/internal/invariants"
)

// Iter is a forward iterator over the slots of a Filter whose marker equals a
// target marker. Iteration is bounded by the last slot that was active at
// initialization. The filter must not be updated while an iterator is in use.
//
//	for it := f.Begin(m); it.Valid(); it.Next() {
//		... it.Index() ...
//	}
type Iter struct {
	f      *Filter
	marker Marker
	idx    uint64
	// generation is the filter generation the iterator was created at.
	generation invariants.Value[uint64]
}

// Begin returns an iterator positioned at the first slot carrying marker m,
// or at End(m) if there is none.
func (f *Filter) Begin(m Marker) Iter {
	f.assertInitialized()
	it := Iter{f: f, marker: m, idx: invalidIndex}
	it.generation.Set(f.generation.Get())
	if !f.Empty() {
		// Wraps around to slot 0.
		it.advance()
	}
	return it
}

// End returns the iterator positioned one past the last active slot. For an
// empty filter End equals Begin.
func (f *Filter) End(m Marker) Iter {
	f.assertInitialized()
	it := Iter{f: f, marker: m, idx: f.endIndex()}
	it.generation.Set(f.generation.Get())
	return it
}

func (f *Filter) endIndex() uint64 {
	if f.Empty() {
		return invalidIndex
	}
	return f.lastActive + 1
}

// All returns the indexes of the slots carrying marker m in increasing order.
func (f *Filter) All(m Marker) iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for it := f.Begin(m); it.Valid(); it.Next() {
			if !yield(it.Index()) {
				return
			}
		}
	}
}

// Valid returns true if the iterator is positioned before the end.
func (it Iter) Valid() bool {
	return it.idx != it.f.endIndex()
}

// Index returns the slot index the iterator is positioned at.
func (it Iter) Index() uint64 {
	return it.idx
}

// Marker returns the marker the iterator searches for.
func (it Iter) Marker() Marker {
	return it.marker
}

// Next advances the iterator to the next slot carrying its marker. Next is a
// no-op on an exhausted iterator.
func (it *Iter) Next() {
	if invariants.Enabled && it.generation.Get() != it.f.generation.Get() {
		panic(errors.AssertionFailedf("tuplefilter: filter updated during iteration"))
	}
	if !it.Valid() {
		return
	}
	it.advance()
}

func (it *Iter) advance() {
	last := it.f.lastActive
	for {
		it.idx++
		if it.idx > last || it.f.markers[it.idx] == it.marker {
			return
		}
	}
}

// Equal returns true if both iterators are positioned at the same slot. The
// iterators must come from the same filter.
func (it Iter) Equal(other Iter) bool {
	if invariants.Enabled && it.f != other.f {
		panic(errors.AssertionFailedf("tuplefilter: comparing iterators of different filters"))
	}
	return it.idx == other.idx
}

// Reader is the read-only view of a Filter. Iterators obtained from a Reader
// walk the same slots as those obtained from the Filter itself.
type Reader interface {
	Value(idx uint64) Marker
	Address(idx uint64) uintptr
	Empty() bool
	Len() uint64
	LastActive() (uint64, bool)
	NumBlocks() int
	Begin(m Marker) Iter
	End(m Marker) Iter
	All(m Marker) iter.Seq[uint64]
	Metrics() Metrics
}

var _ Reader = (*Filter)(nil)
var _ Reader = readOnly{}

// Reader returns a read-only view of the filter.
func (f *Filter) Reader() Reader {
	return readOnly{f: f}
}

type readOnly struct {
	f *Filter
}

func (r readOnly) Value(idx uint64) Marker { return r.f.Value(idx) }
func (r readOnly) Address(idx uint64) uintptr { return r.f.Address(idx) }
func (r readOnly) Empty() bool { return r.f.Empty() }
func (r readOnly) Len() uint64 { return r.f.Len() }
func (r readOnly) LastActive() (uint64, bool) { return r.f.LastActive() }
func (r readOnly) NumBlocks() int { return r.f.NumBlocks() }
func (r readOnly) Begin(m Marker) Iter { return r.f.Begin(m) }
func (r readOnly) End(m Marker) Iter { return r.f.End(m) }
func (r readOnly) All(m Marker) iter.Seq[uint64] { return r.f.All(m) }
func (r readOnly) Metrics() Metrics { return r.f.Metrics() }
