// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package table

import (
	"math/bits"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tuplefilter/internal/base"
)

const (
	// DefaultBlockSize is the block size targeted when Options.TuplesPerBlock
	// is left unset.
	DefaultBlockSize = 256 << 10
	// MaxBlockSize is the largest block a table allocates.
	MaxBlockSize = 1 << 30
)

// Options holds the parameters of a Table.
type Options struct {
	// TupleLength is the size of every tuple in bytes.
	TupleLength int

	// TuplesPerBlock is the number of tuple slots in a block. The default
	// fills DefaultBlockSize.
	TuplesPerBlock int

	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger base.Logger
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.TuplesPerBlock <= 0 && o.TupleLength > 0 {
		o.TuplesPerBlock = max(1, DefaultBlockSize/o.TupleLength)
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	return o
}

// Validate checks the options for consistency.
func (o *Options) Validate() error {
	if o.TupleLength <= 0 {
		return errors.Newf("table: tuple length must be positive, got %d", o.TupleLength)
	}
	if o.TuplesPerBlock <= 0 {
		return errors.Newf("table: tuples per block must be positive, got %d", o.TuplesPerBlock)
	}
	if uint64(o.TupleLength)*uint64(o.TuplesPerBlock) > MaxBlockSize {
		return errors.Newf("table: %d tuples of %d bytes exceed the maximum block size of %d",
			o.TuplesPerBlock, o.TupleLength, MaxBlockSize)
	}
	return nil
}

// blockSize returns the smallest power of two that holds a block's tuples.
func (o *Options) blockSize() uintptr {
	span := uint64(o.TupleLength) * uint64(o.TuplesPerBlock)
	return uintptr(1) << bits.Len64(span-1)
}
