// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package maintain drives maintenance passes over tables: a pass snapshots a
// table's occupancy into a tuplefilter.Filter, stamps tuples with
// task-specific markers and later walks only the tuples carrying a chosen
// marker.
package maintain

import (
	"context"

	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tuplefilter"
	"github.com/cockroachdb/tuplefilter/table"
	"golang.org/x/sync/errgroup"
)

// Counts holds the number of tuples per marker.
type Counts map[tuplefilter.Marker]int

// Pass is a single maintenance operation over a table. The table must not be
// modified while the pass is in use, and a pass must not be used by more than
// one goroutine at a time.
type Pass struct {
	t    *table.Table
	f    *tuplefilter.Filter
	opts Options
}

// NewPass snapshots the table's active tuples into a new pass.
func NewPass(t *table.Table, opts Options) *Pass {
	opts.EnsureDefaults()
	return &Pass{t: t, f: tuplefilter.New(t), opts: opts}
}

// Classify stamps every active tuple with the marker returned by fn, scanning
// the tuples through the table's own iteration. A tuple for which fn returns
// tuplefilter.Active keeps its current marker. fn must not return
// tuplefilter.Inactive.
func (p *Pass) Classify(fn func(table.Tuple) tuplefilter.Marker) Counts {
	start := crtime.NowMono()
	counts := make(Counts)
	for tup := range p.t.All() {
		m := fn(tup)
		if m != tuplefilter.Active {
			p.f.UpdateTuple(tup, m)
		}
		counts[m]++
	}
	p.observe(start)
	return counts
}

// Visit calls fn for every tuple stamped with marker m, in slot order. It
// stops at the first error. fn must not restamp tuples; use Restamp.
func (p *Pass) Visit(m tuplefilter.Marker, fn func(slot uint64, t table.Tuple) error) error {
	start := crtime.NowMono()
	defer p.observe(start)
	for idx := range p.f.All(m) {
		tup, err := p.t.TupleAt(p.f.Address(idx))
		if err != nil {
			return errors.Wrapf(err, "maintain: slot %d", idx)
		}
		if err := fn(idx, tup); err != nil {
			return err
		}
	}
	return nil
}

// Restamp changes the marker of every tuple stamped with from to to, and
// returns the number of tuples changed.
func (p *Pass) Restamp(from, to tuplefilter.Marker) int {
	var addrs []uintptr
	for idx := range p.f.All(from) {
		addrs = append(addrs, p.f.Address(idx))
	}
	for _, addr := range addrs {
		p.f.Update(addr, to)
	}
	return len(addrs)
}

// Count returns the number of tuples stamped with marker m.
func (p *Pass) Count(m tuplefilter.Marker) int {
	n := 0
	for range p.f.All(m) {
		n++
	}
	return n
}

// Filter returns the read-only view of the pass's filter.
func (p *Pass) Filter() tuplefilter.Reader {
	return p.f.Reader()
}

// Metrics returns the metrics of the pass's filter.
func (p *Pass) Metrics() tuplefilter.Metrics {
	return p.f.Metrics()
}

func (p *Pass) observe(start crtime.Mono) {
	if p.opts.PassDuration != nil {
		p.opts.PassDuration.Observe(start.Elapsed().Seconds())
	}
}

// RunPartitions runs fn over a new pass for every partition table. Up to
// opts.Concurrency partitions are processed at once; each pass is owned by the
// goroutine running fn. The first error cancels the context passed to the
// remaining partitions and is returned.
func RunPartitions(
	ctx context.Context,
	tables []*table.Table,
	opts Options,
	fn func(ctx context.Context, partition int, p *Pass) error,
) error {
	opts.EnsureDefaults()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, t := range tables {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p := NewPass(t, opts)
			if err := fn(ctx, i, p); err != nil {
				return errors.Wrapf(err, "partition %d", i)
			}
			opts.Logger.Infof("maintain: partition %d: %s", i, p.Metrics())
			return nil
		})
	}
	return g.Wait()
}
