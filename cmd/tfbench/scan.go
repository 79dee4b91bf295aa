// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/cockroachdb/crlib/crtime"
	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/tuplefilter"
	"github.com/cockroachdb/tuplefilter/internal/base"
	"github.com/cockroachdb/tuplefilter/internal/manual"
	"github.com/cockroachdb/tuplefilter/maintain"
	"github.com/cockroachdb/tuplefilter/table"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
)

type scanOptions struct {
	tuples         int
	tupleLength    int
	tuplesPerBlock int
	deleteFraction float64
	passes         int
	partitions     int
	markers        int
	concurrency    int
	seed           uint64
}

var scanConfig = scanOptions{
	tuples:         1 << 20,
	tupleLength:    64,
	deleteFraction: 0.25,
	passes:         3,
	partitions:     4,
	markers:        4,
}

func (o *scanOptions) validate() error {
	switch {
	case o.tuples < 0:
		return errors.Newf("--tuples must not be negative, got %d", o.tuples)
	case o.tupleLength < 8:
		return errors.Newf("--tuple-length must be at least 8, got %d", o.tupleLength)
	case o.deleteFraction < 0 || o.deleteFraction > 1:
		return errors.Newf("--delete-fraction must be in [0, 1], got %g", o.deleteFraction)
	case o.passes < 1:
		return errors.Newf("--passes must be positive, got %d", o.passes)
	case o.partitions < 1:
		return errors.Newf("--partitions must be positive, got %d", o.partitions)
	case o.markers < 1 || o.markers > 127:
		return errors.Newf("--markers must be in [1, 127], got %d", o.markers)
	}
	return nil
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "run the classify/visit scan benchmark",
	Long: `
Build partition tables of fixed-length tuples, delete a random fraction of
them and repeatedly run maintenance passes that classify every live tuple into
one of --markers markers and then visit the tuples of each marker through the
tuple filter.
`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := scanConfig
	cfg.concurrency = concurrency
	cfg.seed = seed
	var logger base.Logger = base.NoopLogger{}
	if verbose {
		logger = base.DefaultLogger{}
	}
	res, err := scan(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	res.report(cmd.OutOrStdout())
	return nil
}

type scanResult struct {
	cfg        scanOptions
	live       int
	blocks     int
	blockBytes uint64
	inUseBytes uint64
	visited    int64
	metrics    tuplefilter.Metrics
	classify   *hdrhistogram.Histogram
	visit      *hdrhistogram.Histogram
	elapsed    time.Duration
}

func tupleKey(tup table.Tuple) uint64 {
	return binary.LittleEndian.Uint64(tup.Data())
}

// buildPartitions fills cfg.partitions tables with cfg.tuples tuples in total
// and deletes a random cfg.deleteFraction of them.
func buildPartitions(cfg scanOptions, rng *rand.Rand, logger base.Logger) ([]*table.Table, error) {
	var tables []*table.Table
	closeAll := func() {
		for _, t := range tables {
			_ = t.Close()
		}
	}
	var buf [8]byte
	for p := 0; p < cfg.partitions; p++ {
		t, err := table.New(table.Options{
			TupleLength:    cfg.tupleLength,
			TuplesPerBlock: cfg.tuplesPerBlock,
			Logger:         logger,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		tables = append(tables, t)

		n := cfg.tuples / cfg.partitions
		if p < cfg.tuples%cfg.partitions {
			n++
		}
		tuples := make([]table.Tuple, 0, n)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint64(buf[:], rng.Uint64())
			tup, err := t.Insert(buf[:])
			if err != nil {
				closeAll()
				return nil, err
			}
			tuples = append(tuples, tup)
		}
		rng.Shuffle(len(tuples), func(i, j int) { tuples[i], tuples[j] = tuples[j], tuples[i] })
		for _, tup := range tuples[:int(float64(n)*cfg.deleteFraction)] {
			if err := t.Delete(tup); err != nil {
				closeAll()
				return nil, err
			}
		}
	}
	return tables, nil
}

func scan(ctx context.Context, cfg scanOptions, logger base.Logger) (*scanResult, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.seed))
	tables, err := buildPartitions(cfg, rng, logger)
	if err != nil {
		return nil, err
	}
	res := &scanResult{cfg: cfg}
	for _, t := range tables {
		res.live += t.Len()
		res.blocks += t.NumBlocks()
		res.blockBytes += t.Size()
	}
	res.inUseBytes = manual.GetMetrics()[manual.TableBlock].InUseBytes
	defer func() {
		for _, t := range tables {
			_ = t.Close()
		}
	}()

	classifyHist := newNamedHistogram("classify")
	visitHist := newNamedHistogram("visit")
	markers := cfg.markers
	classify := func(tup table.Tuple) tuplefilter.Marker {
		return tuplefilter.Marker(tupleKey(tup) % uint64(markers))
	}

	var visited atomic.Int64
	var mu sync.Mutex
	opts := maintain.Options{Logger: logger, Concurrency: cfg.concurrency}
	start := crtime.NowMono()
	for pass := 0; pass < cfg.passes; pass++ {
		err := maintain.RunPartitions(ctx, tables, opts, func(ctx context.Context, partition int, p *maintain.Pass) error {
			opStart := crtime.NowMono()
			counts := p.Classify(classify)
			classifyHist.Record(opStart.Elapsed())

			for m := 0; m < markers; m++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				marker := tuplefilter.Marker(m)
				n := 0
				opStart = crtime.NowMono()
				err := p.Visit(marker, func(slot uint64, tup table.Tuple) error {
					if classify(tup) != marker {
						return errors.AssertionFailedf("slot %d: tuple %#x visited for marker %d",
							slot, tup.Address(), marker)
					}
					n++
					return nil
				})
				visitHist.Record(opStart.Elapsed())
				if err != nil {
					return err
				}
				if n != counts[marker] {
					return errors.AssertionFailedf("marker %d: visited %d tuples, classified %d", marker, n, counts[marker])
				}
				visited.Add(int64(n))
			}

			m := p.Metrics()
			mu.Lock()
			res.metrics.Blocks += m.Blocks
			res.metrics.Slots += m.Slots
			res.metrics.Active += m.Active
			res.metrics.CacheHits += m.CacheHits
			res.metrics.CacheMisses += m.CacheMisses
			mu.Unlock()
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "pass %d", pass)
		}
	}
	res.elapsed = start.Elapsed()
	res.visited = visited.Load()
	if want := int64(res.live) * int64(cfg.passes); res.visited != want {
		return nil, errors.AssertionFailedf("visited %d tuples, expected %d", res.visited, want)
	}
	res.classify = classifyHist.Snapshot()
	res.visit = visitHist.Snapshot()
	return res, nil
}

func (r *scanResult) report(w io.Writer) {
	fmt.Fprintf(w, "%d partitions, %s live tuples in %d blocks (%s, %s in use), %d passes in %s\n\n",
		r.cfg.partitions, humanize.Comma(int64(r.live)), r.blocks,
		humanize.IBytes(r.blockBytes), humanize.IBytes(r.inUseBytes), r.cfg.passes, r.elapsed)

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"op", "count", "mean", "p50", "p95", "p99", "max"})
	tw.SetAlignment(tablewriter.ALIGN_RIGHT)
	tw.Append(latencyRow("classify", r.classify))
	tw.Append(latencyRow("visit", r.visit))
	tw.Render()

	tw = tablewriter.NewWriter(w)
	tw.SetHeader([]string{"filter", "value"})
	tw.SetAlignment(tablewriter.ALIGN_RIGHT)
	tw.Append([]string{"slots", humanize.Comma(int64(r.metrics.Slots))})
	tw.Append([]string{"active", humanize.Comma(int64(r.metrics.Active))})
	tw.Append([]string{"visited", humanize.Comma(r.visited)})
	tw.Append([]string{"marker bytes", humanize.IBytes(r.metrics.Slots)})
	tw.Append([]string{"cache hit rate", fmt.Sprintf("%.1f%%", 100*r.metrics.CacheHitRate())})
	tw.Render()
}
