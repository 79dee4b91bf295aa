// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minLatency = 100 * time.Nanosecond
	maxLatency = 100 * time.Second
)

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatency.Nanoseconds(), maxLatency.Nanoseconds(), 2)
}

// namedHistogram records operation latencies from concurrent workers.
type namedHistogram struct {
	name string
	mu   struct {
		sync.Mutex
		current *hdrhistogram.Histogram
	}
}

func newNamedHistogram(name string) *namedHistogram {
	w := &namedHistogram{name: name}
	w.mu.current = newHistogram()
	return w
}

func (w *namedHistogram) Record(elapsed time.Duration) {
	if elapsed < minLatency {
		elapsed = minLatency
	} else if elapsed > maxLatency {
		elapsed = maxLatency
	}

	w.mu.Lock()
	err := w.mu.current.RecordValue(elapsed.Nanoseconds())
	w.mu.Unlock()

	if err != nil {
		// Values are clamped to the histogram's range.
		panic(fmt.Sprintf(`%s: recording value: %s`, w.name, err))
	}
}

// Snapshot returns a copy of the recorded values.
func (w *namedHistogram) Snapshot() *hdrhistogram.Histogram {
	w.mu.Lock()
	defer w.mu.Unlock()
	return hdrhistogram.Import(w.mu.current.Export())
}

// latencyRow formats the histogram as a report row.
func latencyRow(name string, h *hdrhistogram.Histogram) []string {
	q := func(p float64) string {
		return time.Duration(h.ValueAtQuantile(p)).String()
	}
	return []string{
		name,
		fmt.Sprint(h.TotalCount()),
		time.Duration(h.Mean()).String(),
		q(50), q(95), q(99),
		time.Duration(h.Max()).String(),
	}
}
