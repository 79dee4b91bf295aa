// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tuplefilter

import "github.com/cockroachdb/redact"

// Metrics holds statistics about a Filter.
type Metrics struct {
	// Blocks is the number of blocks enumerated at initialization.
	Blocks int
	// Slots is the number of slots, active or not.
	Slots uint64
	// Active is the number of tuples that were active at initialization.
	Active uint64
	// CacheHits is the number of address translations resolved by the
	// last-resolved block cache.
	CacheHits uint64
	// CacheMisses is the number of address translations that went to the
	// block map.
	CacheMisses uint64
}

// Metrics returns the filter's metrics.
func (f *Filter) Metrics() Metrics {
	return Metrics{
		Blocks:      len(f.blocks),
		Slots:       uint64(len(f.markers)),
		Active:      f.activeCount,
		CacheHits:   f.metrics.cacheHits,
		CacheMisses: f.metrics.cacheMisses,
	}
}

// CacheHitRate returns the fraction of address translations served by the
// block cache.
func (m Metrics) CacheHitRate() float64 {
	total := m.CacheHits + m.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(m.CacheHits) / float64(total)
}

// String implements fmt.Stringer.
func (m Metrics) String() string {
	return redact.StringWithoutMarkers(m)
}

// SafeFormat implements redact.SafeFormatter.
func (m Metrics) SafeFormat(w redact.SafePrinter, _ rune) {
	w.Printf("blocks: %d, slots: %d, active: %d, cache: %d hits / %d misses",
		redact.SafeInt(m.Blocks), redact.SafeUint(m.Slots), redact.SafeUint(m.Active),
		redact.SafeUint(m.CacheHits), redact.SafeUint(m.CacheMisses))
}
