// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package maintain

import (
	"runtime"

	"github.com/cockroachdb/tuplefilter/internal/base"
	"github.com/prometheus/client_golang/prometheus"
)

// Options holds the parameters of maintenance passes.
type Options struct {
	// Logger used to write log messages.
	//
	// The default logger uses the Go standard library log package.
	Logger base.Logger

	// Concurrency is the maximum number of partitions RunPartitions processes
	// at once. The default is GOMAXPROCS.
	Concurrency int

	// PassDuration, if set, observes the duration in seconds of every
	// Classify and Visit.
	PassDuration prometheus.Histogram
}

// EnsureDefaults ensures that the default values for all options are set if a
// valid value was not already specified. Returns the new options.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger{}
	}
	if o.Concurrency <= 0 {
		o.Concurrency = runtime.GOMAXPROCS(0)
	}
	return o
}
