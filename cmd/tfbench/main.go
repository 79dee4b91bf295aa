// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	concurrency int
	seed        uint64
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "tfbench [command] (flags)",
	Short: "tuple filter benchmarking tool",
	Long:  ``,
}

func main() {
	log.SetFlags(0)

	cobra.EnableCommandSorting = false
	rootCmd.AddCommand(scanCmd)

	for _, cmd := range []*cobra.Command{scanCmd} {
		cmd.Flags().IntVarP(
			&concurrency, "concurrency", "c", 0, "number of partitions processed at once (0 means GOMAXPROCS)")
		cmd.Flags().Uint64Var(
			&seed, "seed", 1, "workload random seed")
		cmd.Flags().BoolVarP(
			&verbose, "verbose", "v", false, "enable verbose logging")
	}

	scanCmd.Flags().IntVar(
		&scanConfig.tuples, "tuples", scanConfig.tuples, "number of tuples inserted across all partitions")
	scanCmd.Flags().IntVar(
		&scanConfig.tupleLength, "tuple-length", scanConfig.tupleLength, "size of a tuple in bytes")
	scanCmd.Flags().IntVar(
		&scanConfig.tuplesPerBlock, "tuples-per-block", scanConfig.tuplesPerBlock,
		"number of tuple slots in a block (0 fills the default block size)")
	scanCmd.Flags().Float64Var(
		&scanConfig.deleteFraction, "delete-fraction", scanConfig.deleteFraction,
		"fraction (0-1) of tuples deleted before the passes run")
	scanCmd.Flags().IntVar(
		&scanConfig.passes, "passes", scanConfig.passes, "number of classify/visit passes per partition")
	scanCmd.Flags().IntVar(
		&scanConfig.partitions, "partitions", scanConfig.partitions, "number of partition tables")
	scanCmd.Flags().IntVar(
		&scanConfig.markers, "markers", scanConfig.markers, "number of distinct markers tuples are classified into")

	if err := rootCmd.Execute(); err != nil {
		// Cobra has already printed the error message.
		os.Exit(1)
	}
}
