// Copyright 2026 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package tuplefilter

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// fakeTable is a Table whose blocks are plain aligned addresses; the filter
// never dereferences them.
type fakeTable struct {
	tupleLength    int
	tuplesPerBlock int
	blockSize      uintptr
	blocks         []uintptr
	active         []uintptr
}

var _ Table = (*fakeTable)(nil)

func (t *fakeTable) TupleLength() int    { return t.tupleLength }
func (t *fakeTable) TuplesPerBlock() int { return t.tuplesPerBlock }
func (t *fakeTable) BlockSize() uintptr  { return t.blockSize }

func (t *fakeTable) Blocks() iter.Seq[uintptr] {
	return slices.Values(t.blocks)
}

func (t *fakeTable) ActiveTuples() iter.Seq[uintptr] {
	return slices.Values(t.active)
}

func (t *fakeTable) addr(block, slot int) uintptr {
	return t.blocks[block] + uintptr(slot*t.tupleLength)
}

type addrTuple uintptr

func (a addrTuple) Address() uintptr { return uintptr(a) }

func parseUint(t *testing.T, s string) uint64 {
	v, err := strconv.ParseUint(s, 0, 64)
	require.NoError(t, err)
	return v
}

// parseFakeTable parses lines of the form "<block address>: <active slot>...".
func parseFakeTable(t *testing.T, td *datadriven.TestData) *fakeTable {
	tbl := &fakeTable{blockSize: 4096}
	td.ScanArgs(t, "tuple-length", &tbl.tupleLength)
	td.ScanArgs(t, "tuples-per-block", &tbl.tuplesPerBlock)
	if td.HasArg("block-size") {
		var blockSize int
		td.ScanArgs(t, "block-size", &blockSize)
		tbl.blockSize = uintptr(blockSize)
	}
	for _, line := range strings.Split(td.Input, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		base, slots, ok := strings.Cut(line, ":")
		if !ok {
			td.Fatalf(t, "malformed block line %q", line)
		}
		tbl.blocks = append(tbl.blocks, uintptr(parseUint(t, base)))
		for _, s := range strings.Fields(slots) {
			tbl.active = append(tbl.active, tbl.addr(len(tbl.blocks)-1, int(parseUint(t, s))))
		}
	}
	return tbl
}

func capturePanic(fn func() string) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = fmt.Sprintf("panic: %v", r)
		}
	}()
	return fn()
}

func describeFilter(f *Filter) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "slots=%d blocks=%d", f.Len(), f.NumBlocks())
	if last, ok := f.LastActive(); ok {
		fmt.Fprintf(&buf, " last-active=%d", last)
	} else {
		buf.WriteString(" empty")
	}
	return buf.String()
}

func formatSlots(seq iter.Seq[uint64]) string {
	var parts []string
	for idx := range seq {
		parts = append(parts, strconv.FormatUint(idx, 10))
	}
	if len(parts) == 0 {
		return "<none>"
	}
	return strings.Join(parts, " ")
}

func TestFilterDataDriven(t *testing.T) {
	var f *Filter
	datadriven.RunTest(t, "testdata/tuple_filter", func(t *testing.T, td *datadriven.TestData) string {
		marker := func() Marker {
			var m int
			td.ScanArgs(t, "marker", &m)
			return Marker(m)
		}
		slot := func() uint64 {
			var s int
			td.ScanArgs(t, "slot", &s)
			return uint64(s)
		}
		addr := func() uintptr {
			var s string
			td.ScanArgs(t, "addr", &s)
			return uintptr(parseUint(t, s))
		}

		switch td.Cmd {
		case "init":
			tbl := parseFakeTable(t, td)
			return capturePanic(func() string {
				f = nil
				f = New(tbl)
				return describeFilter(f)
			})

		case "metrics":
			return f.Metrics().String()

		case "iter":
			var r Reader = f
			if td.HasArg("read-only") {
				r = f.Reader()
			}
			return formatSlots(r.All(marker()))

		case "begin-end":
			m := marker()
			begin, end := f.Begin(m), f.End(m)
			return fmt.Sprint(begin.Equal(end))

		case "update":
			a, m := addr(), marker()
			return capturePanic(func() string {
				return fmt.Sprintf("slot %d", f.Update(a, m))
			})

		case "read":
			return fmt.Sprint(f.Value(slot()))

		case "address":
			return fmt.Sprintf("%#x", f.Address(slot()))

		case "slot":
			return fmt.Sprint(f.SlotIndex(addr()))

		default:
			return fmt.Sprintf("unknown command: %s", td.Cmd)
		}
	})
}

func TestEndToEnd(t *testing.T) {
	tbl := &fakeTable{
		tupleLength:    16,
		tuplesPerBlock: 4,
		blockSize:      1 << 12,
		blocks:         []uintptr{0x7000, 0x3000},
	}
	tbl.active = []uintptr{tbl.addr(0, 0), tbl.addr(0, 1), tbl.addr(0, 3), tbl.addr(1, 2)}

	f := New(tbl)
	last, ok := f.LastActive()
	require.True(t, ok)
	require.Equal(t, uint64(6), last)
	require.Equal(t, []uint64{0, 1, 3, 6}, slices.Collect(f.All(Active)))

	require.Equal(t, uint64(1), f.UpdateTuple(addrTuple(tbl.addr(0, 1)), 5))
	require.Equal(t, Marker(5), f.Value(1))
	require.Equal(t, []uint64{1}, slices.Collect(f.All(5)))
	require.Equal(t, []uint64{0, 3, 6}, slices.Collect(f.All(Active)))

	// The explicit iterator protocol walks the same slots.
	var got []uint64
	end := f.End(Active)
	for it := f.Begin(Active); !it.Equal(end); it.Next() {
		got = append(got, it.Index())
	}
	require.Equal(t, []uint64{0, 3, 6}, got)

	// Accessors work directly on the iterators returned by Begin and End.
	require.Equal(t, uint64(0), f.Begin(Active).Index())
	require.True(t, f.Begin(5).Valid())
	require.Equal(t, Marker(5), f.Begin(5).Marker())
	require.False(t, f.End(Active).Valid())
	require.True(t, f.End(Active).Equal(f.End(5)))
}

func TestIterExhausted(t *testing.T) {
	tbl := &fakeTable{tupleLength: 8, tuplesPerBlock: 4, blockSize: 64, blocks: []uintptr{0x40}}
	tbl.active = []uintptr{tbl.addr(0, 2)}
	f := New(tbl)

	it := f.Begin(Active)
	require.True(t, it.Valid())
	require.Equal(t, uint64(2), it.Index())
	require.Equal(t, Active, it.Marker())
	it.Next()
	require.False(t, it.Valid())
	require.True(t, it.Equal(f.End(Active)))
	// Advancing an exhausted iterator leaves it at the end.
	it.Next()
	require.False(t, it.Valid())
	require.Equal(t, uint64(3), it.Index())

	// Breaking out of a range loop stops the sequence.
	for idx := range f.All(Active) {
		require.Equal(t, uint64(2), idx)
		break
	}
}

func TestEmptyFilter(t *testing.T) {
	tbl := &fakeTable{tupleLength: 8, tuplesPerBlock: 4, blockSize: 64, blocks: []uintptr{0x40, 0x80}}
	f := New(tbl)
	require.True(t, f.Empty())
	_, ok := f.LastActive()
	require.False(t, ok)
	for _, m := range []Marker{Inactive, Active, 1, 127, -128} {
		begin := f.Begin(m)
		require.False(t, begin.Valid())
		require.True(t, begin.Equal(f.End(m)))
		require.Empty(t, slices.Collect(f.All(m)))
		require.Empty(t, slices.Collect(f.Reader().All(m)))
	}
	require.Equal(t, uint64(8), f.Len())
	require.Equal(t, Inactive, f.Value(7))
}

func TestContractViolations(t *testing.T) {
	newTable := func() *fakeTable {
		tbl := &fakeTable{tupleLength: 16, tuplesPerBlock: 4, blockSize: 1 << 12, blocks: []uintptr{0x1000, 0x2000}}
		tbl.active = []uintptr{tbl.addr(0, 1), tbl.addr(1, 0)}
		return tbl
	}
	tbl := newTable()
	f := New(tbl)

	// Double initialization.
	require.Panics(t, func() { f.Init(tbl) })
	// Unknown block.
	require.Panics(t, func() { f.SlotIndex(0x5000) })
	require.Panics(t, func() { f.Update(0x5000, 3) })
	// Slot never active.
	require.Panics(t, func() { f.Update(tbl.addr(0, 0), 3) })
	// Slot past the last active slot.
	require.Panics(t, func() { f.Update(tbl.addr(1, 3), 3) })
	// Resetting to inactive.
	require.Panics(t, func() { f.Update(tbl.addr(0, 1), Inactive) })
	// Out of range slot indexes.
	require.Panics(t, func() { f.Value(f.Len()) })
	require.Panics(t, func() { f.Address(f.Len()) })
	// Update before initialization.
	var uninit Filter
	require.Panics(t, func() { uninit.Update(tbl.addr(0, 1), 3) })

	// None of the rejected operations changed a marker.
	require.Equal(t, []uint64{1, 4}, slices.Collect(f.All(Active)))
}

func TestBlockCache(t *testing.T) {
	tbl := &fakeTable{tupleLength: 32, tuplesPerBlock: 8, blockSize: 256, blocks: []uintptr{0x100, 0x400, 0x200}}
	for b := range tbl.blocks {
		for s := 0; s < tbl.tuplesPerBlock; s++ {
			tbl.active = append(tbl.active, tbl.addr(b, s))
		}
	}
	f := New(tbl)
	m := f.Metrics()
	require.Equal(t, uint64(3), m.CacheMisses)
	require.Equal(t, uint64(21), m.CacheHits)
	require.Equal(t, uint64(24), m.Active)
	require.Equal(t, 3, m.Blocks)
	require.InDelta(t, 21.0/24.0, m.CacheHitRate(), 1e-9)

	// Alternating between blocks misses every time; the cache never
	// resolves an address to a stale block.
	for i := 0; i < 10; i++ {
		require.Equal(t, uint64(8+i%8), f.SlotIndex(tbl.addr(1, i%8)))
		require.Equal(t, uint64(16+i%8), f.SlotIndex(tbl.addr(2, i%8)))
	}
	require.Equal(t, uint64(23), f.Metrics().CacheMisses)
	require.Equal(t, "blocks: 3, slots: 24, active: 24, cache: 21 hits / 23 misses", f.Metrics().String())
}

// TestRandomized checks the filter against a model on random geometries and
// occupancies.
func TestRandomized(t *testing.T) {
	seed := uint64(rand.Int63())
	t.Logf("seed: %d", seed)
	rng := rand.New(rand.NewSource(seed))

	for i := 0; i < 50; i++ {
		tupleLength := 1 + rng.Intn(64)
		tuplesPerBlock := 1 + rng.Intn(32)
		blockSize := uintptr(1)
		for blockSize < uintptr(tupleLength*tuplesPerBlock) {
			blockSize <<= 1
		}
		blockSize <<= uint(rng.Intn(2))

		tbl := &fakeTable{tupleLength: tupleLength, tuplesPerBlock: tuplesPerBlock, blockSize: blockSize}
		numBlocks := rng.Intn(8)
		for _, n := range rng.Perm(64)[:numBlocks] {
			tbl.blocks = append(tbl.blocks, uintptr(n+1)*blockSize)
		}
		var activeSlots []uint64
		for b := range tbl.blocks {
			for s := 0; s < tuplesPerBlock; s++ {
				if rng.Intn(3) == 0 {
					tbl.active = append(tbl.active, tbl.addr(b, s))
					activeSlots = append(activeSlots, uint64(b*tuplesPerBlock+s))
				}
			}
		}
		rng.Shuffle(len(tbl.active), func(i, j int) {
			tbl.active[i], tbl.active[j] = tbl.active[j], tbl.active[i]
		})

		f := New(tbl)
		require.Equal(t, uint64(numBlocks*tuplesPerBlock), f.Len())
		require.Equal(t, len(activeSlots) == 0, f.Empty())

		seen := make(map[uint64]bool)
		for _, a := range tbl.active {
			idx := f.SlotIndex(a)
			require.False(t, seen[idx], "slot %d resolved twice", idx)
			seen[idx] = true
			require.Equal(t, Active, f.Value(idx))
			require.Equal(t, a, f.Address(idx))
		}
		if len(activeSlots) > 0 {
			last, ok := f.LastActive()
			require.True(t, ok)
			require.Equal(t, slices.Max(activeSlots), last)
		}
		require.Equal(t, activeSlots, nilIfEmpty(slices.Collect(f.All(Active))))

		// Every slot round-trips through its recovered address.
		for idx := uint64(0); idx < f.Len(); idx++ {
			require.Equal(t, idx, f.SlotIndex(f.Address(idx)))
		}

		// Stamp a random subset with random markers and check iteration
		// against the model.
		model := make(map[uint64]Marker)
		for _, s := range activeSlots {
			model[s] = Active
		}
		for _, a := range tbl.active {
			if rng.Intn(2) == 0 {
				continue
			}
			m := Marker(rng.Intn(4))
			idx := f.Update(a, m)
			model[idx] = m
			require.Equal(t, m, f.Value(idx))
		}
		for m := Marker(0); m < 4; m++ {
			var want []uint64
			for _, s := range activeSlots {
				if model[s] == m {
					want = append(want, s)
				}
			}
			require.Equal(t, want, nilIfEmpty(slices.Collect(f.All(m))))
			require.Equal(t, want, nilIfEmpty(slices.Collect(f.Reader().All(m))))
		}
	}
}

func nilIfEmpty(s []uint64) []uint64 {
	if len(s) == 0 {
		return nil
	}
	return s
}

func BenchmarkIterate(b *testing.B) {
	tbl := &fakeTable{tupleLength: 64, tuplesPerBlock: 1024, blockSize: 1 << 16}
	for i := 0; i < 64; i++ {
		tbl.blocks = append(tbl.blocks, uintptr(i+1)<<16)
		for s := 0; s < tbl.tuplesPerBlock; s += 2 {
			tbl.active = append(tbl.active, tbl.addr(i, s))
		}
	}
	f := New(tbl)
	for i, a := range tbl.active {
		if i%4 == 0 {
			f.Update(a, 1)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		n := 0
		for range f.All(1) {
			n++
		}
		if n != len(tbl.active)/4 {
			b.Fatalf("iterated %d slots", n)
		}
	}
}

func BenchmarkSlotIndex(b *testing.B) {
	tbl := &fakeTable{tupleLength: 64, tuplesPerBlock: 1024, blockSize: 1 << 16}
	for i := 0; i < 64; i++ {
		tbl.blocks = append(tbl.blocks, uintptr(i+1)<<16)
		for s := 0; s < tbl.tuplesPerBlock; s++ {
			tbl.active = append(tbl.active, tbl.addr(i, s))
		}
	}
	f := New(tbl)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = f.SlotIndex(tbl.active[i%len(tbl.active)])
	}
}
