package probes

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cloud-bulldozer/uarch-profiler/pkg/clock"
	testingclock "k8s.io/utils/clock/testing"
)

// noChase stands in for the traversal so timings come only from the clock.
func noChase(_ []int, p, _ int) int { return p }

func xs(points []DataPoint) []uint64 {
	out := make([]uint64, len(points))
	for i, dp := range points {
		out[i] = dp.X
	}
	return out
}

// TestFillCycle walks the chain from 0 and expects every index exactly once.
func TestFillCycle(t *testing.T) {
	rng := newRand(42)
	for _, n := range []int{1, 2, 3, 17, 1024, 4099} {
		list := make([]int, n)
		fillCycle(list, rng)
		seen := make([]bool, n)
		p := 0
		for i := 0; i < n; i++ {
			if seen[p] {
				t.Fatalf("n=%d: index %d visited twice after %d steps", n, p, i)
			}
			seen[p] = true
			p = list[p]
		}
		if p != 0 {
			t.Fatalf("n=%d: chain did not return to 0 after %d steps, at %d", n, n, p)
		}
	}
}

// TestLinkBlocks checks the strided chain only touches block starts.
func TestLinkBlocks(t *testing.T) {
	const blocks, stride = 9, 16
	list := make([]int, blocks*stride)
	for i := range list {
		list[i] = -1
	}
	linkBlocks(list, blocks, stride, newRand(7))
	p := 0
	for i := 0; i < blocks; i++ {
		if p%stride != 0 {
			t.Fatalf("chain left a block start: %d", p)
		}
		p = list[p]
	}
	if p != 0 {
		t.Fatalf("chain did not close after %d blocks, at %d", blocks, p)
	}
	for i, v := range list {
		if i%stride != 0 && v != -1 {
			t.Fatalf("word %d inside a block was written", i)
		}
	}
}

// TestSweepOrdering checks a 32KiB stepped schedule expands to 31 points.
func TestSweepOrdering(t *testing.T) {
	p := Probe{Kind: CacheSize, Sweep: []Range{Linear(32*KiB, 32*32*KiB, 32*KiB)}, Chase: noChase}
	r, err := p.Run(clock.NewSynthetic(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.DataPoints) != 31 {
		t.Fatalf("expected 31 points, got %d", len(r.DataPoints))
	}
	for i, dp := range r.DataPoints {
		if want := uint64(i+1) * 32 * KiB; dp.X != want {
			t.Fatalf("point %d: x=%d, expected %d", i, dp.X, want)
		}
	}
}

// TestValuesRejectsOverlap expects the concatenated schedule to keep increasing.
func TestValuesRejectsOverlap(t *testing.T) {
	if _, err := Values([]Range{Linear(0, 10, 2), Linear(8, 20, 2)}); err == nil {
		t.Fatal("overlapping ranges should fail")
	}
	if _, err := Values([]Range{Linear(10, 10, 1)}); err == nil {
		t.Fatal("empty range should fail")
	}
	if _, err := Values([]Range{{Start: 1, Stop: 5}}); err == nil {
		t.Fatal("range without step should fail")
	}
	vs, err := Values([]Range{Linear(1, 4, 1), Geometric(4, 40, 3)})
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{1, 2, 3, 4, 12, 36}
	if len(vs) != len(want) {
		t.Fatalf("expected %v, got %v", want, vs)
	}
	for i := range want {
		if vs[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, vs)
		}
	}
}

// TestCacheSizeSyntheticClock runs two sizes on a clock that returns 1000 per read.
func TestCacheSizeSyntheticClock(t *testing.T) {
	p := Probe{Kind: CacheSize, Sweep: []Range{Linear(32*KiB, 64*KiB+1, 32*KiB)}, Chase: noChase}
	r, err := p.Run(clock.NewSynthetic(1000))
	if err != nil {
		t.Fatal(err)
	}
	want := []DataPoint{{X: 32768, Y: 1000}, {X: 65536, Y: 1000}}
	if len(r.DataPoints) != len(want) {
		t.Fatalf("expected %v, got %v", want, r.DataPoints)
	}
	for i := range want {
		if r.DataPoints[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, r.DataPoints)
		}
	}
	if r.Name != "cache_size" {
		t.Fatalf("unexpected name %q", r.Name)
	}
	b, _ := r.JSON()
	if string(b) != `[{"x":32768,"y":1000},{"x":65536,"y":1000}]` {
		t.Fatalf("unexpected json %s", b)
	}
}

// TestIdempotentRerun runs each sweeping probe twice and compares the x values.
func TestIdempotentRerun(t *testing.T) {
	probes := []Probe{
		{Kind: CacheSize, Sweep: []Range{Linear(1*KiB, 9*KiB, 2*KiB)}},
		{Kind: CacheAssociativity, Sweep: []Range{Linear(1, 9, 1)}, Stride: 4 * KiB, Iterations: 4},
		{Kind: TLBSize, Sweep: []Range{Linear(2, 30, 4)}, PageBytes: 4 * KiB, Passes: 2},
		{Kind: PageSize, Sweep: []Range{Linear(0, 64*KiB, 1*KiB)}, BufferBytes: 64 * KiB},
		{Kind: SingleCore, Phases: 2, Rounds: 4, Window: 500, Wall: testingclock.NewFakeClock(time.Now()), Gap: time.Second},
	}
	for _, p := range probes {
		a, err := p.Run(clock.NewSynthetic(100))
		if err != nil {
			t.Fatalf("%s: %v", p.Name(), err)
		}
		b, err := p.Run(clock.NewSynthetic(100))
		if err != nil {
			t.Fatalf("%s: %v", p.Name(), err)
		}
		ax, bx := xs(a.DataPoints), xs(b.DataPoints)
		if len(ax) == 0 || len(ax) != len(bx) {
			t.Fatalf("%s: lengths differ %d vs %d", p.Name(), len(ax), len(bx))
		}
		for i := range ax {
			if ax[i] != bx[i] {
				t.Fatalf("%s: x differs at %d", p.Name(), i)
			}
			if i > 0 && ax[i] <= ax[i-1] {
				t.Fatalf("%s: x not increasing at %d", p.Name(), i)
			}
		}
	}
}

// TestAssociativityBoundary models a cache with 8 ways: every access is
// cheap until the ninth block evicts the first.
func TestAssociativityBoundary(t *testing.T) {
	const strideBytes = 64
	clk := clock.NewSynthetic(0)
	model := func(list []int, p, steps int) int {
		ways := len(list) / (strideBytes / int(wordSize))
		latency := uint64(1)
		if ways > 8 {
			latency = 10
		}
		clk.Advance(uint64(steps) * latency)
		return p
	}
	p := Probe{
		Kind:       CacheAssociativity,
		Sweep:      []Range{Linear(1, 17, 1)},
		Stride:     strideBytes,
		Iterations: 3,
		Chase:      model,
	}
	r, err := p.Run(clk)
	if err != nil {
		t.Fatal(err)
	}
	if len(r.DataPoints) != 16 {
		t.Fatalf("expected 16 points, got %d", len(r.DataPoints))
	}
	flat := r.DataPoints[0].Y
	for _, dp := range r.DataPoints {
		if dp.X <= 8 && dp.Y != flat {
			t.Fatalf("ways=%d: y=%d, expected flat %d", dp.X, dp.Y, flat)
		}
		if dp.X > 8 && dp.Y <= flat {
			t.Fatalf("ways=%d: y=%d, expected more than %d", dp.X, dp.Y, flat)
		}
	}
}

// TestSingleCore counts iterations inside fixed tick windows.
func TestSingleCore(t *testing.T) {
	wall := testingclock.NewFakeClock(time.Unix(0, 0))
	p := Probe{Kind: SingleCore, Phases: 3, Rounds: 4, Window: 1000, Gap: 2 * time.Second, Wall: wall}
	r, err := p.Run(clock.NewSynthetic(100))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.DataPoints) != 12 {
		t.Fatalf("expected 12 points, got %d", len(r.DataPoints))
	}
	for i, dp := range r.DataPoints {
		if dp.X != uint64(i) {
			t.Fatalf("point %d has x=%d", i, dp.X)
		}
		if dp.Y != 9 {
			t.Fatalf("point %d counted %d, expected 9", i, dp.Y)
		}
	}
	if got := wall.Since(time.Unix(0, 0)); got != 4*time.Second {
		t.Fatalf("expected two 2s gaps, wall moved %s", got)
	}
}

// TestPageSize scans offsets with a single access each.
func TestPageSize(t *testing.T) {
	p := Probe{Kind: PageSize, Sweep: []Range{Linear(0, 16*KiB, 4*KiB)}, BufferBytes: 16 * KiB}
	r, err := p.Run(clock.NewSynthetic(3))
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{0, 4096, 8192, 12288}
	got := xs(r.DataPoints)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] || r.DataPoints[i].Y != 3 {
			t.Fatalf("unexpected point %d: %+v", i, r.DataPoints[i])
		}
	}
}

// TestRealChase runs the real traversal on small buffers.
func TestRealChase(t *testing.T) {
	p := Probe{Kind: CacheSize, Sweep: []Range{Linear(1*KiB, 5*KiB, 1*KiB)}, Normalize: true, Seed: 3}
	r, err := p.Run(clock.NewSynthetic(1))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.DataPoints) != 4 {
		t.Fatalf("expected 4 points, got %d", len(r.DataPoints))
	}
	tlb := Probe{Kind: TLBSize, Sweep: []Range{Linear(2, 10, 2)}, PageBytes: 4 * KiB, Passes: 3}
	if _, err := tlb.Run(clock.NewSynthetic(1)); err != nil {
		t.Fatal(err)
	}
}

// TestValidate expects parameters outside a probe's domain to be rejected.
func TestValidate(t *testing.T) {
	bad := []Probe{
		{Kind: Kind(99)},
		{Kind: CacheSize},
		{Kind: CacheSize, Sweep: []Range{Linear(1, 8, 1)}},
		{Kind: CacheAssociativity, Sweep: []Range{Linear(1, 4, 1)}, Stride: 64},
		{Kind: CacheAssociativity, Sweep: []Range{Linear(0, 4, 1)}, Stride: 64, Iterations: 1},
		{Kind: TLBSize, Sweep: []Range{Linear(1, 4, 1)}, PageBytes: 4096},
		{Kind: PageSize, Sweep: []Range{Linear(0, 8192, 64)}, BufferBytes: 4096},
		{Kind: SingleCore, Phases: 1, Rounds: 1},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Fatalf("probe %d (%s) should not validate", i, p.Name())
		}
		if _, err := p.Run(clock.NewSynthetic(1)); err == nil {
			t.Fatalf("probe %d (%s) should not run", i, p.Name())
		}
	}
	if _, err := (Probe{Kind: Kind(99)}).Run(clock.NewSynthetic(1)); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

// TestDefaults checks every stock probe validates.
func TestDefaults(t *testing.T) {
	for _, k := range Kinds() {
		if err := Default(k).Validate(); err != nil {
			t.Fatalf("default %s: %v", k, err)
		}
	}
	vs, err := Values(Default(CacheSize).Sweep)
	if err != nil {
		t.Fatal(err)
	}
	if vs[0] != 512 || vs[len(vs)-1] != 32*MiB {
		t.Fatalf("unexpected cache size bounds %d..%d", vs[0], vs[len(vs)-1])
	}
}

// TestParseKind maps every name back to its kind.
func TestParseKind(t *testing.T) {
	for _, k := range append(Kinds(), Dummy) {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Fatalf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
	}
	if _, err := ParseKind("l4_cache"); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

// TestDummyJSON expects the placeholder probe to encode as null.
func TestDummyJSON(t *testing.T) {
	r, err := Probe{Kind: Dummy}.Run(clock.NewSynthetic(1))
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.JSON()
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(b) || string(b) != "null" {
		t.Fatalf("expected null, got %s", b)
	}
}
