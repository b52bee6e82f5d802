package probes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/cloud-bulldozer/uarch-profiler/pkg/clock"
	log "github.com/cloud-bulldozer/uarch-profiler/pkg/logging"
	utilclock "k8s.io/utils/clock"
)

// Kind identifies one probe of the fixed probe set.
type Kind int

const (
	Dummy Kind = iota
	PageSize
	CacheSize
	CacheAssociativity
	TLBSize
	SingleCore
)

var kindNames = map[Kind]string{
	Dummy:              "dummy",
	PageSize:           "page_size",
	CacheSize:          "cache_size",
	CacheAssociativity: "cache_associativity",
	TLBSize:            "tlb_size",
	SingleCore:         "single_core_performance",
}

// ErrUnknownKind is returned for a Kind outside the probe set.
var ErrUnknownKind = errors.New("unknown probe")

// ErrInvalidProbe is returned when a probe's parameters are outside its domain.
var ErrInvalidProbe = errors.New("invalid probe parameters")

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("probe(%d)", int(k))
}

// Kinds returns every probe kind in the order a full session runs them.
func Kinds() []Kind {
	return []Kind{PageSize, CacheSize, CacheAssociativity, TLBSize, SingleCore}
}

// ParseKind maps a probe name back to its Kind.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for k, v := range kindNames {
		if v == n {
			return k, nil
		}
	}
	return Dummy, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// DataPoint is one measurement of a sweep.
type DataPoint struct {
	X uint64 `json:"x"`
	Y uint64 `json:"y"`
}

// Result is the output of a single probe run.
type Result struct {
	Name         string
	DataPoints   []DataPoint
	Scalar       *float64
	ElapsedTicks uint64
}

// JSON encodes the result payload: the data points, the scalar, or null.
func (r Result) JSON() (json.RawMessage, error) {
	if r.DataPoints != nil {
		return json.Marshal(r.DataPoints)
	}
	return json.Marshal(r.Scalar)
}

// Ys returns the measured values as floats, for summaries.
func (r Result) Ys() []float64 {
	ys := make([]float64, len(r.DataPoints))
	for i, dp := range r.DataPoints {
		ys[i] = float64(dp.Y)
	}
	return ys
}

// ChaseFunc follows list from index p for the given number of steps and
// returns the index it stopped at.
type ChaseFunc func(list []int, p, steps int) int

// Probe describes one probe and its sweep. Which fields matter depends on
// Kind; Validate reports the ones a kind requires.
type Probe struct {
	Kind Kind
	// Sweep is the swept parameter: bytes for cache_size, ways for
	// cache_associativity, page entries for tlb_size, byte offsets for
	// page_size.
	Sweep []Range
	// Stride is the block distance in bytes for cache_associativity.
	Stride uint64
	// Iterations is the number of timed chases per way.
	Iterations int
	// PageBytes is the page size assumed by tlb_size.
	PageBytes uint64
	// Passes is the number of timed laps over the tlb_size chain.
	Passes int
	// BufferBytes is the buffer scanned by page_size.
	BufferBytes uint64
	// Normalize divides cache_size timings by the number of accesses.
	Normalize bool
	// Phases, Rounds, Window and Gap drive single_core_performance.
	Phases int
	Rounds int
	Window uint64
	Gap    time.Duration
	// Seed fixes the permutation order; zero picks a random seed.
	Seed uint64

	Chase ChaseFunc
	Wall  utilclock.Clock
}

// Name returns the probe name used as the result key.
func (p Probe) Name() string {
	return p.Kind.String()
}

type runFunc func(p *Probe, clk clock.Reader) ([]DataPoint, error)

var dispatch = map[Kind]runFunc{
	Dummy:              runDummy,
	PageSize:           runPageSize,
	CacheSize:          runCacheSize,
	CacheAssociativity: runCacheAssociativity,
	TLBSize:            runTLBSize,
	SingleCore:         runSingleCore,
}

// Run executes the probe against clk. The returned ElapsedTicks spans the
// whole sweep.
func (p Probe) Run(clk clock.Reader) (Result, error) {
	fn, ok := dispatch[p.Kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownKind, p.Kind)
	}
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if p.Chase == nil {
		p.Chase = chase
	}
	if p.Wall == nil {
		p.Wall = utilclock.RealClock{}
	}
	log.Infof("🔬 Running %s probe", p.Name())
	start := clk.Read()
	points, err := fn(&p, clk)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", p.Name(), err)
	}
	end := clk.Read()
	log.Infof("✅ %s probe finished: %d points in %d ticks", p.Name(), len(points), end-start)
	return Result{
		Name:         p.Name(),
		DataPoints:   points,
		ElapsedTicks: end - start,
	}, nil
}

// Validate checks the probe parameters against the domain of its kind.
func (p Probe) Validate() error {
	switch p.Kind {
	case Dummy:
		return nil
	case SingleCore:
		if p.Phases < 1 || p.Rounds < 1 {
			return fmt.Errorf("%w: %s needs phases and rounds > 0", ErrInvalidProbe, p.Name())
		}
		if p.Window < 1 {
			return fmt.Errorf("%w: %s needs window > 0", ErrInvalidProbe, p.Name())
		}
		if p.Gap < 0 {
			return fmt.Errorf("%w: %s gap must not be negative", ErrInvalidProbe, p.Name())
		}
		return nil
	case PageSize, CacheSize, CacheAssociativity, TLBSize:
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, p.Kind)
	}
	xs, err := Values(p.Sweep)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidProbe, p.Name(), err)
	}
	switch p.Kind {
	case PageSize:
		if xs[len(xs)-1] >= p.BufferBytes {
			return fmt.Errorf("%w: %s offset %d beyond buffer of %d bytes", ErrInvalidProbe, p.Name(), xs[len(xs)-1], p.BufferBytes)
		}
	case CacheSize:
		if xs[0] < wordSize {
			return fmt.Errorf("%w: %s size %d is smaller than a word", ErrInvalidProbe, p.Name(), xs[0])
		}
	case CacheAssociativity:
		if xs[0] < 1 || p.Stride < wordSize || p.Iterations < 1 {
			return fmt.Errorf("%w: %s needs ways >= 1, stride >= %d and iterations > 0", ErrInvalidProbe, p.Name(), wordSize)
		}
	case TLBSize:
		if xs[0] < 1 || p.PageBytes < wordSize || p.Passes < 1 {
			return fmt.Errorf("%w: %s needs entries >= 1, page >= %d and passes > 0", ErrInvalidProbe, p.Name(), wordSize)
		}
	}
	return nil
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func runDummy(_ *Probe, _ clock.Reader) ([]DataPoint, error) {
	return nil, nil
}
