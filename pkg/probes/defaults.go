package probes

import "time"

const (
	KiB = 1 << 10
	MiB = 1 << 20
)

// Default returns the probe of kind k with its stock sweep.
func Default(k Kind) Probe {
	p := Probe{Kind: k}
	switch k {
	case PageSize:
		p.BufferBytes = 1 * MiB
		p.Sweep = []Range{Linear(0, 1*MiB, 128)}
	case CacheSize:
		// Dense at L1 sizes, coarse through L2 and L3.
		p.Sweep = []Range{
			Linear(512, 8*KiB+1, 512),
			Linear(12*KiB, 512*KiB+1, 4*KiB),
			Geometric(1*MiB, 32*MiB+1, 2),
		}
	case CacheAssociativity:
		p.Sweep = []Range{Linear(1, 33, 1)}
		p.Stride = 32 * KiB
		p.Iterations = 1 << 14
	case TLBSize:
		p.Sweep = []Range{Linear(2, 126, 4)}
		p.PageBytes = 4 * KiB
		p.Passes = 64
	case SingleCore:
		p.Phases = 3
		p.Rounds = 500
		p.Window = 1000
		p.Gap = 50 * time.Millisecond
	}
	return p
}
