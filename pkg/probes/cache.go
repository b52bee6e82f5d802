package probes

import (
	"fmt"

	"github.com/cloud-bulldozer/uarch-profiler/pkg/clock"
	log "github.com/cloud-bulldozer/uarch-profiler/pkg/logging"
)

// runCacheSize chases a random cycle through a working set of each swept
// size. Latency steps up where the working set outgrows a cache level.
func runCacheSize(p *Probe, clk clock.Reader) ([]DataPoint, error) {
	sizes, err := Values(p.Sweep)
	if err != nil {
		return nil, err
	}
	rng := newRand(p.Seed)
	points := make([]DataPoint, 0, len(sizes))
	for _, size := range sizes {
		n := size / wordSize
		list, release, err := allocWords(n)
		if err != nil {
			return nil, fmt.Errorf("size %d: %w", size, err)
		}
		fillCycle(list, rng)
		steps := int(n)

		q := p.Chase(list, 0, steps)
		start := clk.Read()
		q = p.Chase(list, q, steps)
		end := clk.Read()
		sink = q
		release()

		y := end - start
		if p.Normalize {
			y /= n
		}
		if log.IsDebug() {
			log.Debugf("%s: %d bytes -> %d ticks", p.Name(), size, y)
		}
		points = append(points, DataPoint{X: size, Y: y})
	}
	return points, nil
}

// runCacheAssociativity links w blocks spaced a fixed stride apart, so every
// access maps to the same cache set. Per-access latency rises once w
// exceeds the set's way count.
func runCacheAssociativity(p *Probe, clk clock.Reader) ([]DataPoint, error) {
	ways, err := Values(p.Sweep)
	if err != nil {
		return nil, err
	}
	rng := newRand(p.Seed)
	stride := p.Stride / wordSize
	points := make([]DataPoint, 0, len(ways))
	for _, w := range ways {
		list, release, err := allocWords(w * stride)
		if err != nil {
			return nil, fmt.Errorf("%d ways: %w", w, err)
		}
		linkBlocks(list, int(w), int(stride), rng)

		q := p.Chase(list, 0, int(w))
		start := clk.Read()
		q = p.Chase(list, q, int(w)*p.Iterations)
		end := clk.Read()
		sink = q
		release()

		y := (end - start) / w
		if log.IsDebug() {
			log.Debugf("%s: %d ways -> %d ticks", p.Name(), w, y)
		}
		points = append(points, DataPoint{X: w, Y: y})
	}
	return points, nil
}
