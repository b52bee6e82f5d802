package probes

import (
	"fmt"

	"github.com/cloud-bulldozer/uarch-profiler/pkg/clock"
	log "github.com/cloud-bulldozer/uarch-profiler/pkg/logging"
)

// runTLBSize chases one word per page over a growing number of pages. The
// working set stays tiny in cache terms, so the step in the curve marks
// where translations stop fitting in the TLB.
func runTLBSize(p *Probe, clk clock.Reader) ([]DataPoint, error) {
	entries, err := Values(p.Sweep)
	if err != nil {
		return nil, err
	}
	rng := newRand(p.Seed)
	stride := p.PageBytes / wordSize
	points := make([]DataPoint, 0, len(entries))
	for _, e := range entries {
		list, release, err := allocWords(e * stride)
		if err != nil {
			return nil, fmt.Errorf("%d entries: %w", e, err)
		}
		linkBlocks(list, int(e), int(stride), rng)

		q := p.Chase(list, 0, int(e))
		start := clk.Read()
		q = p.Chase(list, q, int(e)*p.Passes)
		end := clk.Read()
		sink = q
		release()

		if log.IsDebug() {
			log.Debugf("%s: %d entries -> %d ticks", p.Name(), e, end-start)
		}
		points = append(points, DataPoint{X: e, Y: end - start})
	}
	return points, nil
}

// runPageSize touches a fresh buffer once per offset. The first touch of a
// page costs a fault and a translation, so the spikes repeat with the page
// size.
func runPageSize(p *Probe, clk clock.Reader) ([]DataPoint, error) {
	offsets, err := Values(p.Sweep)
	if err != nil {
		return nil, err
	}
	buf, release, err := allocBytes(p.BufferBytes)
	if err != nil {
		return nil, err
	}
	defer release()

	points := make([]DataPoint, 0, len(offsets))
	var acc byte
	for _, off := range offsets {
		start := clk.Read()
		acc += buf[off]
		end := clk.Read()
		points = append(points, DataPoint{X: off, Y: end - start})
	}
	sink = int(acc)
	return points, nil
}
