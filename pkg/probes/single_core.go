package probes

import (
	"github.com/cloud-bulldozer/uarch-profiler/pkg/clock"
	log "github.com/cloud-bulldozer/uarch-profiler/pkg/logging"
)

// runSingleCore counts loop iterations inside fixed windows of clock ticks.
// Rounds within a phase run back to back; phases are separated by a fixed
// wall-clock gap so boost and throttle transitions show up in the counts.
func runSingleCore(p *Probe, clk clock.Reader) ([]DataPoint, error) {
	points := make([]DataPoint, 0, p.Phases*p.Rounds)
	round := uint64(0)
	for phase := 0; phase < p.Phases; phase++ {
		if phase > 0 && p.Gap > 0 {
			p.Wall.Sleep(p.Gap)
		}
		log.Debugf("%s: phase %d", p.Name(), phase+1)
		for r := 0; r < p.Rounds; r++ {
			var counter uint64
			end := clk.Read() + p.Window
			for end > clk.Read() {
				counter++
			}
			points = append(points, DataPoint{X: round, Y: counter})
			round++
		}
	}
	return points, nil
}
