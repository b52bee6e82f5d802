package probes

import (
	"fmt"
)

// Range is a half-open interval [Start, Stop). Values advance by Step, or
// are multiplied by Factor when Factor > 1.
type Range struct {
	Start  uint64
	Stop   uint64
	Step   uint64
	Factor uint64
}

// Linear returns the range [start, stop) stepping by step.
func Linear(start, stop, step uint64) Range {
	return Range{Start: start, Stop: stop, Step: step}
}

// Geometric returns the range [start, stop) multiplying by factor.
func Geometric(start, stop, factor uint64) Range {
	return Range{Start: start, Stop: stop, Factor: factor}
}

func (r Range) values() ([]uint64, error) {
	if r.Start >= r.Stop {
		return nil, fmt.Errorf("empty range [%d, %d)", r.Start, r.Stop)
	}
	var out []uint64
	switch {
	case r.Factor > 1:
		if r.Start == 0 {
			return nil, fmt.Errorf("geometric range cannot start at 0")
		}
		for v := r.Start; v < r.Stop; v *= r.Factor {
			out = append(out, v)
		}
	case r.Step > 0:
		for v := r.Start; v < r.Stop; v += r.Step {
			out = append(out, v)
		}
	default:
		return nil, fmt.Errorf("range [%d, %d) needs a step or a factor > 1", r.Start, r.Stop)
	}
	return out, nil
}

// Values expands a schedule into the ordered list of swept values. The
// concatenation must be strictly increasing.
func Values(schedule []Range) ([]uint64, error) {
	if len(schedule) == 0 {
		return nil, fmt.Errorf("empty sweep")
	}
	var out []uint64
	for _, r := range schedule {
		vs, err := r.values()
		if err != nil {
			return nil, err
		}
		if len(out) > 0 && vs[0] <= out[len(out)-1] {
			return nil, fmt.Errorf("sweep is not increasing: %d after %d", vs[0], out[len(out)-1])
		}
		out = append(out, vs...)
	}
	return out, nil
}
