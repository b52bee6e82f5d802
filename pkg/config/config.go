package config

import (
	"fmt"
	"os"
	"time"

	log "github.com/cloud-bulldozer/uarch-profiler/pkg/logging"
	"github.com/cloud-bulldozer/uarch-profiler/pkg/probes"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Config describes a profiling session
type Config struct {
	Model            string        `yaml:"model,omitempty"`
	HostIdentifier   string        `yaml:"hostIdentifier,omitempty"`
	HandshakeTimeout time.Duration `yaml:"handshakeTimeout,omitempty"`
	Probes           []Probe       `yaml:"probes"`
}

// Probe describes a single probe. Unset fields keep the probe's defaults.
// Sizes accept quantities such as 512, 32Ki or 1Mi.
type Probe struct {
	Name       string        `yaml:"name"`
	Sweep      []Range       `yaml:"sweep,omitempty"`
	Stride     string        `yaml:"stride,omitempty"`
	Iterations int           `yaml:"iterations,omitempty"`
	PageSize   string        `yaml:"pageSize,omitempty"`
	Passes     int           `yaml:"passes,omitempty"`
	BufferSize string        `yaml:"bufferSize,omitempty"`
	Normalize  bool          `yaml:"normalize,omitempty"`
	Phases     int           `yaml:"phases,omitempty"`
	Rounds     int           `yaml:"rounds,omitempty"`
	Window     uint64        `yaml:"window,omitempty"`
	Gap        time.Duration `yaml:"gap,omitempty"`
	Seed       uint64        `yaml:"seed,omitempty"`
}

// Range is an inclusive sweep segment from From to To. Step adds, Factor multiplies.
type Range struct {
	From   string `yaml:"from"`
	To     string `yaml:"to"`
	Step   string `yaml:"step,omitempty"`
	Factor uint64 `yaml:"factor,omitempty"`
}

func quantity(field, v string) (uint64, error) {
	q, err := resource.ParseQuantity(v)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %v", field, v, err)
	}
	n, ok := q.AsInt64()
	if !ok || n < 0 {
		return 0, fmt.Errorf("%s %q must be a non-negative integer", field, v)
	}
	return uint64(n), nil
}

func (r Range) toRange() (probes.Range, error) {
	var out probes.Range
	from, err := quantity("from", r.From)
	if err != nil {
		return out, err
	}
	to, err := quantity("to", r.To)
	if err != nil {
		return out, err
	}
	out.Start = from
	out.Stop = to + 1
	out.Factor = r.Factor
	if r.Step != "" {
		if out.Step, err = quantity("step", r.Step); err != nil {
			return out, err
		}
	}
	return out, nil
}

// toProbe overlays the configured values on the probe's defaults.
func (c Probe) toProbe() (probes.Probe, error) {
	kind, err := probes.ParseKind(c.Name)
	if err != nil {
		return probes.Probe{}, err
	}
	p := probes.Default(kind)
	if len(c.Sweep) > 0 {
		p.Sweep = nil
		for _, r := range c.Sweep {
			pr, err := r.toRange()
			if err != nil {
				return p, fmt.Errorf("%s sweep: %w", c.Name, err)
			}
			p.Sweep = append(p.Sweep, pr)
		}
	}
	sizes := []struct {
		name string
		raw  string
		dst  *uint64
	}{
		{"stride", c.Stride, &p.Stride},
		{"pageSize", c.PageSize, &p.PageBytes},
		{"bufferSize", c.BufferSize, &p.BufferBytes},
	}
	for _, s := range sizes {
		if s.raw == "" {
			continue
		}
		if *s.dst, err = quantity(s.name, s.raw); err != nil {
			return p, fmt.Errorf("%s: %w", c.Name, err)
		}
	}
	if c.Iterations > 0 {
		p.Iterations = c.Iterations
	}
	if c.Passes > 0 {
		p.Passes = c.Passes
	}
	if c.Phases > 0 {
		p.Phases = c.Phases
	}
	if c.Rounds > 0 {
		p.Rounds = c.Rounds
	}
	if c.Window > 0 {
		p.Window = c.Window
	}
	if c.Gap > 0 {
		p.Gap = c.Gap
	}
	p.Normalize = p.Normalize || c.Normalize
	p.Seed = c.Seed
	return p, nil
}

// BuildProbes turns the configured probes into runnable ones, in file order.
func (c *Config) BuildProbes() ([]probes.Probe, error) {
	var out []probes.Probe
	for _, pc := range c.Probes {
		p, err := pc.toProbe()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func validConfig(cfg *Config) (bool, error) {
	if len(cfg.Probes) < 1 {
		return false, fmt.Errorf("no probes configured")
	}
	if cfg.HandshakeTimeout < 0 {
		return false, fmt.Errorf("handshakeTimeout must be >= 0")
	}
	seen := sets.New[string]()
	for _, pc := range cfg.Probes {
		p, err := pc.toProbe()
		if err != nil {
			return false, err
		}
		if seen.Has(p.Name()) {
			return false, fmt.Errorf("probe %s configured more than once", p.Name())
		}
		seen.Insert(p.Name())
		if err := p.Validate(); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Defaults returns a session running every probe with its stock sweep.
func Defaults() *Config {
	c := &Config{}
	for _, k := range probes.Kinds() {
		c.Probes = append(c.Probes, Probe{Name: k.String()})
	}
	return c
}

// ParseConf will read in the profiler configuration file which
// describes which probes to run
// Returns Config struct
func ParseConf(fn string) (*Config, error) {
	log.Infof("📒 Reading %s file. ", fn)
	buf, err := os.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	c := &Config{}
	err = yaml.Unmarshal(buf, c)
	if err != nil {
		return nil, fmt.Errorf("in file %q: %v", fn, err)
	}
	ok, err := validConfig(c)
	if !ok {
		return nil, fmt.Errorf("in file %q: %w", fn, err)
	}
	return c, nil
}

// Filter keeps only the named probes, preserving file order.
func (c *Config) Filter(names []string) error {
	if len(names) == 0 {
		return nil
	}
	want := sets.New[string]()
	for _, n := range names {
		k, err := probes.ParseKind(n)
		if err != nil {
			return err
		}
		want.Insert(k.String())
	}
	var kept []Probe
	for _, pc := range c.Probes {
		k, _ := probes.ParseKind(pc.Name)
		if want.Has(k.String()) {
			kept = append(kept, pc)
			want.Delete(k.String())
		}
	}
	if want.Len() > 0 {
		return fmt.Errorf("probes not present in the configuration: %v", sets.List(want))
	}
	c.Probes = kept
	return nil
}

// Show Display the probe config
func Show(p probes.Probe) {
	switch p.Kind {
	case probes.SingleCore:
		log.Infof("🗒️  %s: %d phases x %d rounds of %d ticks, gap %s", p.Name(), p.Phases, p.Rounds, p.Window, p.Gap)
	default:
		xs, _ := probes.Values(p.Sweep)
		if len(xs) == 0 {
			log.Infof("🗒️  %s", p.Name())
			return
		}
		log.Infof("🗒️  %s: %d points from %d to %d", p.Name(), len(xs), xs[0], xs[len(xs)-1])
	}
}
