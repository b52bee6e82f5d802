// Package session runs an ordered list of probes against one live shared
// clock and assembles their results into an envelope.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/cloud-bulldozer/uarch-profiler/pkg/clock"
	log "github.com/cloud-bulldozer/uarch-profiler/pkg/logging"
	"github.com/cloud-bulldozer/uarch-profiler/pkg/probes"
	result "github.com/cloud-bulldozer/uarch-profiler/pkg/results"
	"github.com/prometheus/common/version"
	"k8s.io/apimachinery/pkg/util/sets"
)

var (
	// ErrSetup wraps failures to bring up the clock. No probe has run.
	ErrSetup = errors.New("session setup failed")
	// ErrProbe wraps a probe failure. The session is abandoned.
	ErrProbe = errors.New("probe failed")
)

// Source is a clock with a lifecycle.
type Source interface {
	Start(ctx context.Context) error
	Reader() (clock.Reader, error)
	Stop()
}

type driverSource struct {
	*clock.Driver
}

func (d driverSource) Reader() (clock.Reader, error) {
	c, err := d.Clock()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DriverSource wraps a clock driver as a Source.
func DriverSource(d *clock.Driver) Source {
	return driverSource{d}
}

// Runner owns the clock for the duration of a session.
type Runner struct {
	Model          string
	HostIdentifier string
	// Origin is carried into the envelope metadata; probes never see it.
	Origin string
	UUID   string

	newSource func() Source
	run       func(probes.Probe, clock.Reader) (probes.Result, error)
}

// Option configures a Runner.
type Option func(*Runner)

// WithClockOptions builds the session clock from a driver with these options.
func WithClockOptions(opts ...clock.Option) Option {
	return func(r *Runner) {
		r.newSource = func() Source { return DriverSource(clock.NewDriver(opts...)) }
	}
}

// WithSource replaces the clock source entirely.
func WithSource(f func() Source) Option {
	return func(r *Runner) {
		r.newSource = f
	}
}

// NewRunner returns a Runner labelling results with model and host. An empty
// host falls back to DefaultHostIdentifier.
func NewRunner(model, host string, opts ...Option) *Runner {
	if host == "" {
		host = DefaultHostIdentifier()
	}
	r := &Runner{
		Model:          model,
		HostIdentifier: host,
		newSource:      func() Source { return DriverSource(clock.NewDriver()) },
		run:            probes.Probe.Run,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// DefaultHostIdentifier describes the running binary and platform, the way
// a user agent would.
func DefaultHostIdentifier() string {
	return fmt.Sprintf("uarch-profiler/%s (%s; %s; %d cpu) %s",
		version.Version, runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version())
}

// RunSession starts the clock, runs the probes strictly in order and returns
// the envelope. Any failure aborts the whole session and no envelope is
// returned.
func (r *Runner) RunSession(ctx context.Context, selected []probes.Probe) (result.Envelope, error) {
	if len(selected) == 0 {
		return result.Envelope{}, fmt.Errorf("no probes selected")
	}
	names := sets.New[string]()
	for _, p := range selected {
		if names.Has(p.Name()) {
			return result.Envelope{}, fmt.Errorf("probe %s selected more than once", p.Name())
		}
		names.Insert(p.Name())
	}

	startTime := time.Now().UTC()
	if r.Origin != "" {
		log.Debugf("Session origin: %s", r.Origin)
	}
	src := r.newSource()
	if err := src.Start(ctx); err != nil {
		return result.Envelope{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}
	defer src.Stop()
	clk, err := src.Reader()
	if err != nil {
		return result.Envelope{}, fmt.Errorf("%w: %w", ErrSetup, err)
	}

	rs := make([]probes.Result, 0, len(selected))
	for i, p := range selected {
		log.Infof("🚀 [%d/%d] %s", i+1, len(selected), p.Name())
		res, err := r.runProbe(p, clk)
		if err != nil {
			return result.Envelope{}, fmt.Errorf("%w: %s: %w", ErrProbe, p.Name(), err)
		}
		rs = append(rs, res)
	}
	src.Stop()

	env, err := result.Aggregate(r.Model, r.HostIdentifier, rs)
	if err != nil {
		return result.Envelope{}, err
	}
	env.Metadata = result.Metadata{
		UUID:          r.UUID,
		Origin:        r.Origin,
		ToolVersion:   version.Version,
		ToolGitCommit: version.Revision,
		StartTime:     startTime,
		EndTime:       time.Now().UTC(),
	}
	return env, nil
}

// runProbe turns a panicking probe into an error so the clock is still stopped.
func (r *Runner) runProbe(p probes.Probe, clk clock.Reader) (res probes.Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("panic: %v", v)
		}
	}()
	return r.run(p, clk)
}
