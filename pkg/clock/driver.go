package clock

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/cloud-bulldozer/uarch-profiler/pkg/logging"
	utilclock "k8s.io/utils/clock"
)

// DefaultHandshakeTimeout bounds how long Start waits for the driver.
const DefaultHandshakeTimeout = 5 * time.Second

// stopCheckInterval is how many increments the driver performs between
// looks at the stop flag.
const stopCheckInterval = 4096

// State of a Driver.
type State int32

const (
	Created State = iota
	Started
	Ready
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Started:
		return "started"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Driver owns one Shared cell and the goroutine that increments it.
type Driver struct {
	clk   *Shared
	state atomic.Int32
	ready chan struct{}
	done  chan struct{}
	stop  atomic.Bool
	once  sync.Once

	timeout   time.Duration
	wall      utilclock.Clock
	supported func() bool
	spawn     func(*Driver)
}

// Option configures a Driver.
type Option func(*Driver)

// WithHandshakeTimeout sets how long Start waits for the ready message.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.timeout = d
		}
	}
}

// WithWallClock replaces the wall clock used for the handshake timeout.
func WithWallClock(c utilclock.Clock) Option {
	return func(dr *Driver) {
		dr.wall = c
	}
}

// WithSupportCheck replaces the capability check run by Start.
func WithSupportCheck(f func() bool) Option {
	return func(dr *Driver) {
		dr.supported = f
	}
}

// NewDriver returns a driver in the Created state.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		timeout:   DefaultHandshakeTimeout,
		wall:      utilclock.RealClock{},
		supported: Supported,
		spawn:     func(d *Driver) { go d.loop() },
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Start allocates the shared cell, spawns the driver and blocks until the
// driver sends its ready message. A driver that does not start within the
// handshake timeout is stopped and ErrHandshakeTimeout is returned.
func (d *Driver) Start(ctx context.Context) error {
	if !d.state.CompareAndSwap(int32(Created), int32(Started)) {
		if d.State() == Stopped {
			return ErrStopped
		}
		return fmt.Errorf("clock: start called in state %s", d.State())
	}
	if !d.supported() {
		d.state.Store(int32(Stopped))
		return ErrUnsupported
	}
	d.clk = &Shared{}
	log.Debugf("⏱️  Starting clock driver (handshake timeout %s)", d.timeout)
	d.spawn(d)

	select {
	case <-d.ready:
		d.state.Store(int32(Ready))
		log.Debug("⏱️  Clock driver is ready")
		return nil
	case <-d.wall.After(d.timeout):
		d.Stop()
		return fmt.Errorf("%w within %s", ErrHandshakeTimeout, d.timeout)
	case <-ctx.Done():
		d.Stop()
		return ctx.Err()
	}
}

// Clock hands out the live counter. It is only valid once the handshake
// completed, and moves the driver into the Running state.
func (d *Driver) Clock() (*Shared, error) {
	switch d.State() {
	case Ready:
		d.state.CompareAndSwap(int32(Ready), int32(Running))
		return d.clk, nil
	case Running:
		return d.clk, nil
	case Stopped:
		return nil, ErrStopped
	}
	return nil, ErrNotReady
}

// Stop terminates the driver goroutine and releases the cell. It is safe to
// call more than once.
func (d *Driver) Stop() {
	d.once.Do(func() {
		prev := State(d.state.Swap(int32(Stopped)))
		if prev == Created || d.clk == nil {
			return
		}
		d.stop.Store(true)
		<-d.done
		log.Debugf("⏱️  Clock driver stopped at %d ticks", d.clk.Read())
		d.clk = nil
	})
}

func (d *Driver) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(d.done)

	clk := d.clk
	clk.Increment()
	close(d.ready)
	for !d.stop.Load() {
		for i := 0; i < stopCheckInterval; i++ {
			clk.Increment()
		}
	}
}
