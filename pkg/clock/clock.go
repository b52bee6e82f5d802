// Package clock provides the surrogate high-resolution clock used by the
// probes: a shared counter cell incremented in a tight loop by a dedicated
// driver goroutine and read atomically by the measuring goroutine.
//
// The counter is an unsigned 64-bit value and is never reset during a
// session. It does not wrap in practice (a driver doing 10^9 increments per
// second needs centuries to overflow), so deltas are plain unsigned
// subtraction and no wraparound handling exists.
package clock

import (
	"errors"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

var (
	// ErrUnsupported is returned when the process cannot run the driver
	// concurrently with the probes.
	ErrUnsupported = errors.New("clock: shared-memory threading is not available")

	// ErrHandshakeTimeout is returned when the driver did not signal ready in time.
	ErrHandshakeTimeout = errors.New("clock: driver did not signal ready")

	// ErrNotReady is returned when the clock is requested before the handshake completed.
	ErrNotReady = errors.New("clock: driver is not ready")

	// ErrStopped is returned when a stopped driver is used again.
	ErrStopped = errors.New("clock: driver already stopped")
)

// Reader is the read side of a clock. Probes only ever need this.
type Reader interface {
	Read() uint64
}

// Shared is the counter cell shared between the driver and the readers.
// The padding keeps the hot cell on its own cache line.
type Shared struct {
	_     cpu.CacheLinePad
	ticks atomic.Uint64
	_     cpu.CacheLinePad
}

// Increment adds one tick and returns the new value. Only the driver calls it.
func (s *Shared) Increment() uint64 {
	return s.ticks.Add(1)
}

// Read returns the current tick count. It is a fetch-add of zero so every
// read goes through the same atomic read-modify-write path as the writer.
func (s *Shared) Read() uint64 {
	return s.ticks.Add(0)
}

// Supported reports whether the driver can run alongside the probes. The
// driver never yields, so it needs a processor of its own, and js/wasm
// builds have no shared-memory threads at all.
func Supported() bool {
	if runtime.GOARCH == "wasm" {
		return false
	}
	return runtime.GOMAXPROCS(0) >= 2
}

// Synthetic is a deterministic clock for tests. Every Read advances the
// value by Step, plus whatever was injected through Advance.
type Synthetic struct {
	Step   uint64
	calls  atomic.Uint64
	offset atomic.Uint64
}

// NewSynthetic returns a Synthetic clock whose n-th read returns n*step.
func NewSynthetic(step uint64) *Synthetic {
	return &Synthetic{Step: step}
}

// Read returns Step times the number of reads so far, plus the advanced offset.
func (s *Synthetic) Read() uint64 {
	n := s.calls.Add(1)
	return n*s.Step + s.offset.Load()
}

// Advance moves the clock forward by n ticks without counting a read.
func (s *Synthetic) Advance(n uint64) {
	s.offset.Add(n)
}

// Calls returns how many times Read was called.
func (s *Synthetic) Calls() uint64 {
	return s.calls.Load()
}
