// Package adc implements buffered, continuously sampling ADC units on top of a
// hardware Source, with drop-oldest overflow handling.
package adc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/itohio/goadc/pkg/logging"
)

// State is the lifecycle state of a Continuous unit.
type State int32

const (
	Created State = iota
	Configured
	Running
	Stopped
	Destroyed
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Configured:
		return "configured"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Destroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// InitConfig is fixed for the lifetime of a unit.
type InitConfig struct {
	PoolSize  int // DMA pool size in bytes
	FrameSize int // Conversion frame size in bytes; OnChunkReady fires per frame
}

// Continuous is a buffered, continuously sampling ADC unit.
//
// A Continuous has a single consumer: Read and FlushPool must be called from
// one goroutine at a time, and Configure, Start and Stop must not overlap an
// in-flight Read. None of these are serialized internally. Stopping a unit
// while another goroutine is blocked in Read is the caller's responsibility
// to avoid; Read only returns when data arrives or its timeout expires.
type Continuous struct {
	src  Source
	caps Caps
	init InitConfig
	pool *pool

	state   atomic.Int32
	cfg     Config
	claimed unitMask

	staged registration
	active atomic.Pointer[registration]
}

// NewContinuous allocates the DMA pool on src and returns a unit in Created.
func NewContinuous(src Source, init InitConfig) (*Continuous, error) {
	const op = "new continuous"

	if src == nil {
		return nil, newError(InvalidArgument, op, "nil source")
	}
	if init.PoolSize <= 0 || init.FrameSize <= 0 {
		return nil, newError(InvalidArgument, op,
			fmt.Sprintf("pool size %d and frame size %d must be positive", init.PoolSize, init.FrameSize))
	}
	if init.PoolSize%init.FrameSize != 0 {
		return nil, newError(InvalidArgument, op,
			fmt.Sprintf("pool size %d is not a multiple of frame size %d", init.PoolSize, init.FrameSize))
	}
	caps := src.Caps()
	if init.PoolSize > caps.MaxPoolSize {
		return nil, newError(ResourceExhausted, op,
			fmt.Sprintf("pool of %d bytes exceeds %d available", init.PoolSize, caps.MaxPoolSize))
	}

	u := &Continuous{
		src:  src,
		caps: caps,
		init: init,
		pool: newPool(init.PoolSize, init.FrameSize),
	}
	u.state.Store(int32(Created))
	return u, nil
}

// State returns the current lifecycle state.
func (u *Continuous) State() State { return State(u.state.Load()) }

// Caps returns the capabilities of the underlying hardware.
func (u *Continuous) Caps() Caps { return u.caps }

// Config returns a copy of the active configuration.
func (u *Continuous) Config() Config { return u.cfg.clone() }

// Stats returns pool counters.
func (u *Continuous) Stats() Stats { return u.pool.stats() }

func (u *Continuous) setState(s State) { u.state.Store(int32(s)) }

func (u *Continuous) invalidState(op string) error {
	return newError(InvalidState, op, "unit is "+u.State().String())
}

// Configure validates cfg and moves the unit to Configured. It is valid from
// Created and Stopped; on error the state is unchanged.
func (u *Continuous) Configure(cfg Config) error {
	const op = "configure"

	if s := u.State(); s != Created && s != Stopped {
		return u.invalidState(op)
	}
	if err := cfg.Validate(u.caps); err != nil {
		return err
	}
	if u.init.FrameSize%cfg.Format.Size() != 0 {
		return newError(InvalidArgument, op,
			fmt.Sprintf("frame size %d is not a multiple of the %v result size %d", u.init.FrameSize, cfg.Format, cfg.Format.Size()))
	}

	u.cfg = cfg.clone()
	u.pool.setResultSize(cfg.Format.Size())
	u.setState(Configured)
	return nil
}

// RegisterCallbacks replaces the callback registration. It takes effect on the
// next Start and is only valid in Configured.
func (u *Continuous) RegisterCallbacks(cbs Callbacks, userData any) error {
	if u.State() != Configured {
		return u.invalidState("register callbacks")
	}
	u.staged = registration{cbs: cbs, userData: userData}
	return nil
}

// RegisterChunkCallback registers only a chunk-ready callback.
func (u *Continuous) RegisterChunkCallback(onChunkReady Callback, userData any) error {
	return u.RegisterCallbacks(Callbacks{OnChunkReady: onChunkReady}, userData)
}

// Start claims the hardware and begins acquisition.
func (u *Continuous) Start() error {
	const op = "start"

	if u.State() != Configured {
		return u.invalidState(op)
	}
	units := u.cfg.Mode.units()
	if err := u.src.Peripheral().claim(units); err != nil {
		return err
	}
	u.claimed = units

	reg := u.staged
	u.active.Store(&reg)
	u.setState(Running)

	if err := u.src.Start(u.cfg.clone(), u.emit); err != nil {
		u.setState(Configured)
		u.active.Store(nil)
		u.release()
		return hardwareError(op, err)
	}
	return nil
}

// Stop halts acquisition. Stopping a Stopped unit is a no-op.
func (u *Continuous) Stop() error {
	const op = "stop"

	switch u.State() {
	case Stopped:
		return nil
	case Running:
	default:
		return u.invalidState(op)
	}

	u.setState(Stopped)
	err := u.src.Stop()
	u.active.Store(nil)
	u.release()
	return hardwareError(op, err)
}

// Read copies whole buffered results into dst. It blocks until at least one
// result is available or timeout elapses, and returns 0 with a nil error when
// nothing arrived in time. The count is always a multiple of the result size.
func (u *Continuous) Read(dst []byte, timeout time.Duration) (int, error) {
	const op = "read"

	if u.State() != Running {
		return 0, u.invalidState(op)
	}
	size := u.cfg.Format.Size()
	if len(dst) < size {
		return 0, newError(InvalidArgument, op, fmt.Sprintf("buffer of %d bytes holds no %d byte result", len(dst), size))
	}

	if n := u.pool.take(dst); n > 0 || timeout <= 0 {
		return n, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-u.pool.ready:
			if n := u.pool.take(dst); n > 0 {
				return n, nil
			}
		case <-timer.C:
			return u.pool.take(dst), nil
		}
	}
}

// FlushPool discards every buffered result. Valid while Running or Stopped.
func (u *Continuous) FlushPool() error {
	if s := u.State(); s != Running && s != Stopped {
		return u.invalidState("flush pool")
	}
	u.pool.reset()
	return nil
}

// Close stops the unit if needed and releases the pool and callbacks. It never
// fails; teardown problems are logged. Closing twice is a no-op.
func (u *Continuous) Close() {
	switch u.State() {
	case Destroyed:
		return
	case Running:
		if err := u.Stop(); err != nil {
			logging.Warn("adc: stop during close failed", "error", err)
		}
	}
	u.setState(Destroyed)
	u.active.Store(nil)
	u.staged = registration{}
	u.release()
	u.pool.reset()
}

func (u *Continuous) release() {
	if u.claimed != 0 {
		u.src.Peripheral().release(u.claimed)
		u.claimed = 0
	}
}

// emit runs in producer context.
func (u *Continuous) emit(result []byte) bool {
	if u.State() != Running {
		return false
	}
	r := u.pool.push(result)

	reg := u.active.Load()
	if reg == nil {
		return false
	}
	var yield bool
	if r.overflow && reg.cbs.OnPoolOverflow != nil {
		yield = reg.cbs.OnPoolOverflow(u, reg.userData) || yield
	}
	if r.chunkReady && reg.cbs.OnChunkReady != nil {
		yield = reg.cbs.OnChunkReady(u, reg.userData) || yield
	}
	return yield
}
