package adc

import "sync/atomic"

// Callback runs in producer context: the driver goroutine that fills the pool.
// It must not block, allocate or call back into the unit's Read.
// The return value is passed to the driver as a yield hint.
type Callback func(u *Continuous, userData any) bool

// Callbacks is the pair registered with RegisterCallbacks. Either may be nil.
type Callbacks struct {
	OnChunkReady   Callback
	OnPoolOverflow Callback
}

type registration struct {
	cbs      Callbacks
	userData any
}

// Notifier turns producer-side callbacks into signals a consumer goroutine can
// wait on. Its callbacks only do a non-blocking send and atomic increments.
type Notifier struct {
	ready     chan struct{}
	chunks    atomic.Uint64
	overflows atomic.Uint64
	pending   atomic.Bool
}

// NewNotifier returns a Notifier with a single-slot ready signal.
func NewNotifier() *Notifier {
	return &Notifier{ready: make(chan struct{}, 1)}
}

// Callbacks returns the pair to pass to RegisterCallbacks.
func (n *Notifier) Callbacks() Callbacks {
	return Callbacks{
		OnChunkReady: func(*Continuous, any) bool {
			n.chunks.Add(1)
			select {
			case n.ready <- struct{}{}:
			default:
			}
			return false
		},
		OnPoolOverflow: func(*Continuous, any) bool {
			n.overflows.Add(1)
			n.pending.Store(true)
			return false
		},
	}
}

// Ready is signalled after at least one chunk completed since the last receive.
func (n *Notifier) Ready() <-chan struct{} { return n.ready }

// TakeOverflow reports and clears a pending overflow notification.
func (n *Notifier) TakeOverflow() bool { return n.pending.Swap(false) }

// Chunks returns the number of chunk-ready notifications seen.
func (n *Notifier) Chunks() uint64 { return n.chunks.Load() }

// Overflows returns the number of overflow notifications seen.
func (n *Notifier) Overflows() uint64 { return n.overflows.Load() }
