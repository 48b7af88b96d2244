package adc

import "sync"

// pool is the DMA buffer pool: a byte ring holding whole conversion results.
// The producer never blocks on it; when full, the oldest results are evicted.
type pool struct {
	mu   sync.Mutex
	buf  []byte
	head int // read offset
	used int

	resSize   int // bytes per result; set by Configure
	frameSize int // bytes per conversion frame (chunk)
	chunk     int // bytes produced since the last chunk boundary

	overflowed bool // latched until the consumer drains or flushes
	produced   uint64
	dropped    uint64
	overflows  uint64

	// ready has one slot; a pending token means "data may be available".
	ready chan struct{}
}

func newPool(size, frameSize int) *pool {
	return &pool{
		buf:       make([]byte, size),
		frameSize: frameSize,
		ready:     make(chan struct{}, 1),
	}
}

// pushResult is what the producer observed while storing one result.
type pushResult struct {
	chunkReady bool
	overflow   bool // first overflow of an episode
}

// push stores one result. It never blocks beyond the short critical section.
func (p *pool) push(res []byte) pushResult {
	var r pushResult

	p.mu.Lock()
	n := len(res)
	if n != p.resSize || n > len(p.buf) {
		p.dropped++
		p.mu.Unlock()
		return r
	}
	if p.used+n > len(p.buf) {
		if !p.overflowed {
			p.overflowed = true
			p.overflows++
			r.overflow = true
		}
		// Evict oldest whole results until the new one fits.
		for p.used+n > len(p.buf) {
			p.head = (p.head + p.resSize) % len(p.buf)
			p.used -= p.resSize
			p.dropped++
		}
	}
	tail := (p.head + p.used) % len(p.buf)
	c := copy(p.buf[tail:], res)
	copy(p.buf, res[c:])
	p.used += n
	p.produced++

	p.chunk += n
	if p.chunk >= p.frameSize {
		p.chunk -= p.frameSize
		r.chunkReady = true
	}
	p.mu.Unlock()

	select {
	case p.ready <- struct{}{}:
	default:
	}
	return r
}

// take copies as many whole results as fit in dst and returns the byte count.
func (p *pool) take(dst []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := min(len(dst)/p.resSize*p.resSize, p.used)
	if n == 0 {
		return 0
	}
	c := copy(dst[:n], p.buf[p.head:min(p.head+n, len(p.buf))])
	copy(dst[c:n], p.buf)
	p.head = (p.head + n) % len(p.buf)
	p.used -= n
	p.overflowed = false
	if p.used > 0 {
		select {
		case p.ready <- struct{}{}:
		default:
		}
	}
	return n
}

// reset discards every buffered result.
func (p *pool) reset() {
	p.mu.Lock()
	p.dropped += uint64(p.used / max(p.resSize, 1))
	p.head, p.used, p.chunk = 0, 0, 0
	p.overflowed = false
	p.mu.Unlock()

	select {
	case <-p.ready:
	default:
	}
}

func (p *pool) setResultSize(n int) {
	p.mu.Lock()
	p.resSize = n
	p.head, p.used, p.chunk = 0, 0, 0
	p.overflowed = false
	p.mu.Unlock()
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Buffered  int    // bytes waiting to be read
	Produced  uint64 // results stored
	Dropped   uint64 // results evicted, flushed or rejected
	Overflows uint64 // overflow episodes
}

func (p *pool) stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Buffered: p.used, Produced: p.produced, Dropped: p.dropped, Overflows: p.overflows}
}
