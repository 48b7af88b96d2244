package driver

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/itohio/goadc/pkg/adc"
	"github.com/itohio/goadc/pkg/config"
)

// Mock simulates ADC hardware for testing and development. Every channel
// carries a sine wave with a per-channel phase and a little deterministic noise.
type Mock struct {
	cfg    *config.MockConfig
	caps   adc.Caps
	periph adc.Peripheral

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	start   time.Time
}

// NewMock creates a simulated chip with the given capabilities.
func NewMock(caps adc.Caps, cfg *config.MockConfig) *Mock {
	c := config.Default().Mock
	if cfg != nil {
		c = *cfg
	}
	if c.Tick <= 0 {
		c.Tick = time.Millisecond
	}
	return &Mock{cfg: &c, caps: caps, start: time.Now()}
}

func (m *Mock) Caps() adc.Caps              { return m.caps }
func (m *Mock) Peripheral() *adc.Peripheral { return &m.periph }

// Start begins emitting results at cfg.RateHz in pattern order.
func (m *Mock) Start(cfg adc.Config, emit adc.Emit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("mock: already started")
	}
	if len(cfg.Patterns) == 0 || cfg.RateHz == 0 || cfg.Format.Size() == 0 {
		return fmt.Errorf("mock: incomplete configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.generateSamples(ctx, cfg, emit, m.done)

	return nil
}

// Stop halts the generator and waits for it to exit.
func (m *Mock) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.cancel()
	<-m.done
	m.running = false

	return nil
}

// ReadOneShot returns a single synchronous reading. It fails with HardwareBusy
// while a continuous unit owns the ADC unit.
func (m *Mock) ReadOneShot(unit adc.UnitID, channel uint8, atten adc.Atten) (int, error) {
	if int(channel) >= m.caps.ChannelNum[unit] {
		return 0, &adc.Error{Code: adc.InvalidArgument, Op: "oneshot", Msg: fmt.Sprintf("%v channel %d", unit, channel)}
	}
	if err := m.periph.ClaimUnit(unit); err != nil {
		return 0, err
	}
	defer m.periph.ReleaseUnit(unit)

	t := time.Since(m.start).Seconds()
	return m.level(t, unit, channel, m.caps.DigiMaxBitwidth), nil
}

// generateSamples paces output against the wall clock, emitting however many
// results are due on every tick.
func (m *Mock) generateSamples(ctx context.Context, cfg adc.Config, emit adc.Emit, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()

	buf := make([]byte, cfg.Format.Size())
	began := time.Now()
	var produced uint64

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due := uint64(now.Sub(began).Seconds() * float64(cfg.RateHz))
			for ; produced < due; produced++ {
				if ctx.Err() != nil {
					return
				}
				p := cfg.Patterns[produced%uint64(len(cfg.Patterns))]
				t := float64(produced) / float64(cfg.RateHz)
				fr := adc.Frame{Unit: p.Unit, Channel: p.Channel, Raw: uint16(m.level(t, p.Unit, p.Channel, p.Bitwidth))}
				if _, err := adc.EncodeFrame(buf, cfg.Format, fr); err != nil {
					continue
				}
				if emit(buf) {
					runtime.Gosched()
				}
			}
		}
	}
}

// level computes the simulated raw code for a channel at time t seconds.
func (m *Mock) level(t float64, unit adc.UnitID, channel uint8, bitwidth uint8) int {
	phase := float64(channel)*math.Pi/4 + float64(unit-1)*math.Pi/8
	v := m.cfg.Offset + m.cfg.Amplitude*math.Sin(2*math.Pi*m.cfg.Frequency*t+phase)

	// Deterministic noise
	v += (math.Sin(t*7919) + math.Cos(t*104729)) * m.cfg.NoiseLevel * 0.5

	maxRaw := float64(int(1)<<bitwidth - 1)
	raw := v * maxRaw
	if raw < 0 {
		raw = 0
	} else if raw > maxRaw {
		raw = maxRaw
	}
	return int(raw)
}
