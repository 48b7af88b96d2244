package adc

import (
	"fmt"
	"sync"
)

type unitMask uint8

// Peripheral tracks which ADC units are claimed on one piece of hardware.
// Drivers own one and expose it through Source.Peripheral; the zero value has
// nothing claimed.
type Peripheral struct {
	mu      sync.Mutex
	claimed unitMask
}

// claim takes ownership of the units in m, or fails with HardwareBusy when any
// of them is already owned.
func (p *Peripheral) claim(m unitMask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.claimed&m != 0 {
		return newError(HardwareBusy, "claim", fmt.Sprintf("units %s already in use", m))
	}
	p.claimed |= m
	return nil
}

// release gives the units in m back. Releasing unclaimed units is a no-op.
func (p *Peripheral) release(m unitMask) {
	p.mu.Lock()
	p.claimed &^= m
	p.mu.Unlock()
}

// ClaimUnit claims a single unit, as one-shot readers do.
func (p *Peripheral) ClaimUnit(u UnitID) error { return p.claim(u.mask()) }

// ReleaseUnit releases a single unit.
func (p *Peripheral) ReleaseUnit(u UnitID) { p.release(u.mask()) }

func (m unitMask) String() string {
	s := ""
	for _, u := range []UnitID{Unit1, Unit2} {
		if m&u.mask() != 0 {
			if s != "" {
				s += ","
			}
			s += u.String()
		}
	}
	return "[" + s + "]"
}
