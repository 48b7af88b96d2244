package adc

import (
	"fmt"
	"strings"
)

// UnitID identifies a SAR ADC unit.
type UnitID uint8

const (
	Unit1 UnitID = 1
	Unit2 UnitID = 2
)

func (u UnitID) String() string { return fmt.Sprintf("adc%d", uint8(u)) }

func (u UnitID) mask() unitMask { return 1 << u }

// Atten is the input attenuation applied before conversion.
type Atten uint8

const (
	Atten0dB Atten = iota
	Atten2_5dB
	Atten6dB
	Atten12dB
)

var attenNames = [...]string{"0db", "2.5db", "6db", "12db"}

func (a Atten) String() string {
	if int(a) < len(attenNames) {
		return attenNames[a]
	}
	return fmt.Sprintf("atten(%d)", uint8(a))
}

// ParseAtten accepts "0db", "2.5db", "6db", "12db" (case-insensitive) or "0".."3".
func ParseAtten(s string) (Atten, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	for i, name := range attenNames {
		if n == name || n == fmt.Sprint(i) {
			return Atten(i), nil
		}
	}
	return 0, newError(InvalidArgument, "parse atten", fmt.Sprintf("unknown attenuation %q", s))
}

// Mode selects which units the digital controller converts with.
type Mode uint8

const (
	SingleUnit1 Mode = iota + 1
	SingleUnit2
	BothUnitsSimultaneous
	BothUnitsAlternating
)

var modeNames = map[Mode]string{
	SingleUnit1:           "single_unit_1",
	SingleUnit2:           "single_unit_2",
	BothUnitsSimultaneous: "both_units_simultaneous",
	BothUnitsAlternating:  "both_units_alternating",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode parses a mode name such as "single_unit_1".
func ParseMode(s string) (Mode, error) {
	n := strings.ToLower(strings.TrimSpace(s))
	for m, name := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, newError(InvalidArgument, "parse mode", fmt.Sprintf("unknown conversion mode %q", s))
}

// units returns the set of units the mode converts with.
func (m Mode) units() unitMask {
	switch m {
	case SingleUnit1:
		return Unit1.mask()
	case SingleUnit2:
		return Unit2.mask()
	case BothUnitsSimultaneous, BothUnitsAlternating:
		return Unit1.mask() | Unit2.mask()
	}
	return 0
}

// Pattern is one entry of the round-robin sampling table.
type Pattern struct {
	Unit     UnitID
	Channel  uint8
	Atten    Atten
	Bitwidth uint8
}

// Config is the continuous sampling configuration passed to Configure.
type Config struct {
	Patterns []Pattern
	RateHz   uint32
	Mode     Mode
	Format   Format
}

// Validate checks c against the chip limits.
func (c *Config) Validate(caps Caps) error {
	const op = "configure"

	if len(c.Patterns) == 0 || len(c.Patterns) > caps.PattLenMax {
		return newError(InvalidArgument, op,
			fmt.Sprintf("pattern length %d outside [1, %d]", len(c.Patterns), caps.PattLenMax))
	}
	if c.RateHz < caps.SampleFreqLow || c.RateHz > caps.SampleFreqHigh {
		return newError(InvalidArgument, op,
			fmt.Sprintf("sampling rate %d Hz outside [%d, %d]", c.RateHz, caps.SampleFreqLow, caps.SampleFreqHigh))
	}
	if c.Format.Size() == 0 {
		return newError(InvalidArgument, op, fmt.Sprintf("unknown output format %v", c.Format))
	}
	if c.Mode.units() == 0 {
		return newError(InvalidArgument, op, fmt.Sprintf("unknown conversion mode %v", c.Mode))
	}
	if !caps.SupportsMode(c.Mode) {
		return newError(UnsupportedMode, op, fmt.Sprintf("%v not supported on %s", c.Mode, caps.Name))
	}
	if !caps.SupportsFormat(c.Format) {
		return newError(UnsupportedMode, op, fmt.Sprintf("%v not supported on %s", c.Format, caps.Name))
	}

	allowed := c.Mode.units()
	for i, p := range c.Patterns {
		if !caps.DMAUnit(p.Unit) {
			return newError(InvalidArgument, op, fmt.Sprintf("pattern %d: %v cannot run continuously", i, p.Unit))
		}
		if p.Unit.mask()&allowed == 0 {
			return newError(InvalidArgument, op, fmt.Sprintf("pattern %d: %v not converted in %v", i, p.Unit, c.Mode))
		}
		if int(p.Channel) >= caps.ChannelNum[p.Unit] {
			return newError(InvalidArgument, op, fmt.Sprintf("pattern %d: channel %d out of range", i, p.Channel))
		}
		if p.Atten > Atten12dB {
			return newError(InvalidArgument, op, fmt.Sprintf("pattern %d: %v", i, p.Atten))
		}
		if p.Bitwidth < caps.DigiMinBitwidth || p.Bitwidth > caps.DigiMaxBitwidth {
			return newError(InvalidArgument, op,
				fmt.Sprintf("pattern %d: bitwidth %d outside [%d, %d]", i, p.Bitwidth, caps.DigiMinBitwidth, caps.DigiMaxBitwidth))
		}
		if c.Format == FormatTypeA && p.Unit != Unit1 {
			return newError(UnsupportedMode, op, fmt.Sprintf("pattern %d: %v cannot encode %v", i, c.Format, p.Unit))
		}
	}
	return nil
}

// units returns the units the patterns touch.
func (c *Config) units() unitMask {
	var m unitMask
	for _, p := range c.Patterns {
		m |= p.Unit.mask()
	}
	return m
}

// clone returns a deep copy so the caller's slice can't change a running unit.
func (c Config) clone() Config {
	c.Patterns = append([]Pattern(nil), c.Patterns...)
	return c
}
