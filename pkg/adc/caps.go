package adc

import (
	"fmt"
	"strings"
)

// Scheme is a calibration scheme a chip revision may provide.
// The calibration package builds on these flags.
type Scheme uint8

const (
	LineFitting Scheme = 1 << iota
	CurveFitting
)

func (s Scheme) String() string {
	switch s {
	case LineFitting:
		return "line_fitting"
	case CurveFitting:
		return "curve_fitting"
	}
	return fmt.Sprintf("scheme(%d)", uint8(s))
}

// Caps describes the fixed limits of one chip revision.
type Caps struct {
	Name string

	PeriphNum  int            // Number of SAR ADC units
	ChannelNum map[UnitID]int // Channels per unit
	DMAUnits   []UnitID       // Units reachable by the digital controller

	PattLenMax      int
	DigiMinBitwidth uint8
	DigiMaxBitwidth uint8
	SampleFreqLow   uint32 // Hz
	SampleFreqHigh  uint32 // Hz

	Modes   []Mode
	Formats []Format

	// MaxPoolSize is the largest DMA pool, in bytes, the driver can allocate.
	MaxPoolSize int

	// Schemes is a bit set of Scheme values.
	Schemes Scheme
}

// Chip presets. Values follow the SoC capability tables of each revision.
var (
	ESP32 = Caps{
		Name:            "esp32",
		PeriphNum:       2,
		ChannelNum:      map[UnitID]int{Unit1: 8, Unit2: 10},
		DMAUnits:        []UnitID{Unit1},
		PattLenMax:      16,
		DigiMinBitwidth: 9,
		DigiMaxBitwidth: 12,
		SampleFreqLow:   20000,
		SampleFreqHigh:  2000000,
		Modes:           []Mode{SingleUnit1},
		Formats:         []Format{FormatTypeA},
		MaxPoolSize:     32 * 1024,
		Schemes:         LineFitting,
	}

	ESP32S2 = Caps{
		Name:            "esp32s2",
		PeriphNum:       2,
		ChannelNum:      map[UnitID]int{Unit1: 10, Unit2: 10},
		DMAUnits:        []UnitID{Unit1, Unit2},
		PattLenMax:      32,
		DigiMinBitwidth: 12,
		DigiMaxBitwidth: 12,
		SampleFreqLow:   611,
		SampleFreqHigh:  83333,
		Modes:           []Mode{SingleUnit1, SingleUnit2, BothUnitsSimultaneous, BothUnitsAlternating},
		Formats:         []Format{FormatTypeA, FormatTypeB},
		MaxPoolSize:     32 * 1024,
		Schemes:         LineFitting,
	}

	ESP32S3 = Caps{
		Name:            "esp32s3",
		PeriphNum:       2,
		ChannelNum:      map[UnitID]int{Unit1: 10, Unit2: 10},
		DMAUnits:        []UnitID{Unit1, Unit2},
		PattLenMax:      24,
		DigiMinBitwidth: 12,
		DigiMaxBitwidth: 12,
		SampleFreqLow:   611,
		SampleFreqHigh:  83333,
		Modes:           []Mode{SingleUnit1, SingleUnit2, BothUnitsSimultaneous, BothUnitsAlternating},
		Formats:         []Format{FormatTypeB},
		MaxPoolSize:     64 * 1024,
		Schemes:         CurveFitting,
	}

	ESP32C3 = Caps{
		Name:            "esp32c3",
		PeriphNum:       2,
		ChannelNum:      map[UnitID]int{Unit1: 5, Unit2: 1},
		DMAUnits:        []UnitID{Unit1, Unit2},
		PattLenMax:      24,
		DigiMinBitwidth: 12,
		DigiMaxBitwidth: 12,
		SampleFreqLow:   611,
		SampleFreqHigh:  83333,
		Modes:           []Mode{SingleUnit1, SingleUnit2, BothUnitsAlternating},
		Formats:         []Format{FormatTypeB},
		MaxPoolSize:     32 * 1024,
		Schemes:         CurveFitting,
	}
)

var presets = []*Caps{&ESP32, &ESP32S2, &ESP32S3, &ESP32C3}

// LookupCaps returns the preset for a chip name, e.g. "esp32s3".
func LookupCaps(name string) (Caps, error) {
	n := strings.ToLower(strings.ReplaceAll(name, "-", ""))
	for _, c := range presets {
		if c.Name == n {
			return *c, nil
		}
	}
	return Caps{}, newError(InvalidArgument, "lookup caps", fmt.Sprintf("unknown chip %q", name))
}

// SupportsMode reports whether the digital controller implements m.
func (c Caps) SupportsMode(m Mode) bool {
	for _, x := range c.Modes {
		if x == m {
			return true
		}
	}
	return false
}

// SupportsFormat reports whether results can be emitted in f.
func (c Caps) SupportsFormat(f Format) bool {
	for _, x := range c.Formats {
		if x == f {
			return true
		}
	}
	return false
}

// DMAUnit reports whether u can be driven by continuous conversion.
func (c Caps) DMAUnit(u UnitID) bool {
	for _, x := range c.DMAUnits {
		if x == u {
			return true
		}
	}
	return false
}
