// Package cali converts raw ADC readings to millivolts using the calibration
// scheme the chip revision provides.
package cali

import (
	"fmt"
	"sync/atomic"

	"github.com/itohio/goadc/pkg/adc"
)

// SchemeSet is the set of calibration schemes a chip supports.
type SchemeSet adc.Scheme

// Has reports whether s contains scheme.
func (s SchemeSet) Has(scheme adc.Scheme) bool { return adc.Scheme(s)&scheme != 0 }

func (s SchemeSet) String() string {
	out := ""
	for _, sc := range []adc.Scheme{adc.LineFitting, adc.CurveFitting} {
		if s.Has(sc) {
			if out != "" {
				out += "|"
			}
			out += sc.String()
		}
	}
	if out == "" {
		return "none"
	}
	return out
}

// CheckScheme reports the schemes supported by the chip. It has no side effects.
func CheckScheme(caps adc.Caps) SchemeSet { return SchemeSet(caps.Schemes) }

// Select picks the scheme to use on caps: preferred when supported, otherwise
// curve fitting, then line fitting. A zero preferred means no preference.
func Select(caps adc.Caps, preferred adc.Scheme) (adc.Scheme, error) {
	set := CheckScheme(caps)
	if preferred != 0 {
		if set.Has(preferred) {
			return preferred, nil
		}
		return 0, &adc.Error{Code: adc.UnsupportedScheme, Op: "select scheme",
			Msg: fmt.Sprintf("%v not available on %s", preferred, caps.Name)}
	}
	for _, sc := range []adc.Scheme{adc.CurveFitting, adc.LineFitting} {
		if set.Has(sc) {
			return sc, nil
		}
	}
	return 0, &adc.Error{Code: adc.UnsupportedScheme, Op: "select scheme", Msg: caps.Name + " has no calibration scheme"}
}

// Config is a scheme-specific calibration configuration.
// It is implemented by LineFittingConfig and CurveFittingConfig.
type Config interface {
	Scheme() adc.Scheme
	build(caps adc.Caps) (converter, uint8, error)
}

type converter interface {
	millivolts(raw int) int
}

// Handle owns one calibration scheme instance for a unit/attenuation pair.
// RawToVoltage is pure and safe for concurrent use.
type Handle struct {
	scheme   adc.Scheme
	bitwidth uint8
	maxRaw   int
	conv     converter
	closed   atomic.Bool
}

// Create builds a handle for cfg, failing with UnsupportedScheme when the chip
// does not provide cfg's scheme.
func Create(caps adc.Caps, cfg Config) (*Handle, error) {
	if cfg == nil {
		return nil, &adc.Error{Code: adc.InvalidArgument, Op: "create scheme", Msg: "nil config"}
	}
	if !CheckScheme(caps).Has(cfg.Scheme()) {
		return nil, &adc.Error{Code: adc.UnsupportedScheme, Op: "create scheme",
			Msg: fmt.Sprintf("%v not available on %s", cfg.Scheme(), caps.Name)}
	}
	conv, bw, err := cfg.build(caps)
	if err != nil {
		return nil, err
	}
	return &Handle{scheme: cfg.Scheme(), bitwidth: bw, maxRaw: 1<<bw - 1, conv: conv}, nil
}

// Scheme returns the scheme this handle was created with.
func (h *Handle) Scheme() adc.Scheme { return h.scheme }

// Bitwidth returns the raw resolution the handle accepts.
func (h *Handle) Bitwidth() uint8 { return h.bitwidth }

// RawToVoltage converts raw to millivolts. raw must lie in [0, 2^bitwidth-1];
// anything else is rejected with InvalidArgument rather than clamped.
func (h *Handle) RawToVoltage(raw int) (int, error) {
	if h.closed.Load() {
		return 0, &adc.Error{Code: adc.InvalidState, Op: "raw to voltage", Msg: "handle closed"}
	}
	if raw < 0 || raw > h.maxRaw {
		return 0, &adc.Error{Code: adc.InvalidArgument, Op: "raw to voltage",
			Msg: fmt.Sprintf("raw %d outside %d bit range", raw, h.bitwidth)}
	}
	return h.conv.millivolts(raw), nil
}

// Close releases the scheme. Further conversions fail with InvalidState.
func (h *Handle) Close() { h.closed.Store(true) }

func checkBitwidth(op string, caps adc.Caps, bw uint8) error {
	if bw < caps.DigiMinBitwidth || bw > caps.DigiMaxBitwidth {
		return &adc.Error{Code: adc.InvalidArgument, Op: op,
			Msg: fmt.Sprintf("bitwidth %d outside [%d, %d]", bw, caps.DigiMinBitwidth, caps.DigiMaxBitwidth)}
	}
	return nil
}
