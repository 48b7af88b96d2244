package cali

import (
	"fmt"

	"github.com/itohio/goadc/pkg/adc"
)

// SetConfig describes how to calibrate every entry of a pattern table.
type SetConfig struct {
	Scheme      adc.Scheme // 0 selects the best available
	DefaultVref uint32
	// ErrorCoeffs holds curve fitting coefficients per attenuation.
	ErrorCoeffs map[adc.Atten][]float32
}

type unitAtten struct {
	unit  adc.UnitID
	atten adc.Atten
}

type unitChannel struct {
	unit    adc.UnitID
	channel uint8
}

// Set holds exactly one Handle per unit/attenuation pair of a pattern table
// and routes decoded frames to the right one.
type Set struct {
	scheme    adc.Scheme
	handles   map[unitAtten]*Handle
	byChannel map[unitChannel]*Handle
}

// NewSet selects a scheme once and creates the handles patterns need.
func NewSet(caps adc.Caps, patterns []adc.Pattern, cfg SetConfig) (*Set, error) {
	const op = "new calibration set"

	scheme, err := Select(caps, cfg.Scheme)
	if err != nil {
		return nil, err
	}
	s := &Set{
		scheme:    scheme,
		handles:   make(map[unitAtten]*Handle),
		byChannel: make(map[unitChannel]*Handle),
	}
	for i, p := range patterns {
		ua := unitAtten{p.Unit, p.Atten}
		uc := unitChannel{p.Unit, p.Channel}

		h, ok := s.handles[ua]
		if ok && h.Bitwidth() != p.Bitwidth {
			s.Close()
			return nil, &adc.Error{Code: adc.InvalidArgument, Op: op,
				Msg: fmt.Sprintf("pattern %d: %v/%v used with two bitwidths", i, p.Unit, p.Atten)}
		}
		if !ok {
			h, err = Create(caps, s.config(p, cfg))
			if err != nil {
				s.Close()
				return nil, err
			}
			s.handles[ua] = h
		}

		if prev, ok := s.byChannel[uc]; ok && prev != h {
			s.Close()
			return nil, &adc.Error{Code: adc.InvalidArgument, Op: op,
				Msg: fmt.Sprintf("pattern %d: %v channel %d sampled with two attenuations", i, p.Unit, p.Channel)}
		}
		s.byChannel[uc] = h
	}
	return s, nil
}

func (s *Set) config(p adc.Pattern, cfg SetConfig) Config {
	if s.scheme == adc.CurveFitting {
		return CurveFittingConfig{
			Unit:        p.Unit,
			Channel:     p.Channel,
			Atten:       p.Atten,
			Bitwidth:    p.Bitwidth,
			DefaultVref: cfg.DefaultVref,
			ErrorCoeffs: cfg.ErrorCoeffs[p.Atten],
		}
	}
	return LineFittingConfig{Unit: p.Unit, Atten: p.Atten, Bitwidth: p.Bitwidth, DefaultVref: cfg.DefaultVref}
}

// Scheme returns the scheme selected for every handle in the set.
func (s *Set) Scheme() adc.Scheme { return s.scheme }

// Len returns the number of distinct handles.
func (s *Set) Len() int { return len(s.handles) }

// Handle returns the handle calibrating a unit's channel.
func (s *Set) Handle(unit adc.UnitID, channel uint8) (*Handle, bool) {
	h, ok := s.byChannel[unitChannel{unit, channel}]
	return h, ok
}

// Convert returns the frame's reading in millivolts.
func (s *Set) Convert(fr adc.Frame) (int, error) {
	h, ok := s.Handle(fr.Unit, fr.Channel)
	if !ok {
		return 0, &adc.Error{Code: adc.InvalidArgument, Op: "convert",
			Msg: fmt.Sprintf("%v channel %d is not in the pattern table", fr.Unit, fr.Channel)}
	}
	return h.RawToVoltage(int(fr.Raw))
}

// Close releases every handle.
func (s *Set) Close() {
	for _, h := range s.handles {
		h.Close()
	}
}
