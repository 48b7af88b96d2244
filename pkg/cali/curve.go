package cali

import (
	"fmt"

	"github.com/chewxy/math32"

	"github.com/itohio/goadc/pkg/adc"
)

// CurveFittingConfig selects the line model corrected by a polynomial error
// term: mV = line(raw) - sum(ErrorCoeffs[i] * raw^i).
type CurveFittingConfig struct {
	Unit        adc.UnitID
	Channel     uint8
	Atten       adc.Atten
	Bitwidth    uint8
	DefaultVref uint32 // mV; 0 means DefaultVref

	// ErrorCoeffs are the error polynomial coefficients, lowest order first.
	// They come from the chip's factory calibration.
	ErrorCoeffs []float32
}

func (CurveFittingConfig) Scheme() adc.Scheme { return adc.CurveFitting }

func (c CurveFittingConfig) build(caps adc.Caps) (converter, uint8, error) {
	const op = "create curve fitting"

	l, err := newLine(op, caps, c.Unit, c.Atten, c.Bitwidth, c.DefaultVref)
	if err != nil {
		return nil, 0, err
	}
	if n := caps.ChannelNum[c.Unit]; int(c.Channel) >= n {
		return nil, 0, &adc.Error{Code: adc.InvalidArgument, Op: op, Msg: fmt.Sprintf("channel %d out of range", c.Channel)}
	}
	for i, k := range c.ErrorCoeffs {
		if math32.IsNaN(k) || math32.IsInf(k, 0) {
			return nil, 0, &adc.Error{Code: adc.InvalidArgument, Op: op, Msg: fmt.Sprintf("coefficient %d is not finite", i)}
		}
	}
	return curve{line: l, coeffs: append([]float32(nil), c.ErrorCoeffs...)}, c.Bitwidth, nil
}

type curve struct {
	line   line
	coeffs []float32
}

func (c curve) millivolts(raw int) int {
	mv := c.line.millivolts(raw)
	if len(c.coeffs) == 0 {
		return mv
	}
	x := float32(raw)
	var e float32
	for i := len(c.coeffs) - 1; i >= 0; i-- {
		e = e*x + c.coeffs[i]
	}
	return mv - int(math32.Floor(e+0.5))
}
