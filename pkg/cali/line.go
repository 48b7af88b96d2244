package cali

import (
	"fmt"

	"github.com/itohio/goadc/pkg/adc"
)

// DefaultVref is the nominal reference in millivolts the attenuation ranges
// are specified against.
const DefaultVref = 1100

// fullScale is the input voltage, in millivolts at DefaultVref, that reads as
// the maximum raw code for each attenuation.
var fullScale = [...]int64{
	adc.Atten0dB:   950,
	adc.Atten2_5dB: 1250,
	adc.Atten6dB:   1750,
	adc.Atten12dB:  3100,
}

// LineFittingConfig selects a straight-line raw to voltage model scaled by the
// chip's measured reference voltage.
type LineFittingConfig struct {
	Unit        adc.UnitID
	Atten       adc.Atten
	Bitwidth    uint8
	DefaultVref uint32 // mV; 0 means DefaultVref
}

func (LineFittingConfig) Scheme() adc.Scheme { return adc.LineFitting }

func (c LineFittingConfig) build(caps adc.Caps) (converter, uint8, error) {
	l, err := newLine("create line fitting", caps, c.Unit, c.Atten, c.Bitwidth, c.DefaultVref)
	if err != nil {
		return nil, 0, err
	}
	return l, c.Bitwidth, nil
}

type line struct {
	num int64 // full scale mV * vref
	den int64 // DefaultVref * max raw
}

func newLine(op string, caps adc.Caps, unit adc.UnitID, atten adc.Atten, bw uint8, vref uint32) (line, error) {
	if unit != adc.Unit1 && unit != adc.Unit2 {
		return line{}, &adc.Error{Code: adc.InvalidArgument, Op: op, Msg: fmt.Sprintf("unknown unit %d", unit)}
	}
	if int(atten) >= len(fullScale) {
		return line{}, &adc.Error{Code: adc.InvalidArgument, Op: op, Msg: atten.String()}
	}
	if err := checkBitwidth(op, caps, bw); err != nil {
		return line{}, err
	}
	if vref == 0 {
		vref = DefaultVref
	}
	if vref < 1000 || vref > 1200 {
		return line{}, &adc.Error{Code: adc.InvalidArgument, Op: op, Msg: fmt.Sprintf("reference %d mV implausible", vref)}
	}
	return line{
		num: fullScale[atten] * int64(vref),
		den: DefaultVref * int64(1<<bw-1),
	}, nil
}

func (l line) millivolts(raw int) int {
	return int((int64(raw)*l.num + l.den/2) / l.den)
}
