// Package driver provides the acquisition hardware behind an adc.Continuous
// unit: a simulated chip and an MCU streaming conversions over a serial port.
package driver

import "github.com/itohio/goadc/pkg/adc"

// Ensure Serial implements adc.Source.
var _ adc.Source = (*Serial)(nil)

// Ensure Mock implements adc.Source.
var _ adc.Source = (*Mock)(nil)

// Ensure Mock implements adc.OneShot.
var _ adc.OneShot = (*Mock)(nil)
