//go:build tinygo

package main

import "machine"

const (
	// ADC configuration
	ADC_REFERENCE_MV = 3300 // Reference voltage in millivolts (3.3V)
	ADC_RESOLUTION   = 12   // ADC resolution in bits (12-bit = 0-4095)

	// Sampling limits
	MAX_RATE_HZ      = 20000 // Highest pattern rate the loop can sustain
	MAX_PATTERN_LEN  = 16
	COMMAND_BUF_SIZE = 192

	// Serial configuration
	// Output format: "unit,channel,raw\n", at most 10 bytes per line.
	// 20000 lines/sec * 10 bytes = 200,000 bytes/sec = 2,000,000 baud on 8N1.
	// The USB CDC link is not rate limited; 921600 only matters for UART bridges.
	UART_BAUD_RATE = 921600
)

// channelPins maps channel numbers of ADC unit 1 to analog pins.
var channelPins = [...]machine.Pin{
	machine.A0,
	machine.A1,
	machine.A2,
	machine.A3,
	machine.A4,
	machine.A5,
	machine.A6,
	machine.A7,
	machine.A8,
	machine.A9,
}
