//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"machine"
	"time"
)

// entry is one configured slot of the pattern table.
type entry struct {
	channel  uint8
	bitwidth uint8
	adc      machine.ADC
}

var (
	uart = machine.UART0

	// Pattern table
	patterns   [MAX_PATTERN_LEN]entry
	patternLen int
	next       int

	// Timing
	running    bool
	interval   time.Duration
	lastSample time.Time

	// Serial buffer for reading lines
	serialBuffer [COMMAND_BUF_SIZE]byte
	serialPos    int
)

func main() {
	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	machine.InitADC()

	for {
		processSerial()

		if running {
			now := time.Now()
			if now.Sub(lastSample) >= interval {
				sampleNext()
				lastSample = lastSample.Add(interval)
				// Fell too far behind, resynchronise instead of bursting.
				if now.Sub(lastSample) > 10*interval {
					lastSample = now
				}
			}
		}
	}
}

// sampleNext converts the next pattern slot and prints "unit,channel,raw".
func sampleNext() {
	p := &patterns[next]
	next++
	if next == patternLen {
		next = 0
	}

	// Get returns a 16-bit left aligned value.
	raw := p.adc.Get() >> (16 - p.bitwidth)

	print(1)
	print(",")
	print(p.channel)
	print(",")
	print(raw)
	print("\n")
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos > 0 {
				handleCommand(serialBuffer[:serialPos])
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		if serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			// Overlong line - drop it
			serialPos = 0
		}
	}
}

// handleCommand executes
//
//	S,<rate_hz>,<unit>:<channel>:<atten>:<bitwidth>[;...]
//	X
func handleCommand(cmd []byte) {
	switch cmd[0] {
	case 'X':
		running = false
	case 'S':
		if len(cmd) < 2 || cmd[1] != ',' {
			return
		}
		running = false
		if configure(cmd[2:]) {
			next = 0
			lastSample = time.Now()
			running = true
		}
	}
}

// configure parses "<rate_hz>,<pattern>[;<pattern>...]" into the pattern table.
func configure(args []byte) bool {
	rate, rest, ok := parseUint(args)
	if !ok || len(rest) == 0 || rest[0] != ',' || rate == 0 || rate > MAX_RATE_HZ {
		return false
	}
	rest = rest[1:]

	n := 0
	for len(rest) > 0 {
		if n == MAX_PATTERN_LEN {
			return false
		}

		var fields [4]uint32
		for i := range fields {
			v, r, ok := parseUint(rest)
			if !ok {
				return false
			}
			fields[i] = v
			rest = r
			if i < len(fields)-1 {
				if len(rest) == 0 || rest[0] != ':' {
					return false
				}
				rest = rest[1:]
			}
		}
		if len(rest) > 0 {
			if rest[0] != ';' {
				return false
			}
			rest = rest[1:]
		}

		unit, channel, bitwidth := fields[0], fields[1], fields[3]
		if unit != 1 || int(channel) >= len(channelPins) || bitwidth < 9 || bitwidth > ADC_RESOLUTION {
			return false
		}

		pin := channelPins[channel]
		pin.Configure(machine.PinConfig{Mode: machine.PinInput})
		a := machine.ADC{Pin: pin}
		a.Configure(machine.ADCConfig{
			Reference:  ADC_REFERENCE_MV,
			Resolution: ADC_RESOLUTION,
		})
		patterns[n] = entry{channel: uint8(channel), bitwidth: uint8(bitwidth), adc: a}
		n++
	}
	if n == 0 {
		return false
	}

	patternLen = n
	interval = time.Second / time.Duration(rate)
	return true
}

func parseUint(b []byte) (uint32, []byte, bool) {
	var v uint32
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		v = v*10 + uint32(b[i]-'0')
		i++
	}
	return v, b[i:], i > 0
}
