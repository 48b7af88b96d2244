package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/itohio/goadc/pkg/adc"
	"github.com/itohio/goadc/pkg/logging"
)

const (
	// DefaultBaudRate is the baud rate the acquisition firmware listens on.
	DefaultBaudRate = 921600
	// readTimeout bounds each port read so the reader can notice Stop.
	readTimeout = 50 * time.Millisecond
	maxLineLen  = 64
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]Port, 0, len(ports))
	for _, name := range ports {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Serial drives an MCU that performs the conversions and streams each result
// as a text line "unit,channel,raw". The host re-encodes every line into the
// configured result format before handing it to the unit.
//
// Commands sent to the MCU:
//
//	S,<rate_hz>,<unit>:<channel>:<atten>:<bitwidth>[;...]\n  start
//	X\n                                                     stop
type Serial struct {
	port     string
	baudRate int
	caps     adc.Caps
	periph   adc.Peripheral

	open func(name string, mode *serial.Mode) (serial.Port, error)

	mu        sync.Mutex
	conn      serial.Port
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSerial creates a serial driver for an MCU with the given capabilities.
func NewSerial(port string, baudRate int, caps adc.Caps) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	return &Serial{
		port:     port,
		baudRate: baudRate,
		caps:     caps,
		open:     serial.Open,
	}
}

func (d *Serial) Caps() adc.Caps              { return d.caps }
func (d *Serial) Peripheral() *adc.Peripheral { return &d.periph }

// Connect opens the serial port.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return fmt.Errorf("already connected")
	}

	port, err := d.open(d.port, &serial.Mode{BaudRate: d.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", d.port, err)
	}

	d.conn = port
	d.connected = true
	return nil
}

// Close stops streaming and closes the port.
func (d *Serial) Close() error {
	if err := d.Stop(); err != nil {
		logging.Warn("serial: stop on close failed", "port", d.port, "error", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	d.connected = false
	if err != nil {
		return fmt.Errorf("failed to close serial port %s: %w", d.port, err)
	}
	return nil
}

// IsConnected returns whether the port is open.
func (d *Serial) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// Start sends the pattern table to the MCU and starts the reader.
func (d *Serial) Start(cfg adc.Config, emit adc.Emit) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.connected {
		return fmt.Errorf("not connected")
	}
	if d.cancel != nil {
		return fmt.Errorf("already streaming")
	}

	if _, err := d.conn.Write([]byte(startCommand(cfg))); err != nil {
		return fmt.Errorf("failed to send start command: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.readSamples(ctx, d.conn, cfg.Format, emit, d.done)

	return nil
}

// Stop tells the MCU to stop and waits for the reader to exit.
func (d *Serial) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel == nil {
		return nil
	}
	d.cancel()
	<-d.done
	d.cancel = nil

	if _, err := d.conn.Write([]byte("X\n")); err != nil {
		return fmt.Errorf("failed to send stop command: %w", err)
	}
	return nil
}

func startCommand(cfg adc.Config) string {
	var cmd strings.Builder
	cmd.WriteString("S,")
	cmd.WriteString(strconv.FormatUint(uint64(cfg.RateHz), 10))
	cmd.WriteByte(',')
	for i, p := range cfg.Patterns {
		if i > 0 {
			cmd.WriteByte(';')
		}
		fmt.Fprintf(&cmd, "%d:%d:%d:%d", p.Unit, p.Channel, p.Atten, p.Bitwidth)
	}
	cmd.WriteByte('\n')
	return cmd.String()
}

// readSamples reads lines from the port and emits each parsed result.
func (d *Serial) readSamples(ctx context.Context, r io.Reader, format adc.Format, emit adc.Emit, done chan struct{}) {
	defer close(done)
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("serial: panic in reader", "panic", rec)
		}
	}()

	chunk := make([]byte, 256)
	line := make([]byte, 0, maxLineLen)
	res := make([]byte, format.Size())

	for {
		if ctx.Err() != nil {
			return
		}
		n, err := r.Read(chunk)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Error("serial: read failed", "port", d.port, "error", err)
			}
			return
		}

		data := chunk[:n]
		for len(data) > 0 {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				line = append(line, data...)
				if len(line) > maxLineLen {
					line = line[:0]
				}
				break
			}
			line = append(line, data[:i]...)
			data = data[i+1:]

			text := strings.TrimSpace(string(line))
			line = line[:0]
			if text == "" {
				continue
			}

			fr, err := parseLine(text)
			if err != nil {
				logging.Debug("serial: bad line", "line", text, "error", err)
				continue
			}
			if _, err := adc.EncodeFrame(res, format, fr); err != nil {
				logging.Debug("serial: unencodable result", "line", text, "error", err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if emit(res) {
				runtime.Gosched()
			}
		}
	}
}

// parseLine parses a line from the MCU into a Frame.
// Format: unit,channel,raw
// Example: 1,3,2048
func parseLine(line string) (adc.Frame, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 3 {
		return adc.Frame{}, fmt.Errorf("invalid line format: expected 3 comma-separated values, got %d", len(parts))
	}

	unit, err := strconv.ParseUint(parts[0], 10, 8)
	if err != nil {
		return adc.Frame{}, fmt.Errorf("invalid unit: %w", err)
	}
	if unit != 1 && unit != 2 {
		return adc.Frame{}, fmt.Errorf("unit out of range: %d", unit)
	}

	channel, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return adc.Frame{}, fmt.Errorf("invalid channel: %w", err)
	}
	if channel > 15 {
		return adc.Frame{}, fmt.Errorf("channel out of range: %d (max 15)", channel)
	}

	raw, err := strconv.ParseUint(parts[2], 10, 16)
	if err != nil {
		return adc.Frame{}, fmt.Errorf("invalid raw value: %w", err)
	}
	if raw > 4095 {
		return adc.Frame{}, fmt.Errorf("raw value out of range: %d (max 4095)", raw)
	}

	return adc.Frame{Unit: adc.UnitID(unit), Channel: uint8(channel), Raw: uint16(raw)}, nil
}
