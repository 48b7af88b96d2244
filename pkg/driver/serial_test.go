package driver

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/itohio/goadc/pkg/adc"
)

// fakePort is a serial.Port backed by in-memory buffers. Reads without
// pending input behave like a port read timing out.
type fakePort struct {
	serial.Port

	mu      sync.Mutex
	input   bytes.Buffer
	written bytes.Buffer
	closed  bool
	timeout time.Duration
}

func (p *fakePort) feed(s string) {
	p.mu.Lock()
	p.input.WriteString(s)
	p.mu.Unlock()
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, io.EOF
	}
	if p.input.Len() > 0 {
		defer p.mu.Unlock()
		return p.input.Read(b)
	}
	p.mu.Unlock()
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) output() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func newFakeSerial(t *testing.T) (*Serial, *fakePort) {
	t.Helper()
	port := &fakePort{}
	dev := NewSerial("/dev/ttyFAKE", 0, adc.ESP32S3)
	dev.open = func(name string, mode *serial.Mode) (serial.Port, error) {
		assert.Equal(t, "/dev/ttyFAKE", name)
		assert.Equal(t, DefaultBaudRate, mode.BaudRate)
		return port, nil
	}
	return dev, port
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    adc.Frame
		wantErr bool
	}{
		{
			name: "valid line - unit 1",
			line: "1,3,2048",
			want: adc.Frame{Unit: adc.Unit1, Channel: 3, Raw: 2048},
		},
		{
			name: "valid line - unit 2",
			line: "2,9,17",
			want: adc.Frame{Unit: adc.Unit2, Channel: 9, Raw: 17},
		},
		{
			name: "valid line - max values",
			line: "1,15,4095",
			want: adc.Frame{Unit: adc.Unit1, Channel: 15, Raw: 4095},
		},
		{
			name: "valid line - zero raw",
			line: "1,0,0",
			want: adc.Frame{Unit: adc.Unit1, Channel: 0, Raw: 0},
		},
		{
			name:    "invalid - wrong number of fields",
			line:    "1,3",
			wantErr: true,
		},
		{
			name:    "invalid - too many fields",
			line:    "1,3,2048,extra",
			wantErr: true,
		},
		{
			name:    "invalid - non-numeric unit",
			line:    "a,3,2048",
			wantErr: true,
		},
		{
			name:    "invalid - unit out of range",
			line:    "3,3,2048",
			wantErr: true,
		},
		{
			name:    "invalid - unit zero",
			line:    "0,3,2048",
			wantErr: true,
		},
		{
			name:    "invalid - channel out of range",
			line:    "1,16,2048",
			wantErr: true,
		},
		{
			name:    "invalid - raw out of range",
			line:    "1,3,5000",
			wantErr: true,
		},
		{
			name:    "invalid - negative raw",
			line:    "1,3,-1",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNewSerial(t *testing.T) {
	dev := NewSerial("COM3", 115200, adc.ESP32)
	assert.NotNil(t, dev)
	assert.Equal(t, "COM3", dev.port)
	assert.Equal(t, 115200, dev.baudRate)
	assert.Equal(t, "esp32", dev.Caps().Name)
	assert.False(t, dev.IsConnected())
}

func TestNewSerial_Defaults(t *testing.T) {
	dev := NewSerial("COM3", 0, adc.ESP32)
	assert.Equal(t, DefaultBaudRate, dev.baudRate)
}

func TestStartCommand(t *testing.T) {
	tests := []struct {
		name string
		cfg  adc.Config
		want string
	}{
		{
			name: "single pattern",
			cfg: adc.Config{
				RateHz:   20000,
				Patterns: []adc.Pattern{{Unit: adc.Unit1, Channel: 6, Atten: adc.Atten12dB, Bitwidth: 12}},
			},
			want: "S,20000,1:6:3:12\n",
		},
		{
			name: "two units",
			cfg: adc.Config{
				RateHz: 1000,
				Patterns: []adc.Pattern{
					{Unit: adc.Unit1, Channel: 2, Atten: adc.Atten12dB, Bitwidth: 12},
					{Unit: adc.Unit2, Channel: 5, Atten: adc.Atten6dB, Bitwidth: 11},
				},
			},
			want: "S,1000,1:2:3:12;2:5:2:11\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, startCommand(tt.cfg))
		})
	}
}

func TestSerial_Connect(t *testing.T) {
	dev, port := newFakeSerial(t)

	require.NoError(t, dev.Connect())
	assert.True(t, dev.IsConnected())
	assert.Equal(t, readTimeout, port.timeout)

	err := dev.Connect()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already connected")

	require.NoError(t, dev.Close())
	assert.False(t, dev.IsConnected())
	assert.True(t, port.closed)
}

func TestSerial_Connect_OpenFails(t *testing.T) {
	dev := NewSerial("/dev/missing", 0, adc.ESP32S3)
	dev.open = func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such device")
	}

	err := dev.Connect()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "/dev/missing")
	assert.False(t, dev.IsConnected())
}

func TestSerial_Close_NotConnected(t *testing.T) {
	dev := NewSerial("COM3", 0, adc.ESP32S3)
	assert.NoError(t, dev.Close())
}

func TestSerial_Start_NotConnected(t *testing.T) {
	dev := NewSerial("COM3", 0, adc.ESP32S3)
	err := dev.Start(adc.Config{Patterns: testPatterns(), RateHz: 1000, Format: adc.FormatTypeB}, func([]byte) bool { return false })
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}

func TestSerial_FeedsContinuousUnit(t *testing.T) {
	dev, port := newFakeSerial(t)
	require.NoError(t, dev.Connect())
	defer dev.Close()

	u, err := adc.NewContinuous(dev, adc.InitConfig{PoolSize: 256, FrameSize: 16})
	require.NoError(t, err)
	defer u.Close()

	cfg := adc.Config{
		Patterns: []adc.Pattern{
			{Unit: adc.Unit1, Channel: 2, Atten: adc.Atten12dB, Bitwidth: 12},
			{Unit: adc.Unit1, Channel: 5, Atten: adc.Atten6dB, Bitwidth: 12},
		},
		RateHz: 1000,
		Mode:   adc.SingleUnit1,
		Format: adc.FormatTypeB,
	}
	require.NoError(t, u.Configure(cfg))
	require.NoError(t, u.Start())
	assert.Equal(t, "S,1000,1:2:3:12;1:5:2:12\n", port.output())

	// Garbage and split lines are tolerated.
	port.feed("1,2,100\r\nnoise\n1,5,2")
	port.feed("00\n\n2,9,9999\n1,2,4095\n")

	frames := readFrames(t, u, 3)
	assert.Equal(t, []adc.Frame{
		{Unit: adc.Unit1, Channel: 2, Raw: 100},
		{Unit: adc.Unit1, Channel: 5, Raw: 200},
		{Unit: adc.Unit1, Channel: 2, Raw: 4095},
	}, frames[:3])

	require.NoError(t, u.Stop())
	assert.Equal(t, "S,1000,1:2:3:12;1:5:2:12\nX\n", port.output())
}

// TestSerial_ReaderExitsOnClose tests that the reader goroutine exits when the
// port reports EOF.
func TestSerial_ReaderExitsOnClose(t *testing.T) {
	dev, port := newFakeSerial(t)
	require.NoError(t, dev.Connect())

	require.NoError(t, dev.Start(adc.Config{Patterns: testPatterns(), RateHz: 1000, Format: adc.FormatTypeB}, func([]byte) bool { return false }))
	require.NoError(t, port.Close())

	select {
	case <-dev.done:
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not exit within timeout")
	}
}
