package sample

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/goadc/pkg/adc"
	"github.com/itohio/goadc/pkg/cali"
)

// fakeReader replays canned reads and then reports the unit as stopped.
type fakeReader struct {
	mu      sync.Mutex
	reads   [][]byte
	err     error
	flushes int
}

func (r *fakeReader) Read(dst []byte, timeout time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.reads) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, &adc.Error{Code: adc.InvalidState, Op: "read"}
	}
	n := copy(dst, r.reads[0])
	r.reads = r.reads[1:]
	return n, nil
}

func (r *fakeReader) FlushPool() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

func encode(t *testing.T, frames ...adc.Frame) []byte {
	t.Helper()
	buf := make([]byte, len(frames)*adc.FormatTypeB.Size())
	for i, fr := range frames {
		_, err := adc.EncodeFrame(buf[i*4:], adc.FormatTypeB, fr)
		require.NoError(t, err)
	}
	return buf
}

func collect[T any](t *testing.T, ch <-chan T) []T {
	t.Helper()
	var got []T
	timeout := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return got
			}
			got = append(got, v)
		case <-timeout:
			t.Fatal("channel did not close within timeout")
		}
	}
}

func TestFrames_DecodesUntilStopped(t *testing.T) {
	want := []adc.Frame{
		{Unit: adc.Unit1, Channel: 2, Raw: 100},
		{Unit: adc.Unit1, Channel: 5, Raw: 200},
		{Unit: adc.Unit2, Channel: 0, Raw: 4095},
	}
	r := &fakeReader{reads: [][]byte{
		encode(t, want[0], want[1]),
		{},
		encode(t, want[2]),
	}}

	got := collect(t, Frames(context.Background(), r, nil, adc.FormatTypeB, 8, time.Millisecond))
	assert.Equal(t, want, got)
	assert.Zero(t, r.flushes)
}

func TestFrames_StopsOnHardwareError(t *testing.T) {
	r := &fakeReader{err: errors.New("bus fault")}

	got := collect(t, Frames(context.Background(), r, nil, adc.FormatTypeB, 8, time.Millisecond))
	assert.Empty(t, got)
}

func TestFrames_FlushesAfterOverflow(t *testing.T) {
	n := adc.NewNotifier()
	n.Callbacks().OnPoolOverflow(nil, nil)

	r := &fakeReader{reads: [][]byte{encode(t, adc.Frame{Unit: adc.Unit1, Channel: 1, Raw: 7})}}

	got := collect(t, Frames(context.Background(), r, n, adc.FormatTypeB, 8, time.Millisecond))
	assert.Len(t, got, 1)
	assert.Equal(t, 1, r.flushes)
	assert.False(t, n.TakeOverflow(), "overflow consumed")
}

func TestFrames_ContextCancel(t *testing.T) {
	// Reader that never runs dry.
	r := &endlessReader{chunk: encode(t, adc.Frame{Unit: adc.Unit1, Channel: 1, Raw: 7})}

	ctx, cancel := context.WithCancel(context.Background())
	out := Frames(ctx, r, nil, adc.FormatTypeB, 4, time.Millisecond)

	<-out
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for range out {
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Frames did not stop after cancel")
	}
}

type endlessReader struct{ chunk []byte }

func (r *endlessReader) Read(dst []byte, _ time.Duration) (int, error) { return copy(dst, r.chunk), nil }
func (r *endlessReader) FlushPool() error                             { return nil }

func TestConvertFrame(t *testing.T) {
	set, err := cali.NewSet(adc.ESP32, []adc.Pattern{
		{Unit: adc.Unit1, Channel: 0, Atten: adc.Atten12dB, Bitwidth: 12},
		{Unit: adc.Unit1, Channel: 3, Atten: adc.Atten0dB, Bitwidth: 12},
	}, cali.SetConfig{Scheme: adc.LineFitting})
	require.NoError(t, err)
	defer set.Close()

	tests := []struct {
		name    string
		frame   adc.Frame
		want    int
		wantErr bool
	}{
		{name: "full scale 12dB", frame: adc.Frame{Unit: adc.Unit1, Channel: 0, Raw: 4095}, want: 3100},
		{name: "half scale 12dB", frame: adc.Frame{Unit: adc.Unit1, Channel: 0, Raw: 2048}, want: 1550},
		{name: "full scale 0dB", frame: adc.Frame{Unit: adc.Unit1, Channel: 3, Raw: 4095}, want: 950},
		{name: "zero", frame: adc.Frame{Unit: adc.Unit1, Channel: 3, Raw: 0}, want: 0},
		{name: "unknown channel", frame: adc.Frame{Unit: adc.Unit1, Channel: 6, Raw: 1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertFrame(tt.frame, set)
			if tt.wantErr {
				assert.ErrorIs(t, err, adc.InvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Millivolts)
			assert.Equal(t, tt.frame.Raw, got.Raw)
			assert.Equal(t, tt.frame.Channel, got.Channel)
			assert.False(t, got.Timestamp.IsZero())
		})
	}
}

func TestNewConverter(t *testing.T) {
	set, err := cali.NewSet(adc.ESP32S3, []adc.Pattern{
		{Unit: adc.Unit1, Channel: 2, Atten: adc.Atten12dB, Bitwidth: 12},
	}, cali.SetConfig{})
	require.NoError(t, err)
	defer set.Close()

	in := make(chan adc.Frame, 4)
	out := NewConverter(set, 4)(in)

	in <- adc.Frame{Unit: adc.Unit1, Channel: 2, Raw: 4095}
	in <- adc.Frame{Unit: adc.Unit1, Channel: 9, Raw: 4095} // dropped
	in <- adc.Frame{Unit: adc.Unit1, Channel: 2, Raw: 0}
	close(in)

	got := collect(t, out)
	require.Len(t, got, 2)
	assert.Equal(t, 3100, got[0].Millivolts)
	assert.Equal(t, 0, got[1].Millivolts)
}
