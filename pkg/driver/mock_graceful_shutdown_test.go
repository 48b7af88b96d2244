package driver

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/goadc/pkg/adc"
)

// TestMock_GracefulShutdown tests that the generator stops calling emit once
// Stop returns.
func TestMock_GracefulShutdown(t *testing.T) {
	dev := NewMock(adc.ESP32S3, nil)

	var emitted atomic.Int64
	got := make(chan struct{}, 1)
	emit := func([]byte) bool {
		if emitted.Add(1) >= 3 {
			select {
			case got <- struct{}{}:
			default:
			}
		}
		return false
	}

	require.NoError(t, dev.Start(adc.Config{Patterns: testPatterns(), RateHz: 5000, Format: adc.FormatTypeB}, emit))

	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("mock did not produce results within timeout")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- dev.Stop() }()

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return within timeout")
	}

	after := emitted.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, emitted.Load(), "emit called after Stop returned")
	assert.GreaterOrEqual(t, after, int64(3))
}

// TestMock_CloseUnitWhileRunning tests that closing a running unit stops the
// generator and leaves the unit destroyed.
func TestMock_CloseUnitWhileRunning(t *testing.T) {
	dev := NewMock(adc.ESP32S3, nil)

	u, err := adc.NewContinuous(dev, adc.InitConfig{PoolSize: 256, FrameSize: 64})
	require.NoError(t, err)
	require.NoError(t, u.Configure(adc.Config{
		Patterns: testPatterns(),
		RateHz:   2000,
		Mode:     adc.SingleUnit1,
		Format:   adc.FormatTypeB,
	}))
	require.NoError(t, u.Start())

	readFrames(t, u, 3)

	done := make(chan struct{})
	go func() {
		defer close(done)
		u.Close()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return within timeout")
	}

	assert.Equal(t, adc.Destroyed, u.State())
	_, err = dev.ReadOneShot(adc.Unit1, 0, adc.Atten12dB)
	assert.NoError(t, err, "unit released on close")
}
