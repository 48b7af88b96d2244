package sample

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/goadc/pkg/adc"
)

func TestNewAveragingConverter_PerChannel(t *testing.T) {
	converter := NewAveragingConverter(2, 10)

	in := make(chan Sample, 10)
	out := converter(in)

	now := time.Now()
	// Two interleaved channels.
	values := []struct {
		channel uint8
		raw     uint16
		mv      int
	}{
		{0, 1000, 800}, {1, 3000, 2400},
		{0, 1001, 801}, {1, 3002, 2402},
		{0, 1100, 900},
	}
	for i, v := range values {
		in <- Sample{
			Timestamp:  now.Add(time.Duration(i) * time.Millisecond),
			Unit:       adc.Unit1,
			Channel:    v.channel,
			Raw:        v.raw,
			Millivolts: v.mv,
		}
	}
	close(in)

	got := collect(t, out)
	require.Len(t, got, 3)

	assert.Equal(t, uint8(0), got[0].Channel)
	assert.Equal(t, uint16(1001), got[0].Raw) // 1000.5 rounds up
	assert.Equal(t, 801, got[0].Millivolts)
	assert.Equal(t, now.Add(2*time.Millisecond), got[0].Timestamp)

	assert.Equal(t, uint8(1), got[1].Channel)
	assert.Equal(t, uint16(3001), got[1].Raw)
	assert.Equal(t, 2401, got[1].Millivolts)

	// Partial window flushed on close.
	assert.Equal(t, uint8(0), got[2].Channel)
	assert.Equal(t, uint16(1100), got[2].Raw)
}

func TestNewAveragingConverter_EmptyChannel(t *testing.T) {
	converter := NewAveragingConverter(3, 10)

	in := make(chan Sample)
	out := converter(in)

	close(in)

	// Should close immediately (no samples to average)
	_, ok := <-out
	assert.False(t, ok, "Output channel should be closed")
}

func TestNewAveragingConverter_InvalidWindowSize(t *testing.T) {
	converter := NewAveragingConverter(0, 10) // Invalid window size

	in := make(chan Sample, 5)
	out := converter(in)

	in <- Sample{Unit: adc.Unit1, Channel: 0, Raw: 2047, Millivolts: 1500}
	in <- Sample{Unit: adc.Unit1, Channel: 0, Raw: 10, Millivolts: 8}
	close(in)

	// Window size defaults to 1, every sample passes through.
	got := collect(t, out)
	require.Len(t, got, 2)
	assert.Equal(t, uint16(2047), got[0].Raw)
	assert.Equal(t, uint16(10), got[1].Raw)
}

func TestAverageSamples(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		samples []Sample
		want    Sample
	}{
		{
			name:    "empty",
			samples: nil,
			want:    Sample{},
		},
		{
			name:    "single",
			samples: []Sample{{Timestamp: now, Unit: adc.Unit2, Channel: 4, Raw: 123, Millivolts: 99}},
			want:    Sample{Timestamp: now, Unit: adc.Unit2, Channel: 4, Raw: 123, Millivolts: 99},
		},
		{
			name: "rounds to nearest",
			samples: []Sample{
				{Timestamp: now, Unit: adc.Unit1, Channel: 1, Raw: 1, Millivolts: 1},
				{Timestamp: now.Add(time.Second), Unit: adc.Unit1, Channel: 1, Raw: 2, Millivolts: 1},
				{Timestamp: now.Add(2 * time.Second), Unit: adc.Unit1, Channel: 1, Raw: 2, Millivolts: 2},
			},
			want: Sample{Timestamp: now.Add(2 * time.Second), Unit: adc.Unit1, Channel: 1, Raw: 2, Millivolts: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, averageSamples(tt.samples))
		})
	}
}
