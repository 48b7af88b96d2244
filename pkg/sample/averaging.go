package sample

import (
	"github.com/itohio/goadc/pkg/adc"
	"github.com/itohio/goadc/pkg/logging"
)

type channelKey struct {
	unit    adc.UnitID
	channel uint8
}

// NewAveragingConverter creates a converter that averages every windowSize
// consecutive samples of the same channel into one. Interleaved channels are
// averaged independently. Partial windows are flushed when in closes.
func NewAveragingConverter(windowSize int, bufSize int) func(in <-chan Sample) <-chan Sample {
	if windowSize <= 0 {
		windowSize = 1 // No averaging if invalid
	}
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan Sample) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			windows := make(map[channelKey][]Sample)
			var order []channelKey

			for sample := range in {
				key := channelKey{sample.Unit, sample.Channel}
				w, ok := windows[key]
				if !ok {
					order = append(order, key)
					w = make([]Sample, 0, windowSize)
				}
				w = append(w, sample)
				if len(w) < windowSize {
					windows[key] = w
					continue
				}
				out <- averageSamples(w)
				windows[key] = w[:0]
			}

			for _, key := range order {
				if w := windows[key]; len(w) > 0 {
					select {
					case out <- averageSamples(w):
					default:
						logging.Warn("Averaging converter output channel full", "unit", key.unit, "channel", key.channel)
					}
				}
			}
		}()

		return out
	}
}

// averageSamples averages a slice of samples of one channel. Uses the most
// recent sample's timestamp.
func averageSamples(samples []Sample) Sample {
	if len(samples) == 0 {
		return Sample{}
	}

	var sumRaw, sumMillivolts int64
	last := samples[len(samples)-1]

	for _, s := range samples {
		sumRaw += int64(s.Raw)
		sumMillivolts += int64(s.Millivolts)
	}

	n := int64(len(samples))
	return Sample{
		Timestamp:  last.Timestamp,
		Unit:       last.Unit,
		Channel:    last.Channel,
		Raw:        uint16((sumRaw + n/2) / n), // Round to nearest
		Millivolts: int((sumMillivolts + n/2) / n),
	}
}
