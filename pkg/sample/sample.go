package sample

import (
	"context"
	"errors"
	"time"

	"github.com/itohio/goadc/pkg/adc"
	"github.com/itohio/goadc/pkg/cali"
	"github.com/itohio/goadc/pkg/logging"
)

// Sample represents a calibrated conversion result.
type Sample struct {
	Timestamp  time.Time
	Unit       adc.UnitID
	Channel    uint8
	Raw        uint16
	Millivolts int
}

// Reader is the consumer side of a continuous unit.
type Reader interface {
	Read(dst []byte, timeout time.Duration) (int, error)
	FlushPool() error
}

// Frames drains r into a channel of decoded results until ctx is cancelled or
// the unit stops running. When the notifier reports a pool overflow the pool
// is flushed so that consumers resume on fresh data. notifier may be nil.
func Frames(ctx context.Context, r Reader, notifier *adc.Notifier, format adc.Format, bufSize int, timeout time.Duration) <-chan adc.Frame {
	if bufSize <= 0 {
		bufSize = 100
	}

	out := make(chan adc.Frame, bufSize)

	go func() {
		defer close(out)

		buf := make([]byte, bufSize*format.Size())
		frames := make([]adc.Frame, 0, bufSize)

		for ctx.Err() == nil {
			if notifier != nil && notifier.TakeOverflow() {
				logging.Warn("pool overflow, flushing stale results", "overflows", notifier.Overflows())
				if err := r.FlushPool(); err != nil {
					logging.Error("Failed to flush pool", "error", err)
				}
			}

			n, err := r.Read(buf, timeout)
			if err != nil {
				if !errors.Is(err, adc.InvalidState) {
					logging.Error("Failed to read results", "error", err)
				}
				return
			}
			if n == 0 {
				continue
			}

			frames, err = adc.DecodeFrames(frames[:0], buf[:n], format)
			if err != nil {
				logging.Error("Failed to decode results", "error", err)
				continue
			}
			for _, fr := range frames {
				select {
				case out <- fr:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Converter is a function type that converts a Frame channel to a Sample channel.
type Converter func(in <-chan adc.Frame) <-chan Sample

// NewConverter creates a converter that calibrates every frame with set.
func NewConverter(set *cali.Set, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan adc.Frame) <-chan Sample {
		out := make(chan Sample, bufSize)

		go func() {
			defer close(out)

			for fr := range in {
				sample, err := convertFrame(fr, set)
				if err != nil {
					logging.Debug("Failed to convert sample", "unit", fr.Unit, "channel", fr.Channel, "error", err)
					continue
				}

				select {
				case out <- sample:
				case <-time.After(time.Second):
					logging.Warn("Converter output channel full, dropping sample")
				}
			}
		}()

		return out
	}
}

// convertFrame converts a Frame to a Sample stamped with the current time.
func convertFrame(fr adc.Frame, set *cali.Set) (Sample, error) {
	mv, err := set.Convert(fr)
	if err != nil {
		return Sample{}, err
	}
	return Sample{
		Timestamp:  time.Now(),
		Unit:       fr.Unit,
		Channel:    fr.Channel,
		Raw:        fr.Raw,
		Millivolts: mv,
	}, nil
}
