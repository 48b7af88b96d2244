// Command adcd runs continuous ADC acquisition and publishes calibrated
// samples to MQTT, or logs them when no broker is configured.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/itohio/goadc/pkg/adc"
	"github.com/itohio/goadc/pkg/cali"
	"github.com/itohio/goadc/pkg/config"
	"github.com/itohio/goadc/pkg/driver"
	"github.com/itohio/goadc/pkg/logging"
	"github.com/itohio/goadc/pkg/publish"
	"github.com/itohio/goadc/pkg/sample"
)

const statsInterval = 5 * time.Second

var errAcquisitionStopped = errors.New("acquisition stopped")

func main() {
	var (
		portFlag           = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		configFlag         = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag           = flag.Bool("mock", false, "Use simulated ADC instead of serial port")
		averageSamplesFlag = flag.Int("average-samples", -1, "Number of samples to average per channel (0 = disabled, overrides config)")
		listFlag           = flag.Bool("list", false, "List serial ports and exit")
	)
	flag.Parse()

	if *listFlag {
		ports, err := driver.Ports()
		if err != nil {
			logging.Error("Failed to list ports", "error", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
		return
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logging.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *portFlag != "" {
		cfg.Driver.Port = *portFlag
	}
	if *mockFlag {
		cfg.Driver.Kind = "mock"
	}
	if *averageSamplesFlag >= 0 {
		cfg.Measurement.AverageSamples = *averageSamplesFlag
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error("adcd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	caps, err := adc.LookupCaps(cfg.Chip)
	if err != nil {
		return err
	}
	sc, err := cfg.Sampling.Build()
	if err != nil {
		return err
	}

	src, closeSrc, err := openSource(cfg, caps)
	if err != nil {
		return err
	}
	defer closeSrc()

	set, err := newCalibration(cfg, caps, sc.Patterns)
	if err != nil {
		return err
	}
	defer set.Close()

	if oneshot, ok := src.(adc.OneShot); ok {
		logBaseline(oneshot, set, sc.Patterns)
	}

	unit, err := adc.NewContinuous(src, cfg.Unit.Init())
	if err != nil {
		return err
	}
	defer unit.Close()

	if err := unit.Configure(sc); err != nil {
		return err
	}
	notifier := adc.NewNotifier()
	if err := unit.RegisterCallbacks(notifier.Callbacks(), nil); err != nil {
		return err
	}

	var pub *publish.Publisher
	if cfg.MQTT.Broker != "" {
		pub = publish.New(cfg.MQTT)
		pub.SetStatus(status(cfg, sc, set.Scheme()))
		if err := pub.Connect(ctx); err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := pub.Close(closeCtx); err != nil {
				logging.Warn("MQTT close failed", "error", err)
			}
		}()
	}

	if err := unit.Start(); err != nil {
		return err
	}
	logging.Info("Acquisition started",
		"chip", caps.Name,
		"driver", cfg.Driver.Kind,
		"rate_hz", sc.RateHz,
		"mode", sc.Mode,
		"format", sc.Format,
		"patterns", len(sc.Patterns),
		"scheme", set.Scheme(),
	)

	g, gctx := errgroup.WithContext(ctx)

	results := cfg.Read.BufferSize / sc.Format.Size()
	frames := sample.Frames(gctx, unit, notifier, sc.Format, results, cfg.Read.Timeout)
	samples := sample.NewConverter(set, results)(frames)
	if n := cfg.Measurement.AverageSamples; n > 1 {
		samples = sample.NewAveragingConverter(n, results)(samples)
	}

	g.Go(func() error {
		var err error
		if pub != nil {
			err = pub.Run(gctx, samples)
		} else {
			err = logSamples(gctx, samples)
		}
		if err == nil && gctx.Err() == nil {
			return errAcquisitionStopped
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				st := unit.Stats()
				logging.Info("Pool stats",
					"buffered", st.Buffered,
					"produced", st.Produced,
					"dropped", st.Dropped,
					"overflows", st.Overflows,
					"chunks", notifier.Chunks(),
				)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		return unit.Stop()
	})

	err = g.Wait()
	st := unit.Stats()
	logging.Info("Acquisition stopped", "produced", st.Produced, "dropped", st.Dropped, "overflows", st.Overflows)
	return err
}

func openSource(cfg *config.Config, caps adc.Caps) (adc.Source, func(), error) {
	switch cfg.Driver.Kind {
	case "mock":
		return driver.NewMock(caps, &cfg.Mock), func() {}, nil
	case "serial":
		dev := driver.NewSerial(cfg.Driver.Port, cfg.Driver.BaudRate, caps)
		if err := dev.Connect(); err != nil {
			return nil, nil, err
		}
		return dev, func() {
			if err := dev.Close(); err != nil {
				logging.Warn("Serial close failed", "error", err)
			}
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown driver %q", cfg.Driver.Kind)
}

func newCalibration(cfg *config.Config, caps adc.Caps, patterns []adc.Pattern) (*cali.Set, error) {
	scheme, err := cfg.Calibration.SchemeValue()
	if err != nil {
		return nil, err
	}
	coeffs, err := cfg.Calibration.Coefficients()
	if err != nil {
		return nil, err
	}
	logging.Debug("Calibration schemes", "supported", cali.CheckScheme(caps))
	return cali.NewSet(caps, patterns, cali.SetConfig{
		Scheme:      scheme,
		DefaultVref: cfg.Calibration.DefaultVref,
		ErrorCoeffs: coeffs,
	})
}

// logBaseline takes one synchronous reading per pattern before streaming.
func logBaseline(r adc.OneShot, set *cali.Set, patterns []adc.Pattern) {
	for _, p := range patterns {
		raw, err := r.ReadOneShot(p.Unit, p.Channel, p.Atten)
		if err != nil {
			logging.Warn("One-shot read failed", "unit", p.Unit, "channel", p.Channel, "error", err)
			continue
		}
		mv, err := set.Convert(adc.Frame{Unit: p.Unit, Channel: p.Channel, Raw: uint16(raw)})
		if err != nil {
			logging.Warn("One-shot conversion failed", "unit", p.Unit, "channel", p.Channel, "error", err)
			continue
		}
		logging.Info("Baseline", "unit", p.Unit, "channel", p.Channel, "raw", raw, "mv", mv)
	}
}

type channelKey struct {
	unit    adc.UnitID
	channel uint8
}

// logSamples logs the latest value of every channel once per second.
func logSamples(ctx context.Context, in <-chan sample.Sample) error {
	latest := make(map[channelKey]sample.Sample)
	counts := make(map[channelKey]int)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-in:
			if !ok {
				return nil
			}
			k := channelKey{s.Unit, s.Channel}
			latest[k] = s
			counts[k]++
		case <-ticker.C:
			keys := make([]channelKey, 0, len(latest))
			for k := range latest {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool {
				if keys[i].unit != keys[j].unit {
					return keys[i].unit < keys[j].unit
				}
				return keys[i].channel < keys[j].channel
			})
			for _, k := range keys {
				s := latest[k]
				logging.Info("Sample", "unit", s.Unit, "channel", s.Channel, "raw", s.Raw, "mv", s.Millivolts, "count", counts[k])
				counts[k] = 0
			}
		}
	}
}

type patternStatus struct {
	Unit     uint8  `json:"unit"`
	Channel  uint8  `json:"channel"`
	Atten    string `json:"atten"`
	Bitwidth uint8  `json:"bitwidth"`
}

type acquisitionStatus struct {
	Chip     string          `json:"chip"`
	RateHz   uint32          `json:"rate_hz"`
	Mode     string          `json:"mode"`
	Format   string          `json:"format"`
	Scheme   string          `json:"scheme"`
	Patterns []patternStatus `json:"patterns"`
}

func status(cfg *config.Config, sc adc.Config, scheme adc.Scheme) acquisitionStatus {
	st := acquisitionStatus{
		Chip:   cfg.Chip,
		RateHz: sc.RateHz,
		Mode:   sc.Mode.String(),
		Format: sc.Format.String(),
		Scheme: scheme.String(),
	}
	for _, p := range sc.Patterns {
		st.Patterns = append(st.Patterns, patternStatus{
			Unit:     uint8(p.Unit),
			Channel:  p.Channel,
			Atten:    p.Atten.String(),
			Bitwidth: p.Bitwidth,
		})
	}
	return st
}
