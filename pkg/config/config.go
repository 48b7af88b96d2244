package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itohio/goadc/pkg/adc"
)

// Config represents the application configuration.
type Config struct {
	Chip        string            `yaml:"chip"`
	Driver      DriverConfig      `yaml:"driver"`
	Unit        UnitConfig        `yaml:"unit"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Read        ReadConfig        `yaml:"read"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Measurement MeasurementConfig `yaml:"measurement"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Mock        MockConfig        `yaml:"mock"`
}

// DriverConfig selects the acquisition hardware.
type DriverConfig struct {
	Kind     string `yaml:"kind"` // "mock" or "serial"
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
}

// UnitConfig is the DMA pool layout.
type UnitConfig struct {
	PoolSize  int `yaml:"pool_size"`  // Bytes
	FrameSize int `yaml:"frame_size"` // Bytes per conversion frame
}

// PatternConfig is one entry of the sampling table.
type PatternConfig struct {
	Unit     uint8  `yaml:"unit"`
	Channel  uint8  `yaml:"channel"`
	Atten    string `yaml:"atten"`
	Bitwidth uint8  `yaml:"bitwidth"`
}

// SamplingConfig contains continuous sampling parameters.
type SamplingConfig struct {
	RateHz   uint32          `yaml:"rate_hz"`
	Mode     string          `yaml:"mode"`
	Format   string          `yaml:"format"`
	Patterns []PatternConfig `yaml:"patterns"`
}

// ReadConfig controls the consumer loop.
type ReadConfig struct {
	BufferSize int           `yaml:"buffer_size"` // Bytes per Read call
	Timeout    time.Duration `yaml:"timeout"`
}

// CalibrationConfig selects the calibration scheme and its parameters.
type CalibrationConfig struct {
	Scheme      string               `yaml:"scheme"`       // auto, line_fitting, curve_fitting
	DefaultVref uint32               `yaml:"default_vref"` // mV
	ErrorCoeffs map[string][]float32 `yaml:"error_coeffs"` // Keyed by attenuation, e.g. "12db"
}

// MeasurementConfig contains post-processing parameters.
type MeasurementConfig struct {
	AverageSamples int `yaml:"average_samples"` // Samples per channel to average (0 = disabled)
}

// MQTTConfig contains telemetry publishing parameters. An empty broker disables publishing.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	Amplitude  float64       `yaml:"amplitude"`   // Fraction of full scale
	Offset     float64       `yaml:"offset"`      // Fraction of full scale
	Frequency  float64       `yaml:"frequency"`   // Signal frequency (Hz)
	NoiseLevel float64       `yaml:"noise_level"` // Fraction of full scale
	Tick       time.Duration `yaml:"tick"`        // Producer wake-up period
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Chip: "esp32s3",
		Driver: DriverConfig{
			Kind:     "mock",
			Port:     "/dev/ttyACM0",
			BaudRate: 921600,
		},
		Unit: UnitConfig{
			PoolSize:  4096,
			FrameSize: 256,
		},
		Sampling: SamplingConfig{
			RateHz: 1000,
			Mode:   "single_unit_1",
			Format: "type_b",
			Patterns: []PatternConfig{
				{Unit: 1, Channel: 0, Atten: "12db", Bitwidth: 12},
				{Unit: 1, Channel: 1, Atten: "12db", Bitwidth: 12},
			},
		},
		Read: ReadConfig{
			BufferSize: 256,
			Timeout:    100 * time.Millisecond,
		},
		Calibration: CalibrationConfig{
			Scheme:      "auto",
			DefaultVref: 1100,
		},
		Measurement: MeasurementConfig{
			AverageSamples: 0, // No averaging by default
		},
		MQTT: MQTTConfig{
			ClientID: "goadc",
			Topic:    "goadc/samples",
			QoS:      0,
		},
		Mock: MockConfig{
			Amplitude:  0.4,
			Offset:     0.5,
			Frequency:  5,
			NoiseLevel: 0.002,
			Tick:       time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Chip == "" {
		c.Chip = def.Chip
	}

	if c.Driver.Kind == "" {
		c.Driver.Kind = def.Driver.Kind
	}
	if c.Driver.BaudRate == 0 {
		c.Driver.BaudRate = def.Driver.BaudRate
	}

	if c.Unit.PoolSize == 0 {
		c.Unit.PoolSize = def.Unit.PoolSize
	}
	if c.Unit.FrameSize == 0 {
		c.Unit.FrameSize = def.Unit.FrameSize
	}

	if c.Sampling.RateHz == 0 {
		c.Sampling.RateHz = def.Sampling.RateHz
	}
	if c.Sampling.Mode == "" {
		c.Sampling.Mode = def.Sampling.Mode
	}
	if c.Sampling.Format == "" {
		c.Sampling.Format = def.Sampling.Format
	}
	if len(c.Sampling.Patterns) == 0 {
		c.Sampling.Patterns = def.Sampling.Patterns
	}
	for i := range c.Sampling.Patterns {
		if c.Sampling.Patterns[i].Atten == "" {
			c.Sampling.Patterns[i].Atten = "12db"
		}
		if c.Sampling.Patterns[i].Bitwidth == 0 {
			c.Sampling.Patterns[i].Bitwidth = 12
		}
	}

	if c.Read.BufferSize == 0 {
		c.Read.BufferSize = def.Read.BufferSize
	}
	if c.Read.Timeout == 0 {
		c.Read.Timeout = def.Read.Timeout
	}

	if c.Calibration.Scheme == "" {
		c.Calibration.Scheme = def.Calibration.Scheme
	}
	if c.Calibration.DefaultVref == 0 {
		c.Calibration.DefaultVref = def.Calibration.DefaultVref
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}

	if c.Mock.Tick == 0 {
		c.Mock.Tick = def.Mock.Tick
	}
	if c.Mock.Frequency == 0 {
		c.Mock.Frequency = def.Mock.Frequency
	}
}

// Init returns the unit's construction parameters.
func (u UnitConfig) Init() adc.InitConfig {
	return adc.InitConfig{PoolSize: u.PoolSize, FrameSize: u.FrameSize}
}

// Build converts the sampling section into an adc.Config.
func (s SamplingConfig) Build() (adc.Config, error) {
	mode, err := adc.ParseMode(s.Mode)
	if err != nil {
		return adc.Config{}, err
	}
	format, err := adc.ParseFormat(s.Format)
	if err != nil {
		return adc.Config{}, err
	}

	patterns := make([]adc.Pattern, 0, len(s.Patterns))
	for i, p := range s.Patterns {
		atten, err := adc.ParseAtten(p.Atten)
		if err != nil {
			return adc.Config{}, fmt.Errorf("pattern %d: %w", i, err)
		}
		patterns = append(patterns, adc.Pattern{
			Unit:     adc.UnitID(p.Unit),
			Channel:  p.Channel,
			Atten:    atten,
			Bitwidth: p.Bitwidth,
		})
	}

	return adc.Config{Patterns: patterns, RateHz: s.RateHz, Mode: mode, Format: format}, nil
}

// SchemeValue returns the preferred calibration scheme, 0 for auto.
func (c CalibrationConfig) SchemeValue() (adc.Scheme, error) {
	switch c.Scheme {
	case "", "auto":
		return 0, nil
	case "line_fitting", "line":
		return adc.LineFitting, nil
	case "curve_fitting", "curve":
		return adc.CurveFitting, nil
	}
	return 0, &adc.Error{Code: adc.InvalidArgument, Op: "calibration scheme", Msg: fmt.Sprintf("unknown scheme %q", c.Scheme)}
}

// Coefficients returns the curve fitting coefficients keyed by attenuation.
func (c CalibrationConfig) Coefficients() (map[adc.Atten][]float32, error) {
	out := make(map[adc.Atten][]float32, len(c.ErrorCoeffs))
	for name, k := range c.ErrorCoeffs {
		atten, err := adc.ParseAtten(name)
		if err != nil {
			return nil, fmt.Errorf("error_coeffs: %w", err)
		}
		out[atten] = k
	}
	return out, nil
}
