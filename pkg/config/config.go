package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the load cell configuration.
type Config struct {
	GPIO    GPIOConfig    `yaml:"gpio"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Watcher WatcherConfig `yaml:"watcher"`
	Scale   ScaleConfig   `yaml:"scale"`
	Mock    MockConfig    `yaml:"mock"`
	Debug   bool          `yaml:"debug"`
}

// GPIOConfig selects the GPIO backend and the two pins wired to the chip.
type GPIOConfig struct {
	Backend  string `yaml:"backend"` // gpiod, periph or mock
	Chip     int    `yaml:"chip"`    // gpiochipN, ignored by periph
	DataPin  int    `yaml:"data_pin"`
	ClockPin int    `yaml:"clock_pin"`
}

// SensorConfig contains protocol settings.
type SensorConfig struct {
	Rate         int           `yaml:"rate"`    // output data rate in Hz, 10 or 80
	Channel      string        `yaml:"channel"` // A or B
	Gain         int           `yaml:"gain"`    // 128, 64 or 32
	BitFormat    string        `yaml:"bit_format"`
	ByteFormat   string        `yaml:"byte_format"`
	StrictTiming bool          `yaml:"strict_timing"`
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // 0 = settling time of the rate
}

// WatcherConfig contains the background sampler timings.
type WatcherConfig struct {
	IdleInterval     time.Duration `yaml:"idle_interval"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	NotReadyInterval time.Duration `yaml:"not_ready_interval"`
	RecoveryMaxWait  time.Duration `yaml:"recovery_max_wait"`
	SampleTimeout    time.Duration `yaml:"sample_timeout"` // per-value wait when collecting N samples
	StackSize        int           `yaml:"stack_size"`
	StackMaxAge      time.Duration `yaml:"stack_max_age"`
	Priority         bool          `yaml:"priority"` // raise thread priority while active
}

// ScaleConfig contains calibration and default read parameters.
type ScaleConfig struct {
	Unit          string        `yaml:"unit"`
	ReferenceUnit int32         `yaml:"reference_unit"`
	Offset        int32         `yaml:"offset"`
	Samples       int           `yaml:"samples"`  // default sample count, used when Duration is 0
	Duration      time.Duration `yaml:"duration"` // default time budget
	Reducer       string        `yaml:"reducer"`  // median, average, 1std, 2std, 3std
	Async         bool          `yaml:"async"`    // read through the watcher instead of directly
}

// MockConfig contains simulated chip parameters.
type MockConfig struct {
	Value            int32         `yaml:"value"`   // raw channel A reading
	ValueB           int32         `yaml:"value_b"` // raw channel B reading
	NoiseLevel       int32         `yaml:"noise_level"`
	ConversionPeriod time.Duration `yaml:"conversion_period"`
	Seed             int64         `yaml:"seed"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Backend:  "gpiod",
			Chip:     0,
			DataPin:  2,
			ClockPin: 3,
		},
		Sensor: SensorConfig{
			Rate:       80,
			Channel:    "A",
			Gain:       128,
			BitFormat:  "msb",
			ByteFormat: "msb",
		},
		Watcher: WatcherConfig{
			IdleInterval:     100 * time.Millisecond,
			PollInterval:     10 * time.Millisecond,
			NotReadyInterval: 100 * time.Microsecond,
			RecoveryMaxWait:  50 * time.Millisecond,
			SampleTimeout:    time.Second,
			StackSize:        80,
			StackMaxAge:      time.Second,
			Priority:         true,
		},
		Scale: ScaleConfig{
			Unit:          "g",
			ReferenceUnit: 1,
			Offset:        0,
			Samples:       3,
			Reducer:       "median",
			Async:         true,
		},
		Mock: MockConfig{
			Value:            100000,
			ValueB:           25000,
			NoiseLevel:       0,
			ConversionPeriod: 12500 * time.Microsecond, // 80 Hz
			Seed:             1,
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

	if err := Parse(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML into cfg, fills missing fields with defaults and
// validates the result.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg.Validate()
}

// Validate checks combinations that cannot be expressed by defaults.
func (c *Config) Validate() error {
	if c.GPIO.DataPin == c.GPIO.ClockPin {
		return fmt.Errorf("data and clock pins must differ (both %d)", c.GPIO.DataPin)
	}
	if c.GPIO.DataPin < 0 || c.GPIO.ClockPin < 0 {
		return fmt.Errorf("pins must not be negative")
	}
	switch c.Sensor.Rate {
	case 10, 80:
	default:
		return fmt.Errorf("unsupported rate %d Hz (want 10 or 80)", c.Sensor.Rate)
	}
	if c.Scale.ReferenceUnit == 0 {
		return fmt.Errorf("reference unit cannot be 0")
	}
	if c.Scale.Samples < 0 || c.Scale.Duration < 0 {
		return fmt.Errorf("samples and duration must not be negative")
	}
	if c.Watcher.StackSize < 0 {
		return fmt.Errorf("stack size must not be negative")
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.GPIO.Backend == "" {
		c.GPIO.Backend = def.GPIO.Backend
	}

	if c.Sensor.Rate == 0 {
		c.Sensor.Rate = def.Sensor.Rate
	}
	if c.Sensor.Channel == "" {
		c.Sensor.Channel = def.Sensor.Channel
	}
	if c.Sensor.Gain == 0 {
		c.Sensor.Gain = def.Sensor.Gain
	}
	if c.Sensor.BitFormat == "" {
		c.Sensor.BitFormat = def.Sensor.BitFormat
	}
	if c.Sensor.ByteFormat == "" {
		c.Sensor.ByteFormat = def.Sensor.ByteFormat
	}

	if c.Watcher.IdleInterval == 0 {
		c.Watcher.IdleInterval = def.Watcher.IdleInterval
	}
	if c.Watcher.PollInterval == 0 {
		c.Watcher.PollInterval = def.Watcher.PollInterval
	}
	if c.Watcher.NotReadyInterval == 0 {
		c.Watcher.NotReadyInterval = def.Watcher.NotReadyInterval
	}
	if c.Watcher.RecoveryMaxWait == 0 {
		c.Watcher.RecoveryMaxWait = def.Watcher.RecoveryMaxWait
	}
	if c.Watcher.SampleTimeout == 0 {
		c.Watcher.SampleTimeout = def.Watcher.SampleTimeout
	}
	if c.Watcher.StackSize == 0 {
		c.Watcher.StackSize = def.Watcher.StackSize
	}
	if c.Watcher.StackMaxAge == 0 {
		c.Watcher.StackMaxAge = def.Watcher.StackMaxAge
	}

	if c.Scale.Unit == "" {
		c.Scale.Unit = def.Scale.Unit
	}
	if c.Scale.ReferenceUnit == 0 {
		c.Scale.ReferenceUnit = def.Scale.ReferenceUnit
	}
	if c.Scale.Samples == 0 && c.Scale.Duration == 0 {
		c.Scale.Samples = def.Scale.Samples
	}
	if c.Scale.Reducer == "" {
		c.Scale.Reducer = def.Scale.Reducer
	}

	if c.Mock.ConversionPeriod == 0 {
		c.Mock.ConversionPeriod = def.Mock.ConversionPeriod
	}
}
