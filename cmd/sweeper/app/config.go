package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/impedance-sweeper/internal/ad5933"
	"github.com/roman-kulish/impedance-sweeper/internal/bus"
	"github.com/roman-kulish/impedance-sweeper/internal/storage"
)

const (
	defaultDataDirectory = "data"
	defaultFilePrefix    = "sweep"
	defaultPeriod        = time.Minute
)

// Config represents the main application configuration
type Config struct {
	Settings Settings         `yaml:"settings"`
	Device   bus.DeviceConfig `yaml:"device"`
	Sweep    ad5933.Config    `yaml:"sweep"`
	Engine   EngineConfig     `yaml:"engine"`
	Schedule ScheduleConfig   `yaml:"schedule"`
	Storage  StorageConfig    `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// EngineConfig holds the sweep engine timing
type EngineConfig struct {
	Repeat           int      `yaml:"repeat"`
	Delay            Duration `yaml:"delay"`
	SettleDelay      Duration `yaml:"settleDelay"`
	PollInterval     Duration `yaml:"pollInterval"`
	FrequencyDivisor float64  `yaml:"frequencyDivisor"`
}

// ScheduleConfig describes how many sweeps to take and how often. A Plan
// replaces the linear sweep with log-spaced single-frequency measurements.
type ScheduleConfig struct {
	Period Duration    `yaml:"period"`
	Count  int         `yaml:"count"` // 0 sweeps until interrupted
	Plan   *PlanConfig `yaml:"plan"`
}

type PlanConfig struct {
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	Points int     `yaml:"points"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
	TextFiles     bool   `yaml:"textFiles"`
	FilePrefix    string `yaml:"filePrefix"`
	Channel       int    `yaml:"channel"`
}

// LoadConfig reads the YAML configuration at path, applies defaults and
// validates it.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration document.
func ParseConfig(data []byte) (*Config, error) {
	config := Config{
		Settings: Settings{LogLevel: "info"},
		Device:   bus.DeviceConfig{Address: ad5933.DefaultAddress},
		Sweep:    ad5933.DefaultConfig(),
		Engine: EngineConfig{
			Repeat:       ad5933.DefaultRepeat,
			SettleDelay:  Duration(ad5933.DefaultSettleDelay),
			PollInterval: Duration(ad5933.DefaultPollInterval),
		},
		Schedule: ScheduleConfig{Period: Duration(defaultPeriod)},
		Storage: StorageConfig{
			DataDirectory: defaultDataDirectory,
			MaxBatchSize:  storage.DefaultBatchSize,
			FilePrefix:    defaultFilePrefix,
		},
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks values the device setters would not clamp.
func (c *Config) Validate() error {
	var errs []error

	if c.Device.Address > 0x7F {
		errs = append(errs, fmt.Errorf("device.address %#x is not a 7-bit address", c.Device.Address))
	}
	if c.Engine.Repeat < 1 {
		errs = append(errs, fmt.Errorf("engine.repeat must be at least 1: %d given", c.Engine.Repeat))
	}
	if c.Engine.FrequencyDivisor < 0 {
		errs = append(errs, fmt.Errorf("engine.frequencyDivisor must not be negative"))
	}
	for name, d := range map[string]Duration{
		"engine.delay":        c.Engine.Delay,
		"engine.settleDelay":  c.Engine.SettleDelay,
		"engine.pollInterval": c.Engine.PollInterval,
		"schedule.period":     c.Schedule.Period,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative: %s", name, d))
		}
	}
	if c.Schedule.Count < 0 {
		errs = append(errs, fmt.Errorf("schedule.count must not be negative: %d given", c.Schedule.Count))
	}
	if p := c.Schedule.Plan; p != nil {
		if p.Points < 2 || p.Min <= 0 || p.Max <= p.Min {
			errs = append(errs, fmt.Errorf("schedule.plan needs 0 < min < max and at least 2 points"))
		}
	}
	if c.Storage.MaxBatchSize < 1 {
		errs = append(errs, fmt.Errorf("storage.maxBatchSize must be at least 1: %d given", c.Storage.MaxBatchSize))
	}
	if c.Storage.Channel < 0 {
		errs = append(errs, fmt.Errorf("storage.channel must not be negative"))
	}

	return errors.Join(errs...)
}

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
