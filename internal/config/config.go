package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env"
	"gopkg.in/yaml.v3"
)

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	Level   string `yaml:"level"`   // zerolog level name
	Console bool   `yaml:"console"` // human output instead of JSON
}

type Strip struct {
	Driver       string        `yaml:"driver"`   // "spi" | "console" | "sim"
	SPIPort      string        `yaml:"spi_port"` // spireg name, "" = first
	FreqKHz      int           `yaml:"freq_khz"`
	Channels     int           `yaml:"channels"`
	Segments     int           `yaml:"segments"`
	Mode         string        `yaml:"mode"` // "segment" | "strip"
	PollInterval time.Duration `yaml:"poll_interval"`
}

type Status struct {
	Driver        string        `yaml:"driver"` // "pwm" | "sim"
	RedPin        string        `yaml:"red_pin"`
	GreenPin      string        `yaml:"green_pin"`
	BluePin       string        `yaml:"blue_pin"`
	PWMFreqHz     int           `yaml:"pwm_freq_hz"`
	Frame         time.Duration `yaml:"frame"`
	PulseOn       time.Duration `yaml:"pulse_on"`
	PulsePeriod   time.Duration `yaml:"pulse_period"`
	BreathePeriod time.Duration `yaml:"breathe_period"`
	BreatheEase   string        `yaml:"breathe_ease"` // "smooth" | "cubic" | "linear"
}

type Store struct {
	Driver string `yaml:"driver"` // "file" | "bolt" | "memory"
	Path   string `yaml:"path"`
}

type Config struct {
	HTTP   HTTP   `yaml:"http"`
	Log    Log    `yaml:"log"`
	Strip  Strip  `yaml:"strip"`
	Status Status `yaml:"status"`
	Store  Store  `yaml:"store"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTP{Addr: ":8080"},
		Log:  Log{Level: "info", Console: true},
		Strip: Strip{
			Driver:       "spi",
			FreqKHz:      2500,
			Channels:     4,
			Segments:     10,
			Mode:         "segment",
			PollInterval: 50 * time.Millisecond,
		},
		Status: Status{
			Driver:        "pwm",
			RedPin:        "GPIO26",
			GreenPin:      "GPIO27",
			BluePin:       "GPIO25",
			PWMFreqHz:     5000,
			Frame:         20 * time.Millisecond,
			PulseOn:       20 * time.Millisecond,
			PulsePeriod:   400 * time.Millisecond,
			BreathePeriod: 2 * time.Second,
			BreatheEase:   "smooth",
		},
		Store: Store{Driver: "file", Path: "stripctl-segments.yaml"},
	}
}

// Load reads path over the defaults, so a file only needs the fields it
// changes.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func oneOf(field, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s: %q not one of %v", field, v, allowed)
}

func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	add(oneOf("strip.driver", c.Strip.Driver, "spi", "console", "sim"))
	add(oneOf("strip.mode", c.Strip.Mode, "segment", "strip"))
	add(oneOf("status.driver", c.Status.Driver, "pwm", "sim"))
	add(oneOf("status.breathe_ease", c.Status.BreatheEase, "smooth", "cubic", "linear"))
	add(oneOf("store.driver", c.Store.Driver, "file", "bolt", "memory"))
	if c.Strip.Channels != 3 && c.Strip.Channels != 4 {
		add(fmt.Errorf("strip.channels: %d not 3 or 4", c.Strip.Channels))
	}
	if c.Strip.Segments < 1 || c.Strip.Segments > 64 {
		add(fmt.Errorf("strip.segments: %d not in 1..64", c.Strip.Segments))
	}
	if c.Strip.FreqKHz <= 0 {
		add(errors.New("strip.freq_khz must be positive"))
	}
	if c.Strip.PollInterval <= 0 {
		add(errors.New("strip.poll_interval must be positive"))
	}
	if c.Status.Frame <= 0 {
		add(errors.New("status.frame must be positive"))
	}
	if c.Status.PWMFreqHz <= 0 {
		add(errors.New("status.pwm_freq_hz must be positive"))
	}
	if c.Store.Driver != "memory" && c.Store.Path == "" {
		add(errors.New("store.path is required"))
	}
	return errors.Join(errs...)
}

// overrides mirrors the fields that may be set from the environment. Unset
// variables leave the loaded value alone.
type overrides struct {
	Addr         string        `env:"STRIPCTL_HTTP_ADDR"`
	LogLevel     string        `env:"STRIPCTL_LOG_LEVEL"`
	LogConsole   bool          `env:"STRIPCTL_LOG_CONSOLE"`
	StripDriver  string        `env:"STRIPCTL_STRIP_DRIVER"`
	SPIPort      string        `env:"STRIPCTL_SPI_PORT"`
	Segments     int           `env:"STRIPCTL_SEGMENTS"`
	Mode         string        `env:"STRIPCTL_MODE"`
	PollInterval time.Duration `env:"STRIPCTL_POLL_INTERVAL"`
	StatusDriver string        `env:"STRIPCTL_STATUS_DRIVER"`
	StoreDriver  string        `env:"STRIPCTL_STORE_DRIVER"`
	StorePath    string        `env:"STRIPCTL_STORE_PATH"`
}

// ApplyEnv overlays STRIPCTL_* variables on c.
func (c *Config) ApplyEnv() error {
	o := overrides{
		Addr:         c.HTTP.Addr,
		LogLevel:     c.Log.Level,
		LogConsole:   c.Log.Console,
		StripDriver:  c.Strip.Driver,
		SPIPort:      c.Strip.SPIPort,
		Segments:     c.Strip.Segments,
		Mode:         c.Strip.Mode,
		PollInterval: c.Strip.PollInterval,
		StatusDriver: c.Status.Driver,
		StoreDriver:  c.Store.Driver,
		StorePath:    c.Store.Path,
	}
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	c.HTTP.Addr = o.Addr
	c.Log.Level = o.LogLevel
	c.Log.Console = o.LogConsole
	c.Strip.Driver = o.StripDriver
	c.Strip.SPIPort = o.SPIPort
	c.Strip.Segments = o.Segments
	c.Strip.Mode = o.Mode
	c.Strip.PollInterval = o.PollInterval
	c.Status.Driver = o.StatusDriver
	c.Store.Driver = o.StoreDriver
	c.Store.Path = o.StorePath
	return nil
}
