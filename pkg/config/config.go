// Package config holds the options of the serial I/O backbone.
//
// Defaults are overridden by environment variables, then by an optional
// YAML file, then by command line flags registered with SetupFlags.
package config

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/ttyio/pkg/cli"
	"github.com/robotalks/ttyio/pkg/gatekeeper"
	"github.com/robotalks/ttyio/pkg/pool"
	"github.com/robotalks/ttyio/pkg/rx"
)

// PortConfig selects the serial channel.
type PortConfig struct {
	// Device is a serial device path, or "-" for stdin/stdout.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// Listen serves the console over websocket at this address instead.
	Listen string `yaml:"listen"`
}

// PoolConfig sizes the buffer pool.
type PoolConfig struct {
	Buffers    int `yaml:"buffers"`
	BufferSize int `yaml:"buffer-size"`
}

// TransmitConfig controls transmit failure handling.
type TransmitConfig struct {
	Retries int `yaml:"retries"`
	// Policy is "drop" or "halt".
	Policy string `yaml:"policy"`
}

// CLIConfig controls the command line.
type CLIConfig struct {
	MaxLine int  `yaml:"max-line"`
	Echo    bool `yaml:"echo"`
	// Banner replaces the welcome banner if set.
	Banner string `yaml:"banner"`
}

// UplinkConfig controls the MQTT uplink.
type UplinkConfig struct {
	// MQTTBrokerURL e.g. mqtt://host:port/topic-prefix, empty to disable.
	MQTTBrokerURL string `yaml:"mqtt"`
	// DeviceID overrides the machine id in topics.
	DeviceID string `yaml:"device-id"`
	// Remote allows console input from the uplink.
	Remote bool `yaml:"remote"`
}

// Config is the full configuration.
type Config struct {
	Port     PortConfig     `yaml:"port"`
	Pool     PoolConfig     `yaml:"pool"`
	RxDepth  int            `yaml:"rx-depth"`
	Transmit TransmitConfig `yaml:"transmit"`
	CLI      CLIConfig      `yaml:"cli"`
	Uplink   UplinkConfig   `yaml:"uplink"`
}

var (
	defaultConfig = Config{
		Port: PortConfig{
			Device: "/dev/ttyUSB0",
			Baud:   115200,
		},
		Pool: PoolConfig{
			Buffers:    pool.DefaultCount,
			BufferSize: pool.DefaultSize,
		},
		RxDepth: rx.DefaultDepth,
		Transmit: TransmitConfig{
			Retries: 3,
			Policy:  gatekeeper.PolicyDrop.String(),
		},
		CLI: CLIConfig{
			MaxLine: cli.DefaultMaxLine,
			Echo:    true,
		},
	}

	configFile string
)

func init() {
	if val := os.Getenv("TTYIO_DEVICE"); val != "" {
		defaultConfig.Port.Device = val
	}
	if val := os.Getenv("TTYIO_BAUD"); val != "" {
		if baud, err := strconv.Atoi(val); err == nil {
			defaultConfig.Port.Baud = baud
		}
	}
	if val := os.Getenv("TTYIO_MQTT_URL"); val != "" {
		defaultConfig.Uplink.MQTTBrokerURL = val
	}
	configFile = os.Getenv("TTYIO_CONFIG")
}

// SetupFlags sets command line flags.
func SetupFlags() {
	setupFlags(flag.CommandLine)
}

// flag values are kept apart from defaultConfig and applied after the
// config file, only for flags given on the command line.
var (
	flagConfig   Config
	flagOverlays map[string]func(*Config)
)

func setupFlags(fs *flag.FlagSet) {
	flagConfig = defaultConfig
	flagOverlays = make(map[string]func(*Config))
	fs.StringVar(&configFile, "config", configFile, "YAML config file")
	stringFlag(fs, "device", "Serial device, - for stdio", func(c *Config) *string { return &c.Port.Device })
	intFlag(fs, "baud", "Serial baud rate", func(c *Config) *int { return &c.Port.Baud })
	stringFlag(fs, "listen", "Serve console over websocket at address", func(c *Config) *string { return &c.Port.Listen })
	intFlag(fs, "buffers", "Number of transmit buffers", func(c *Config) *int { return &c.Pool.Buffers })
	intFlag(fs, "buffer-size", "Size of each transmit buffer", func(c *Config) *int { return &c.Pool.BufferSize })
	intFlag(fs, "tx-retries", "Transmit retries before giving up a buffer", func(c *Config) *int { return &c.Transmit.Retries })
	stringFlag(fs, "tx-policy", "Transmit failure policy: drop or halt", func(c *Config) *string { return &c.Transmit.Policy })
	boolFlag(fs, "echo", "Echo received characters", func(c *Config) *bool { return &c.CLI.Echo })
	stringFlag(fs, "mqtt", "MQTT broker URL for log uplink", func(c *Config) *string { return &c.Uplink.MQTTBrokerURL })
	boolFlag(fs, "remote", "Accept console input from MQTT", func(c *Config) *bool { return &c.Uplink.Remote })
}

func stringFlag(fs *flag.FlagSet, name, usage string, field func(*Config) *string) {
	p := field(&flagConfig)
	fs.StringVar(p, name, *p, usage)
	flagOverlays[name] = func(c *Config) { *field(c) = *p }
}

func intFlag(fs *flag.FlagSet, name, usage string, field func(*Config) *int) {
	p := field(&flagConfig)
	fs.IntVar(p, name, *p, usage)
	flagOverlays[name] = func(c *Config) { *field(c) = *p }
}

func boolFlag(fs *flag.FlagSet, name, usage string, field func(*Config) *bool) {
	p := field(&flagConfig)
	fs.BoolVar(p, name, *p, usage)
	flagOverlays[name] = func(c *Config) { *field(c) = *p }
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config from defaults, the config file if any, and the
// flags set on the command line, in that order.
func NewConfig() (*Config, error) {
	return newConfig(flag.CommandLine)
}

func newConfig(fs *flag.FlagSet) (*Config, error) {
	conf := defaultConfig
	if configFile != "" {
		if err := conf.LoadFile(configFile); err != nil {
			return nil, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		if overlay, ok := flagOverlays[f.Name]; ok {
			overlay(&conf)
		}
	})
	return &conf, conf.Validate()
}

// MustNewConfig creates Config and fails on error.
func MustNewConfig() *Config {
	conf, err := NewConfig()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// LoadFile overlays values from a YAML file.
func (c *Config) LoadFile(fn string) error {
	data, err := ioutil.ReadFile(fn)
	if err != nil {
		return err
	}
	return c.Load(data)
}

// Load overlays values from YAML data.
func (c *Config) Load(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config: %v", err)
	}
	return nil
}

// Validate checks the values.
func (c *Config) Validate() error {
	if c.Pool.Buffers <= 0 || c.Pool.Buffers > pool.MaxCount {
		return fmt.Errorf("buffers must be in 1..%d", pool.MaxCount)
	}
	if c.Pool.BufferSize <= 0 {
		return fmt.Errorf("buffer-size must be positive")
	}
	if c.RxDepth <= 0 {
		return fmt.Errorf("rx-depth must be positive")
	}
	if c.CLI.MaxLine <= 0 {
		return fmt.Errorf("max-line must be positive")
	}
	if c.Transmit.Retries < 0 {
		return fmt.Errorf("tx-retries must not be negative")
	}
	if _, err := gatekeeper.ParsePolicy(c.Transmit.Policy); err != nil {
		return err
	}
	if c.Port.Device == "" && c.Port.Listen == "" {
		return fmt.Errorf("a device or a listen address is required")
	}
	return nil
}

// TxPolicy returns the parsed transmit failure policy.
func (c *Config) TxPolicy() gatekeeper.Policy {
	p, _ := gatekeeper.ParsePolicy(c.Transmit.Policy)
	return p
}
