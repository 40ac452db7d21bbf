// Package env builds programmers from configuration: defaults, an
// optional TOML profile, environment variables and command line flags,
// applied in that order.
package env

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"

	"github.com/robotalks/eeprom.go/pkg/eeprom"
	"github.com/robotalks/eeprom.go/pkg/serial"
	"github.com/robotalks/eeprom.go/pkg/sim/device"
	"github.com/robotalks/eeprom.go/pkg/transport"
	"github.com/robotalks/eeprom.go/pkg/transport/mqtt"
	"github.com/robotalks/eeprom.go/pkg/transport/websocket"
)

// Config provides common options to open a programmer.
type Config struct {
	// Port locates the device:
	//   /dev/ttyUSB0 or serial:///dev/ttyUSB0?baud=57600  serial port
	//   sim://?size=65536&seed=2                          simulator
	//   ws://host:8080/eeprom                             websocket bridge
	//   mqtt://broker:1883/eeprom/bench1                  MQTT bridge
	//   tcp://host:2000                                   raw TCP serial server
	Port        string
	BaudRate    int
	SettleDelay time.Duration
	DialTimeout time.Duration
	// ClientID identifies this host to an MQTT broker.
	ClientID string

	TargetFill   int
	ReadTimeout  time.Duration
	DrainTimeout time.Duration
}

// Default values.
const (
	DefaultPort        = "/dev/ttyUSB0"
	DefaultDialTimeout = 5 * time.Second
)

var defaultConfig = Config{
	Port:         DefaultPort,
	BaudRate:     serial.DefaultBaudRate,
	SettleDelay:  serial.DefaultSettleDelay,
	DialTimeout:  DefaultDialTimeout,
	TargetFill:   eeprom.DefaultTargetFill,
	ReadTimeout:  eeprom.DefaultReadTimeout,
	DrainTimeout: eeprom.DefaultDrainTimeout,
}

func init() {
	if val := os.Getenv("EEPROM_CONFIG"); val != "" {
		if err := defaultConfig.LoadFile(val); err != nil {
			glog.Warningf("EEPROM_CONFIG: %v", err)
		}
	}
	if err := defaultConfig.LoadEnv(os.Getenv); err != nil {
		glog.Warning(err)
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Device port: serial device path or URL (sim://, ws://, mqtt://, tcp://).")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Serial baud rate.")
	flag.DurationVar(&defaultConfig.SettleDelay, "settle", defaultConfig.SettleDelay, "Wait after opening a serial port.")
	flag.DurationVar(&defaultConfig.DialTimeout, "dial-timeout", defaultConfig.DialTimeout, "Timeout connecting to a bridge.")
	flag.StringVar(&defaultConfig.ClientID, "client-id", defaultConfig.ClientID, "MQTT client ID, derived from machine ID if empty.")
	flag.IntVar(&defaultConfig.TargetFill, "target-fill", defaultConfig.TargetFill, "Unacknowledged bytes kept in flight during bulk load.")
	flag.DurationVar(&defaultConfig.ReadTimeout, "read-timeout", defaultConfig.ReadTimeout, "Timeout of each response byte.")
	flag.DurationVar(&defaultConfig.DrainTimeout, "drain-timeout", defaultConfig.DrainTimeout, "Timeout waiting for load acknowledgments.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

type fileConfig struct {
	Port         string `toml:"port"`
	BaudRate     int    `toml:"baud"`
	SettleDelay  string `toml:"settle_delay"`
	DialTimeout  string `toml:"dial_timeout"`
	ClientID     string `toml:"client_id"`
	TargetFill   int    `toml:"target_fill"`
	ReadTimeout  string `toml:"read_timeout"`
	DrainTimeout string `toml:"drain_timeout"`
}

// LoadFile applies the keys defined in a TOML profile.
func (c *Config) LoadFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if meta.IsDefined("port") {
		c.Port = strings.TrimSpace(raw.Port)
	}
	if meta.IsDefined("baud") {
		c.BaudRate = raw.BaudRate
	}
	if meta.IsDefined("client_id") {
		c.ClientID = strings.TrimSpace(raw.ClientID)
	}
	if meta.IsDefined("target_fill") {
		c.TargetFill = raw.TargetFill
	}
	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"settle_delay", raw.SettleDelay, &c.SettleDelay},
		{"dial_timeout", raw.DialTimeout, &c.DialTimeout},
		{"read_timeout", raw.ReadTimeout, &c.ReadTimeout},
		{"drain_timeout", raw.DrainTimeout, &c.DrainTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		val, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = val
	}
	return c.Validate()
}

// LoadEnv applies EEPROM_PORT, EEPROM_BAUD and EEPROM_TARGET_FILL.
func (c *Config) LoadEnv(getenv func(string) string) error {
	if val := getenv("EEPROM_PORT"); val != "" {
		c.Port = val
	}
	if val := getenv("EEPROM_BAUD"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("EEPROM_BAUD: %w", err)
		}
		c.BaudRate = n
	}
	if val := getenv("EEPROM_TARGET_FILL"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("EEPROM_TARGET_FILL: %w", err)
		}
		c.TargetFill = n
	}
	return nil
}

// Validate checks the values.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port not specified")
	}
	if c.TargetFill < 1 {
		return fmt.Errorf("target fill must be positive, got %d", c.TargetFill)
	}
	return nil
}

// Open opens the transport located by Port.
func (c *Config) Open() (eeprom.Transport, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if strings.HasPrefix(c.Port, "/") {
		return c.openSerial(c.Port, c.BaudRate)
	}
	u, err := url.Parse(c.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid port URL: %w", err)
	}
	switch u.Scheme {
	case "serial":
		baud := c.BaudRate
		if val := u.Query().Get("baud"); val != "" {
			if baud, err = strconv.Atoi(val); err != nil {
				return nil, fmt.Errorf("invalid baud %q", val)
			}
		}
		return c.openSerial(u.Path, baud)
	case "sim":
		config, err := SimConfig(u.Query())
		if err != nil {
			return nil, err
		}
		glog.V(1).Infof("simulated device %+v", config)
		return device.New(config), nil
	case "ws", "wss":
		return websocket.Dial(c.Port, c.DialTimeout)
	case "mqtt", "mqtts":
		clientID := c.ClientID
		if clientID == "" {
			clientID = "eepromctl-" + ShortMachineID()
		}
		return mqtt.Dial(c.Port, clientID, c.DialTimeout)
	case "tcp":
		return transport.DialTCP(u.Host, c.DialTimeout)
	default:
		return nil, fmt.Errorf("unknown port URL scheme: %q", u.Scheme)
	}
}

func (c *Config) openSerial(path string, baud int) (eeprom.Transport, error) {
	return serial.Open(path, serial.Options{BaudRate: baud, SettleDelay: c.SettleDelay})
}

// SimConfig builds a simulator configuration from URL query parameters
// size, rx, page, steps, burst and seed.
func SimConfig(query url.Values) (device.Config, error) {
	config := device.DefaultConfig()
	fields := []struct {
		key string
		dst *int
	}{
		{"size", &config.Size},
		{"rx", &config.RxBufferSize},
		{"page", &config.PageSize},
		{"steps", &config.MaxSteps},
		{"burst", &config.MaxBurst},
	}
	for _, f := range fields {
		if val := query.Get(f.key); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return config, fmt.Errorf("invalid sim %s %q", f.key, val)
			}
			*f.dst = n
		}
	}
	if val := query.Get("seed"); val != "" {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return config, fmt.Errorf("invalid sim seed %q", val)
		}
		config.Seed = n
	}
	return config, nil
}

// NewProgrammer creates a Programmer on t with the configured settings.
func (c *Config) NewProgrammer(t eeprom.Transport) *eeprom.Programmer {
	p := eeprom.New(t).WithTargetFill(c.TargetFill)
	p.ReadTimeout = c.ReadTimeout
	p.DrainTimeout = c.DrainTimeout
	return p
}

// OpenProgrammer opens the transport and creates a Programmer on it.
func (c *Config) OpenProgrammer() (*eeprom.Programmer, error) {
	t, err := c.Open()
	if err != nil {
		return nil, err
	}
	return c.NewProgrammer(t), nil
}
