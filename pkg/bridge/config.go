package bridge

import (
	"errors"
	"flag"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/robotalks/eeprom.go/pkg/eeprom"
	"github.com/robotalks/eeprom.go/pkg/eeprom/env"
	fx "github.com/robotalks/eeprom.go/pkg/framework"
)

// Config defines how the bridge is served.
type Config struct {
	// Listen is the websocket and metrics address, empty disables it.
	Listen string
	// MQTTURL is the broker serving the device, empty disables it.
	MQTTURL string
}

var defaultConfig = Config{
	Listen: ":8080",
}

func init() {
	if val, ok := os.LookupEnv("EEPROM_BRIDGE_LISTEN"); ok {
		defaultConfig.Listen = val
	}
	if val := os.Getenv("EEPROM_MQTT_URL"); val != "" {
		defaultConfig.MQTTURL = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Listen, "listen", defaultConfig.Listen, "Websocket and metrics listen address, empty to disable.")
	flag.StringVar(&defaultConfig.MQTTURL, "mqtt", defaultConfig.MQTTURL, "MQTT broker URL, e.g. mqtt://localhost:1883/eeprom/bench1.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a config with defaults.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Validate checks exactly one way of serving is enabled. Both would
// compete for the single session.
func (c *Config) Validate() error {
	switch {
	case c.Listen == "" && c.MQTTURL == "":
		return errors.New("nothing to serve: specify -listen or -mqtt")
	case c.Listen != "" && c.MQTTURL != "":
		return errors.New("-listen and -mqtt are exclusive")
	}
	return nil
}

// Runnables creates the services exposing device.
func (c *Config) Runnables(device eeprom.Transport, dialTimeout time.Duration) ([]fx.Runnable, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	b := New(device).WithMetrics(NewMetrics(reg))
	if c.MQTTURL != "" {
		id := env.ShortMachineID()
		return []fx.Runnable{&MQTTService{
			Bridge:      b,
			URL:         c.MQTTURL,
			ClientID:    "eeprom-bridge-" + id,
			DefaultBase: "eeprom/" + id,
			DialTimeout: dialTimeout,
		}}, nil
	}
	return []fx.Runnable{NewServer(b, c.Listen).WithGatherer(reg)}, nil
}
