package main

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/pkg/errors"

	"github.com/budker-phys/gpiblab/gpib"
	"github.com/budker-phys/gpiblab/tektronix"
)

// EnvPrefix marks environment variables which override the config file,
// TDSCTL_INSTRUMENT__ADDR=/dev/ttyUSB1 sets Instrument.Addr
const EnvPrefix = "TDSCTL_"

// Config is the tdsctl configuration
type Config struct {
	// Addr is the address the HTTP server listens on
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Endpoint is the URL prefix the scope is served under
	Endpoint string `koanf:"Endpoint" yaml:"Endpoint"`

	// Mock substitutes the built-in simulator for the instrument
	Mock bool `koanf:"Mock" yaml:"Mock"`

	// LogLevel is one of error, warning, info, debug
	LogLevel string `koanf:"LogLevel" yaml:"LogLevel"`

	Instrument gpib.Config `koanf:"Instrument" yaml:"Instrument"`
}

// Defaults is the configuration before any file or environment overlay
func Defaults() Config {
	return Config{
		Addr:     ":8000",
		Endpoint: "scope",
		LogLevel: "info",
		Instrument: gpib.Config{
			Name:          "tds540",
			Addr:          "192.168.100.10:1234",
			Baud:          115200,
			GPIBAddress:   1,
			Timeout:       3 * time.Second,
			WriteInterval: 10 * time.Millisecond,
		},
	}
}

// envKey maps TDSCTL_INSTRUMENT__GPIBADDRESS to the key Instrument.GPIBAddress
func envKey(k *koanf.Koanf) func(string) string {
	return func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		path := strings.ToLower(strings.Replace(s, "__", ".", -1))
		for _, key := range k.Keys() {
			if strings.ToLower(key) == path {
				return key
			}
		}
		return path
	}
}

// LoadConfig layers the defaults, the YAML file at path (if it exists) and
// the environment, in that order
func LoadConfig(path string) (*koanf.Koanf, Config, error) {
	k := koanf.New(".")
	c := Config{}
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return k, c, errors.Wrap(err, "loading defaults")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) { // file missing, who cares
				return k, c, errors.Wrapf(err, "loading %s", path)
			}
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey(k)), nil); err != nil {
		return k, c, errors.Wrap(err, "loading environment")
	}
	err := k.Unmarshal("", &c)
	return k, c, err
}

// Open connects to the configured scope, or the simulator when Mock is set
func (c Config) Open() (*tektronix.TDS540, *gpib.Device, error) {
	var (
		dev *gpib.Device
		err error
	)
	if c.Mock {
		dev = gpib.NewDevice(c.Instrument.Name, tektronix.NewSimulator())
	} else {
		dev, err = gpib.Open(c.Instrument)
		if err != nil {
			return nil, nil, err
		}
	}
	scope, err := tektronix.New(dev)
	if err != nil {
		dev.Close()
		return nil, nil, err
	}
	return scope, dev, nil
}
