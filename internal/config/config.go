// Package config loads settings for the bridge and the printer daemon from
// defaults, an optional config file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/thereceipt/printer-bridge/internal/ipc"
	"github.com/thereceipt/printer-bridge/internal/printerd"
)

// Transports accepted for Bridge.Transport.
const (
	TransportWebSocket = "ws"
	TransportDBus      = "dbus"
)

// Bridge configures cmd/bridge.
type Bridge struct {
	Transport    string        `mapstructure:"transport"`
	ServiceURL   string        `mapstructure:"service_url"`
	Locator      ipc.Locator   `mapstructure:",squash"`
	MaxDimension int           `mapstructure:"max_dimension"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
	Listen       string        `mapstructure:"listen"`
	LogLevel     string        `mapstructure:"log_level"`
	Development  bool          `mapstructure:"development"`
}

// Printerd configures cmd/printerd.
type Printerd struct {
	Listen      string                `mapstructure:"listen"`
	Locator     ipc.Locator           `mapstructure:",squash"`
	Device      printerd.DeviceConfig `mapstructure:"device"`
	PaperWidth  string                `mapstructure:"paper_width"`
	Font        string                `mapstructure:"font"`
	DBus        bool                  `mapstructure:"dbus"`
	LogLevel    string                `mapstructure:"log_level"`
	Development bool                  `mapstructure:"development"`
}

func newViper(prefix string, defaults map[string]any) *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// NewBridgeViper returns a viper instance with the bridge defaults and the
// BRIDGE_ environment prefix.
func NewBridgeViper() *viper.Viper {
	return newViper("BRIDGE", map[string]any{
		"transport":     TransportWebSocket,
		"service_url":   "http://localhost:9310",
		"package":       ipc.DefaultLocator.Package,
		"component":     ipc.DefaultLocator.Component,
		"max_dimension": 1080,
		"call_timeout":  time.Duration(0),
		"listen":        ":9300",
		"log_level":     "info",
		"development":   false,
	})
}

// NewPrinterdViper returns a viper instance with the daemon defaults and the
// PRINTERD_ environment prefix.
func NewPrinterdViper() *viper.Viper {
	return newViper("PRINTERD", map[string]any{
		"listen":      ":9310",
		"package":     ipc.DefaultLocator.Package,
		"component":   ipc.DefaultLocator.Component,
		"device.type": "file",
		"device.vid":  0,
		"device.pid":  0,
		"device.path": "-",
		"device.baud": 9600,
		"device.host": "",
		"device.port": 9100,
		"paper_width": "80mm",
		"font":        "",
		"dbus":        false,
		"log_level":   "info",
		"development": false,
	})
}

// readFile merges the config file into v when one is given.
func readFile(v *viper.Viper, file string) error {
	if file == "" {
		return nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// LoadBridge reads file (optional) into v and decodes the bridge settings.
func LoadBridge(v *viper.Viper, file string) (*Bridge, error) {
	if err := readFile(v, file); err != nil {
		return nil, err
	}

	var cfg Bridge
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the bridge settings.
func (c *Bridge) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportWebSocket:
		if c.ServiceURL == "" {
			errs = append(errs, errors.New("service_url is required for the ws transport"))
		}
	case TransportDBus:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q (must be ws or dbus)", c.Transport))
	}
	if err := c.Locator.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxDimension <= 0 {
		errs = append(errs, fmt.Errorf("max_dimension must be positive, got %d", c.MaxDimension))
	}
	if c.CallTimeout < 0 {
		errs = append(errs, errors.New("call_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadPrinterd reads file (optional) into v and decodes the daemon settings.
func LoadPrinterd(v *viper.Viper, file string) (*Printerd, error) {
	if err := readFile(v, file); err != nil {
		return nil, err
	}

	var cfg Printerd
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the daemon settings.
func (c *Printerd) Validate() error {
	var errs []error
	if err := c.Locator.Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.PaperWidth {
	case "58mm", "80mm", "112mm":
	default:
		errs = append(errs, fmt.Errorf("invalid paper_width: %s (must be 58mm, 80mm, or 112mm)", c.PaperWidth))
	}
	switch c.Device.Type {
	case "usb":
		if c.Device.VID == 0 || c.Device.PID == 0 {
			errs = append(errs, errors.New("device.vid and device.pid are required for usb devices"))
		}
	case "serial":
		if c.Device.Path == "" {
			errs = append(errs, errors.New("device.path is required for serial devices"))
		}
	case "network":
		if c.Device.Host == "" {
			errs = append(errs, errors.New("device.host is required for network devices"))
		}
	case "file":
	default:
		errs = append(errs, fmt.Errorf("unknown device.type %q", c.Device.Type))
	}
	return errors.Join(errs...)
}
