package printerd

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/gousb"
	"github.com/tarm/serial"
)

// Device is the byte sink behind the printer service.
type Device interface {
	io.Writer
	io.Closer
}

// DeviceConfig selects and addresses a device.
type DeviceConfig struct {
	Type string `mapstructure:"type"` // usb, serial, network or file
	VID  uint16 `mapstructure:"vid"`
	PID  uint16 `mapstructure:"pid"`
	Path string `mapstructure:"path"`
	Baud int    `mapstructure:"baud"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Open connects to the configured device.
func Open(cfg DeviceConfig) (Device, error) {
	switch cfg.Type {
	case "usb":
		return OpenUSB(cfg.VID, cfg.PID)
	case "serial":
		return OpenSerial(cfg.Path, cfg.Baud)
	case "network":
		return OpenNetwork(cfg.Host, cfg.Port)
	case "file", "":
		return OpenFile(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown device type: %s", cfg.Type)
	}
}

// USBDevice writes to the first bulk OUT endpoint of a USB printer.
type USBDevice struct {
	ctx      *gousb.Context
	device   *gousb.Device
	iface    *gousb.Interface
	release  func()
	endpoint *gousb.OutEndpoint
	mu       sync.Mutex
}

// OpenUSB claims the printer with the given vendor and product IDs.
// It needs libusb at runtime.
func OpenUSB(vid, pid uint16) (*USBDevice, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("failed to open USB device: %w", err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("device not found: %04X:%04X", vid, pid)
	}

	// Most printers work on the default interface once the kernel driver is
	// detached.
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("failed to detach kernel driver: %w", err)
	}

	iface, release, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("failed to claim USB interface: %w", err)
	}

	endpoint, err := firstOutEndpoint(iface)
	if err != nil {
		release()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("USB printer %04X:%04X: %w", vid, pid, err)
	}

	return &USBDevice{
		ctx:      ctx,
		device:   dev,
		iface:    iface,
		release:  release,
		endpoint: endpoint,
	}, nil
}

func firstOutEndpoint(iface *gousb.Interface) (*gousb.OutEndpoint, error) {
	var lastErr error
	for _, desc := range iface.Setting.Endpoints {
		if desc.Direction != gousb.EndpointDirectionOut {
			continue
		}
		ep, err := iface.OutEndpoint(desc.Number)
		if err == nil {
			return ep, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, errors.New("no OUT endpoint")
}

func (d *USBDevice) Write(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endpoint.Write(data)
}

func (d *USBDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.release != nil {
		d.release()
		d.release = nil
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
		d.device = nil
	}
	if d.ctx != nil {
		err = errors.Join(err, d.ctx.Close())
		d.ctx = nil
	}
	return err
}

// SerialDevice writes to a serial port.
type SerialDevice struct {
	port *serial.Port
	mu   sync.Mutex
}

// OpenSerial opens path at baud, defaulting to 9600.
func OpenSerial(path string, baud int) (*SerialDevice, error) {
	if baud == 0 {
		baud = 9600
	}

	port, err := serial.OpenPort(&serial.Config{Name: path, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	return &SerialDevice{port: port}, nil
}

func (d *SerialDevice) Write(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port.Write(data)
}

func (d *SerialDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port.Close()
}

// NetworkDevice writes to a raw TCP printer port.
type NetworkDevice struct {
	conn net.Conn
	mu   sync.Mutex
}

// OpenNetwork dials host:port, defaulting to port 9100.
func OpenNetwork(host string, port int) (*NetworkDevice, error) {
	if port == 0 {
		port = 9100
	}

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to network printer: %w", err)
	}

	return &NetworkDevice{conn: conn}, nil
}

func (d *NetworkDevice) Write(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Write(data)
}

func (d *NetworkDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn.Close()
}

// FileDevice appends the command stream to a file, or to stdout for "-".
type FileDevice struct {
	w  io.Writer
	c  io.Closer
	mu sync.Mutex
}

// OpenFile opens path for appending.
func OpenFile(path string) (*FileDevice, error) {
	if path == "" || path == "-" {
		return &FileDevice{w: os.Stdout}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return &FileDevice{w: f, c: f}, nil
}

func (d *FileDevice) Write(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.w.Write(data)
}

func (d *FileDevice) Close() error {
	if d.c == nil {
		return nil
	}
	return d.c.Close()
}
