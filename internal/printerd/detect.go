package printerd

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/gousb"
	"go.uber.org/zap"
)

// Candidate is a device the daemon could print to.
type Candidate struct {
	Type        string `json:"type"`
	VID         uint16 `json:"vid,omitempty"`
	PID         uint16 `json:"pid,omitempty"`
	Path        string `json:"path,omitempty"`
	Description string `json:"description"`
}

// Key identifies the candidate across scans.
func (c Candidate) Key() string {
	if c.Type == "usb" {
		return fmt.Sprintf("usb:%04x:%04x", c.VID, c.PID)
	}
	return c.Type + ":" + c.Path
}

func hasPrinterInterface(desc *gousb.DeviceDesc) bool {
	for _, cfg := range desc.Configs {
		for _, iface := range cfg.Interfaces {
			for _, alt := range iface.AltSettings {
				if alt.Class == gousb.ClassPrinter {
					return true
				}
			}
		}
	}
	return false
}

// DetectUSB lists attached USB devices exposing a printer-class interface.
func DetectUSB() ([]Candidate, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	devices, err := ctx.OpenDevices(hasPrinterInterface)
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}

	var found []Candidate
	for _, dev := range devices {
		manufacturer, _ := dev.Manufacturer()
		product, _ := dev.Product()

		description := fmt.Sprintf("USB: %04X:%04X", dev.Desc.Vendor, dev.Desc.Product)
		if manufacturer != "" || product != "" {
			description = fmt.Sprintf("USB: %s %s (%04X:%04X)",
				manufacturer, product, dev.Desc.Vendor, dev.Desc.Product)
		}

		found = append(found, Candidate{
			Type:        "usb",
			VID:         uint16(dev.Desc.Vendor),
			PID:         uint16(dev.Desc.Product),
			Description: description,
		})
		dev.Close()
	}

	return found, nil
}

// DetectSerial lists serial ports that look like printer ports. Ports are
// not opened.
func DetectSerial() []Candidate {
	var ports []string
	switch runtime.GOOS {
	case "darwin":
		ports = globAll("/dev/cu.*")
	case "linux":
		ports = globAll("/dev/ttyUSB*", "/dev/ttyACM*")
	}

	var found []Candidate
	for _, port := range ports {
		if strings.Contains(port, "Bluetooth") || strings.Contains(port, "debug-console") {
			continue
		}
		found = append(found, Candidate{
			Type:        "serial",
			Path:        port,
			Description: "Serial: " + filepath.Base(port),
		})
	}
	return found
}

func globAll(patterns ...string) []string {
	var out []string
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		out = append(out, matches...)
	}
	return out
}

// Detect returns USB and serial candidates. USB failures, typically a
// missing libusb, are returned alongside the serial results.
func Detect() ([]Candidate, error) {
	usb, err := DetectUSB()
	return append(usb, DetectSerial()...), err
}

// Monitor rescans for devices on an interval and reports changes.
type Monitor struct {
	interval  time.Duration
	detect    func() ([]Candidate, error)
	logger    *zap.Logger
	onAdded   func(Candidate)
	onRemoved func(Candidate)
}

// NewMonitor creates a monitor using Detect.
func NewMonitor(interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{interval: interval, detect: Detect, logger: logger}
}

// OnAdded registers a callback for newly seen devices.
func (m *Monitor) OnAdded(fn func(Candidate)) { m.onAdded = fn }

// OnRemoved registers a callback for devices that went away.
func (m *Monitor) OnRemoved(fn func(Candidate)) { m.onRemoved = fn }

// Run scans until ctx is done. The first scan reports every device as added.
func (m *Monitor) Run(ctx context.Context) {
	previous := make(map[string]Candidate)
	m.scan(previous)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scan(previous)
		}
	}
}

func (m *Monitor) scan(previous map[string]Candidate) {
	current, err := m.detect()
	if err != nil {
		m.logger.Debug("device detection incomplete", zap.Error(err))
	}

	seen := make(map[string]Candidate, len(current))
	for _, c := range current {
		seen[c.Key()] = c
	}

	for key, c := range seen {
		if _, ok := previous[key]; !ok {
			m.logger.Info("device added", zap.String("device", c.Description))
			if m.onAdded != nil {
				m.onAdded(c)
			}
		}
	}
	for key, c := range previous {
		if _, ok := seen[key]; !ok {
			m.logger.Info("device removed", zap.String("device", c.Description))
			if m.onRemoved != nil {
				m.onRemoved(c)
			}
		}
	}

	clear(previous)
	for key, c := range seen {
		previous[key] = c
	}
}
