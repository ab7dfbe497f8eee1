// Package printerd is a printer service: it answers the bridge's remote
// calls by driving an ESC/POS printer.
package printerd

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/thereceipt/printer-bridge/internal/remote"
)

// pointsPerMultiplier maps requested text points onto GS ! multipliers.
const pointsPerMultiplier = 24

// Option configures a Service.
type Option func(*Service)

// WithPaperWidth sets the printable width in dots.
func WithPaperWidth(dots int) Option {
	return func(s *Service) { s.paperWidth = dots }
}

// WithFont sets the TrueType font used for table rows.
func WithFont(path string) Option {
	return func(s *Service) { s.fontPath = path }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service implements remote.Printer on top of a Device. Calls are applied
// one at a time.
type Service struct {
	dev        Device
	paperWidth int
	fontPath   string
	logger     *zap.Logger

	mu     sync.Mutex
	bold   bool
	points float32
}

// NewService wraps dev.
func NewService(dev Device, opts ...Option) *Service {
	s := &Service{
		dev:        dev,
		paperWidth: PaperWidthDots("80mm"),
		logger:     zap.NewNop(),
		points:     pointsPerMultiplier,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize resets the printer and the service's formatting state.
func (s *Service) Initialize() error {
	return s.send("initialize", func(e *Encoder) error {
		s.bold = false
		s.points = pointsPerMultiplier
		e.Initialize()
		return nil
	})
}

// send encodes one call and writes it with the lock held.
func (s *Service) send(op string, build func(e *Encoder) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := NewEncoder()
	if err := build(e); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	data := e.Bytes()
	if len(data) == 0 {
		return nil
	}
	if _, err := s.dev.Write(data); err != nil {
		return fmt.Errorf("%s: write to device: %w", op, err)
	}
	s.logger.Debug("device write", zap.String("op", op), zap.Int("bytes", len(data)))
	return nil
}

func (s *Service) PrintText(text string) error {
	return s.send("printText", func(e *Encoder) error {
		e.Text(text)
		return nil
	})
}

func (s *Service) PrintEpson(data []byte) error {
	return s.send("printEpson", func(e *Encoder) error {
		e.Raw(data)
		return nil
	})
}

func (s *Service) PrintBitmap(bmp *remote.Bitmap) error {
	return s.send("printBitmap", func(e *Encoder) error {
		if err := bmp.Validate(); err != nil {
			return err
		}
		e.Raster(fitToPaper(bmp.Image(), s.paperWidth))
		return nil
	})
}

func (s *Service) PrintBarCode(data string, symbology, height, width int) error {
	return s.send("printBarCode", func(e *Encoder) error {
		img, err := renderBarcode(data, symbology, height, width, s.paperWidth)
		if err != nil {
			return err
		}
		e.Raster(img)
		return nil
	})
}

func (s *Service) PrintQRCode(data string, moduleSize, errorLevel int) error {
	return s.send("printQRCode", func(e *Encoder) error {
		img, err := renderQRCode(data, moduleSize, errorLevel, s.paperWidth)
		if err != nil {
			return err
		}
		e.Raster(img)
		return nil
	})
}

func (s *Service) SetAlignment(alignment int) error {
	return s.send("setAlignment", func(e *Encoder) error {
		if alignment < remote.AlignLeft || alignment > remote.AlignRight {
			return fmt.Errorf("unknown alignment %d", alignment)
		}
		e.SetAlignment(alignment)
		return nil
	})
}

// SetTextSize selects the character multiplier closest to points/24.
func (s *Service) SetTextSize(size float32) error {
	return s.send("setTextSize", func(e *Encoder) error {
		if size <= 0 || math.IsNaN(float64(size)) || math.IsInf(float64(size), 0) {
			return fmt.Errorf("invalid text size %v", size)
		}
		s.points = size
		n := TextMultiplier(size)
		e.SetTextSize(n, n)
		return nil
	})
}

// TextMultiplier converts points to a GS ! multiplier in 1..8.
func TextMultiplier(points float32) int {
	return clamp(int(math.Round(float64(points)/pointsPerMultiplier)), 1, 8)
}

func (s *Service) NextLine(lines int) error {
	return s.send("nextLine", func(e *Encoder) error {
		if lines < 0 {
			return errors.New("negative line count")
		}
		e.Feed(lines)
		return nil
	})
}

func (s *Service) SetTextBold(bold bool) error {
	return s.send("setTextBold", func(e *Encoder) error {
		s.bold = bold
		e.SetBold(bold)
		return nil
	})
}

func (s *Service) PrintTableText(text []string, weight []int, alignment []int) error {
	return s.send("printTableText", func(e *Encoder) error {
		img, err := renderTableRow(text, weight, alignment, tableStyle{
			width:    s.paperWidth,
			fontPath: s.fontPath,
			points:   float64(s.points),
			bold:     s.bold,
		})
		if err != nil {
			return err
		}
		e.Raster(img)
		return nil
	})
}

var _ remote.Printer = (*Service)(nil)
