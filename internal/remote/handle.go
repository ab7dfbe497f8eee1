package remote

import (
	"errors"
	"sync/atomic"
)

// ErrRevoked is returned by a Handle whose connection epoch has ended.
var ErrRevoked = errors.New("remote handle revoked")

// Handle borrows a Printer for one connection epoch. Once revoked every call
// fails with ErrRevoked instead of reaching a stale remote reference.
type Handle struct {
	printer Printer
	epoch   uint64
	revoked atomic.Bool
}

// NewHandle wraps p for the given epoch.
func NewHandle(p Printer, epoch uint64) *Handle {
	return &Handle{printer: p, epoch: epoch}
}

// Epoch returns the connection epoch the handle belongs to.
func (h *Handle) Epoch() uint64 { return h.epoch }

// Revoke ends the handle's epoch. It is safe to call more than once.
func (h *Handle) Revoke() { h.revoked.Store(true) }

// Revoked reports whether Revoke has been called.
func (h *Handle) Revoked() bool { return h.revoked.Load() }

func (h *Handle) live() (Printer, error) {
	if h.revoked.Load() {
		return nil, ErrRevoked
	}
	return h.printer, nil
}

func (h *Handle) PrintText(text string) error {
	p, err := h.live()
	if err != nil {
		return err
	}
	return p.PrintText(text)
}

func (h *Handle) PrintEpson(data []byte) error {
	p, err := h.live()
	if err != nil {
		return err
	}
	return p.PrintEpson(data)
}

func (h *Handle) PrintBitmap(bmp *Bitmap) error {
	p, err := h.live()
	if err != nil {
		return err
	}
	return p.PrintBitmap(bmp)
}

func (h *Handle) PrintBarCode(data string, symbology, height, width int) error {
	p, err := h.live()
	if err != nil {
		return err
	}
	return p.PrintBarCode(data, symbology, height, width)
}

func (h *Handle) PrintQRCode(data string, moduleSize, errorLevel int) error {
	p, err := h.live()
	if err != nil {
		return err
	}
	return p.PrintQRCode(data, moduleSize, errorLevel)
}

func (h *Handle) SetAlignment(alignment int) error {
	p, err := h.live()
	if err != nil {
		return err
	}
	return p.SetAlignment(alignment)
}

func (h *Handle) SetTextSize(size float32) error {
	p, err := h.live()
	if err != nil {
		return err
	}
	return p.SetTextSize(size)
}

func (h *Handle) NextLine(lines int) error {
	p, err := h.live()
	if err != nil {
		return err
	}
	return p.NextLine(lines)
}

func (h *Handle) SetTextBold(bold bool) error {
	p, err := h.live()
	if err != nil {
		return err
	}
	return p.SetTextBold(bold)
}

func (h *Handle) PrintTableText(text []string, weight []int, alignment []int) error {
	p, err := h.live()
	if err != nil {
		return err
	}
	return p.PrintTableText(text, weight, alignment)
}
