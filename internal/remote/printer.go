// Package remote describes the printer service's remote interface and the
// handle through which the bridge reaches it while a connection is live.
package remote

import (
	"fmt"
	"image"
	"math"
)

// Printer is the fixed method set exposed by the printer service. Every call
// blocks until the service replies and may fail with a remote fault.
type Printer interface {
	PrintText(text string) error
	PrintEpson(data []byte) error
	PrintBitmap(bmp *Bitmap) error
	PrintBarCode(data string, symbology, height, width int) error
	PrintQRCode(data string, moduleSize, errorLevel int) error
	SetAlignment(alignment int) error
	SetTextSize(size float32) error
	NextLine(lines int) error
	SetTextBold(bold bool) error
	PrintTableText(text []string, weight []int, alignment []int) error
}

// Alignment codes understood by SetAlignment and PrintTableText.
const (
	AlignLeft   = 0
	AlignCenter = 1
	AlignRight  = 2
)

// MaxBitmapSide bounds each side of a Bitmap accepted by Validate.
const MaxBitmapSide = 1 << 16

// Bitmap is a 32-bit-per-pixel, non-premultiplied RGBA raster.
type Bitmap struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pix    []byte `json:"pix"`
}

// NewBitmap copies img into a tightly packed Bitmap.
func NewBitmap(img *image.NRGBA) *Bitmap {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		off := img.PixOffset(b.Min.X, b.Min.Y+y)
		copy(pix[y*w*4:(y+1)*w*4], img.Pix[off:off+w*4])
	}

	return &Bitmap{Width: w, Height: h, Pix: pix}
}

// Validate checks that the pixel buffer matches the declared dimensions.
func (b *Bitmap) Validate() error {
	if b == nil {
		return fmt.Errorf("bitmap is nil")
	}
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid bitmap dimensions %dx%d", b.Width, b.Height)
	}
	if b.Width > MaxBitmapSide || b.Height > MaxBitmapSide || b.Width > math.MaxInt/4/b.Height {
		return fmt.Errorf("bitmap dimensions %dx%d too large", b.Width, b.Height)
	}
	if len(b.Pix) != b.Width*b.Height*4 {
		return fmt.Errorf("bitmap pixel buffer is %d bytes, want %d", len(b.Pix), b.Width*b.Height*4)
	}
	return nil
}

// Image exposes the bitmap as an *image.NRGBA sharing the pixel buffer.
func (b *Bitmap) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    b.Pix,
		Stride: b.Width * 4,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}
