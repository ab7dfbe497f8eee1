package printerd

import (
	"bytes"
	"image"
	"image/color"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// ESC/POS control bytes
const (
	ESC byte = 0x1B
	GS  byte = 0x1D
	LF  byte = 0x0A
)

// Encoder accumulates an ESC/POS command stream.
type Encoder struct {
	buffer *bytes.Buffer
	text   *encoding.Encoder
}

// NewEncoder creates an empty encoder. Text is written in code page 437;
// characters outside it become '?'.
func NewEncoder() *Encoder {
	return &Encoder{
		buffer: new(bytes.Buffer),
		text:   encoding.ReplaceUnsupported(charmap.CodePage437.NewEncoder()),
	}
}

// Initialize resets the printer to power-on defaults.
func (e *Encoder) Initialize() {
	e.buffer.Write([]byte{ESC, '@'})
}

// SetAlignment selects justification: 0 left, 1 center, 2 right.
// Anything else falls back to left.
func (e *Encoder) SetAlignment(align int) {
	if align < 0 || align > 2 {
		align = 0
	}
	e.buffer.Write([]byte{ESC, 'a', byte(align)})
}

// SetBold enables or disables emphasized mode.
func (e *Encoder) SetBold(enabled bool) {
	var n byte
	if enabled {
		n = 1
	}
	e.buffer.Write([]byte{ESC, 'E', n})
}

// SetTextSize sets the character width and height multipliers, 1..8 each.
func (e *Encoder) SetTextSize(width, height int) {
	width = clamp(width, 1, 8)
	height = clamp(height, 1, 8)
	e.buffer.Write([]byte{GS, '!', byte((width-1)<<4 | (height - 1))})
}

// Text writes text in the printer code page.
func (e *Encoder) Text(s string) {
	encoded, err := e.text.String(s)
	if err != nil {
		encoded = s
	}
	e.buffer.WriteString(encoded)
}

// Feed writes n line feeds.
func (e *Encoder) Feed(n int) {
	for i := 0; i < n; i++ {
		e.buffer.WriteByte(LF)
	}
}

// Raw appends bytes unchanged.
func (e *Encoder) Raw(data []byte) {
	e.buffer.Write(data)
}

// Raster prints img with GS v 0 in normal density. Dark pixels are printed;
// transparent pixels count as paper.
func (e *Encoder) Raster(img image.Image) {
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()
	if width == 0 || height == 0 {
		return
	}

	bytesPerLine := (width + 7) / 8
	e.buffer.Write([]byte{
		GS, 'v', '0', 0,
		byte(bytesPerLine), byte(bytesPerLine >> 8),
		byte(height), byte(height >> 8),
	})
	e.buffer.Write(imageToBitmap(img))
}

// Cut performs a partial cut after feeding to the cutter.
func (e *Encoder) Cut() {
	e.buffer.Write([]byte{GS, 'V', 66, 0})
}

// Bytes returns the encoded stream.
func (e *Encoder) Bytes() []byte {
	return e.buffer.Bytes()
}

// Reset clears the buffer.
func (e *Encoder) Reset() {
	e.buffer.Reset()
}

// imageToBitmap packs img into rows of 1-bit pixels, MSB first.
func imageToBitmap(img image.Image) []byte {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	bytesPerLine := (width + 7) / 8
	bitmap := make([]byte, bytesPerLine*height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if isDark(img.At(x+bounds.Min.X, y+bounds.Min.Y)) {
				bitmap[y*bytesPerLine+x/8] |= 0x80 >> (x % 8)
			}
		}
	}

	return bitmap
}

// isDark composites c over white and thresholds its luminance at 50%.
func isDark(c color.Color) bool {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	lum := (299*uint32(n.R) + 587*uint32(n.G) + 114*uint32(n.B)) / 1000
	lum = (lum*uint32(n.A) + 255*(255-uint32(n.A))) / 255
	return lum < 128
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
