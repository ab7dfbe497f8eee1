package printerd

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/codabar"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/code39"
	"github.com/boombuler/barcode/code93"
	"github.com/boombuler/barcode/ean"
	"github.com/boombuler/barcode/twooffive"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/skip2/go-qrcode"
)

// Barcode symbology codes accepted by PrintBarCode.
const (
	SymbologyUPCA    = 0
	SymbologyUPCE    = 1
	SymbologyEAN13   = 2
	SymbologyEAN8    = 3
	SymbologyCode39  = 4
	SymbologyITF     = 5
	SymbologyCodabar = 6
	SymbologyCode93  = 7
	SymbologyCode128 = 8
)

var ErrUnsupportedSymbology = errors.New("unsupported barcode symbology")

const (
	defaultBarcodeHeight = 162
	defaultBarcodeWidth  = 2
	defaultModuleSize    = 4
	maxModuleSize        = 16
	tableCellPadding     = 4
)

// PaperWidthDots converts a paper size name to printable dots at 203 dpi.
func PaperWidthDots(paper string) int {
	switch paper {
	case "58mm":
		return 384
	case "80mm":
		return 576
	case "112mm":
		return 832
	default:
		return 576
	}
}

func encodeBarcode(data string, symbology int) (barcode.Barcode, error) {
	switch symbology {
	case SymbologyUPCA:
		// UPC-A is EAN-13 with a leading zero.
		return ean.Encode("0" + data)
	case SymbologyEAN13, SymbologyEAN8:
		return ean.Encode(data)
	case SymbologyCode39:
		return code39.Encode(data, false, true)
	case SymbologyITF:
		return twooffive.Encode(data, true)
	case SymbologyCodabar:
		if !strings.ContainsAny(data[:1], "ABCDabcd") {
			data = "A" + data + "A"
		}
		return codabar.Encode(data)
	case SymbologyCode93:
		return code93.Encode(data, true, true)
	case SymbologyCode128:
		return code128.Encode(data)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSymbology, symbology)
	}
}

// renderBarcode draws data with each module width dots wide.
func renderBarcode(data string, symbology, height, width, paperWidth int) (image.Image, error) {
	if data == "" {
		return nil, errors.New("barcode data is empty")
	}

	bc, err := encodeBarcode(data, symbology)
	if err != nil {
		return nil, fmt.Errorf("encode barcode: %w", err)
	}

	if height <= 0 {
		height = defaultBarcodeHeight
	}
	if width <= 0 {
		width = defaultBarcodeWidth
	}
	width = clamp(width, 1, 6)

	dots := bc.Bounds().Dx() * width
	if dots > paperWidth {
		return nil, fmt.Errorf("barcode needs %d dots, paper has %d", dots, paperWidth)
	}

	return barcode.Scale(bc, dots, height)
}

var qrLevels = []qrcode.RecoveryLevel{qrcode.Low, qrcode.Medium, qrcode.High, qrcode.Highest}

// renderQRCode draws data with moduleSize dots per module, shrinking the
// modules if the code would not fit the paper.
func renderQRCode(data string, moduleSize, errorLevel, paperWidth int) (image.Image, error) {
	if data == "" {
		return nil, errors.New("qr data is empty")
	}

	q, err := qrcode.New(data, qrLevels[clamp(errorLevel, 0, len(qrLevels)-1)])
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}

	if moduleSize <= 0 {
		moduleSize = defaultModuleSize
	}
	moduleSize = clamp(moduleSize, 1, maxModuleSize)

	modules := len(q.Bitmap())
	for moduleSize > 1 && modules*moduleSize > paperWidth {
		moduleSize--
	}
	if modules*moduleSize > paperWidth {
		return nil, fmt.Errorf("qr code needs %d dots, paper has %d", modules, paperWidth)
	}

	return q.Image(-moduleSize), nil
}

// fitToPaper scales img down to the paper width, keeping its aspect ratio.
func fitToPaper(img image.Image, paperWidth int) image.Image {
	if img.Bounds().Dx() <= paperWidth {
		return img
	}
	return imaging.Resize(img, paperWidth, 0, imaging.Lanczos)
}

// tableStyle controls how a table row is drawn.
type tableStyle struct {
	width    int
	fontPath string
	points   float64
	bold     bool
}

// renderTableRow lays the cells out across the paper, each column taking a
// share of the width proportional to its weight.
func renderTableRow(text []string, weight, alignment []int, style tableStyle) (image.Image, error) {
	if len(text) != len(weight) || len(text) != len(alignment) {
		return nil, fmt.Errorf("table row has %d cells, %d weights, %d alignments", len(text), len(weight), len(alignment))
	}
	if len(text) == 0 {
		return nil, errors.New("table row is empty")
	}

	measure := gg.NewContext(1, 1)
	if style.fontPath != "" {
		face, err := gg.LoadFontFace(style.fontPath, style.points)
		if err != nil {
			return nil, fmt.Errorf("load font: %w", err)
		}
		measure.SetFontFace(face)
	}
	lineHeight := measure.FontHeight()
	height := int(math.Ceil(lineHeight * 1.5))

	dc := gg.NewContext(style.width, height)
	dc.SetColor(color.White)
	dc.Clear()
	if style.fontPath != "" {
		if err := dc.LoadFontFace(style.fontPath, style.points); err != nil {
			return nil, fmt.Errorf("load font: %w", err)
		}
	}
	dc.SetColor(color.Black)

	total := 0
	for _, w := range weight {
		if w > 0 {
			total += w
		}
	}

	x0 := 0.0
	y := float64(height) / 2
	for i, cell := range text {
		share := 1.0 / float64(len(text))
		if total > 0 {
			share = float64(max(weight[i], 0)) / float64(total)
		}
		x1 := x0 + share*float64(style.width)

		var x, ax float64
		switch alignment[i] {
		case 1:
			x, ax = (x0+x1)/2, 0.5
		case 2:
			x, ax = x1-tableCellPadding, 1
		default:
			x, ax = x0+tableCellPadding, 0
		}

		dc.DrawRectangle(x0, 0, x1-x0, float64(height))
		dc.Clip()
		dc.DrawStringAnchored(cell, x, y, ax, 0.5)
		if style.bold {
			dc.DrawStringAnchored(cell, x+1, y, ax, 0.5)
		}
		dc.ResetClip()

		x0 = x1
	}

	return dc.Image(), nil
}
