// Package script defines print scripts: an ordered list of printer steps
// stored as JSON or YAML and replayed against a bridge.
package script

// Version is the only script version understood by Validate.
const Version = "1.0"

// Step types
const (
	StepText    = "text"
	StepEpson   = "epson"
	StepBitmap  = "bitmap"
	StepBarcode = "barcode"
	StepQRCode  = "qrcode"
	StepAlign   = "align"
	StepSize    = "size"
	StepBold    = "bold"
	StepFeed    = "feed"
	StepTable   = "table"
)

// Script is the root of a print script file.
type Script struct {
	Version     string `json:"version" yaml:"version"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []Step `json:"steps" yaml:"steps"`

	// dir resolves relative paths for scripts read from disk.
	dir string
}

// Step is one printer operation. Which fields apply depends on Type.
type Step struct {
	Type string `json:"type" yaml:"type"`

	// text, barcode, qrcode
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// epson, bitmap: exactly one of the two
	Base64 string `json:"base64,omitempty" yaml:"base64,omitempty"`
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`

	// barcode
	Format string `json:"format,omitempty" yaml:"format,omitempty"` // UPC_A, EAN13, CODE128, ...
	Height int    `json:"height,omitempty" yaml:"height,omitempty"`
	Width  int    `json:"width,omitempty" yaml:"width,omitempty"`

	// qrcode
	Size            int    `json:"size,omitempty" yaml:"size,omitempty"`
	ErrorCorrection string `json:"error_correction,omitempty" yaml:"error_correction,omitempty"` // L, M, Q, H

	// align
	Align string `json:"align,omitempty" yaml:"align,omitempty"` // left, center, right

	// size
	Points float64 `json:"points,omitempty" yaml:"points,omitempty"`

	// bold
	Bold bool `json:"bold,omitempty" yaml:"bold,omitempty"`

	// feed
	Lines int `json:"lines,omitempty" yaml:"lines,omitempty"`

	// table
	Columns    []string `json:"columns,omitempty" yaml:"columns,omitempty"`
	Weights    []int    `json:"weights,omitempty" yaml:"weights,omitempty"`
	Alignments []string `json:"alignments,omitempty" yaml:"alignments,omitempty"`
}

// barcodeFormats maps format names to printer symbology codes.
var barcodeFormats = map[string]int{
	"UPC_A":   0,
	"UPC_E":   1,
	"EAN13":   2,
	"EAN8":    3,
	"CODE39":  4,
	"ITF":     5,
	"CODABAR": 6,
	"CODE93":  7,
	"CODE128": 8,
}

const defaultBarcodeFormat = "CODE128"

var errorLevels = map[string]int{"L": 0, "M": 1, "Q": 2, "H": 3}

var alignments = map[string]int{"left": 0, "center": 1, "right": 2}
