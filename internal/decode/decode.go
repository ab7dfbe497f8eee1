// Package decode turns caller-supplied base64 image text into a size-capped
// 32-bit-per-pixel bitmap ready to be sent to the printer service.
package decode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMaxDimension caps the longer side of a decoded bitmap.
const DefaultMaxDimension = 1080

var (
	ErrEmptyPayload            = errors.New("empty base64 image data")
	ErrDecodeFailed            = errors.New("failed to base64-decode image data")
	ErrUnrecognizedImageFormat = errors.New("decoded bytes not recognized as an image")
	ErrBitmapDecodeFailed      = errors.New("could not decode bitmap")
)

// Strategy identifies the base64 variant that produced a candidate.
type Strategy int

const (
	// StdPadded is the standard alphabet, padded, tolerant of line breaks.
	StdPadded Strategy = iota
	// StdRaw is the standard alphabet without padding or line-wrap tolerance.
	StdRaw
	// URLSafe is the URL-safe alphabet, padded or not.
	URLSafe
)

func (s Strategy) String() string {
	switch s {
	case StdPadded:
		return "std"
	case StdRaw:
		return "std-raw"
	case URLSafe:
		return "url-safe"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Candidate is a decoded byte buffer and the strategy that produced it.
type Candidate struct {
	Data     []byte
	Strategy Strategy
}

// Payload strips a data-URI prefix (anything up to and including "base64,")
// and surrounding whitespace.
func Payload(s string) (string, error) {
	if _, after, found := strings.Cut(s, "base64,"); found {
		s = after
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyPayload
	}
	return s, nil
}

// Base64 tries each strategy in order and returns the first that succeeds.
// Only the last strategy's error is kept.
func Base64(payload string) (Candidate, error) {
	var lastErr error

	for _, strategy := range []Strategy{StdPadded, StdRaw, URLSafe} {
		data, err := decodeWith(strategy, payload)
		if err == nil {
			return Candidate{Data: data, Strategy: strategy}, nil
		}
		lastErr = err
	}

	return Candidate{}, fmt.Errorf("%w: %w", ErrDecodeFailed, lastErr)
}

// Raw decodes standard base64 with line breaks tolerated. It does not strip a
// data-URI prefix and does not fall back to other alphabets.
func Raw(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyPayload
	}
	data, err := decodeWith(StdPadded, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecodeFailed, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	return data, nil
}

func decodeWith(strategy Strategy, payload string) ([]byte, error) {
	switch strategy {
	case StdPadded:
		return base64.StdEncoding.DecodeString(stripWhitespace(payload))
	case StdRaw:
		return base64.RawStdEncoding.Strict().DecodeString(payload)
	case URLSafe:
		cleaned := stripWhitespace(payload)
		if strings.HasSuffix(cleaned, "=") {
			return base64.URLEncoding.DecodeString(cleaned)
		}
		return base64.RawURLEncoding.DecodeString(cleaned)
	default:
		return nil, fmt.Errorf("unknown strategy %d", int(strategy))
	}
}

func stripWhitespace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
}

// SampleSize returns the smallest power of two that brings the longer side
// of a width x height image to at most maxDim.
func SampleSize(width, height, maxDim int) int {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}

	maxSide := width
	if height > maxSide {
		maxSide = height
	}

	sample := 1
	for maxSide/sample > maxDim {
		sample *= 2
	}
	return sample
}

// Decoder runs the full pipeline with a fixed dimension cap.
type Decoder struct {
	MaxDimension int
}

// NewDecoder returns a Decoder capped at maxDim (DefaultMaxDimension if <= 0).
func NewDecoder(maxDim int) *Decoder {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	return &Decoder{MaxDimension: maxDim}
}

// Bitmap decodes s (raw base64 or a data URI) into an NRGBA bitmap whose
// sides do not exceed the decoder's cap.
func (d *Decoder) Bitmap(s string) (*image.NRGBA, error) {
	payload, err := Payload(s)
	if err != nil {
		return nil, err
	}

	candidate, err := Base64(payload)
	if err != nil {
		return nil, err
	}

	return d.Image(candidate.Data)
}

// maxSampleSize bounds how far a source may exceed the cap and still be
// decoded; the pixel budget is (MaxDimension*maxSampleSize)^2.
const maxSampleSize = 16

// checkBudget rejects sources whose declared pixel count would not fit the
// decoder's budget. Decoders allocate the full raster up front.
func (d *Decoder) checkBudget(width, height int) error {
	maxDim := d.MaxDimension
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	side := int64(maxDim) * maxSampleSize
	if int64(width)*int64(height) > side*side {
		return fmt.Errorf("%w: %dx%d exceeds the %d pixel budget", ErrBitmapDecodeFailed, width, height, side*side)
	}
	return nil
}

// Image interprets already-decoded bytes.
func (d *Decoder) Image(data []byte) (*image.NRGBA, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		// bounds unknown, last resort is a direct decode
		img, _, derr := image.Decode(bytes.NewReader(data))
		if derr != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnrecognizedImageFormat, derr)
		}
		b := img.Bounds()
		if b.Dx() <= 0 || b.Dy() <= 0 {
			return nil, fmt.Errorf("%w: invalid dimensions %dx%d", ErrUnrecognizedImageFormat, b.Dx(), b.Dy())
		}
		if err := d.checkBudget(b.Dx(), b.Dy()); err != nil {
			return nil, err
		}
		return d.materialize(img, SampleSize(b.Dx(), b.Dy(), d.MaxDimension)), nil
	}

	if err := d.checkBudget(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}
	sample := SampleSize(cfg.Width, cfg.Height, d.MaxDimension)

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBitmapDecodeFailed, err)
	}

	return d.materialize(img, sample), nil
}

func (d *Decoder) materialize(img image.Image, sample int) *image.NRGBA {
	if sample <= 1 {
		return imaging.Clone(img)
	}

	b := img.Bounds()
	width := max(b.Dx()/sample, 1)
	height := max(b.Dy()/sample, 1)

	return imaging.Resize(img, width, height, imaging.Box)
}

// Bitmap runs the pipeline with DefaultMaxDimension.
func Bitmap(s string) (*image.NRGBA, error) {
	return NewDecoder(DefaultMaxDimension).Bitmap(s)
}
