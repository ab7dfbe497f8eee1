package printerd

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/printer-bridge/internal/remote"
)

type bufferDevice struct {
	bytes.Buffer
	err error
}

func (d *bufferDevice) Write(p []byte) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	return d.Buffer.Write(p)
}

func (d *bufferDevice) Close() error { return nil }

// parseRaster decodes one GS v 0 block back into an image.
func parseRaster(t *testing.T, data []byte) *image.Gray {
	t.Helper()
	require.GreaterOrEqual(t, len(data), 8)
	require.Equal(t, []byte{GS, 'v', '0', 0}, data[:4])

	bytesPerLine := int(data[4]) | int(data[5])<<8
	height := int(data[6]) | int(data[7])<<8
	bits := data[8:]
	require.Len(t, bits, bytesPerLine*height)

	img := image.NewGray(image.Rect(0, 0, bytesPerLine*8, height))
	for y := 0; y < height; y++ {
		for x := 0; x < bytesPerLine*8; x++ {
			c := color.Gray{Y: 0xff}
			if bits[y*bytesPerLine+x/8]&(0x80>>(x%8)) != 0 {
				c = color.Gray{Y: 0}
			}
			img.SetGray(x, y, c)
		}
	}
	return img
}

func TestService_Formatting(t *testing.T) {
	dev := &bufferDevice{}
	s := NewService(dev)

	require.NoError(t, s.Initialize())
	require.NoError(t, s.SetAlignment(remote.AlignRight))
	require.NoError(t, s.SetTextBold(true))
	require.NoError(t, s.SetTextSize(48))
	require.NoError(t, s.PrintText("Café"))
	require.NoError(t, s.NextLine(3))
	require.NoError(t, s.PrintEpson([]byte{ESC, 'd', 5}))

	assert.Equal(t, []byte{
		ESC, '@',
		ESC, 'a', 2,
		ESC, 'E', 1,
		GS, '!', 0x11,
		'C', 'a', 'f', 0x82,
		LF, LF, LF,
		ESC, 'd', 5,
	}, dev.Bytes())
}

func TestService_RejectsBadArgumentsWithoutWriting(t *testing.T) {
	dev := &bufferDevice{}
	s := NewService(dev)

	assert.Error(t, s.SetAlignment(3))
	assert.Error(t, s.SetTextSize(0))
	assert.Error(t, s.NextLine(-1))
	assert.Error(t, s.PrintBitmap(&remote.Bitmap{Width: 2, Height: 2}))
	assert.ErrorIs(t, s.PrintBarCode("123", SymbologyUPCE, 80, 2), ErrUnsupportedSymbology)
	assert.Error(t, s.PrintQRCode("", 4, 0))
	assert.Error(t, s.PrintTableText([]string{"a"}, []int{1, 2}, []int{0}))

	assert.Zero(t, dev.Len())
}

func TestTextMultiplier(t *testing.T) {
	tests := []struct {
		points float32
		want   int
	}{
		{1, 1},
		{24, 1},
		{35.9, 1},
		{36, 2},
		{48, 2},
		{72, 3},
		{500, 8},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TextMultiplier(tt.points), "points %v", tt.points)
	}
}

func TestService_QRCodeDecodes(t *testing.T) {
	dev := &bufferDevice{}
	s := NewService(dev)

	const payload = "https://example.com/receipt/42"
	require.NoError(t, s.PrintQRCode(payload, 6, 1))

	img := parseRaster(t, dev.Bytes())
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	require.NoError(t, err)

	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	require.NoError(t, err)
	assert.Equal(t, payload, result.GetText())
}

func TestService_QRCodeShrinksToPaper(t *testing.T) {
	dev := &bufferDevice{}
	s := NewService(dev, WithPaperWidth(100))

	require.NoError(t, s.PrintQRCode("hello", 16, 0))

	img := parseRaster(t, dev.Bytes())
	assert.LessOrEqual(t, img.Bounds().Dy(), 100)
}

func TestService_Barcode(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		symbology int
	}{
		{"upc-a", "03600029145", SymbologyUPCA},
		{"ean13", "590123412345", SymbologyEAN13},
		{"ean8", "9638507", SymbologyEAN8},
		{"code39", "ABC-123", SymbologyCode39},
		{"itf", "12345678", SymbologyITF},
		{"codabar", "40156", SymbologyCodabar},
		{"code93", "TEST93", SymbologyCode93},
		{"code128", "Receipt 0042", SymbologyCode128},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := &bufferDevice{}
			s := NewService(dev)

			require.NoError(t, s.PrintBarCode(tt.data, tt.symbology, 60, 2))
			img := parseRaster(t, dev.Bytes())
			assert.Equal(t, 60, img.Bounds().Dy())
		})
	}
}

func TestService_BarcodeTooWide(t *testing.T) {
	s := NewService(&bufferDevice{}, WithPaperWidth(64))
	assert.Error(t, s.PrintBarCode("A LONG CODE 128 PAYLOAD", SymbologyCode128, 60, 6))
}

func TestService_BitmapFitsPaper(t *testing.T) {
	dev := &bufferDevice{}
	s := NewService(dev, WithPaperWidth(384))

	src := image.NewNRGBA(image.Rect(0, 0, 768, 20))
	for i := 3; i < len(src.Pix); i += 4 {
		src.Pix[i] = 0xff
	}
	require.NoError(t, s.PrintBitmap(remote.NewBitmap(src)))

	img := parseRaster(t, dev.Bytes())
	assert.Equal(t, 384, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())
	assert.Equal(t, color.Gray{Y: 0}, img.GrayAt(100, 5))
}

func TestService_TableRow(t *testing.T) {
	dev := &bufferDevice{}
	s := NewService(dev, WithPaperWidth(384))

	require.NoError(t, s.PrintTableText([]string{"Coffee", "2", "7.00"}, []int{3, 1, 2}, []int{0, 1, 2}))

	img := parseRaster(t, dev.Bytes())
	assert.Equal(t, 384, img.Bounds().Dx())
	assert.Greater(t, img.Bounds().Dy(), 0)

	inked := func(x0, x1 int) bool {
		for y := 0; y < img.Bounds().Dy(); y++ {
			for x := x0; x < x1; x++ {
				if img.GrayAt(x, y).Y == 0 {
					return true
				}
			}
		}
		return false
	}
	// Left-aligned first cell, right-aligned last cell.
	assert.True(t, inked(0, 60))
	assert.True(t, inked(324, 384))
	assert.False(t, inked(100, 180))
}

func TestService_DeviceWriteFailure(t *testing.T) {
	dev := &bufferDevice{err: errors.New("paper jam")}
	s := NewService(dev)

	err := s.PrintText("x")
	require.Error(t, err)
	assert.ErrorIs(t, err, dev.err)
}
