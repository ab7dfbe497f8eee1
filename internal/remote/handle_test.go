package remote_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/printer-bridge/internal/remote"
	"github.com/thereceipt/printer-bridge/internal/remote/remotetest"
)

func TestHandle_ForwardsWhileLive(t *testing.T) {
	rec := remotetest.NewRecorder()
	h := remote.NewHandle(rec, 7)

	require.NoError(t, h.PrintText("hello"))
	require.NoError(t, h.SetAlignment(remote.AlignCenter))
	require.NoError(t, h.PrintTableText([]string{"a"}, []int{1}, []int{0}))

	assert.Equal(t, uint64(7), h.Epoch())
	assert.Equal(t, []string{"PrintText", "SetAlignment", "PrintTableText"}, rec.Methods())
}

func TestHandle_RevokedNeverReachesPrinter(t *testing.T) {
	rec := remotetest.NewRecorder()
	h := remote.NewHandle(rec, 1)
	h.Revoke()
	h.Revoke()

	assert.True(t, h.Revoked())
	assert.ErrorIs(t, h.PrintText("stale"), remote.ErrRevoked)
	assert.ErrorIs(t, h.NextLine(2), remote.ErrRevoked)
	assert.ErrorIs(t, h.PrintBitmap(&remote.Bitmap{}), remote.ErrRevoked)
	assert.Zero(t, rec.Count())
}

func TestNewBitmap_SubImage(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	src.SetNRGBA(2, 1, color.NRGBA{R: 9, G: 8, B: 7, A: 255})

	sub := src.SubImage(image.Rect(1, 1, 3, 3)).(*image.NRGBA)
	bmp := remote.NewBitmap(sub)

	require.NoError(t, bmp.Validate())
	assert.Equal(t, 2, bmp.Width)
	assert.Equal(t, 2, bmp.Height)
	assert.Equal(t, []byte{9, 8, 7, 255}, bmp.Pix[4:8])
	assert.Equal(t, color.NRGBA{R: 9, G: 8, B: 7, A: 255}, bmp.Image().NRGBAAt(1, 0))
}

func TestBitmap_Validate(t *testing.T) {
	var nilBitmap *remote.Bitmap
	assert.Error(t, nilBitmap.Validate())
	assert.Error(t, (&remote.Bitmap{Width: 0, Height: 1}).Validate())
	assert.Error(t, (&remote.Bitmap{Width: 1, Height: 1, Pix: []byte{1, 2}}).Validate())
	assert.NoError(t, (&remote.Bitmap{Width: 1, Height: 1, Pix: []byte{1, 2, 3, 4}}).Validate())
}

func TestBitmap_ValidateOversized(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
	}{
		{"overflowing product", 1 << 31, 1 << 31},
		{"wide", remote.MaxBitmapSide + 1, 1},
		{"tall", 1, remote.MaxBitmapSide + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&remote.Bitmap{Width: tt.width, Height: tt.height}).Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "too large")
		})
	}
}
