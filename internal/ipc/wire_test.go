package ipc

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/printer-bridge/internal/remote"
	"github.com/thereceipt/printer-bridge/internal/remote/remotetest"
)

func loopback(p remote.Printer) remote.Printer {
	return caller(func(method string, params any) error {
		req, err := NewRequest(method, params)
		if err != nil {
			return err
		}
		return responseError(method, Dispatch(p, req))
	})
}

func TestDispatch_EveryMethod(t *testing.T) {
	rec := remotetest.NewRecorder()
	p := loopback(rec)

	bmp := &remote.Bitmap{Width: 1, Height: 1, Pix: []byte{1, 2, 3, 255}}
	require.NoError(t, p.PrintText("hi"))
	require.NoError(t, p.PrintEpson([]byte{0x1b, 0x40}))
	require.NoError(t, p.PrintBitmap(bmp))
	require.NoError(t, p.PrintBarCode("123", 8, 80, 2))
	require.NoError(t, p.PrintQRCode("q", 4, 1))
	require.NoError(t, p.SetAlignment(remote.AlignRight))
	require.NoError(t, p.SetTextSize(28.5))
	require.NoError(t, p.NextLine(3))
	require.NoError(t, p.SetTextBold(true))
	require.NoError(t, p.PrintTableText([]string{"a", "b"}, []int{1, 2}, []int{0, 2}))

	calls := rec.Calls()
	require.Len(t, calls, 10)
	assert.Equal(t, []any{"hi"}, calls[0].Args)
	assert.Equal(t, []any{[]byte{0x1b, 0x40}}, calls[1].Args)
	assert.Equal(t, []any{bmp}, calls[2].Args)
	assert.Equal(t, []any{"123", 8, 80, 2}, calls[3].Args)
	assert.Equal(t, []any{"q", 4, 1}, calls[4].Args)
	assert.Equal(t, []any{remote.AlignRight}, calls[5].Args)
	assert.Equal(t, []any{float32(28.5)}, calls[6].Args)
	assert.Equal(t, []any{3}, calls[7].Args)
	assert.Equal(t, []any{true}, calls[8].Args)
	assert.Equal(t, []any{[]string{"a", "b"}, []int{1, 2}, []int{0, 2}}, calls[9].Args)
}

func TestDispatch_RemoteErrorCarriesMessage(t *testing.T) {
	rec := remotetest.NewRecorder()
	rec.Fail("PrintText", errors.New("paper out"))

	err := loopback(rec).PrintText("x")

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, MethodPrintText, remoteErr.Method)
	assert.Equal(t, "paper out", remoteErr.Message)
}

func TestDispatch_BadRequests(t *testing.T) {
	rec := remotetest.NewRecorder()

	tests := []struct {
		name string
		req  Request
	}{
		{"unknown method", Request{ID: "1", Method: "explode", Params: []byte(`{}`)}},
		{"missing params", Request{ID: "2", Method: MethodPrintText}},
		{"invalid params", Request{ID: "3", Method: MethodNextLine, Params: []byte(`{"lines":"many"}`)}},
		{"invalid bitmap", Request{ID: "4", Method: MethodPrintBitmap, Params: []byte(`{"bitmap":{"width":2,"height":2,"pix":""}}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Dispatch(rec, tt.req)
			assert.Equal(t, tt.req.ID, resp.ID)
			assert.NotEmpty(t, resp.Error)
		})
	}
	assert.Zero(t, rec.Count())
}

func TestNewRequest_UniqueIDs(t *testing.T) {
	a, err := NewRequest(MethodNextLine, linesParams{Lines: 1})
	require.NoError(t, err)
	b, err := NewRequest(MethodNextLine, linesParams{Lines: 1})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.JSONEq(t, `{"lines":1}`, string(a.Params))
}

func TestLocator(t *testing.T) {
	assert.NoError(t, DefaultLocator.Validate())
	assert.Error(t, Locator{Package: "p"}.Validate())
	assert.Equal(t, "/services/a.b/a.b.C", ServicePath(Locator{Package: "a.b", Component: "a.b.C"}))
	assert.Equal(t, "a.b.PrinterInterface", InterfaceName(Locator{Package: "a.b", Component: "c"}))
	assert.EqualValues(t, "/a/b/Svc", ObjectPath(Locator{Package: "a", Component: "a.b.Svc"}))
}

func TestDispatch_OversizedBitmapRejected(t *testing.T) {
	rec := remotetest.NewRecorder()

	req, err := NewRequest(MethodPrintBitmap, bitmapParams{
		Bitmap: &remote.Bitmap{Width: 1 << 31, Height: 1 << 31},
	})
	require.NoError(t, err)

	resp := Dispatch(rec, req)
	assert.Contains(t, resp.Error, "too large")
	assert.Zero(t, rec.Count())
}
