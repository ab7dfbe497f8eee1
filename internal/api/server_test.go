package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/printer-bridge/internal/bridge"
	"github.com/thereceipt/printer-bridge/internal/ipc"
	"github.com/thereceipt/printer-bridge/internal/ipc/ipctest"
	"github.com/thereceipt/printer-bridge/internal/remote/remotetest"
)

type fixture struct {
	bridge *bridge.Bridge
	binder *ipctest.Binder
	rec    *remotetest.Recorder
	srv    *httptest.Server
}

// newFixture starts an API server over a fake binder. With autoConnect the
// recorder connects from inside Bind.
func newFixture(t *testing.T, autoConnect bool) *fixture {
	t.Helper()
	rec := remotetest.NewRecorder()
	binder := ipctest.NewBinder()
	if autoConnect {
		binder.AutoConnect = rec
	}
	b := bridge.New(bridge.NewController(binder, ipc.DefaultLocator, nil), bridge.NewSerializer(nil))
	srv := httptest.NewServer(NewServer(b, nil).Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.Close(ctx)
	})
	return &fixture{bridge: b, binder: binder, rec: rec, srv: srv}
}

func (f *fixture) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, f.bridge.Bind())
	f.binder.Connect(f.rec)
	require.Equal(t, bridge.StateBound, f.bridge.State())
}

func (f *fixture) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	resp, err := http.Post(f.srv.URL+path, "application/json", reader)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (f *fixture) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()
	resp, err := http.Get(f.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestServer_PrintEndpoints(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	requests := []struct {
		path string
		body any
	}{
		{"/print/text", map[string]any{"text": "hello"}},
		{"/print/epson", map[string]any{"data": "G0AK"}},
		{"/print/barcode", map[string]any{"data": "12345", "symbology": 8, "height": 80, "width": 2}},
		{"/print/qrcode", map[string]any{"data": "https://example.com", "module_size": 4, "error_level": 1}},
		{"/print/table", map[string]any{"text": []string{"a", "b"}, "weight": []int{1, 1}, "alignment": []int{0, 2}}},
		{"/format/alignment", map[string]any{"alignment": 1}},
		{"/format/size", map[string]any{"size": 32.5}},
		{"/format/bold", map[string]any{"bold": true}},
		{"/feed", map[string]any{"lines": 2}},
	}
	for _, r := range requests {
		status, body := f.post(t, r.path, r.body)
		assert.Equal(t, http.StatusOK, status, "%s: %v", r.path, body)
	}

	assert.Equal(t, []string{
		"PrintText", "PrintEpson", "PrintBarCode", "PrintQRCode", "PrintTableText",
		"SetAlignment", "SetTextSize", "SetTextBold", "NextLine",
	}, f.rec.Methods())
	assert.Equal(t, []any{float32(32.5)}, f.rec.Calls()[6].Args)
}

func TestServer_ErrorStatus(t *testing.T) {
	f := newFixture(t, false)

	status, body := f.post(t, "/print/text", map[string]any{"text": "x"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, false, body["success"])

	f.connect(t)

	status, _ = f.post(t, "/print/table", map[string]any{"text": []string{"a"}, "weight": []int{1, 2}, "alignment": []int{0}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.post(t, "/print/bitmap", map[string]any{"image": "not base64 at all!"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.post(t, "/print/barcode", map[string]any{"symbology": 8})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.post(t, "/feed", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)

	f.rec.Fail("PrintText", errors.New("out of paper"))
	status, body = f.post(t, "/print/text", map[string]any{"text": "x"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["error"], "out of paper")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{bridge.ErrNotConnected, http.StatusConflict},
		{fmt.Errorf("%w: %w", bridge.ErrWaitCancelled, context.Canceled), StatusClientClosedRequest},
		{bridge.ErrSerializerUnavailable, http.StatusServiceUnavailable},
		{&bridge.RemoteFault{Op: "printText", Err: errors.New("boom")}, http.StatusBadGateway},
		{bridge.ErrInvalidArgument, http.StatusBadRequest},
		{bridge.ErrMalformedTableRow, http.StatusBadRequest},
		{bridge.ErrEmptyPayload, http.StatusBadRequest},
		{bridge.ErrUnrecognizedImageFormat, http.StatusBadRequest},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestServer_BindUnbindStatus(t *testing.T) {
	f := newFixture(t, false)

	status, body := f.get(t, "/status")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "unbound", body["state"])

	status, body = f.post(t, "/bind", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "binding", body["state"])

	f.binder.Connect(f.rec)
	_, body = f.get(t, "/status")
	assert.Equal(t, "bound", body["state"])

	status, body = f.post(t, "/unbind", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "unbound", body["state"])
}

func TestServer_BindWait(t *testing.T) {
	f := newFixture(t, true)

	status, body := f.post(t, "/bind?wait=1s", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "bound", body["state"])
}

func TestServer_BindWaitTimesOut(t *testing.T) {
	f := newFixture(t, false)

	status, body := f.post(t, "/bind?wait=20ms", "")
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "binding", body["state"])
}

func TestServer_Command(t *testing.T) {
	f := newFixture(t, true)

	status, body := f.post(t, "/command", map[string]any{"command": "bind"})
	require.Equal(t, http.StatusOK, status, body)

	status, body = f.post(t, "/command", map[string]any{"command": `text "hello world"`})
	assert.Equal(t, http.StatusOK, status, body)

	status, _ = f.post(t, "/command", map[string]any{"command": "align center"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.post(t, "/command", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, status)

	assert.Equal(t, []any{"hello world"}, f.rec.Calls()[0].Args)
}

func TestServer_Script(t *testing.T) {
	f := newFixture(t, false)
	f.connect(t)

	status, body := f.post(t, "/script", `version: "1.0"
steps:
  - type: bold
    bold: true
  - type: text
    value: TOTAL
  - type: feed
    lines: 2
`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(3), body["steps"])
	assert.Equal(t, []string{"SetTextBold", "PrintText", "NextLine"}, f.rec.Methods())

	f.rec.Fail("PrintText", errors.New("cover open"))
	status, body = f.post(t, "/script", `{"version":"1.0","steps":[{"type":"feed"},{"type":"text","value":"x"}]}`)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, float64(1), body["step"])

	status, _ = f.post(t, "/script", `{"version":"9"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t, false)
	status, body := f.get(t, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Events(t *testing.T) {
	f := newFixture(t, true)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	read := func() WSMessage {
		t.Helper()
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		var msg WSMessage
		require.NoError(t, ws.ReadJSON(&msg))
		return msg
	}

	msg := read()
	assert.Equal(t, EventState, msg.Event)
	assert.Equal(t, "unbound", msg.Data["state"])

	require.NoError(t, ws.WriteJSON(WSMessage{Event: EventCommand, Data: map[string]any{"command": "bind"}}))

	// The state change and the command response race; collect both.
	seen := map[string]bool{}
	for i := 0; i < 3 && !(seen["bound"] && seen[EventResponse]); i++ {
		msg := read()
		if msg.Event == EventState {
			seen[msg.Data["state"].(string)] = true
		} else {
			seen[msg.Event] = true
		}
	}
	assert.True(t, seen["bound"])
	assert.True(t, seen[EventResponse])

	require.NoError(t, ws.WriteJSON(WSMessage{Event: "print"}))
	for {
		msg = read()
		if msg.Event != EventState {
			break
		}
	}
	assert.Equal(t, EventError, msg.Event)
}
