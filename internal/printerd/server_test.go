package printerd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thereceipt/printer-bridge/internal/ipc"
	"github.com/thereceipt/printer-bridge/internal/remote"
	"github.com/thereceipt/printer-bridge/internal/remote/remotetest"
)

type connection struct {
	connected    chan remote.Printer
	disconnected chan struct{}
}

func (c *connection) ServiceConnected(_ ipc.Locator, p remote.Printer) { c.connected <- p }
func (c *connection) ServiceDisconnected(ipc.Locator)                  { c.disconnected <- struct{}{} }

func newTestServer(t *testing.T, p remote.Printer) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(p, ipc.DefaultLocator, nil).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_BridgeSession(t *testing.T) {
	rec := remotetest.NewRecorder()
	srv := newTestServer(t, rec)

	binder := ipc.NewWebSocketBinder(srv.URL)
	conn := &connection{connected: make(chan remote.Printer, 1), disconnected: make(chan struct{}, 1)}
	require.NoError(t, binder.Bind(ipc.DefaultLocator, conn))
	t.Cleanup(func() { _ = binder.Unbind(conn) })

	var p remote.Printer
	select {
	case p = <-conn.connected:
	case <-time.After(2 * time.Second):
		t.Fatal("service never connected")
	}

	require.NoError(t, p.SetTextBold(true))
	require.NoError(t, p.PrintText("hello"))
	require.NoError(t, p.PrintTableText([]string{"a", "b"}, []int{1, 1}, []int{0, 2}))

	assert.Equal(t, []string{"SetTextBold", "PrintText", "PrintTableText"}, rec.Methods())
}

func TestServer_UnknownService(t *testing.T) {
	srv := newTestServer(t, remotetest.NewRecorder())

	resp, err := http.Get(srv.URL + "/services/com.example.other/Printer")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_UnknownServiceDisconnectsBridge(t *testing.T) {
	srv := newTestServer(t, remotetest.NewRecorder())

	binder := ipc.NewWebSocketBinder(srv.URL)
	conn := &connection{connected: make(chan remote.Printer, 1), disconnected: make(chan struct{}, 1)}
	require.NoError(t, binder.Bind(ipc.Locator{Package: "com.example.other", Component: "Printer"}, conn))

	select {
	case <-conn.disconnected:
	case <-conn.connected:
		t.Fatal("connected to an unknown service")
	case <-time.After(2 * time.Second):
		t.Fatal("bridge never notified")
	}
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t, remotetest.NewRecorder())

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status   string `json:"status"`
		Service  string `json:"service"`
		Sessions int64  `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, ipc.DefaultLocator.String(), body.Service)
	assert.Zero(t, body.Sessions)
}
